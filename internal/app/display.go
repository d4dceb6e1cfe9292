package app

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/manipulator/internal/bus"
	"github.com/relabs-tech/manipulator/internal/config"
	"github.com/relabs-tech/manipulator/internal/kinematics"
	"github.com/relabs-tech/manipulator/internal/logging"
	"github.com/relabs-tech/manipulator/internal/msgs"
)

// maxChars is how many 7x13 glyphs fit on a 128 pixel line.
const maxChars = 18

// armPanel is what one display shows for one arm.
type armPanel struct {
	Label      string
	Busy       bool
	Status     string
	Target     msgs.Point
	HaveTarget bool
	Waypoints  int
}

// displayData holds the latest data for both displays.
type displayData struct {
	mu     sync.RWMutex
	panels map[string]*armPanel
}

func newDisplayData() *displayData {
	return &displayData{panels: map[string]*armPanel{
		kinematics.GroupLeftArm:  {Label: "LEFT ARM"},
		kinematics.GroupRightArm: {Label: "RIGHT ARM"},
	}}
}

func (d *displayData) applyStatus(st kinematics.ArmStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for group, p := range d.panels {
		p.Busy = st.Busy(group)
		p.Status = st.StatusMsg
	}
}

func (d *displayData) applyArray(m msgs.KinematicsArrayPose) {
	if len(m.Poses) == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.panels[m.Name]; ok {
		p.Target = m.Poses[len(m.Poses)-1].Position
		p.HaveTarget = true
		p.Waypoints = len(m.Poses)
	}
}

func (d *displayData) applyPose(m msgs.KinematicsPose) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.panels[m.Name]; ok {
		p.Target = m.Pose.Position
		p.HaveTarget = true
		p.Waypoints = 1
	}
}

func (d *displayData) snapshot(group string) armPanel {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return *d.panels[group]
}

// RunDisplay shows the left arm on the left OLED and the right arm on the
// right one until ctx is done.
func RunDisplay(ctx context.Context) error {
	cfg := config.Get()
	logger := logging.L()

	// Initialize periph
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	// Open I2C bus
	i2cBus, err := i2creg.Open("")
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer i2cBus.Close()

	leftDisplay, err := ssd1306.NewI2C(atAddr(i2cBus, cfg.DisplayLeftI2CAddr), &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize left display: %w", err)
	}
	logger.Infof("display: left display initialized at 0x%02X", cfg.DisplayLeftI2CAddr)

	rightDisplay, err := ssd1306.NewI2C(atAddr(i2cBus, cfg.DisplayRightI2CAddr), &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize right display: %w", err)
	}
	logger.Infof("display: right display initialized at 0x%02X", cfg.DisplayRightI2CAddr)

	for _, dev := range []*ssd1306.Dev{leftDisplay, rightDisplay} {
		if err := draw(dev, renderSplash()); err != nil {
			logger.Warnf("display: error showing splash: %v", err)
		}
	}

	c, err := bus.Dial(ctx, cfg.MQTTBroker, cfg.MQTTClientIDDisplay, cfg.MQTTQoS, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	data := newDisplayData()
	watcher := kinematics.NewStatusWatcher(c, cfg.TopicStatus, logger)
	watcher.OnUpdate = data.applyStatus
	stopWatch, err := watcher.Start(ctx)
	if err != nil {
		return err
	}
	defer stopWatch()

	cancel, err := subscribeAll(ctx, c, logger, "display", displayHandlers(cfg, data, logger))
	if err != nil {
		return err
	}
	defer cancel()

	ticker := time.NewTicker(time.Duration(cfg.DisplayUpdateInterval) * time.Millisecond)
	defer ticker.Stop()

	logger.Infof("display: starting update loop")
	for {
		select {
		case <-ctx.Done():
			logger.Infof("display: shutting down")
			return nil
		case <-ticker.C:
		}
		if err := draw(leftDisplay, renderPanel(data.snapshot(kinematics.GroupLeftArm))); err != nil {
			logger.Warnf("display: error updating left display: %v", err)
		}
		if err := draw(rightDisplay, renderPanel(data.snapshot(kinematics.GroupRightArm))); err != nil {
			logger.Warnf("display: error updating right display: %v", err)
		}
	}
}

// addrBus sends every transaction to addr. ssd1306.NewI2C always talks to
// 0x3C, so each panel gets its own view of the shared bus.
type addrBus struct {
	i2c.Bus
	addr uint16
}

func atAddr(b i2c.Bus, addr uint16) *addrBus {
	return &addrBus{Bus: b, addr: addr}
}

func (b *addrBus) Tx(_ uint16, w, r []byte) error {
	return b.Bus.Tx(b.addr, w, r)
}

func (b *addrBus) String() string {
	return fmt.Sprintf("%s@0x%02X", b.Bus, b.addr)
}

func displayHandlers(cfg *config.Config, data *displayData, logger *zap.SugaredLogger) map[string]func([]byte) {
	return map[string]func([]byte){
		cfg.TopicKinematicsArr: func(payload []byte) {
			var m msgs.KinematicsArrayPose
			if err := json.Unmarshal(payload, &m); err != nil {
				logger.Warnf("display: array pose unmarshal error: %v", err)
				return
			}
			data.applyArray(m)
		},
		cfg.TopicKinematicsPose: func(payload []byte) {
			var m msgs.KinematicsPose
			if err := json.Unmarshal(payload, &m); err != nil {
				logger.Warnf("display: kinematics pose unmarshal error: %v", err)
				return
			}
			data.applyPose(m)
		},
	}
}

func draw(dev *ssd1306.Dev, img *image1bit.VerticalLSB) error {
	return errors.Wrap(dev.Draw(dev.Bounds(), img, image.Point{}), "draw")
}

// textImage renders up to four lines of text on a blank 128x64 image.
func textImage(lines ...string) *image1bit.VerticalLSB {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64))
	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	for i, line := range lines {
		if len(line) > maxChars {
			line = line[:maxChars]
		}
		drawer.Dot = fixed.P(0, 13*(i+1))
		drawer.DrawString(line)
	}
	return img
}

func renderPanel(p armPanel) *image1bit.VerticalLSB {
	state := "IDLE"
	if p.Busy {
		state = "MOVING"
	}
	header := fmt.Sprintf("%-10s%s", p.Label, state)

	if !p.HaveTarget {
		return textImage(header, "", "Waiting...")
	}
	return textImage(
		header,
		fmt.Sprintf("X%6.3f Y%6.3f", p.Target.X, p.Target.Y),
		fmt.Sprintf("Z%6.3f  %4dwp", p.Target.Z, p.Waypoints),
		p.Status,
	)
}

func renderSplash() *image1bit.VerticalLSB {
	return textImage("", " Manipulator", "  Waiting for", "  status")
}
