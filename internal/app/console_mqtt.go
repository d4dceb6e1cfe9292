package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/relabs-tech/manipulator/internal/bus"
	"github.com/relabs-tech/manipulator/internal/config"
	"github.com/relabs-tech/manipulator/internal/logging"
	"github.com/relabs-tech/manipulator/internal/msgs"
	"github.com/relabs-tech/manipulator/internal/orientation"
)

// RunConsoleMQTT prints status, pose and joint traffic until ctx is done.
func RunConsoleMQTT(ctx context.Context, w io.Writer) error {
	cfg := config.Get()
	logger := logging.L()

	c, err := bus.Dial(ctx, cfg.MQTTBroker, cfg.MQTTClientIDConsole, cfg.MQTTQoS, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	cancel, err := subscribeAll(ctx, c, logger, "console", consoleHandlers(cfg, w, logger))
	if err != nil {
		return err
	}
	defer cancel()

	<-ctx.Done()
	logger.Infof("console: shutting down")
	return nil
}

func consoleHandlers(cfg *config.Config, w io.Writer, logger *zap.SugaredLogger) map[string]func([]byte) {
	return map[string]func([]byte){
		cfg.TopicStatus: func(payload []byte) {
			var m msgs.StatusMsg
			if err := json.Unmarshal(payload, &m); err != nil {
				logger.Warnf("console: status unmarshal error: %v", err)
				return
			}
			fmt.Fprintf(w, "[STAT]  %s: %s\n", m.ModuleName, m.StatusMsg)
		},

		cfg.TopicKinematicsPose: func(payload []byte) {
			var m msgs.KinematicsPose
			if err := json.Unmarshal(payload, &m); err != nil {
				logger.Warnf("console: kinematics pose unmarshal error: %v", err)
				return
			}
			fmt.Fprintf(w, "[POSE]  %s in %.2fs -> %s\n", m.Name, m.Time, formatGeoPose(m.Pose))
		},

		cfg.TopicKinematicsArr: func(payload []byte) {
			var m msgs.KinematicsArrayPose
			if err := json.Unmarshal(payload, &m); err != nil {
				logger.Warnf("console: array pose unmarshal error: %v", err)
				return
			}
			if len(m.Poses) == 0 {
				fmt.Fprintf(w, "[ARR ]  %s: empty\n", m.Name)
				return
			}
			fmt.Fprintf(w, "[ARR ]  %s: %d waypoints every %.3fs\n", m.Name, len(m.Poses), m.Time)
			fmt.Fprintf(w, "        from %s\n", formatGeoPose(m.Poses[0]))
			fmt.Fprintf(w, "        to   %s\n", formatGeoPose(m.Poses[len(m.Poses)-1]))
		},

		cfg.TopicSetJointStates: func(payload []byte) {
			var m msgs.JointState
			if err := json.Unmarshal(payload, &m); err != nil {
				logger.Warnf("console: joint states unmarshal error: %v", err)
				return
			}
			for i, name := range m.Name {
				if i < len(m.Position) {
					fmt.Fprintf(w, "[JNT ]  %-18s %8.4f rad\n", name, m.Position[i])
				}
			}
		},
	}
}

func formatGeoPose(p msgs.GeoPose) string {
	q := p.Orientation
	o := orientation.PoseFromQuaternion(orientation.Quaternion{X: q.X, Y: q.Y, Z: q.Z, W: q.W})
	return fmt.Sprintf("X=%7.3f Y=%7.3f Z=%7.3f  ROLL=%6.2f PITCH=%6.2f YAW=%6.2f",
		p.Position.X, p.Position.Y, p.Position.Z, o.Roll, o.Pitch, o.Yaw)
}
