package kinematics

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/relabs-tech/manipulator/internal/msgs"
)

// Subscriber delivers payloads published on a topic until cancelled.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string, fn func(payload []byte)) (cancel func(), err error)
}

var armLabel = map[string]string{
	GroupLeftArm:  "Left Arm",
	GroupRightArm: "Right Arm",
}

// StartStatus is the status message the manipulation module publishes when
// an array trajectory of group begins.
func StartStatus(group string) string {
	return "Start " + armLabel[group] + " Arr Trajectory"
}

// FinishStatus is the status message published when it ends.
func FinishStatus(group string) string {
	return "Finish " + armLabel[group] + " Arr Trajectory"
}

// ArmStatus is the latest known state of the manipulation module.
type ArmStatus struct {
	ModuleName string    `json:"module_name"`
	StatusMsg  string    `json:"status_msg"`
	LeftArr    bool      `json:"left_arr"`
	RightArr   bool      `json:"right_arr"`
	Updated    time.Time `json:"updated"`
}

// Busy reports whether an array trajectory of group is running.
func (s ArmStatus) Busy(group string) bool {
	switch group {
	case GroupLeftArm:
		return s.LeftArr
	case GroupRightArm:
		return s.RightArr
	}
	return false
}

// StatusWatcher follows the status topic.
type StatusWatcher struct {
	sub    Subscriber
	topic  string
	logger *zap.SugaredLogger

	// OnUpdate, if set before Run, is called after every status message.
	OnUpdate func(ArmStatus)

	mu       sync.RWMutex
	status   ArmStatus
	finished map[string]uint64
	changed  chan struct{}
}

// NewStatusWatcher returns a watcher for topic. Call Run to start it.
func NewStatusWatcher(sub Subscriber, topic string, logger *zap.SugaredLogger) *StatusWatcher {
	return &StatusWatcher{
		sub:      sub,
		topic:    topic,
		logger:   logger,
		finished: make(map[string]uint64),
		changed:  make(chan struct{}),
	}
}

// Start subscribes to the status topic and returns once the subscription is
// in place, so nothing published afterwards is missed. Call stop to end it.
func (w *StatusWatcher) Start(ctx context.Context) (stop func(), err error) {
	cancel, err := w.sub.Subscribe(ctx, w.topic, w.handle)
	if err != nil {
		return nil, err
	}
	w.logger.Infof("kinematics: watching status on %s", w.topic)
	return cancel, nil
}

// Run follows status messages until ctx is cancelled.
func (w *StatusWatcher) Run(ctx context.Context) error {
	stop, err := w.Start(ctx)
	if err != nil {
		return err
	}
	defer stop()

	<-ctx.Done()
	w.logger.Infof("kinematics: status watcher stopped")
	return ctx.Err()
}

func (w *StatusWatcher) handle(payload []byte) {
	var msg msgs.StatusMsg
	if err := json.Unmarshal(payload, &msg); err != nil {
		w.logger.Warnf("kinematics: status unmarshal error: %v", err)
		return
	}
	w.Apply(msg)
}

// Apply folds one status message into the watcher's state.
func (w *StatusWatcher) Apply(msg msgs.StatusMsg) ArmStatus {
	w.mu.Lock()
	w.status.ModuleName = msg.ModuleName
	w.status.StatusMsg = msg.StatusMsg
	w.status.Updated = time.Now()

	switch msg.StatusMsg {
	case StartStatus(GroupLeftArm):
		w.status.LeftArr = true
	case FinishStatus(GroupLeftArm):
		w.status.LeftArr = false
		w.finished[GroupLeftArm]++
	case StartStatus(GroupRightArm):
		w.status.RightArr = true
	case FinishStatus(GroupRightArm):
		w.status.RightArr = false
		w.finished[GroupRightArm]++
	}

	snapshot := w.status
	close(w.changed)
	w.changed = make(chan struct{})
	onUpdate := w.OnUpdate
	w.mu.Unlock()

	w.logger.Debugf("kinematics: status %s: %s", msg.ModuleName, msg.StatusMsg)
	if onUpdate != nil {
		onUpdate(snapshot)
	}
	return snapshot
}

// Status returns the latest state.
func (w *StatusWatcher) Status() ArmStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.status
}

// Busy reports whether an array trajectory of group is running.
func (w *StatusWatcher) Busy(group string) bool {
	return w.Status().Busy(group)
}

// FinishCount returns how many array trajectories of group have finished.
// Take it before publishing and pass it to WaitFinished.
func (w *StatusWatcher) FinishCount(group string) uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.finished[group]
}

// WaitFinished blocks until more than after trajectories of group finished.
func (w *StatusWatcher) WaitFinished(ctx context.Context, group string, after uint64) error {
	return w.waitFor(ctx, func() bool { return w.finished[group] > after })
}

// WaitIdle blocks until no array trajectory of group is running.
func (w *StatusWatcher) WaitIdle(ctx context.Context, group string) error {
	return w.waitFor(ctx, func() bool { return !w.status.Busy(group) })
}

// waitFor re-checks cond, under the read lock, after every status message.
func (w *StatusWatcher) waitFor(ctx context.Context, cond func() bool) error {
	for {
		w.mu.RLock()
		ok := cond()
		changed := w.changed
		w.mu.RUnlock()
		if ok {
			return nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
