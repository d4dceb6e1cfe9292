package kinematics

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap/zaptest"
	"go.viam.com/test"

	"github.com/relabs-tech/manipulator/internal/msgs"
)

func status(text string) msgs.StatusMsg {
	return msgs.StatusMsg{Type: msgs.StatusInfo, ModuleName: "Manipulation", StatusMsg: text}
}

type fakeSubscriber struct {
	handlers  chan func([]byte)
	cancelled chan struct{}
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{handlers: make(chan func([]byte), 1), cancelled: make(chan struct{})}
}

func (f *fakeSubscriber) Subscribe(_ context.Context, _ string, fn func([]byte)) (func(), error) {
	f.handlers <- fn
	return func() { close(f.cancelled) }, nil
}

func TestStatusStrings(t *testing.T) {
	test.That(t, StartStatus(GroupLeftArm), test.ShouldEqual, "Start Left Arm Arr Trajectory")
	test.That(t, FinishStatus(GroupRightArm), test.ShouldEqual, "Finish Right Arm Arr Trajectory")
}

func TestStatusWatcherApply(t *testing.T) {
	w := NewStatusWatcher(nil, "status", zaptest.NewLogger(t).Sugar())
	var updates []ArmStatus
	w.OnUpdate = func(s ArmStatus) { updates = append(updates, s) }

	s := w.Apply(status(StartStatus(GroupLeftArm)))
	test.That(t, s.LeftArr, test.ShouldBeTrue)
	test.That(t, s.RightArr, test.ShouldBeFalse)
	test.That(t, w.Busy(GroupLeftArm), test.ShouldBeTrue)

	w.Apply(status(StartStatus(GroupRightArm)))
	w.Apply(status(FinishStatus(GroupLeftArm)))
	test.That(t, w.Busy(GroupLeftArm), test.ShouldBeFalse)
	test.That(t, w.Busy(GroupRightArm), test.ShouldBeTrue)
	test.That(t, w.FinishCount(GroupLeftArm), test.ShouldEqual, uint64(1))
	test.That(t, w.FinishCount(GroupRightArm), test.ShouldEqual, uint64(0))

	w.Apply(status("End Trajectory"))
	test.That(t, w.Status().StatusMsg, test.ShouldEqual, "End Trajectory")
	test.That(t, w.Busy(GroupRightArm), test.ShouldBeTrue)
	test.That(t, updates, test.ShouldHaveLength, 4)
	test.That(t, w.Busy("head"), test.ShouldBeFalse)
}

func TestStatusWatcherWait(t *testing.T) {
	w := NewStatusWatcher(nil, "status", zaptest.NewLogger(t).Sugar())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// idle from the start
	test.That(t, w.WaitIdle(ctx, GroupLeftArm), test.ShouldBeNil)

	w.Apply(status(StartStatus(GroupLeftArm)))
	after := w.FinishCount(GroupLeftArm)
	done := make(chan error, 2)
	go func() { done <- w.WaitFinished(ctx, GroupLeftArm, after) }()
	go func() { done <- w.WaitIdle(ctx, GroupLeftArm) }()

	w.Apply(status(StartStatus(GroupRightArm)))
	w.Apply(status(FinishStatus(GroupLeftArm)))
	test.That(t, <-done, test.ShouldBeNil)
	test.That(t, <-done, test.ShouldBeNil)

	short, stop := context.WithTimeout(ctx, 10*time.Millisecond)
	defer stop()
	err := w.WaitFinished(short, GroupRightArm, w.FinishCount(GroupRightArm))
	test.That(t, errors.Is(err, context.DeadlineExceeded), test.ShouldBeTrue)
}

func TestStatusWatcherRun(t *testing.T) {
	sub := newFakeSubscriber()
	w := NewStatusWatcher(sub, "status", zaptest.NewLogger(t).Sugar())
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()

	handle := <-sub.handlers
	payload, err := json.Marshal(status(StartStatus(GroupRightArm)))
	test.That(t, err, test.ShouldBeNil)
	handle(payload)
	handle([]byte("not json"))
	test.That(t, w.Busy(GroupRightArm), test.ShouldBeTrue)

	cancel()
	test.That(t, errors.Is(<-errc, context.Canceled), test.ShouldBeTrue)
	<-sub.cancelled
}
