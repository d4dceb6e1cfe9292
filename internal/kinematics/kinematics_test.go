package kinematics

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/zap/zaptest"
	"go.viam.com/test"

	"github.com/relabs-tech/manipulator/internal/msgs"
	"github.com/relabs-tech/manipulator/internal/orientation"
	"github.com/relabs-tech/manipulator/internal/trajectory"
)

var testTopics = Topics{
	EnableModule:   "enable",
	IniPose:        "ini",
	KinematicsPose: "pose",
	KinematicsArr:  "arr",
	SetJointStates: "joints",
}

type published struct {
	topic string
	msg   any
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (f *fakePublisher) Publish(_ context.Context, topic string, msg any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{topic, msg})
	return nil
}

func (f *fakePublisher) on(topic string) []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []any
	for _, p := range f.sent {
		if p.topic == topic {
			out = append(out, p.msg)
		}
	}
	return out
}

type fakePoses struct {
	poses map[string]msgs.GeoPose
	err   error
}

func (f *fakePoses) QueryPose(_ context.Context, group string) (msgs.GeoPose, error) {
	if f.err != nil {
		return msgs.GeoPose{}, f.err
	}
	p, ok := f.poses[group]
	if !ok {
		return msgs.GeoPose{}, errors.Errorf("no pose for %s", group)
	}
	return p, nil
}

func identityAt(x, y, z float64) msgs.GeoPose {
	return msgs.GeoPose{Position: msgs.Point{X: x, Y: y, Z: z}, Orientation: msgs.Quaternion{W: 1}}
}

func newTestKinematics(t *testing.T, poses *fakePoses) (*Kinematics, *fakePublisher) {
	pub := &fakePublisher{}
	return New(pub, poses, testTopics, zaptest.NewLogger(t).Sugar(), WithLatch(3, 0)), pub
}

func TestGetKinematicsPose(t *testing.T) {
	q := orientation.Pose{Roll: 30, Pitch: -10, Yaw: 90}.Quaternion()
	poses := &fakePoses{poses: map[string]msgs.GeoPose{
		GroupLeftArm: {
			Position:    msgs.Point{X: 0.3, Y: 0.2, Z: 0.7},
			Orientation: msgs.Quaternion{X: q.X, Y: q.Y, Z: q.Z, W: q.W},
		},
	}}
	k, _ := newTestKinematics(t, poses)

	p, err := k.GetKinematicsPose(context.Background(), GroupLeftArm)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p.Position(), test.ShouldResemble, r3.Vector{X: 0.3, Y: 0.2, Z: 0.7})
	test.That(t, p.Roll, test.ShouldAlmostEqual, 30., 1e-9)
	test.That(t, p.Pitch, test.ShouldAlmostEqual, -10., 1e-9)
	test.That(t, p.Yaw, test.ShouldAlmostEqual, 90., 1e-9)

	_, err = k.GetKinematicsPose(context.Background(), GroupRightArm)
	test.That(t, errors.Is(err, ErrServiceUnavailable), test.ShouldBeTrue)
}

func TestSetKinematicsPose(t *testing.T) {
	k, pub := newTestKinematics(t, &fakePoses{})
	pose := Pose{X: 0.1, Y: 0.2, Z: 0.3, Pose: orientation.Pose{Yaw: 90}}
	test.That(t, k.SetKinematicsPose(context.Background(), GroupRightArm, 2.5, pose), test.ShouldBeNil)

	sent := pub.on("pose")
	test.That(t, sent, test.ShouldHaveLength, 1)
	msg := sent[0].(msgs.KinematicsPose)
	test.That(t, msg.Name, test.ShouldEqual, GroupRightArm)
	test.That(t, msg.Time, test.ShouldEqual, 2.5)
	test.That(t, msg.Pose.Position, test.ShouldResemble, msgs.Point{X: 0.1, Y: 0.2, Z: 0.3})
	test.That(t, msg.Pose.Orientation.Z, test.ShouldAlmostEqual, math.Sqrt2/2)
	test.That(t, msg.Pose.Orientation.W, test.ShouldAlmostEqual, math.Sqrt2/2)
}

func TestTrajectorySin(t *testing.T) {
	poses := &fakePoses{poses: map[string]msgs.GeoPose{GroupLeftArm: identityAt(0, 0, 0)}}
	k, pub := newTestKinematics(t, poses)

	req := trajectory.Request{
		Group:       GroupLeftArm,
		Target:      r3.Vector{X: 1},
		Orientation: orientation.Pose{Roll: 0, Pitch: 0, Yaw: 45},
		Arc:         r3.Vector{Y: 0.1},
		Duration:    1.0,
		Resolution:  0.1,
	}
	seq, err := k.TrajectorySin(context.Background(), req)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, seq.Len(), test.ShouldEqual, 10)
	test.That(t, seq.Rule, test.ShouldEqual, trajectory.RuleXMove)

	sent := pub.on("arr")
	test.That(t, sent, test.ShouldHaveLength, 1)
	msg := sent[0].(msgs.KinematicsArrayPose)
	test.That(t, msg.Name, test.ShouldEqual, GroupLeftArm)
	test.That(t, msg.Time, test.ShouldEqual, 0.1)
	test.That(t, msg.Poses, test.ShouldHaveLength, 10)
	test.That(t, msg.Poses[9].Position.X, test.ShouldAlmostEqual, 1.)

	want := orientation.Pose{Yaw: 45}.Quaternion()
	for _, p := range msg.Poses {
		test.That(t, p.Orientation, test.ShouldResemble, msgs.Quaternion{X: want.X, Y: want.Y, Z: want.Z, W: want.W})
	}
}

func TestTrajectorySinServiceUnavailable(t *testing.T) {
	k, pub := newTestKinematics(t, &fakePoses{err: errors.New("timeout")})
	seq, err := k.TrajectorySin(context.Background(), trajectory.Request{
		Group: GroupLeftArm, Target: r3.Vector{X: 1}, Duration: 1, Resolution: 0.1,
	})
	test.That(t, errors.Is(err, ErrServiceUnavailable), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "get kinematics pose of left_arm: timeout")
	test.That(t, seq.Len(), test.ShouldEqual, 0)
	test.That(t, pub.sent, test.ShouldBeEmpty)
}

func TestTrajectorySinInvalid(t *testing.T) {
	poses := &fakePoses{poses: map[string]msgs.GeoPose{GroupLeftArm: identityAt(0, 0, 0)}}
	k, pub := newTestKinematics(t, poses)
	_, err := k.TrajectorySin(context.Background(), trajectory.Request{
		Group: GroupLeftArm, Target: r3.Vector{X: 1}, Duration: 1, Resolution: 0,
	})
	test.That(t, errors.Is(err, ErrInvalidArgument), test.ShouldBeTrue)
	test.That(t, pub.sent, test.ShouldBeEmpty)
}

func TestTrajectoryBatch(t *testing.T) {
	poses := &fakePoses{poses: map[string]msgs.GeoPose{
		GroupLeftArm:  identityAt(0.3, 0.2, 0.8),
		GroupRightArm: identityAt(0.3, -0.2, 0.8),
	}}
	k, pub := newTestKinematics(t, poses)

	left := trajectory.Request{Group: GroupLeftArm, Target: r3.Vector{X: 0.4, Y: 0.2, Z: 0.8}, Duration: 2, Resolution: 0.1}
	right := trajectory.Request{Group: GroupRightArm, Target: r3.Vector{X: 0.4, Y: -0.1, Z: 0.7}, Duration: 1, Resolution: 0.1}
	seqs, err := k.TrajectoryBatch(context.Background(), left, right)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, seqs, test.ShouldHaveLength, 2)
	test.That(t, seqs[0].Group, test.ShouldEqual, GroupLeftArm)
	test.That(t, seqs[0].Len(), test.ShouldEqual, 20)
	test.That(t, seqs[1].Rule, test.ShouldEqual, trajectory.RuleOmni)
	test.That(t, pub.on("arr"), test.ShouldHaveLength, 2)

	// one missing pose aborts the whole batch
	delete(poses.poses, GroupRightArm)
	pub.sent = nil
	_, err = k.TrajectoryBatch(context.Background(), left, right)
	test.That(t, errors.Is(err, ErrServiceUnavailable), test.ShouldBeTrue)
	test.That(t, pub.sent, test.ShouldBeEmpty)
}

func TestArrayPoseRejectsRaggedSequence(t *testing.T) {
	_, err := ArrayPose(trajectory.Sequence{})
	test.That(t, errors.Is(err, ErrInvalidArgument), test.ShouldBeTrue)

	_, err = ArrayPose(trajectory.Sequence{
		X: []float64{0, 1}, Y: []float64{0, 1}, Z: []float64{0},
		Roll: []float64{0, 0}, Pitch: []float64{0, 0}, Yaw: []float64{0, 0},
	})
	test.That(t, errors.Is(err, ErrInvalidArgument), test.ShouldBeTrue)
}

func TestLatchedCommands(t *testing.T) {
	k, pub := newTestKinematics(t, &fakePoses{})
	ctx := context.Background()

	test.That(t, k.EnableModule(ctx, "manipulation_module"), test.ShouldBeNil)
	test.That(t, k.SendIniPose(ctx, "ini_pose"), test.ShouldBeNil)

	enable := pub.on("enable")
	test.That(t, enable, test.ShouldHaveLength, 3)
	test.That(t, enable[0], test.ShouldResemble, msgs.ModuleCommand{Data: "manipulation_module"})
	test.That(t, pub.on("ini"), test.ShouldHaveLength, 3)
}

func TestLatchHonoursContext(t *testing.T) {
	pub := &fakePublisher{}
	k := New(pub, &fakePoses{}, testTopics, zaptest.NewLogger(t).Sugar(), WithLatch(4, time.Hour))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := k.EnableModule(ctx, "manipulation_module")
	test.That(t, errors.Is(err, context.DeadlineExceeded), test.ShouldBeTrue)
	test.That(t, pub.on("enable"), test.ShouldHaveLength, 1)
}
