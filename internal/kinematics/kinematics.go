// Package kinematics drives a manipulator's end effectors through the
// manipulation module: pose queries, single and array pose commands,
// sinusoidal trajectories, gripper joints and module control.
package kinematics

import (
	"context"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/relabs-tech/manipulator/internal/config"
	"github.com/relabs-tech/manipulator/internal/msgs"
	"github.com/relabs-tech/manipulator/internal/orientation"
	"github.com/relabs-tech/manipulator/internal/trajectory"
)

// Kinematic groups understood by the manipulation module.
const (
	GroupLeftArm  = "left_arm"
	GroupRightArm = "right_arm"
)

// Publisher sends a message on a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, msg any) error
}

// PoseQuerier fetches the current end-effector pose of a group.
type PoseQuerier interface {
	QueryPose(ctx context.Context, group string) (msgs.GeoPose, error)
}

// Topics names the manipulation module's inputs.
type Topics struct {
	EnableModule   string
	IniPose        string
	KinematicsPose string
	KinematicsArr  string
	SetJointStates string
}

// TopicsFromConfig picks the topic names out of cfg.
func TopicsFromConfig(cfg *config.Config) Topics {
	return Topics{
		EnableModule:   cfg.TopicEnableCtrlModule,
		IniPose:        cfg.TopicIniPose,
		KinematicsPose: cfg.TopicKinematicsPose,
		KinematicsArr:  cfg.TopicKinematicsArr,
		SetJointStates: cfg.TopicSetJointStates,
	}
}

// Pose is an end-effector pose with orientation in degrees.
type Pose struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	orientation.Pose
}

// Position returns the position part of p.
func (p Pose) Position() r3.Vector {
	return r3.Vector{X: p.X, Y: p.Y, Z: p.Z}
}

// PoseFromGeo converts a wire pose, turning its quaternion into degrees.
func PoseFromGeo(g msgs.GeoPose) Pose {
	q := g.Orientation
	return Pose{
		X:    g.Position.X,
		Y:    g.Position.Y,
		Z:    g.Position.Z,
		Pose: orientation.PoseFromQuaternion(orientation.Quaternion{X: q.X, Y: q.Y, Z: q.Z, W: q.W}),
	}
}

// GeoPose builds a wire pose from a position and degree orientation.
func GeoPose(pos r3.Vector, o orientation.Pose) msgs.GeoPose {
	q := o.Quaternion()
	return msgs.GeoPose{
		Position:    msgs.Point{X: pos.X, Y: pos.Y, Z: pos.Z},
		Orientation: msgs.Quaternion{X: q.X, Y: q.Y, Z: q.Z, W: q.W},
	}
}

// Kinematics sends commands to the manipulation module.
type Kinematics struct {
	pub    Publisher
	poses  PoseQuerier
	topics Topics
	logger *zap.SugaredLogger

	latchRepeats  int
	latchInterval time.Duration
}

// Option configures a Kinematics.
type Option func(*Kinematics)

// WithLatch sets how often latched commands are repeated and how far apart.
func WithLatch(repeats int, interval time.Duration) Option {
	return func(k *Kinematics) {
		if repeats > 0 {
			k.latchRepeats = repeats
		}
		k.latchInterval = interval
	}
}

// New returns a Kinematics publishing with pub and querying poses with poses.
func New(pub Publisher, poses PoseQuerier, topics Topics, logger *zap.SugaredLogger, opts ...Option) *Kinematics {
	k := &Kinematics{
		pub:           pub,
		poses:         poses,
		topics:        topics,
		logger:        logger,
		latchRepeats:  4,
		latchInterval: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// EnableModule switches the robot to the named control module.
func (k *Kinematics) EnableModule(ctx context.Context, module string) error {
	if err := k.publish(ctx, k.topics.EnableModule, msgs.ModuleCommand{Data: module}, true); err != nil {
		return err
	}
	k.logger.Infof("kinematics: enabled module %s", module)
	return nil
}

// SendIniPose moves the arms to a named initial pose.
func (k *Kinematics) SendIniPose(ctx context.Context, pose string) error {
	if err := k.publish(ctx, k.topics.IniPose, msgs.ModuleCommand{Data: pose}, true); err != nil {
		return err
	}
	k.logger.Infof("kinematics: sent initial pose %s", pose)
	return nil
}

// GetKinematicsPose returns the current pose of group with orientation in
// degrees. Any failure of the pose service is an ErrServiceUnavailable.
func (k *Kinematics) GetKinematicsPose(ctx context.Context, group string) (Pose, error) {
	geo, err := k.poses.QueryPose(ctx, group)
	if err != nil {
		return Pose{}, errors.Wrapf(ErrServiceUnavailable, "get kinematics pose of %s: %v", group, err)
	}
	return PoseFromGeo(geo), nil
}

// SetKinematicsPose commands a single pose, reached in seconds.
func (k *Kinematics) SetKinematicsPose(ctx context.Context, group string, seconds float64, pose Pose) error {
	msg := msgs.KinematicsPose{
		Name: group,
		Pose: GeoPose(pose.Position(), pose.Pose),
		Time: seconds,
	}
	return k.publish(ctx, k.topics.KinematicsPose, msg, false)
}

// SetKinematicsArrPose publishes seq as one array pose command.
func (k *Kinematics) SetKinematicsArrPose(ctx context.Context, seq trajectory.Sequence) error {
	msg, err := ArrayPose(seq)
	if err != nil {
		return err
	}
	return k.publish(ctx, k.topics.KinematicsArr, msg, false)
}

// ArrayPose converts a sequence to its wire message.
func ArrayPose(seq trajectory.Sequence) (msgs.KinematicsArrayPose, error) {
	n := seq.Len()
	if n == 0 {
		return msgs.KinematicsArrayPose{}, errors.Wrap(ErrInvalidArgument, "empty waypoint sequence")
	}
	for _, axis := range [][]float64{seq.Y, seq.Z, seq.Roll, seq.Pitch, seq.Yaw} {
		if len(axis) != n {
			return msgs.KinematicsArrayPose{}, errors.Wrapf(ErrInvalidArgument, "waypoint arrays differ in length (%d vs %d)", len(axis), n)
		}
	}

	msg := msgs.KinematicsArrayPose{
		Name:  seq.Group,
		Poses: make([]msgs.GeoPose, n),
		Time:  seq.Resolution,
	}
	for i := 0; i < n; i++ {
		wp := seq.Waypoint(i)
		msg.Poses[i] = GeoPose(wp.Position, wp.Orientation)
	}
	return msg, nil
}

// TrajectorySin moves group to req.Target along the sinusoidal-blend profile.
// The current pose is fetched first; if that fails nothing is published.
func (k *Kinematics) TrajectorySin(ctx context.Context, req trajectory.Request) (trajectory.Sequence, error) {
	if err := req.Validate(); err != nil {
		return trajectory.Sequence{}, err
	}
	cur, err := k.GetKinematicsPose(ctx, req.Group)
	if err != nil {
		return trajectory.Sequence{}, err
	}
	seq, err := trajectory.Generate(cur.Position(), req)
	if err != nil {
		return trajectory.Sequence{}, err
	}
	if err := k.SetKinematicsArrPose(ctx, seq); err != nil {
		return trajectory.Sequence{}, err
	}
	k.logger.Infof("kinematics: %s trajectory for %s, %d waypoints every %.3fs",
		seq.Rule, seq.Group, seq.Len(), seq.Resolution)
	return seq, nil
}

// TrajectoryBatch generates one trajectory per request concurrently and
// publishes them only once every request succeeded.
func (k *Kinematics) TrajectoryBatch(ctx context.Context, reqs ...trajectory.Request) ([]trajectory.Sequence, error) {
	for _, req := range reqs {
		if err := req.Validate(); err != nil {
			return nil, errors.Wrapf(err, "request for %s", req.Group)
		}
	}

	seqs := make([]trajectory.Sequence, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	for i, req := range reqs {
		g.Go(func() error {
			cur, err := k.GetKinematicsPose(gctx, req.Group)
			if err != nil {
				return err
			}
			seq, err := trajectory.Generate(cur.Position(), req)
			if err != nil {
				return err
			}
			seqs[i] = seq
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, seq := range seqs {
		if err := k.SetKinematicsArrPose(ctx, seq); err != nil {
			return nil, err
		}
	}
	k.logger.Infof("kinematics: published %d trajectories", len(seqs))
	return seqs, nil
}

// publish sends msg once, or latchRepeats times latchInterval apart when
// latched so late subscribers still see it.
func (k *Kinematics) publish(ctx context.Context, topic string, msg any, latch bool) error {
	if !latch {
		return k.pub.Publish(ctx, topic, msg)
	}
	for i := 0; i < k.latchRepeats; i++ {
		if i > 0 && k.latchInterval > 0 {
			select {
			case <-time.After(k.latchInterval):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := k.pub.Publish(ctx, topic, msg); err != nil {
			return err
		}
	}
	return nil
}
