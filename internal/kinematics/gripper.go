package kinematics

import (
	"context"

	"github.com/pkg/errors"

	"github.com/relabs-tech/manipulator/internal/msgs"
	"github.com/relabs-tech/manipulator/internal/orientation"
)

// GripperKind tags which form a GripperCommand takes.
type GripperKind int

const (
	// GripperGroup closes a whole hand with a grip and a thumb-yaw value.
	GripperGroup GripperKind = iota + 1
	// GripperJoints sets named finger joints to explicit angles.
	GripperJoints
)

// Grip values are limited to [gripMin, gripMax] and mapped onto
// [-gripAngle, gripAngle] radians. gripAngle matches the manipulation
// module's own constant, not math.Pi.
const (
	gripMin   = 0.0
	gripMax   = 10.0
	gripAngle = 3.1415
)

var handPrefix = map[string]string{
	GroupLeftArm:  "l_arm",
	GroupRightArm: "r_arm",
}

// GripperCommand is either a group grip or an explicit joint list.
type GripperCommand struct {
	Kind GripperKind

	// GripperGroup
	Group    string
	Grip     float64
	ThumbYaw float64

	// GripperJoints, angles in degrees
	Joints  []string
	Degrees []float64
}

// GroupGrip closes every finger of group to grip and turns the thumb to
// thumbYaw, both on a 0 (open) to 10 (closed) scale.
func GroupGrip(group string, grip, thumbYaw float64) GripperCommand {
	return GripperCommand{Kind: GripperGroup, Group: group, Grip: grip, ThumbYaw: thumbYaw}
}

// JointGrip sets each named joint to the matching angle in degrees.
func JointGrip(joints []string, degrees []float64) GripperCommand {
	return GripperCommand{Kind: GripperJoints, Joints: joints, Degrees: degrees}
}

// JointState builds the joint command for c.
func (c GripperCommand) JointState() (msgs.JointState, error) {
	switch c.Kind {
	case GripperGroup:
		prefix, ok := handPrefix[c.Group]
		if !ok {
			return msgs.JointState{}, errors.Wrapf(ErrInvalidArgument, "set gripper: %q unknown group", c.Group)
		}
		grip := gripperAngle(c.Grip)
		names := []string{
			prefix + "_thumb_p",
			prefix + "_index_p",
			prefix + "_middle_p",
			prefix + "_finger45_p",
			prefix + "_thumb_y",
		}
		return msgs.JointState{
			Name:     names,
			Position: []float64{grip, grip, grip, grip, gripperAngle(c.ThumbYaw)},
			Velocity: make([]float64, len(names)),
			Effort:   make([]float64, len(names)),
		}, nil

	case GripperJoints:
		if len(c.Joints) != len(c.Degrees) {
			return msgs.JointState{}, errors.Wrapf(ErrInvalidArgument,
				"gripper joint names (%d) and joint poses (%d) are not equal", len(c.Joints), len(c.Degrees))
		}
		pos := make([]float64, len(c.Degrees))
		for i, d := range c.Degrees {
			pos[i] = orientation.Rad(d)
		}
		return msgs.JointState{
			Name:     append([]string(nil), c.Joints...),
			Position: pos,
			Velocity: make([]float64, len(c.Joints)),
			Effort:   make([]float64, len(c.Joints)),
		}, nil

	default:
		return msgs.JointState{}, errors.Wrapf(ErrInvalidArgument, "unknown gripper command kind %d", c.Kind)
	}
}

// SetGripper publishes the joint command for c.
func (k *Kinematics) SetGripper(ctx context.Context, c GripperCommand) error {
	js, err := c.JointState()
	if err != nil {
		return err
	}
	if err := k.publish(ctx, k.topics.SetJointStates, js, false); err != nil {
		return err
	}
	k.logger.Infof("kinematics: gripper joint name: %v pos: %v", js.Name, js.Position)
	return nil
}

// limit clamps v to the grip scale.
func limit(v float64) float64 {
	switch {
	case v >= gripMax:
		return gripMax
	case v <= gripMin:
		return gripMin
	default:
		return v
	}
}

// gripperAngle maps a grip value linearly onto [-gripAngle, gripAngle].
func gripperAngle(v float64) float64 {
	v = limit(v)
	switch v {
	case gripMin:
		return -gripAngle
	case gripMax:
		return gripAngle
	}
	slope := (2 * gripAngle) / (gripMax - gripMin)
	return slope*(v-gripMin) - gripAngle
}
