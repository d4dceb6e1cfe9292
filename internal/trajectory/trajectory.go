// Package trajectory builds sinusoidal-blend waypoint sequences for a
// manipulator end effector.
//
// A sequence is sampled n = floor(duration/resolution) times over a phase
// t ∈ [0, π]. Position follows one of four rules picked from which axes are
// already at target; orientation is held at the requested value for every
// sample.
package trajectory

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/relabs-tech/manipulator/internal/orientation"
)

// ErrInvalidArgument is returned for requests that cannot produce a trajectory.
var ErrInvalidArgument = errors.New("invalid argument")

// Rule is the interpolation rule chosen for a request.
type Rule int

// Rules in the order they are checked. The first match wins, so a request
// whose target equals the current position on every axis is an XMove.
const (
	RuleXMove Rule = iota
	RuleYMove
	RuleZMove
	RuleOmni
)

func (r Rule) String() string {
	switch r {
	case RuleXMove:
		return "x-move"
	case RuleYMove:
		return "y-move"
	case RuleZMove:
		return "z-move"
	case RuleOmni:
		return "omni"
	default:
		return fmt.Sprintf("rule(%d)", int(r))
	}
}

// Request describes one motion command for a kinematic group.
type Request struct {
	Group  string
	Target r3.Vector
	// Orientation is held for the whole motion, in degrees.
	Orientation orientation.Pose
	// Arc is the per-axis bulge magnitude.
	Arc        r3.Vector
	Duration   float64 // seconds
	Resolution float64 // seconds between waypoints
}

// Validate checks timing parameters.
func (r Request) Validate() error {
	_, err := SampleCount(r.Duration, r.Resolution)
	return err
}

// SampleCount returns floor(duration/resolution).
func SampleCount(duration, resolution float64) (int, error) {
	if !(duration > 0) || math.IsInf(duration, 0) {
		return 0, errors.Wrapf(ErrInvalidArgument, "duration %v must be positive and finite", duration)
	}
	if !(resolution > 0) || math.IsInf(resolution, 0) {
		return 0, errors.Wrapf(ErrInvalidArgument, "resolution %v must be positive and finite", resolution)
	}
	n := int(math.Floor(duration / resolution))
	if n < 1 {
		return 0, errors.Wrapf(ErrInvalidArgument, "duration %v is shorter than resolution %v", duration, resolution)
	}
	return n, nil
}

// Round rounds every axis of v to two decimals.
func Round(v r3.Vector) r3.Vector {
	return r3.Vector{X: round2(v.X), Y: round2(v.Y), Z: round2(v.Z)}
}

// SelectRule picks the interpolation rule for moving from current to target.
// Both positions are rounded to two decimals before comparing.
func SelectRule(current, target r3.Vector) Rule {
	cur, tar := Round(current), Round(target)
	switch {
	case tar.Y == cur.Y && tar.Z == cur.Z:
		return RuleXMove
	case tar.X == cur.X && tar.Z == cur.Z:
		return RuleYMove
	case tar.X == cur.X && tar.Y == cur.Y:
		return RuleZMove
	default:
		return RuleOmni
	}
}

// Waypoint is one sampled pose of a sequence.
type Waypoint struct {
	Position    r3.Vector
	Orientation orientation.Pose
}

// Sequence is a generated trajectory, stored as parallel per-axis arrays.
// Roll, Pitch and Yaw are degrees.
type Sequence struct {
	Group      string
	Resolution float64
	Rule       Rule

	X, Y, Z          []float64
	Roll, Pitch, Yaw []float64
}

// Len returns the number of waypoints.
func (s Sequence) Len() int {
	return len(s.X)
}

// Waypoint returns the i-th sample.
func (s Sequence) Waypoint(i int) Waypoint {
	return Waypoint{
		Position:    r3.Vector{X: s.X[i], Y: s.Y[i], Z: s.Z[i]},
		Orientation: orientation.Pose{Roll: s.Roll[i], Pitch: s.Pitch[i], Yaw: s.Yaw[i]},
	}
}

// Waypoints returns every sample in order.
func (s Sequence) Waypoints() []Waypoint {
	out := make([]Waypoint, s.Len())
	for i := range out {
		out[i] = s.Waypoint(i)
	}
	return out
}

// Generate builds the waypoint sequence taking the end effector from current
// to req.Target.
func Generate(current r3.Vector, req Request) (Sequence, error) {
	n, err := SampleCount(req.Duration, req.Resolution)
	if err != nil {
		return Sequence{}, err
	}

	cur, tar := Round(current), Round(req.Target)
	t, s := halfSine(n)

	seq := Sequence{
		Group:      req.Group,
		Resolution: req.Resolution,
		Rule:       SelectRule(current, req.Target),
	}

	switch seq.Rule {
	case RuleXMove:
		seq.X = sweep(t, cur.X, tar.X)
		seq.Y = bulge(s, cur.Y, req.Arc.Y)
		seq.Z = bulge(s, cur.Z, req.Arc.Z)
	case RuleYMove:
		seq.X = bulge(s, cur.X, req.Arc.X)
		seq.Y = sweep(t, cur.Y, tar.Y)
		seq.Z = bulge(s, cur.Z, req.Arc.Z)
	case RuleZMove:
		seq.X = bulge(s, cur.X, req.Arc.X)
		seq.Y = bulge(s, cur.Y, req.Arc.Y)
		seq.Z = sweep(t, cur.Z, tar.Z)
	default:
		seq.X = ramp(s, cur.X, tar.X, req.Arc.X)
		seq.Y = ramp(s, cur.Y, tar.Y, req.Arc.Y)
		seq.Z = ramp(s, cur.Z, tar.Z, req.Arc.Z)
	}

	seq.Roll = constant(req.Orientation.Roll, n)
	seq.Pitch = constant(req.Orientation.Pitch, n)
	seq.Yaw = constant(req.Orientation.Yaw, n)
	return seq, nil
}
