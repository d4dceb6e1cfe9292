// Package orientation converts between quaternion and roll/pitch/yaw
// representations of an end-effector orientation.
//
// Angles are radians everywhere in this package except Pose, which is the
// degree-valued form exchanged with callers and operators.
package orientation

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"
)

// ErrZeroQuaternion is returned when normalizing a quaternion with no length.
var ErrZeroQuaternion = errors.New("zero-length quaternion")

// Pose is the canonical degree-valued orientation used at the edges of the app.
type Pose struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// Euler is a roll/pitch/yaw triple in radians (Z-Y-X convention).
type Euler struct {
	Roll  float64
	Pitch float64
	Yaw   float64
}

// Quaternion is an (x, y, z, w) rotation. Unit norm is the caller's job.
type Quaternion struct {
	X float64
	Y float64
	Z float64
	W float64
}

// QuaternionToEuler returns roll, pitch and yaw in radians.
//
//	roll  = atan2(2(wx+yz), 1-2(x²+y²))
//	pitch = asin(clamp(2(wy-zx), -1, 1))
//	yaw   = atan2(2(wz+xy), 1-2(y²+z²))
//
// The pitch term is clamped so floating-point overshoot near gimbal lock
// never leaves the asin domain.
func QuaternionToEuler(x, y, z, w float64) (roll, pitch, yaw float64) {
	t0 := +2.0 * (w*x + y*z)
	t1 := +1.0 - 2.0*(x*x+y*y)
	roll = math.Atan2(t0, t1)

	t2 := +2.0 * (w*y - z*x)
	if t2 > +1.0 {
		t2 = +1.0
	}
	if t2 < -1.0 {
		t2 = -1.0
	}
	pitch = math.Asin(t2)

	t3 := +2.0 * (w*z + x*y)
	t4 := +1.0 - 2.0*(y*y+z*z)
	yaw = math.Atan2(t3, t4)

	return roll, pitch, yaw
}

// EulerToQuaternion returns the quaternion for roll, pitch, yaw in radians
// using the half-angle product formulas.
func EulerToQuaternion(roll, pitch, yaw float64) (qx, qy, qz, qw float64) {
	sr, cr := math.Sin(roll/2), math.Cos(roll/2)
	sp, cp := math.Sin(pitch/2), math.Cos(pitch/2)
	sy, cy := math.Sin(yaw/2), math.Cos(yaw/2)

	qx = sr*cp*cy - cr*sp*sy
	qy = cr*sp*cy + sr*cp*sy
	qz = cr*cp*sy - sr*sp*cy
	qw = cr*cp*cy + sr*sp*sy
	return qx, qy, qz, qw
}

// Euler converts q to roll/pitch/yaw radians.
func (q Quaternion) Euler() Euler {
	r, p, y := QuaternionToEuler(q.X, q.Y, q.Z, q.W)
	return Euler{Roll: r, Pitch: p, Yaw: y}
}

// Number returns q as a gonum quaternion (Real holds w).
func (q Quaternion) Number() quat.Number {
	return quat.Number{Real: q.W, Imag: q.X, Jmag: q.Y, Kmag: q.Z}
}

// FromNumber converts a gonum quaternion back to x, y, z, w order.
func FromNumber(n quat.Number) Quaternion {
	return Quaternion{X: n.Imag, Y: n.Jmag, Z: n.Kmag, W: n.Real}
}

// Normalize scales q to unit length.
func (q Quaternion) Normalize() (Quaternion, error) {
	n := q.Number()
	abs := quat.Abs(n)
	if abs == 0 || math.IsNaN(abs) || math.IsInf(abs, 0) {
		return Quaternion{}, errors.Wrapf(ErrZeroQuaternion, "%+v", q)
	}
	return FromNumber(quat.Scale(1/abs, n)), nil
}

// Quaternion converts e to a quaternion.
func (e Euler) Quaternion() Quaternion {
	x, y, z, w := EulerToQuaternion(e.Roll, e.Pitch, e.Yaw)
	return Quaternion{X: x, Y: y, Z: z, W: w}
}

// Degrees converts e to a degree-valued Pose.
func (e Euler) Degrees() Pose {
	return Pose{Roll: Deg(e.Roll), Pitch: Deg(e.Pitch), Yaw: Deg(e.Yaw)}
}

// Radians converts p to radians.
func (p Pose) Radians() Euler {
	return Euler{Roll: Rad(p.Roll), Pitch: Rad(p.Pitch), Yaw: Rad(p.Yaw)}
}

// Quaternion converts the degree-valued pose to a quaternion.
func (p Pose) Quaternion() Quaternion {
	return p.Radians().Quaternion()
}

// PoseFromQuaternion returns the degree-valued orientation of q.
func PoseFromQuaternion(q Quaternion) Pose {
	return q.Euler().Degrees()
}

// Deg converts radians to degrees.
func Deg(rad float64) float64 {
	return rad * 180.0 / math.Pi
}

// Rad converts degrees to radians.
func Rad(deg float64) float64 {
	return deg * math.Pi / 180.0
}
