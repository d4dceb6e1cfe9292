package trajectory

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// decimals is the rounding applied to positions before axis comparison.
// Positions within 0.01 on an axis count as already at target.
const decimals = 2

// round2 rounds half to even at two decimals.
func round2(v float64) float64 {
	scale := math.Pow(10, decimals)
	return math.RoundToEven(v*scale) / scale
}

// linspace returns n evenly spaced samples over [lo, hi], endpoint included.
func linspace(lo, hi float64, n int) []float64 {
	switch n {
	case 0:
		return []float64{}
	case 1:
		return []float64{lo}
	}
	out := floats.Span(make([]float64, n), lo, hi)
	out[n-1] = hi
	return out
}

// interp is a two-point linear interpolation, clamped to [f0, f1] outside [x0, x1].
func interp(x, x0, x1, f0, f1 float64) float64 {
	switch {
	case x <= x0:
		return f0
	case x >= x1:
		return f1
	}
	slope := (f1 - f0) / (x1 - x0)
	return slope*(x-x0) + f0
}

// halfSine returns the phase samples t over [0, π] and their sines.
func halfSine(n int) (t, s []float64) {
	t = linspace(0, math.Pi, n)
	s = make([]float64, n)
	for i, v := range t {
		s[i] = math.Sin(v)
	}
	return t, s
}

// sweep moves from cur to tar as the phase advances from 0 to π.
func sweep(t []float64, cur, tar float64) []float64 {
	out := make([]float64, len(t))
	for i, v := range t {
		out[i] = interp(v, 0, math.Pi, cur, tar)
	}
	return out
}

// bulge rises from cur toward cur+offset and back as s goes 0 → 1 → 0.
func bulge(s []float64, cur, offset float64) []float64 {
	out := make([]float64, len(s))
	for i, v := range s {
		out[i] = interp(v, 0, 1, cur, cur+offset)
	}
	return out
}

// ramp is a straight line from cur to tar with the arc bulge superposed.
func ramp(s []float64, cur, tar, offset float64) []float64 {
	out := linspace(cur, tar, len(s))
	floats.Add(out, bulge(s, 0, offset))
	return out
}

func constant(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
