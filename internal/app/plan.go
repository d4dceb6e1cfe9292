// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"io"

	"github.com/golang/geo/r3"

	"github.com/relabs-tech/manipulator/internal/trajectory"
)

// RunPlan generates the trajectory from current to req.Target offline and
// prints one line per waypoint. Nothing is published.
func RunPlan(w io.Writer, current r3.Vector, req trajectory.Request) error {
	seq, err := trajectory.Generate(current, req)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "# %s  rule=%s  waypoints=%d  every %.3fs\n",
		seq.Group, seq.Rule, seq.Len(), seq.Resolution)
	for i, wp := range seq.Waypoints() {
		fmt.Fprintf(w,
			"%4d  t=%7.3f  X=%8.4f  Y=%8.4f  Z=%8.4f  ROLL=%6.2f  PITCH=%6.2f  YAW=%6.2f\n",
			i, float64(i)*seq.Resolution,
			wp.Position.X, wp.Position.Y, wp.Position.Z,
			wp.Orientation.Roll, wp.Orientation.Pitch, wp.Orientation.Yaw,
		)
	}
	return nil
}
