// Package msgs holds the JSON messages exchanged with the manipulation module.
package msgs

// Point is a position in the robot base frame.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Quaternion is a wire-level orientation.
type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// GeoPose is a position plus quaternion orientation.
type GeoPose struct {
	Position    Point      `json:"position"`
	Orientation Quaternion `json:"orientation"`
}

// KinematicsPose commands a single end-effector pose for a group.
type KinematicsPose struct {
	Name string  `json:"name"`
	Pose GeoPose `json:"pose"`
	Time float64 `json:"time"` // seconds to reach the pose
}

// KinematicsArrayPose commands a waypoint sequence for a group.
type KinematicsArrayPose struct {
	Name  string    `json:"name"`
	Poses []GeoPose `json:"poses"`
	Time  float64   `json:"time"` // seconds between waypoints
}
