package msgs

// JointState sets joint positions by name. Positions are radians.
type JointState struct {
	Name     []string  `json:"name"`
	Position []float64 `json:"position"`
	Velocity []float64 `json:"velocity"`
	Effort   []float64 `json:"effort"`
}
