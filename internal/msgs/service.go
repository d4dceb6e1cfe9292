package msgs

// GetKinematicsPoseRequest asks for the current pose of a group. Replies go
// to ReplyTo and carry the same ID.
type GetKinematicsPoseRequest struct {
	ID        string `json:"id"`
	GroupName string `json:"group_name"`
	ReplyTo   string `json:"reply_to"`
}

// GetKinematicsPoseResponse answers a GetKinematicsPoseRequest. Error is set
// when the pose could not be computed.
type GetKinematicsPoseResponse struct {
	ID        string  `json:"id"`
	GroupPose GeoPose `json:"group_pose"`
	Error     string  `json:"error,omitempty"`
}
