package kinematics

import (
	"github.com/pkg/errors"

	"github.com/relabs-tech/manipulator/internal/trajectory"
)

var (
	// ErrServiceUnavailable means the pose service could not be reached or
	// did not answer in time.
	ErrServiceUnavailable = errors.New("pose service unavailable")

	// ErrInvalidArgument marks a request that was rejected before anything
	// was published.
	ErrInvalidArgument = trajectory.ErrInvalidArgument
)
