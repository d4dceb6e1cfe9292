package app

import (
	"context"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/relabs-tech/manipulator/internal/kinematics"
	"github.com/relabs-tech/manipulator/internal/trajectory"
)

func TestRunMoveRejectsBadBatch(t *testing.T) {
	left := trajectory.Request{Group: kinematics.GroupLeftArm, Target: r3.Vector{X: 0.4}, Duration: 1, Resolution: 0.1}
	right := left
	right.Group = kinematics.GroupRightArm

	test.That(t, checkBatch([]trajectory.Request{left, right}), test.ShouldBeNil)

	// both fail before any config or broker is needed
	err := RunMove(context.Background(), nil, false)
	test.That(t, errors.Is(err, kinematics.ErrInvalidArgument), test.ShouldBeTrue)

	again := left
	again.Target.X = 0.5
	err = RunMove(context.Background(), []trajectory.Request{left, right, again}, true)
	test.That(t, errors.Is(err, kinematics.ErrInvalidArgument), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "more than one trajectory for left_arm")
}
