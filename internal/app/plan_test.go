package app

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.viam.com/test"

	"github.com/relabs-tech/manipulator/internal/config"
	"github.com/relabs-tech/manipulator/internal/kinematics"
	"github.com/relabs-tech/manipulator/internal/msgs"
	"github.com/relabs-tech/manipulator/internal/orientation"
	"github.com/relabs-tech/manipulator/internal/trajectory"
)

func TestRunPlan(t *testing.T) {
	var buf bytes.Buffer
	err := RunPlan(&buf, r3.Vector{}, trajectory.Request{
		Group:       "left_arm",
		Target:      r3.Vector{X: 1},
		Orientation: orientation.Pose{Yaw: 30},
		Duration:    1.0,
		Resolution:  0.1,
	})
	test.That(t, err, test.ShouldBeNil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	test.That(t, lines, test.ShouldHaveLength, 11)
	test.That(t, lines[0], test.ShouldContainSubstring, "rule=x-move")
	test.That(t, lines[0], test.ShouldContainSubstring, "waypoints=10")
	test.That(t, lines[10], test.ShouldContainSubstring, "X=  1.0000")
	test.That(t, lines[10], test.ShouldContainSubstring, "YAW= 30.00")

	err = RunPlan(&buf, r3.Vector{}, trajectory.Request{Group: "left_arm", Duration: 0.05, Resolution: 0.1})
	test.That(t, errors.Is(err, trajectory.ErrInvalidArgument), test.ShouldBeTrue)
}

func TestConsoleHandlers(t *testing.T) {
	cfg := config.Default()
	var buf bytes.Buffer
	h := consoleHandlers(cfg, &buf, zap.NewNop().Sugar())
	test.That(t, h, test.ShouldHaveLength, 4)

	send := func(topic string, v any) {
		payload, err := json.Marshal(v)
		test.That(t, err, test.ShouldBeNil)
		h[topic](payload)
	}

	send(cfg.TopicStatus, msgs.StatusMsg{ModuleName: "Manipulation", StatusMsg: kinematics.FinishStatus("right_arm")})
	test.That(t, buf.String(), test.ShouldContainSubstring, "[STAT]  Manipulation: Finish Right Arm Arr Trajectory")

	buf.Reset()
	pose := kinematics.GeoPose(r3.Vector{X: 0.5}, orientation.Pose{Roll: 10})
	send(cfg.TopicKinematicsArr, msgs.KinematicsArrayPose{Name: "left_arm", Poses: []msgs.GeoPose{pose, pose}, Time: 0.05})
	test.That(t, buf.String(), test.ShouldContainSubstring, "left_arm: 2 waypoints every 0.050s")
	test.That(t, buf.String(), test.ShouldContainSubstring, "ROLL= 10.00")

	buf.Reset()
	js, err := kinematics.GroupGrip("left_arm", 10, 0).JointState()
	test.That(t, err, test.ShouldBeNil)
	send(cfg.TopicSetJointStates, js)
	test.That(t, strings.Count(buf.String(), "[JNT ]"), test.ShouldEqual, 5)

	buf.Reset()
	h[cfg.TopicKinematicsPose]([]byte("garbage"))
	test.That(t, buf.String(), test.ShouldBeEmpty)
}
