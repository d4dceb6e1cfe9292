// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package sim is a stand-in for the manipulation module. It keeps one pose
// per group, answers pose queries and plays back pose commands, publishing
// the same status strings the real module does.
package sim

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/relabs-tech/manipulator/internal/bus"
	"github.com/relabs-tech/manipulator/internal/kinematics"
	"github.com/relabs-tech/manipulator/internal/msgs"
	"github.com/relabs-tech/manipulator/internal/orientation"
)

// ModuleName is reported in every status message.
const ModuleName = "Manipulation"

// ErrUnknownGroup is returned for groups the arm does not have.
var ErrUnknownGroup = errors.New("unknown group")

// IniPoses are the poses both arms return to on an ini-pose command.
var IniPoses = map[string]msgs.GeoPose{
	kinematics.GroupLeftArm: {
		Position:    msgs.Point{X: 0.3, Y: 0.2, Z: 0.8},
		Orientation: msgs.Quaternion{W: 1},
	},
	kinematics.GroupRightArm: {
		Position:    msgs.Point{X: 0.3, Y: -0.2, Z: 0.8},
		Orientation: msgs.Quaternion{W: 1},
	},
}

// Arm simulates the manipulation module.
type Arm struct {
	pub         kinematics.Publisher
	statusTopic string
	logger      *zap.SugaredLogger

	mu      sync.Mutex
	module  string
	poses   map[string]msgs.GeoPose
	running map[string]*run
	wg      sync.WaitGroup
}

// run is one array pose being played back.
type run struct {
	cancel context.CancelFunc
}

// New returns an arm at its initial pose that reports status on statusTopic.
func New(pub kinematics.Publisher, statusTopic string, logger *zap.SugaredLogger) *Arm {
	a := &Arm{
		pub:         pub,
		statusTopic: statusTopic,
		logger:      logger,
		running:     make(map[string]*run),
	}
	a.resetPoses()
	return a
}

func (a *Arm) resetPoses() {
	a.poses = make(map[string]msgs.GeoPose, len(IniPoses))
	for g, p := range IniPoses {
		a.poses[g] = p
	}
}

// Pose returns the current pose of group. It has the bus.PoseHandler signature.
func (a *Arm) Pose(_ context.Context, group string) (msgs.GeoPose, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.poses[group]
	if !ok {
		return msgs.GeoPose{}, errors.Wrapf(ErrUnknownGroup, "%q", group)
	}
	return p, nil
}

// Module returns the last enabled control module.
func (a *Arm) Module() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.module
}

// EnableModule records the active control module.
func (a *Arm) EnableModule(cmd msgs.ModuleCommand) {
	a.mu.Lock()
	changed := a.module != cmd.Data
	a.module = cmd.Data
	a.mu.Unlock()
	// latched commands arrive several times
	if changed {
		a.logger.Infof("sim: enabled module %s", cmd.Data)
	}
}

// IniPose stops any running trajectory and moves both arms to IniPoses.
func (a *Arm) IniPose(cmd msgs.ModuleCommand) {
	a.mu.Lock()
	for g, r := range a.running {
		r.cancel()
		delete(a.running, g)
	}
	a.resetPoses()
	a.mu.Unlock()
	a.logger.Debugf("sim: ini pose %s", cmd.Data)
}

// normalize returns p with a unit orientation quaternion.
func normalize(p msgs.GeoPose) (msgs.GeoPose, error) {
	o := p.Orientation
	q, err := orientation.Quaternion{X: o.X, Y: o.Y, Z: o.Z, W: o.W}.Normalize()
	if err != nil {
		return msgs.GeoPose{}, err
	}
	p.Orientation = msgs.Quaternion{X: q.X, Y: q.Y, Z: q.Z, W: q.W}
	return p, nil
}

// SetPose jumps group to the commanded pose.
func (a *Arm) SetPose(msg msgs.KinematicsPose) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.poses[msg.Name]; !ok {
		return errors.Wrapf(ErrUnknownGroup, "%q", msg.Name)
	}
	pose, err := normalize(msg.Pose)
	if err != nil {
		return errors.Wrapf(err, "pose for %s", msg.Name)
	}
	a.poses[msg.Name] = pose
	a.logger.Infof("sim: %s at (%.3f, %.3f, %.3f) after %.2fs",
		msg.Name, msg.Pose.Position.X, msg.Pose.Position.Y, msg.Pose.Position.Z, msg.Time)
	return nil
}

// Execute plays back an array pose, one waypoint every msg.Time seconds,
// between a start and a finish status message. A newer array for the same
// group cancels it, in which case no finish is reported. Waypoints without
// a usable orientation reject the whole array.
func (a *Arm) Execute(ctx context.Context, msg msgs.KinematicsArrayPose) error {
	poses := make([]msgs.GeoPose, len(msg.Poses))
	for i, p := range msg.Poses {
		np, err := normalize(p)
		if err != nil {
			return errors.Wrapf(err, "%s waypoint %d", msg.Name, i)
		}
		poses[i] = np
	}

	a.mu.Lock()
	if _, ok := a.poses[msg.Name]; !ok {
		a.mu.Unlock()
		return errors.Wrapf(ErrUnknownGroup, "%q", msg.Name)
	}
	if prev, ok := a.running[msg.Name]; ok {
		prev.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	r := &run{cancel: cancel}
	a.running[msg.Name] = r
	a.mu.Unlock()
	defer a.done(msg.Name, r)

	if err := a.status(ctx, kinematics.StartStatus(msg.Name)); err != nil {
		return err
	}

	step := time.Duration(msg.Time * float64(time.Second))
	for i, p := range poses {
		if i > 0 && step > 0 {
			select {
			case <-time.After(step):
			case <-ctx.Done():
				a.logger.Infof("sim: %s trajectory interrupted at waypoint %d/%d", msg.Name, i, len(msg.Poses))
				return ctx.Err()
			}
		}
		a.mu.Lock()
		a.poses[msg.Name] = p
		a.mu.Unlock()
	}

	a.logger.Infof("sim: %s trajectory of %d waypoints done", msg.Name, len(msg.Poses))
	return a.status(ctx, kinematics.FinishStatus(msg.Name))
}

// done forgets r unless a newer run of group replaced it.
func (a *Arm) done(group string, r *run) {
	r.cancel()
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running[group] == r {
		delete(a.running, group)
	}
}

// Busy reports whether an array pose of group is being played back.
func (a *Arm) Busy(group string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.running[group]
	return ok
}

// Joints logs a joint command; finger joints are not simulated.
func (a *Arm) Joints(js msgs.JointState) {
	a.logger.Infof("sim: joint command %v -> %v", js.Name, js.Position)
}

func (a *Arm) status(ctx context.Context, text string) error {
	msg := msgs.StatusMsg{Type: msgs.StatusInfo, ModuleName: ModuleName, StatusMsg: text}
	if err := a.pub.Publish(ctx, a.statusTopic, msg); err != nil {
		return errors.Wrap(err, "publish status")
	}
	return nil
}

// Wait blocks until every trajectory started by Run has returned.
func (a *Arm) Wait() {
	a.wg.Wait()
}

// Run subscribes the arm to the command topics, serves pose queries on
// poseTopic and blocks until ctx is cancelled.
func (a *Arm) Run(ctx context.Context, c *bus.Client, topics kinematics.Topics, poseTopic string) error {
	subs := []struct {
		topic string
		fn    func([]byte)
	}{
		{topics.EnableModule, decode(a.logger, "module", a.EnableModule)},
		{topics.IniPose, decode(a.logger, "ini pose", a.IniPose)},
		{topics.KinematicsPose, decode(a.logger, "pose", func(m msgs.KinematicsPose) {
			if err := a.SetPose(m); err != nil {
				a.logger.Warnf("sim: %v", err)
			}
		})},
		{topics.KinematicsArr, decode(a.logger, "array pose", func(m msgs.KinematicsArrayPose) {
			a.wg.Add(1)
			go func() {
				defer a.wg.Done()
				if err := a.Execute(ctx, m); err != nil && !errors.Is(err, context.Canceled) {
					a.logger.Warnf("sim: %v", err)
				}
			}()
		})},
		{topics.SetJointStates, decode(a.logger, "joint states", a.Joints)},
	}
	for _, s := range subs {
		cancel, err := c.Subscribe(ctx, s.topic, s.fn)
		if err != nil {
			return err
		}
		defer cancel()
		a.logger.Infof("sim: subscribed to %s", s.topic)
	}

	return bus.ServePose(ctx, c, poseTopic, a.Pose)
}

// decode adapts a typed handler to a raw payload callback.
func decode[T any](logger *zap.SugaredLogger, what string, fn func(T)) func([]byte) {
	return func(payload []byte) {
		var v T
		if err := json.Unmarshal(payload, &v); err != nil {
			logger.Warnf("sim: %s unmarshal error: %v", what, err)
			return
		}
		fn(v)
	}
}
