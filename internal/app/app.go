// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package app holds the entry points behind the binaries in cmd/.
package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/relabs-tech/manipulator/internal/bus"
	"github.com/relabs-tech/manipulator/internal/config"
	"github.com/relabs-tech/manipulator/internal/kinematics"
)

// SignalContext is cancelled on Ctrl+C or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// controller is a connected Kinematics together with what it owns.
type controller struct {
	*kinematics.Kinematics
	bus   *bus.Client
	poses *bus.PoseClient
}

func (c *controller) Close() {
	c.poses.Close()
	c.bus.Close()
}

// connect dials the broker and builds a Kinematics on top of it.
func connect(ctx context.Context, cfg *config.Config, clientID string, logger *zap.SugaredLogger) (*controller, error) {
	c, err := bus.Dial(ctx, cfg.MQTTBroker, clientID, cfg.MQTTQoS, logger)
	if err != nil {
		return nil, err
	}
	poses, err := bus.NewPoseClient(ctx, c, cfg.TopicGetKinematics, clientID, cfg.PoseQueryTimeoutDuration())
	if err != nil {
		c.Close()
		return nil, err
	}
	k := kinematics.New(c, poses, kinematics.TopicsFromConfig(cfg), logger,
		kinematics.WithLatch(cfg.LatchRepeats, cfg.LatchIntervalDuration()))
	return &controller{Kinematics: k, bus: c, poses: poses}, nil
}

// subscribeAll subscribes fn-per-topic and returns one cancel for all of them.
func subscribeAll(ctx context.Context, c *bus.Client, logger *zap.SugaredLogger, component string, handlers map[string]func([]byte)) (func(), error) {
	var cancels []func()
	cancelAll := func() {
		for _, cancel := range cancels {
			cancel()
		}
	}
	var errs error
	for topic, fn := range handlers {
		cancel, err := c.Subscribe(ctx, topic, fn)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		cancels = append(cancels, cancel)
		logger.Infof("%s: subscribed to %s", component, topic)
	}
	if errs != nil {
		cancelAll()
		return nil, errs
	}
	return cancelAll, nil
}
