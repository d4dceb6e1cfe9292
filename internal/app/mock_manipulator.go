// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"

	"github.com/pkg/errors"

	"github.com/relabs-tech/manipulator/internal/bus"
	"github.com/relabs-tech/manipulator/internal/config"
	"github.com/relabs-tech/manipulator/internal/kinematics"
	"github.com/relabs-tech/manipulator/internal/logging"
	"github.com/relabs-tech/manipulator/internal/sim"
)

// RunMockManipulator runs a simulated manipulation module on the broker
// until ctx is done.
func RunMockManipulator(ctx context.Context) error {
	cfg := config.Get()
	logger := logging.L()

	c, err := bus.Dial(ctx, cfg.MQTTBroker, cfg.MQTTClientIDMock, cfg.MQTTQoS, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	arm := sim.New(c, cfg.TopicStatus, logger)
	err = arm.Run(ctx, c, kinematics.TopicsFromConfig(cfg), cfg.TopicGetKinematics)
	arm.Wait()
	logger.Infof("mock: shutting down")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
