// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Command armctl plans and sends manipulator commands.
package main

import (
	"encoding/json"
	"log"
	"os"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/relabs-tech/manipulator/internal/app"
	"github.com/relabs-tech/manipulator/internal/config"
	"github.com/relabs-tech/manipulator/internal/kinematics"
	"github.com/relabs-tech/manipulator/internal/logging"
	"github.com/relabs-tech/manipulator/internal/orientation"
	"github.com/relabs-tech/manipulator/internal/trajectory"
)

const (
	flagConfig = "config"
	flagGroup  = "group"
	flagX      = "x"
	flagY      = "y"
	flagZ      = "z"
	flagRoll   = "roll"
	flagPitch  = "pitch"
	flagYaw    = "yaw"
	flagXC     = "xc"
	flagYC     = "yc"
	flagZC     = "zc"
	flagTime   = "time"
	flagRes    = "res"
	flagFromX  = "from-x"
	flagFromY  = "from-y"
	flagFromZ  = "from-z"
	flagFile   = "file"
	flagWait   = "wait"
	flagGrip   = "grip"
	flagThumb  = "thumb-yaw"
	flagJoint  = "joint"
	flagDeg    = "deg"
)

var groupFlag = &cli.StringFlag{
	Name:  flagGroup,
	Value: kinematics.GroupLeftArm,
	Usage: "kinematic group (left_arm or right_arm)",
}

func poseFlags(required bool) []cli.Flag {
	return []cli.Flag{
		groupFlag,
		&cli.Float64Flag{Name: flagX, Required: required, Usage: "target x"},
		&cli.Float64Flag{Name: flagY, Required: required, Usage: "target y"},
		&cli.Float64Flag{Name: flagZ, Required: required, Usage: "target z"},
		&cli.Float64Flag{Name: flagRoll, Usage: "roll in degrees"},
		&cli.Float64Flag{Name: flagPitch, Usage: "pitch in degrees"},
		&cli.Float64Flag{Name: flagYaw, Usage: "yaw in degrees"},
	}
}

func trajectoryFlags(required bool) []cli.Flag {
	return append(poseFlags(required),
		&cli.Float64Flag{Name: flagXC, Usage: "arc offset along x"},
		&cli.Float64Flag{Name: flagYC, Usage: "arc offset along y"},
		&cli.Float64Flag{Name: flagZC, Usage: "arc offset along z"},
		&cli.Float64Flag{Name: flagTime, Required: required, Usage: "duration in seconds"},
		&cli.Float64Flag{Name: flagRes, Value: 0.1, Usage: "seconds between waypoints"},
	)
}

func main() {
	ctx, stop := app.SignalContext()
	defer stop()

	a := &cli.App{
		Name:            "armctl",
		Usage:           "plan and send manipulator trajectories",
		HideHelpCommand: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Value:   "manipulator_config.txt",
				Usage:   "load configuration from `FILE`",
			},
		},
		Before: func(c *cli.Context) error {
			if err := config.InitGlobal(c.String(flagConfig)); err != nil {
				return errors.Wrap(err, "failed to load config")
			}
			logging.Init(config.Get().LogLevel)
			return nil
		},
		After: func(*cli.Context) error {
			logging.Sync()
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "plan",
				Usage: "print the waypoints of a trajectory without sending it",
				Flags: append(trajectoryFlags(true),
					&cli.Float64Flag{Name: flagFromX, Usage: "current x"},
					&cli.Float64Flag{Name: flagFromY, Usage: "current y"},
					&cli.Float64Flag{Name: flagFromZ, Usage: "current z"},
				),
				Action: planAction,
			},
			{
				Name:      "move",
				Usage:     "send a sinusoidal trajectory from the current pose",
				UsageText: "armctl move --x X --y Y --z Z --time T [options]\n   armctl move --file requests.json",
				Flags: append(trajectoryFlags(false),
					&cli.PathFlag{Name: flagFile, Usage: "JSON list of trajectory requests sent as one batch"},
					&cli.BoolFlag{Name: flagWait, Usage: "wait until the manipulation module reports the move finished"},
				),
				Action: moveAction,
			},
			{
				Name:   "pose",
				Usage:  "print the current pose of a group",
				Flags:  []cli.Flag{groupFlag},
				Action: poseAction,
			},
			{
				Name:  "set-pose",
				Usage: "command a single pose",
				Flags: append(poseFlags(true),
					&cli.Float64Flag{Name: flagTime, Value: 1, Usage: "seconds to reach the pose"},
				),
				Action: setPoseAction,
			},
			{
				Name:  "gripper",
				Usage: "close a hand (--grip, --thumb-yaw on a 0-10 scale) or set joints (--joint, --deg)",
				Flags: []cli.Flag{
					groupFlag,
					&cli.Float64Flag{Name: flagGrip, Usage: "grip, 0 open to 10 closed"},
					&cli.Float64Flag{Name: flagThumb, Usage: "thumb yaw, 0 to 10"},
					&cli.StringSliceFlag{Name: flagJoint, Usage: "joint name, repeatable"},
					&cli.Float64SliceFlag{Name: flagDeg, Usage: "joint angle in degrees, one per --joint"},
				},
				Action: gripperAction,
			},
			{
				Name:      "module",
				Usage:     "enable a control module",
				ArgsUsage: "[name]",
				Action: func(c *cli.Context) error {
					return app.RunModule(c.Context, argOr(c, "manipulation_module"))
				},
			},
			{
				Name:      "ini-pose",
				Usage:     "move to a named initial pose",
				ArgsUsage: "[name]",
				Action: func(c *cli.Context) error {
					return app.RunIniPose(c.Context, argOr(c, "ini_pose"))
				},
			},
		},
	}

	if err := a.RunContext(ctx, os.Args); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func argOr(c *cli.Context, def string) string {
	if c.Args().Present() {
		return c.Args().First()
	}
	return def
}

func requestFromFlags(c *cli.Context) trajectory.Request {
	return trajectory.Request{
		Group:       c.String(flagGroup),
		Target:      r3.Vector{X: c.Float64(flagX), Y: c.Float64(flagY), Z: c.Float64(flagZ)},
		Orientation: orientation.Pose{Roll: c.Float64(flagRoll), Pitch: c.Float64(flagPitch), Yaw: c.Float64(flagYaw)},
		Arc:         r3.Vector{X: c.Float64(flagXC), Y: c.Float64(flagYC), Z: c.Float64(flagZC)},
		Duration:    c.Float64(flagTime),
		Resolution:  c.Float64(flagRes),
	}
}

func planAction(c *cli.Context) error {
	from := r3.Vector{X: c.Float64(flagFromX), Y: c.Float64(flagFromY), Z: c.Float64(flagFromZ)}
	return app.RunPlan(c.App.Writer, from, requestFromFlags(c))
}

func moveAction(c *cli.Context) error {
	if path := c.Path(flagFile); path != "" {
		reqs, err := readRequests(path)
		if err != nil {
			return err
		}
		return app.RunMove(c.Context, reqs, c.Bool(flagWait))
	}
	for _, name := range []string{flagX, flagY, flagZ, flagTime} {
		if !c.IsSet(name) {
			return errors.Errorf("--%s is required without --%s", name, flagFile)
		}
	}
	return app.RunMove(c.Context, []trajectory.Request{requestFromFlags(c)}, c.Bool(flagWait))
}

func readRequests(path string) ([]trajectory.Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	var bodies []app.TrajectoryRequest
	if err := json.Unmarshal(data, &bodies); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	reqs := make([]trajectory.Request, len(bodies))
	for i, b := range bodies {
		if b.Res == 0 {
			b.Res = 0.1
		}
		reqs[i] = b.Request()
	}
	return reqs, nil
}

func poseAction(c *cli.Context) error {
	return app.RunPose(c.Context, c.App.Writer, c.String(flagGroup))
}

func setPoseAction(c *cli.Context) error {
	pose := kinematics.Pose{
		X:    c.Float64(flagX),
		Y:    c.Float64(flagY),
		Z:    c.Float64(flagZ),
		Pose: orientation.Pose{Roll: c.Float64(flagRoll), Pitch: c.Float64(flagPitch), Yaw: c.Float64(flagYaw)},
	}
	return app.RunSetPose(c.Context, c.String(flagGroup), c.Float64(flagTime), pose)
}

func gripperAction(c *cli.Context) error {
	if joints := c.StringSlice(flagJoint); len(joints) > 0 {
		return app.RunGripper(c.Context, kinematics.JointGrip(joints, c.Float64Slice(flagDeg)))
	}
	return app.RunGripper(c.Context, kinematics.GroupGrip(c.String(flagGroup), c.Float64(flagGrip), c.Float64(flagThumb)))
}
