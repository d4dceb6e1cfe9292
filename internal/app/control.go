package app

import (
	"context"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/relabs-tech/manipulator/internal/config"
	"github.com/relabs-tech/manipulator/internal/kinematics"
	"github.com/relabs-tech/manipulator/internal/logging"
	"github.com/relabs-tech/manipulator/internal/trajectory"
)

// RunMove sends one trajectory per request, at most one per group. With wait
// set it blocks until the manipulation module reports every one of them
// finished.
func RunMove(ctx context.Context, reqs []trajectory.Request, wait bool) error {
	if err := checkBatch(reqs); err != nil {
		return err
	}
	cfg := config.Get()
	logger := logging.L()

	ctl, err := connect(ctx, cfg, cfg.MQTTClientIDControl, logger)
	if err != nil {
		return err
	}
	defer ctl.Close()

	var watcher *kinematics.StatusWatcher
	after := make(map[string]uint64)
	if wait {
		watcher = kinematics.NewStatusWatcher(ctl.bus, cfg.TopicStatus, logger)
		stop, err := watcher.Start(ctx)
		if err != nil {
			return err
		}
		defer stop()
		for _, req := range reqs {
			after[req.Group] = watcher.FinishCount(req.Group)
		}
	}

	seqs, err := ctl.TrajectoryBatch(ctx, reqs...)
	if err != nil {
		return err
	}
	for _, seq := range seqs {
		logger.Infof("control: %s moving with %s, %d waypoints", seq.Group, seq.Rule, seq.Len())
	}
	if !wait {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for group, n := range after {
		g.Go(func() error {
			if err := watcher.WaitFinished(gctx, group, n); err != nil {
				return errors.Wrapf(err, "waiting for %s", group)
			}
			logger.Infof("control: %s finished", group)
			return nil
		})
	}
	return g.Wait()
}

// checkBatch rejects an empty batch and a batch naming a group twice, since
// a group runs one array trajectory at a time.
func checkBatch(reqs []trajectory.Request) error {
	if len(reqs) == 0 {
		return errors.Wrap(trajectory.ErrInvalidArgument, "no trajectory requested")
	}
	seen := make(map[string]bool, len(reqs))
	for _, req := range reqs {
		if seen[req.Group] {
			return errors.Wrapf(trajectory.ErrInvalidArgument, "more than one trajectory for %s", req.Group)
		}
		seen[req.Group] = true
	}
	return nil
}

// RunPose prints the current pose of group.
func RunPose(ctx context.Context, w io.Writer, group string) error {
	cfg := config.Get()
	ctl, err := connect(ctx, cfg, cfg.MQTTClientIDControl, logging.L())
	if err != nil {
		return err
	}
	defer ctl.Close()

	p, err := ctl.GetKinematicsPose(ctx, group)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "[%s] X=%8.4f  Y=%8.4f  Z=%8.4f  ROLL=%6.2f  PITCH=%6.2f  YAW=%6.2f\n",
		group, p.X, p.Y, p.Z, p.Roll, p.Pitch, p.Yaw)
	return nil
}

// RunSetPose commands a single pose reached in seconds.
func RunSetPose(ctx context.Context, group string, seconds float64, pose kinematics.Pose) error {
	return withController(ctx, func(k *kinematics.Kinematics) error {
		return k.SetKinematicsPose(ctx, group, seconds, pose)
	})
}

// RunGripper sends a gripper command.
func RunGripper(ctx context.Context, cmd kinematics.GripperCommand) error {
	// reject bad commands before touching the broker
	if _, err := cmd.JointState(); err != nil {
		return err
	}
	return withController(ctx, func(k *kinematics.Kinematics) error {
		return k.SetGripper(ctx, cmd)
	})
}

// RunModule switches the robot to the named control module.
func RunModule(ctx context.Context, module string) error {
	return withController(ctx, func(k *kinematics.Kinematics) error {
		return k.EnableModule(ctx, module)
	})
}

// RunIniPose moves the arms to the named initial pose.
func RunIniPose(ctx context.Context, pose string) error {
	return withController(ctx, func(k *kinematics.Kinematics) error {
		return k.SendIniPose(ctx, pose)
	})
}

func withController(ctx context.Context, fn func(k *kinematics.Kinematics) error) error {
	cfg := config.Get()
	ctl, err := connect(ctx, cfg, cfg.MQTTClientIDControl, logging.L())
	if err != nil {
		return err
	}
	defer ctl.Close()
	return fn(ctl.Kinematics)
}
