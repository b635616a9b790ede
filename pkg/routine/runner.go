package routine

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/tigerbot-team/pigpen/pkg/drive"
	"github.com/tigerbot-team/pigpen/pkg/monitoring"
)

// PoseSetter is implemented by the odometry tracker.
type PoseSetter interface {
	SetCoordinates(x, y, degrees float64)
}

type Runner struct {
	drive *drive.Drive
	pose  PoseSetter
}

func NewRunner(d *drive.Drive, pose PoseSetter) *Runner {
	return &Runner{drive: d, pose: pose}
}

// Run executes the steps in order.  A motion that fails stops the routine;
// cancelling ctx stops the robot.
func (r *Runner) Run(ctx context.Context, rt Routine) error {
	monitoring.Logf("Routine: starting %s (%d steps)", rt.Name, len(rt.Steps))
	start := time.Now()
	for i, s := range rt.Steps {
		if err := r.step(ctx, s); err != nil {
			r.drive.Stop()
			return errors.Wrapf(err, "routine %s step %d (%s)", rt.Name, i, s.Op)
		}
	}
	monitoring.Logf("Routine: %s done in %v", rt.Name, time.Since(start))
	return nil
}

type moveFunc func(target, heading float64, accelStep int, opts ...drive.Option) *drive.Task
type sweepFunc func(degrees, speed float64, opts ...drive.Option) *drive.Task
type sweepThresholdFunc func(degrees, speed, threshold float64, opts ...drive.Option) *drive.Task

func (r *Runner) step(ctx context.Context, s Step) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d := r.drive

	moves := map[string]moveFunc{
		OpMove:        d.Move,
		OpMoveToX:     d.MoveToXCoord,
		OpMoveToY:     d.MoveToYCoord,
		OpMoveBackToX: d.MoveBackToXCoord,
		OpMoveBackToY: d.MoveBackToYCoord,
	}
	sweeps := map[string]sweepFunc{
		OpSweepRight:     d.SweepRight,
		OpSweepLeft:      d.SweepLeft,
		OpSweepRightBack: d.SweepRightBack,
		OpSweepLeftBack:  d.SweepLeftBack,
	}
	thresholdSweeps := map[string]sweepThresholdFunc{
		OpSweepRight:     d.SweepRightWithThreshold,
		OpSweepLeft:      d.SweepLeftWithThreshold,
		OpSweepRightBack: d.SweepRightBackWithThreshold,
		OpSweepLeftBack:  d.SweepLeftBackWithThreshold,
	}

	if move, ok := moves[s.Op]; ok {
		if s.Correction != nil {
			d.WithCorrection(*s.Correction)
		}
		if g := s.Gains; g != nil {
			d.WithGains(g.KP, g.KI, g.KD, g.MinSpeed)
		}
		return r.finish(ctx, s, move(s.Target, s.Heading, s.AccelStep, options(s)...))
	}

	if s.Op == OpTurn || sweeps[s.Op] != nil {
		if g := s.TurnGains; g != nil {
			d.WithTurnGains(g.KP, g.KI, g.KD, g.MinSpeed)
		}
		var t *drive.Task
		switch {
		case s.Op == OpTurn:
			t = d.Turn(s.Degrees, options(s)...)
		case s.Threshold != nil:
			t = thresholdSweeps[s.Op](s.Degrees, s.Speed, *s.Threshold, options(s)...)
		default:
			t = sweeps[s.Op](s.Degrees, s.Speed, options(s)...)
		}
		return r.finish(ctx, s, t)
	}

	switch s.Op {
	case OpSetPose:
		r.pose.SetCoordinates(s.X, s.Y, s.Theta)
	case OpWait:
		return r.wait(ctx, d.WaitForComplete)
	case OpWaitTurn:
		return r.wait(ctx, d.WaitForTurn)
	case OpPause:
		timer := time.NewTimer(s.Duration)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	case OpDrivePower:
		d.DrivePower(s.Left, s.Right)
	case OpTimedDrive:
		return d.TimedDrive(ctx, s.Duration, s.Left, s.Right)
	case OpBrake:
		d.Brake()
	case OpCoast:
		d.Coast()
	case OpStop:
		d.Stop()
	default:
		return errors.Errorf("unknown op %q", s.Op)
	}
	return nil
}

func options(s Step) []drive.Option {
	// Motions always start in the background so that the routine can be
	// cancelled while they run.
	opts := []drive.Option{drive.Async()}
	if s.Fluid {
		opts = append(opts, drive.Fluid())
	}
	if s.Timeout != nil {
		opts = append(opts, drive.WithTimeout(*s.Timeout))
	}
	if s.Color != nil {
		opts = append(opts, drive.WithColor(*s.Color))
	}
	return opts
}

func (r *Runner) finish(ctx context.Context, s Step, t *drive.Task) error {
	if s.Async {
		return nil
	}
	return r.wait(ctx, t.Wait)
}

func (r *Runner) wait(ctx context.Context, wait func(context.Context) error) error {
	err := wait(ctx)
	if ctx.Err() != nil {
		r.drive.Stop()
		return ctx.Err()
	}
	return err
}
