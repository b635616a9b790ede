package drive

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/tigerbot-team/pigpen/pkg/monitoring"
	"github.com/tigerbot-team/pigpen/pkg/pid"
)

const (
	settleBand = 2.5
	// Extra pause after each check that lands inside the band.
	settlePause = 2 * time.Millisecond

	turnSettleChecks  = 50
	sweepSettleChecks = 25
	sweepCheckPeriod  = 5 * time.Millisecond
)

// Turn spins in place to an absolute heading in degrees.
func (d *Drive) Turn(degrees float64, opts ...Option) *Task {
	return d.startTurn(TurnTargets{Degrees: degrees, TurnType: TurnPlain}, opts)
}

// SweepRight arcs clockwise with the right side held at rightSpeed.
func (d *Drive) SweepRight(degrees, rightSpeed float64, opts ...Option) *Task {
	return d.startTurn(TurnTargets{Degrees: degrees, RightSideSpeed: rightSpeed, TurnType: TurnSweepRight}, opts)
}

// SweepRightWithThreshold is SweepRight that returns, still moving, as soon as
// the heading is within threshold of degrees.
func (d *Drive) SweepRightWithThreshold(degrees, rightSpeed, threshold float64, opts ...Option) *Task {
	return d.startTurn(TurnTargets{Degrees: degrees, RightSideSpeed: rightSpeed, ErrorThreshold: threshold, TurnType: TurnSweepRightThreshold}, opts)
}

func (d *Drive) SweepLeft(degrees, leftSpeed float64, opts ...Option) *Task {
	return d.startTurn(TurnTargets{Degrees: degrees, LeftSideSpeed: leftSpeed, TurnType: TurnSweepLeft}, opts)
}

func (d *Drive) SweepLeftWithThreshold(degrees, leftSpeed, threshold float64, opts ...Option) *Task {
	return d.startTurn(TurnTargets{Degrees: degrees, LeftSideSpeed: leftSpeed, ErrorThreshold: threshold, TurnType: TurnSweepLeftThreshold}, opts)
}

// SweepRightBack arcs clockwise while reversing, the left side held at
// leftSpeed.
func (d *Drive) SweepRightBack(degrees, leftSpeed float64, opts ...Option) *Task {
	return d.startTurn(TurnTargets{Degrees: degrees, LeftSideSpeed: leftSpeed, TurnType: TurnSweepRightBack}, opts)
}

func (d *Drive) SweepRightBackWithThreshold(degrees, leftSpeed, threshold float64, opts ...Option) *Task {
	return d.startTurn(TurnTargets{Degrees: degrees, LeftSideSpeed: leftSpeed, ErrorThreshold: threshold, TurnType: TurnSweepRightBackThreshold}, opts)
}

func (d *Drive) SweepLeftBack(degrees, rightSpeed float64, opts ...Option) *Task {
	return d.startTurn(TurnTargets{Degrees: degrees, RightSideSpeed: rightSpeed, TurnType: TurnSweepLeftBack}, opts)
}

func (d *Drive) SweepLeftBackWithThreshold(degrees, rightSpeed, threshold float64, opts ...Option) *Task {
	return d.startTurn(TurnTargets{Degrees: degrees, RightSideSpeed: rightSpeed, ErrorThreshold: threshold, TurnType: TurnSweepLeftBackThreshold}, opts)
}

func (d *Drive) startTurn(targets TurnTargets, opts []Option) *Task {
	o := collect(opts)
	timeout := d.cfg.TurnTimeout
	if o.timeout != nil {
		timeout = *o.timeout
	}
	gains := d.takeTurnOverrides()
	return d.turns.start(timeout, o.async, func(ctx context.Context, t *Task) error {
		return d.runTurn(ctx, t, targets, gains)
	})
}

func (d *Drive) runTurn(ctx context.Context, t *Task, targets TurnTargets, override *pid.Gains) (err error) {
	defer func() {
		if errors.Is(err, context.DeadlineExceeded) {
			d.DrivePower(0, 0)
		}
		d.turnPID.ResetGainsToDefaults()
	}()

	d.turnPID.Reset()
	d.sweepPID.Reset()
	if override != nil {
		d.turnPID.SetGainSet(*override)
	}
	t.gains = d.turnPID.Gains()
	if targets.TurnType.Threshold() {
		t.gains = d.sweepPID.Gains()
	}

	monitoring.Logf("Drive: turn %s %v degrees=%.1f left=%.1f right=%.1f threshold=%.1f",
		t.ID, targets.TurnType, targets.Degrees, targets.LeftSideSpeed, targets.RightSideSpeed, targets.ErrorThreshold)

	deg := targets.Degrees
	out := func() float64 {
		return d.turnPID.Output(deg, d.pose.Theta())
	}
	sweepOut := func() float64 {
		return d.sweepPID.Output(deg, d.pose.Theta())
	}
	below := func() bool { return d.pose.Theta() < deg-targets.ErrorThreshold }
	above := func() bool { return d.pose.Theta() > deg+targets.ErrorThreshold }

	switch targets.TurnType {
	case TurnPlain:
		err = d.settle(ctx, turnSettleChecks, d.cfg.ControlPeriod, func() {
			o := out()
			d.DrivePower(o, -o)
		})
	case TurnSweepRight:
		err = d.settle(ctx, sweepSettleChecks, sweepCheckPeriod, func() {
			d.DrivePower(out(), targets.RightSideSpeed)
		})
	case TurnSweepLeft:
		err = d.settle(ctx, sweepSettleChecks, sweepCheckPeriod, func() {
			d.DrivePower(targets.LeftSideSpeed, -out())
		})
	case TurnSweepRightBack:
		err = d.settle(ctx, sweepSettleChecks, sweepCheckPeriod, func() {
			d.DrivePower(targets.LeftSideSpeed, -out())
		})
	case TurnSweepLeftBack:
		err = d.settle(ctx, sweepSettleChecks, sweepCheckPeriod, func() {
			d.DrivePower(out(), targets.RightSideSpeed)
		})
	case TurnSweepRightThreshold:
		err = d.sweepUntil(ctx, below, func() {
			d.DrivePower(sweepOut(), targets.RightSideSpeed)
		})
	case TurnSweepLeftThreshold:
		err = d.sweepUntil(ctx, above, func() {
			d.DrivePower(targets.LeftSideSpeed, -sweepOut())
		})
	case TurnSweepRightBackThreshold:
		err = d.sweepUntil(ctx, below, func() {
			d.DrivePower(targets.LeftSideSpeed, -sweepOut())
		})
	case TurnSweepLeftBackThreshold:
		err = d.sweepUntil(ctx, above, func() {
			d.DrivePower(sweepOut(), targets.RightSideSpeed)
		})
	}
	if err != nil {
		return err
	}
	if !targets.TurnType.Threshold() {
		d.DrivePower(0, 0)
	}
	return nil
}

// settle keeps commanding until the turn controller's error has stayed
// inside the settle band for the given number of consecutive checks.
func (d *Drive) settle(ctx context.Context, checks int, period time.Duration, command func()) error {
	inBand := 0
	for inBand < checks {
		if err := ctx.Err(); err != nil {
			return err
		}
		command()
		if math.Abs(d.turnPID.Error()) < settleBand {
			inBand++
			if err := sleep(ctx, settlePause); err != nil {
				return err
			}
		} else {
			inBand = 0
		}
		if d.cfg.Debug {
			monitoring.Logf("Drive: theta=%.2f error=%.2f settled=%d/%d", d.pose.Theta(), d.turnPID.Error(), inBand, checks)
		}
		if err := sleep(ctx, period); err != nil {
			return err
		}
	}
	return nil
}

// sweepUntil commands while going() holds, checking before every cycle so
// the sweep hands over as soon as the heading crosses its threshold.
func (d *Drive) sweepUntil(ctx context.Context, going func() bool, command func()) error {
	for going() {
		if err := ctx.Err(); err != nil {
			return err
		}
		command()
		if err := sleep(ctx, sweepCheckPeriod); err != nil {
			return err
		}
	}
	return nil
}
