package drive

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/tigerbot-team/pigpen/pkg/hardware"
	"github.com/tigerbot-team/pigpen/pkg/monitoring"
	"github.com/tigerbot-team/pigpen/pkg/pid"
)

const (
	forwardThreshold  = 3.0
	backwardThreshold = 5.0
	// Share of the speed given to the trailing side when the heading error
	// is inside the threshold.
	gentleCorrection = 0.6
)

// Move drives a signed distance in inches while holding heading.
func (d *Drive) Move(distance, heading float64, accelStep int, opts ...Option) *Task {
	return d.startMove(MoveForDistance, distance, heading, accelStep, opts)
}

// MoveToXCoord drives along heading until the X coordinate reaches x.
func (d *Drive) MoveToXCoord(x, heading float64, accelStep int, opts ...Option) *Task {
	return d.startMove(MoveToXCoord, x, heading, accelStep, opts)
}

func (d *Drive) MoveToYCoord(y, heading float64, accelStep int, opts ...Option) *Task {
	return d.startMove(MoveToYCoord, y, heading, accelStep, opts)
}

// MoveBackToXCoord is MoveToXCoord with the robot facing away from its
// direction of travel.
func (d *Drive) MoveBackToXCoord(x, heading float64, accelStep int, opts ...Option) *Task {
	return d.startMove(MoveBackToXCoord, x, heading, accelStep, opts)
}

func (d *Drive) MoveBackToYCoord(y, heading float64, accelStep int, opts ...Option) *Task {
	return d.startMove(MoveBackToYCoord, y, heading, accelStep, opts)
}

func (d *Drive) startMove(kind MoveType, target, heading float64, accelStep int, opts []Option) *Task {
	o := collect(opts)
	targets := MoveTargets{
		TargetDistance: target,
		TargetHeading:  heading,
		AccelStep:      accelStep,
		Fluid:          o.fluid,
		MoveType:       kind,
		Color:          o.color,
	}
	timeout := d.cfg.MoveTimeout
	if o.timeout != nil {
		timeout = *o.timeout
	}
	correction, gains := d.takeMoveOverrides()
	return d.moves.start(timeout, o.async, func(ctx context.Context, t *Task) error {
		return d.runMove(ctx, t, targets, correction, gains)
	})
}

func (d *Drive) runMove(ctx context.Context, t *Task, targets MoveTargets, correction float64, override *pid.Gains) (err error) {
	defer func() {
		if errors.Is(err, context.DeadlineExceeded) {
			d.DrivePower(0, 0)
		}
		d.movePID.ResetGainsToDefaults()
	}()

	d.movePID.Reset()
	if override != nil {
		d.movePID.SetGainSet(*override)
	} else {
		table := d.cfg.Gains.Tables.For(targets.MoveType)
		if targets.Fluid {
			d.movePID.SetGainSet(table.Fluid)
		} else if table.Standard != nil {
			d.movePID.SetGainSet(*table.Standard)
		}
	}
	t.gains = d.movePID.Gains()

	monitoring.Logf("Drive: move %s %v target=%.2f heading=%.1f fluid=%v color=%d gains=%+v",
		t.ID, targets.MoveType, targets.TargetDistance, targets.TargetHeading, targets.Fluid, targets.Color, t.gains)

	l := &moveLoop{
		d:          d,
		ctx:        ctx,
		heading:    targets.TargetHeading,
		correction: correction,
		period:     d.cfg.ControlPeriod,
	}
	if targets.AccelStep > 0 {
		l.period = time.Duration(targets.AccelStep) * time.Millisecond
		l.ramp.step = d.cfg.RampStep
	}

	switch targets.MoveType {
	case MoveForDistance:
		err = l.distance(targets.TargetDistance)
	case MoveToXCoord:
		err = l.toCoord(d.pose.X, targets.TargetDistance, false)
	case MoveToYCoord:
		err = l.toCoord(d.pose.Y, targets.TargetDistance, false)
	case MoveBackToXCoord:
		err = l.toCoord(d.pose.X, targets.TargetDistance, true)
	case MoveBackToYCoord:
		err = l.toCoord(d.pose.Y, targets.TargetDistance, true)
	}
	if err != nil {
		return err
	}
	if !targets.Fluid {
		d.DrivePower(0, 0)
	}
	return nil
}

// moveLoop is the state of one move while it runs.
type moveLoop struct {
	d          *Drive
	ctx        context.Context
	heading    float64
	correction float64
	period     time.Duration
	backward   bool
	ramp       ramp
}

// distance and toCoord compare whole ticks and whole inches.  The controller
// then only sees integral errors, so its dead band is reached exactly when the
// loop condition fails and a move cannot come to rest short of its target.
func (l *moveLoop) distance(distance float64) error {
	leftTicks := func() float64 {
		return float64(l.d.hw.ReadTicks(hardware.WheelLeft))
	}
	delta := l.d.geom.DistanceToTicks(math.Abs(distance))
	start := leftTicks()

	if distance < 0 {
		l.backward = true
		target := math.Trunc(start - delta)
		for leftTicks() > target {
			if err := l.cycle(l.d.movePID.Output(target, leftTicks())); err != nil {
				return err
			}
		}
		return nil
	}

	target := math.Trunc(start + delta)
	for leftTicks() < target {
		if err := l.cycle(l.d.movePID.Output(target, leftTicks())); err != nil {
			return err
		}
	}
	return nil
}

// toCoord drives until coord() reaches target.  The robot is expected to face
// the target, or face away from it for back moves, so the drive direction only
// depends on back.
func (l *moveLoop) toCoord(coord func() float64, target float64, back bool) error {
	l.backward = back
	sign := 1.0
	if back {
		sign = -1
	}
	target = math.Trunc(target)
	current := func() float64 {
		return math.Trunc(coord())
	}
	if current() < target {
		for current() < target {
			if err := l.cycle(sign * l.d.movePID.Output(target, current())); err != nil {
				return err
			}
		}
	} else {
		for current() > target {
			if err := l.cycle(-sign * l.d.movePID.Output(target, current())); err != nil {
				return err
			}
		}
	}
	return nil
}

func (l *moveLoop) cycle(speed float64) error {
	if err := l.ctx.Err(); err != nil {
		return err
	}
	left, right := l.d.correctHeading(l.heading, l.correction, speed, l.backward)
	left = l.ramp.limit(hardware.SideLeft, left)
	right = l.ramp.limit(hardware.SideRight, right)
	l.d.DrivePower(left, right)
	if l.d.cfg.Debug {
		monitoring.Logf("Drive: speed=%.1f powers=(%.1f, %.1f) x=%.2f y=%.2f theta=%.2f",
			speed, left, right, l.d.pose.X(), l.d.pose.Y(), l.d.pose.Theta())
	}
	return sleep(l.ctx, l.period)
}

// correctHeading splits speed between the sides so that the robot steers
// back towards heading.  The leading side gets the full speed; the other
// gets a share that depends on how far off the robot is.
func (d *Drive) correctHeading(heading, multiplier, speed float64, backward bool) (left, right float64) {
	theta := d.pose.Theta()
	threshold := forwardThreshold
	if backward {
		threshold = backwardThreshold
	}
	share := gentleCorrection
	if math.Abs(heading-theta) >= threshold {
		share = multiplier
	}

	switch {
	case theta == heading:
		return speed, speed
	case (theta < heading) != backward:
		return speed, speed * share
	default:
		return speed * share, speed
	}
}

// ramp limits how fast commanded power builds up on each side.  Decreases
// and reversals are applied at once.
type ramp struct {
	step  float64
	power [2]float64
}

func (r *ramp) limit(side hardware.Side, command float64) float64 {
	if r.step <= 0 {
		return command
	}
	current := r.power[side]
	switch {
	case command > 0 && current >= 0 && command > current:
		current = math.Min(command, current+r.step)
	case command < 0 && current <= 0 && command < current:
		current = math.Max(command, current-r.step)
	default:
		current = command
	}
	r.power[side] = current
	return current
}
