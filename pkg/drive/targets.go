package drive

import (
	"fmt"
	"time"
)

type MoveType int

const (
	MoveForDistance MoveType = iota
	MoveToXCoord
	MoveBackToXCoord
	MoveToYCoord
	MoveBackToYCoord
)

func (m MoveType) String() string {
	switch m {
	case MoveForDistance:
		return "distance"
	case MoveToXCoord:
		return "to-x"
	case MoveBackToXCoord:
		return "back-to-x"
	case MoveToYCoord:
		return "to-y"
	case MoveBackToYCoord:
		return "back-to-y"
	}
	return fmt.Sprintf("move(%d)", int(m))
}

type TurnType int

const (
	TurnPlain TurnType = iota
	TurnSweepRight
	TurnSweepRightThreshold
	TurnSweepLeft
	TurnSweepLeftThreshold
	TurnSweepRightBack
	TurnSweepRightBackThreshold
	TurnSweepLeftBack
	TurnSweepLeftBackThreshold
)

func (t TurnType) String() string {
	switch t {
	case TurnPlain:
		return "turn"
	case TurnSweepRight:
		return "sweep-right"
	case TurnSweepRightThreshold:
		return "sweep-right-threshold"
	case TurnSweepLeft:
		return "sweep-left"
	case TurnSweepLeftThreshold:
		return "sweep-left-threshold"
	case TurnSweepRightBack:
		return "sweep-right-back"
	case TurnSweepRightBackThreshold:
		return "sweep-right-back-threshold"
	case TurnSweepLeftBack:
		return "sweep-left-back"
	case TurnSweepLeftBackThreshold:
		return "sweep-left-back-threshold"
	}
	return fmt.Sprintf("turn(%d)", int(t))
}

// Threshold reports whether the turn exits at its error threshold without
// stopping, ready to hand over to a fluid move.
func (t TurnType) Threshold() bool {
	switch t {
	case TurnSweepRightThreshold, TurnSweepLeftThreshold,
		TurnSweepRightBackThreshold, TurnSweepLeftBackThreshold:
		return true
	}
	return false
}

const defaultColor = 2

// MoveTargets describes a single move.  It is copied into the task that runs
// it and never shared afterwards.
type MoveTargets struct {
	// Signed distance for MoveForDistance, otherwise the absolute coordinate.
	TargetDistance float64
	TargetHeading  float64
	// Milliseconds between control cycles; also enables the acceleration
	// ramp.  Zero uses the configured control period without a ramp.
	AccelStep int
	Fluid     bool
	MoveType  MoveType
	Color     int
}

type TurnTargets struct {
	Degrees        float64
	LeftSideSpeed  float64
	RightSideSpeed float64
	ErrorThreshold float64
	TurnType       TurnType
}

type Option func(*options)

type options struct {
	async   bool
	fluid   bool
	timeout *time.Duration
	color   int
}

// Async starts the motion in the background; the call returns immediately.
func Async() Option {
	return func(o *options) { o.async = true }
}

// Fluid leaves the motors running at the end of a move so that the next move
// carries on without stopping.
func Fluid() Option {
	return func(o *options) { o.fluid = true }
}

// WithTimeout overrides the configured timeout.  Zero waits forever.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = &d }
}

func WithColor(c int) Option {
	return func(o *options) { o.color = c }
}

func collect(opts []Option) options {
	o := options{color: defaultColor}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
