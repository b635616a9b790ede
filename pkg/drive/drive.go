// Package drive runs closed-loop moves and turns on a tank-drive chassis,
// steering from the odometry pose.
package drive

import (
	"context"
	"sync"
	"time"

	"github.com/tigerbot-team/pigpen/pkg/chassis"
	"github.com/tigerbot-team/pigpen/pkg/hardware"
	"github.com/tigerbot-team/pigpen/pkg/monitoring"
	"github.com/tigerbot-team/pigpen/pkg/pid"
)

// PoseSource is the part of the odometry tracker the drive steers by.
type PoseSource interface {
	X() float64
	Y() float64
	Theta() float64
}

type Drive struct {
	hw   hardware.Interface
	pose PoseSource
	geom chassis.Geometry
	cfg  Config

	// Each controller is only touched by the slot that owns it.
	movePID  *pid.Controller
	turnPID  *pid.Controller
	sweepPID *pid.Controller

	moves slot
	turns slot

	lock    sync.Mutex
	pending pending
}

// pending holds overrides staged for the next move or turn.
type pending struct {
	correction *float64
	moveGains  *pid.Gains
	turnGains  *pid.Gains
}

func New(hw hardware.Interface, pose PoseSource, geom chassis.Geometry, cfg Config) *Drive {
	return &Drive{
		hw:       hw,
		pose:     pose,
		geom:     geom,
		cfg:      cfg,
		movePID:  pid.FromGains(cfg.Gains.Move),
		turnPID:  pid.FromGains(cfg.Gains.Turn),
		sweepPID: pid.FromGains(cfg.Gains.SweepThreshold),
		moves:    slot{kind: "move"},
		turns:    slot{kind: "turn"},
	}
}

// WithCorrection sets the heading-correction multiplier for the next move
// only.
func (d *Drive) WithCorrection(multiplier float64) *Drive {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.pending.correction = &multiplier
	return d
}

// WithGains sets the move gains for the next move only, bypassing the gain
// tables.
func (d *Drive) WithGains(kP, kI, kD, minSpeed float64) *Drive {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.pending.moveGains = &pid.Gains{KP: kP, KI: kI, KD: kD, MinSpeed: minSpeed}
	return d
}

// WithTurnGains sets the turn gains for the next turn only.
func (d *Drive) WithTurnGains(kP, kI, kD, minSpeed float64) *Drive {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.pending.turnGains = &pid.Gains{KP: kP, KI: kI, KD: kD, MinSpeed: minSpeed}
	return d
}

func (d *Drive) takeMoveOverrides() (correction float64, gains *pid.Gains) {
	d.lock.Lock()
	defer d.lock.Unlock()
	correction = d.cfg.CorrectionMultiplier
	if d.pending.correction != nil {
		correction = *d.pending.correction
	}
	gains = d.pending.moveGains
	d.pending.correction = nil
	d.pending.moveGains = nil
	return
}

func (d *Drive) takeTurnOverrides() *pid.Gains {
	d.lock.Lock()
	defer d.lock.Unlock()
	g := d.pending.turnGains
	d.pending.turnGains = nil
	return g
}

func (d *Drive) MoveComplete() bool {
	return d.moves.complete.Load()
}

func (d *Drive) TurnComplete() bool {
	return d.turns.complete.Load()
}

// WaitForComplete waits for the most recent move to finish and returns its
// outcome.
func (d *Drive) WaitForComplete(ctx context.Context) error {
	return d.moves.wait(ctx)
}

// WaitForTurn waits for the most recent turn to finish.
func (d *Drive) WaitForTurn(ctx context.Context) error {
	return d.turns.wait(ctx)
}

// DrivePower sets the power on each side directly, clamped to the motor
// range.
func (d *Drive) DrivePower(left, right float64) {
	d.hw.SetPower(hardware.SideLeft, hardware.ClampPower(left))
	d.hw.SetPower(hardware.SideRight, hardware.ClampPower(right))
}

// TimedDrive runs the motors open loop for the given time and then stops
// them.
func (d *Drive) TimedDrive(ctx context.Context, duration time.Duration, left, right float64) error {
	d.DrivePower(left, right)
	defer d.DrivePower(0, 0)
	return sleep(ctx, duration)
}

func (d *Drive) setBrakeMode(left, right hardware.BrakeMode) {
	d.hw.SetBrakeMode(hardware.SideLeft, left)
	d.hw.SetBrakeMode(hardware.SideRight, right)
}

// Brake makes both sides hold position when unpowered.
func (d *Drive) Brake() {
	d.setBrakeMode(hardware.BrakeHold, hardware.BrakeHold)
}

func (d *Drive) BrakeLeftSide() {
	d.hw.SetBrakeMode(hardware.SideLeft, hardware.BrakeHold)
}

func (d *Drive) BrakeRightSide() {
	d.hw.SetBrakeMode(hardware.SideRight, hardware.BrakeHold)
}

// Coast lets both sides roll freely when unpowered.
func (d *Drive) Coast() {
	d.setBrakeMode(hardware.BrakeCoast, hardware.BrakeCoast)
}

// Stop cancels any move and turn in flight and cuts the power.
func (d *Drive) Stop() {
	d.moves.cancel()
	d.turns.cancel()
	d.DrivePower(0, 0)
	monitoring.Logf("Drive: stopped")
}
