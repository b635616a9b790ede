// Package simulator models a tank-drive robot with three tracking wheels.  It
// satisfies hardware.Interface so the drive and odometry code can run on a
// desk.
package simulator

import (
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/tigerbot-team/pigpen/pkg/chassis"
	"github.com/tigerbot-team/pigpen/pkg/hardware"
)

const maxStep = time.Millisecond

type Config struct {
	Geometry chassis.Geometry `yaml:"-"`

	// Wheel speed at full power, inches per second.
	MaxSpeed float64 `yaml:"max_speed"`
	// Distance between the driven wheels on each side.
	TrackWidth float64 `yaml:"track_width"`
	// Time constant of the motors' response to a change in power.  Zero
	// means the wheels reach the commanded speed immediately.
	Lag time.Duration `yaml:"lag"`
}

func DefaultConfig() Config {
	return Config{
		Geometry:   chassis.DefaultGeometry(),
		MaxSpeed:   50,
		TrackWidth: 12.5,
	}
}

type Robot struct {
	cfg Config

	lock     sync.Mutex
	manual   bool
	lastStep time.Time

	power   [2]int
	brake   [2]hardware.BrakeMode
	speed   [2]float64
	stalled bool

	position r2.Vec
	heading  float64 // degrees, clockwise
	ticks    [hardware.NumWheels]float64
}

// New returns a robot that moves in real time.
func New(cfg Config) *Robot {
	return &Robot{cfg: cfg, lastStep: time.Now()}
}

// NewManual returns a robot that only moves when Step is called.
func NewManual(cfg Config) *Robot {
	return &Robot{cfg: cfg, manual: true}
}

var _ hardware.Interface = (*Robot)(nil)

func (r *Robot) SetPower(side hardware.Side, power int) {
	if power > hardware.MaxPower {
		power = hardware.MaxPower
	} else if power < -hardware.MaxPower {
		power = -hardware.MaxPower
	}
	r.lock.Lock()
	defer r.lock.Unlock()
	r.catchUp()
	r.power[side] = power
}

func (r *Robot) SetBrakeMode(side hardware.Side, mode hardware.BrakeMode) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.catchUp()
	r.brake[side] = mode
}

func (r *Robot) ReadTicks(w hardware.Wheel) int {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.catchUp()
	return int(math.Round(r.ticks[w]))
}

// Powers returns the last commanded power on each side.
func (r *Robot) Powers() (left, right int) {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.power[hardware.SideLeft], r.power[hardware.SideRight]
}

func (r *Robot) BrakeModes() (left, right hardware.BrakeMode) {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.brake[hardware.SideLeft], r.brake[hardware.SideRight]
}

// TruePose returns the robot's actual position and heading in degrees.
func (r *Robot) TruePose() (x, y, heading float64) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.catchUp()
	return r.position.X, r.position.Y, r.heading
}

// SetStalled pins the robot in place, as if it had driven into a wall.
func (r *Robot) SetStalled(stalled bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.catchUp()
	r.stalled = stalled
}

// Step advances the simulation by dt.
func (r *Robot) Step(dt time.Duration) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.step(dt)
}

func (r *Robot) catchUp() {
	if r.manual {
		return
	}
	now := time.Now()
	dt := now.Sub(r.lastStep)
	r.lastStep = now
	r.step(dt)
}

func (r *Robot) step(dt time.Duration) {
	for dt > 0 {
		d := dt
		if d > maxStep {
			d = maxStep
		}
		dt -= d
		r.integrate(d.Seconds())
	}
}

func (r *Robot) integrate(dt float64) {
	for side := range r.speed {
		target := float64(r.power[side]) / hardware.MaxPower * r.cfg.MaxSpeed
		switch {
		case r.stalled:
			r.speed[side] = 0
		case r.power[side] == 0 && r.brake[side] == hardware.BrakeHold:
			r.speed[side] = 0
		case r.cfg.Lag <= 0:
			r.speed[side] = target
		default:
			alpha := 1 - math.Exp(-dt/r.cfg.Lag.Seconds())
			r.speed[side] += (target - r.speed[side]) * alpha
		}
	}

	vl, vr := r.speed[hardware.SideLeft], r.speed[hardware.SideRight]
	distance := (vl + vr) / 2 * dt
	phi := (vl - vr) / r.cfg.TrackWidth * dt

	mid := r.heading*math.Pi/180 + phi/2
	r.position = r2.Add(r.position, r2.Rotate(r2.Vec{Y: distance}, -mid, r2.Vec{}))
	r.heading += phi * 180 / math.Pi

	g := r.cfg.Geometry
	r.ticks[hardware.WheelLeft] += g.DistanceToTicks(distance + phi*g.LeftOffset)
	r.ticks[hardware.WheelRight] += g.DistanceToTicks(distance - phi*g.RightOffset)
	r.ticks[hardware.WheelRear] += g.DistanceToTicks(phi * g.RearOffset)
}
