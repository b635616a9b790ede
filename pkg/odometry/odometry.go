// Package odometry tracks the robot's position and heading by dead reckoning
// from three tracking wheels: two parallel wheels either side of the centre
// of rotation and one perpendicular wheel behind it.
//
// Headings are in degrees, clockwise-positive, and are never wrapped.  A
// heading of 0 faces +Y and a heading of 90 faces +X.
package odometry

import (
	"context"
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/tigerbot-team/pigpen/pkg/chassis"
	"github.com/tigerbot-team/pigpen/pkg/hardware"
	"github.com/tigerbot-team/pigpen/pkg/monitoring"
)

const DefaultPeriod = 10 * time.Millisecond

type Pose struct {
	X, Y         float64
	Theta        float64
	ThetaRadians float64
}

type Tracker struct {
	sensors hardware.TrackingSensors
	geom    chassis.Geometry
	period  time.Duration

	lock     sync.Mutex
	position r2.Vec
	heading  float64 // degrees
	last     hardware.Ticks
	haveLast bool

	cancel   context.CancelFunc
	loopDone sync.WaitGroup
}

func New(sensors hardware.TrackingSensors, geom chassis.Geometry, period time.Duration) *Tracker {
	if period <= 0 {
		period = DefaultPeriod
	}
	return &Tracker{
		sensors: sensors,
		geom:    geom,
		period:  period,
	}
}

// Start launches the periodic update loop.  If reset is true the pose is
// zeroed first.  Starting an already running tracker restarts its loop.
func (t *Tracker) Start(ctx context.Context, reset bool) {
	t.Stop()
	if reset {
		t.Reset()
	}
	t.lock.Lock()
	// Re-read the baseline so that ticks accumulated while stopped are ignored.
	t.haveLast = false
	t.lock.Unlock()
	t.Update()

	var loopCtx context.Context
	loopCtx, t.cancel = context.WithCancel(ctx)
	t.loopDone.Add(1)
	go t.Loop(loopCtx)
}

func (t *Tracker) Stop() {
	if t.cancel == nil {
		return
	}
	t.cancel()
	t.loopDone.Wait()
	t.cancel = nil
}

func (t *Tracker) Loop(ctx context.Context) {
	defer t.loopDone.Done()
	defer monitoring.Logf("Odometry: loop exited")

	ticker := time.NewTicker(t.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Update()
		}
	}
}

// Update reads the tracking wheels once and integrates the motion since the
// previous reading.
func (t *Tracker) Update() {
	var now hardware.Ticks
	for w := hardware.Wheel(0); w < hardware.NumWheels; w++ {
		now[w] = int32(t.sensors.ReadTicks(w))
	}

	t.lock.Lock()
	defer t.lock.Unlock()

	if !t.haveLast {
		t.last = now
		t.haveLast = true
		return
	}

	dL := t.geom.TicksToDistance(float64(now[hardware.WheelLeft] - t.last[hardware.WheelLeft]))
	dR := t.geom.TicksToDistance(float64(now[hardware.WheelRight] - t.last[hardware.WheelRight]))
	dS := t.geom.TicksToDistance(float64(now[hardware.WheelRear] - t.last[hardware.WheelRear]))
	t.last = now

	dTheta := (dL - dR) / t.geom.TrackWidth()

	// The rear wheel counts up as the tail of the robot moves left, which it
	// also does when the robot spins clockwise on the spot; remove that part.
	forward := dR + dTheta*t.geom.RightOffset
	lateral := dS - dTheta*t.geom.RearOffset

	// Motion of the centre of rotation in the robot's own frame: Y is
	// forwards, X is to the right.
	local := r2.Vec{X: -lateral, Y: forward}

	// Headings are clockwise, rotations in r2 are anti-clockwise.
	midTheta := radians(t.heading) + dTheta/2
	t.position = r2.Add(t.position, r2.Rotate(local, -midTheta, r2.Vec{}))
	t.heading += dTheta * 180 / math.Pi
}

func radians(degrees float64) float64 {
	return degrees * math.Pi / 180
}

func (t *Tracker) Pose() Pose {
	t.lock.Lock()
	defer t.lock.Unlock()
	return Pose{
		X:            t.position.X,
		Y:            t.position.Y,
		Theta:        t.heading,
		ThetaRadians: radians(t.heading),
	}
}

func (t *Tracker) X() float64 {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.position.X
}

func (t *Tracker) Y() float64 {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.position.Y
}

// Theta returns the heading in degrees.
func (t *Tracker) Theta() float64 {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.heading
}

func (t *Tracker) ThetaRadians() float64 {
	t.lock.Lock()
	defer t.lock.Unlock()
	return radians(t.heading)
}

// Reset zeroes the pose.  The encoder baseline is kept, so only motion after
// the reset is counted.
func (t *Tracker) Reset() {
	t.SetCoordinates(0, 0, 0)
}

func (t *Tracker) SetTheta(degrees float64) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.heading = degrees
}

func (t *Tracker) SetCoordinates(x, y, degrees float64) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.position = r2.Vec{X: x, Y: y}
	t.heading = degrees
}
