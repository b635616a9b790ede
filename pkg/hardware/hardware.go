package hardware

import (
	"context"
	"sync"
	"time"

	"github.com/tigerbot-team/pigpen/pkg/monitoring"
)

const LoopInterval = 5 * time.Millisecond

// Opener (re)opens the bus to the drive coprocessor.
type Opener func() (Bus, error)

// Hardware caches the desired motor outputs and the latest encoder readings
// and exchanges them with the bus from a background loop.  If the bus fails,
// the loop reopens it and re-sends the desired values.
type Hardware struct {
	open Opener

	// Optional separate source for the tracking wheels, e.g. GPIO encoders.
	sensors TrackingSensors

	lock sync.Mutex

	// Desired values.  Stored off in case we need to re-initialise the hardware.
	power       [2]int8
	brake       [2]BrakeMode
	ticks       Ticks
	busFailures int

	cancel   context.CancelFunc
	loopDone sync.WaitGroup
}

func New(open Opener) *Hardware {
	return &Hardware{open: open}
}

// NewWithSensors is like New but reads the tracking wheels from sensors
// instead of the coprocessor's encoder counters.
func NewWithSensors(open Opener, sensors TrackingSensors) *Hardware {
	return &Hardware{open: open, sensors: sensors}
}

var _ Interface = (*Hardware)(nil)

// Start runs the bus loop and returns once the first exchange has been
// attempted.
func (h *Hardware) Start(ctx context.Context) {
	ctx, h.cancel = context.WithCancel(ctx)
	var initDone sync.WaitGroup
	initDone.Add(1)
	h.loopDone.Add(1)
	go h.Loop(ctx, &initDone)
	initDone.Wait()
}

func (h *Hardware) SetPower(side Side, power int) {
	if power > MaxPower {
		power = MaxPower
	} else if power < -MaxPower {
		power = -MaxPower
	}
	h.lock.Lock()
	h.power[side] = int8(power)
	h.lock.Unlock()
}

func (h *Hardware) SetBrakeMode(side Side, mode BrakeMode) {
	h.lock.Lock()
	h.brake[side] = mode
	h.lock.Unlock()
}

func (h *Hardware) ReadTicks(w Wheel) int {
	if h.sensors != nil {
		return h.sensors.ReadTicks(w)
	}
	h.lock.Lock()
	defer h.lock.Unlock()
	return int(h.ticks[w])
}

// Powers returns the most recently requested motor powers.
func (h *Hardware) Powers() (left, right int) {
	h.lock.Lock()
	defer h.lock.Unlock()
	return int(h.power[SideLeft]), int(h.power[SideRight])
}

// BusFailures counts how many times the bus had to be reopened.
func (h *Hardware) BusFailures() int {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.busFailures
}

func (h *Hardware) Loop(ctx context.Context, initDone *sync.WaitGroup) {
	defer h.loopDone.Done()
	monitoring.Logf("HW: bus loop started")
	for {
		h.loopUntilSomethingBadHappens(ctx, initDone)
		if ctx.Err() != nil {
			monitoring.Logf("HW: bus loop exited")
			return
		}
		monitoring.Logf("HW: ===== !!! WARNING !!! BUS FAILURE; TRYING TO RECOVER =====")
		h.lock.Lock()
		h.busFailures++
		h.lock.Unlock()
		initDone = nil
		select {
		case <-ctx.Done():
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func (h *Hardware) loopUntilSomethingBadHappens(ctx context.Context, initDone *sync.WaitGroup) {
	defer func() {
		if initDone != nil {
			initDone.Done()
		}
	}()

	bus, err := h.open()
	if err != nil {
		monitoring.Logf("HW: failed to open bus: %v", err)
		return
	}
	defer func() {
		_ = bus.SetMotorPowers(0, 0)
		_ = bus.Close()
	}()

	ticker := time.NewTicker(LoopInterval)
	defer ticker.Stop()

	// Force the first exchange to send everything.
	lastPower := [2]int8{1, 1}
	lastBrake := [2]BrakeMode{-1, -1}

	for ctx.Err() == nil {
		h.lock.Lock()
		power, brake := h.power, h.brake
		h.lock.Unlock()

		if brake != lastBrake {
			if err := bus.SetBrakeModes(brake[SideLeft], brake[SideRight]); err != nil {
				monitoring.Logf("HW: failed to set brake modes: %v", err)
				return
			}
			lastBrake = brake
		}
		if power != lastPower {
			if err := bus.SetMotorPowers(power[SideLeft], power[SideRight]); err != nil {
				monitoring.Logf("HW: failed to set motor powers: %v", err)
				return
			}
			lastPower = power
		}

		if h.sensors == nil {
			ticks, err := bus.ReadEncoders()
			if err != nil {
				monitoring.Logf("HW: failed to read encoders: %v", err)
				return
			}
			h.lock.Lock()
			h.ticks = ticks
			h.lock.Unlock()
		}

		if initDone != nil {
			initDone.Done()
			initDone = nil
		}

		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}
}

// Shutdown zeroes the motors and stops the bus loop.
func (h *Hardware) Shutdown() {
	h.lock.Lock()
	h.power = [2]int8{}
	h.lock.Unlock()
	if h.cancel != nil {
		monitoring.Logf("HW: Stopping bus loop")
		h.cancel()
		h.loopDone.Wait()
		h.cancel = nil
		monitoring.Logf("HW: Stopped bus loop")
	}
}
