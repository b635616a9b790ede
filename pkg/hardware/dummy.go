package hardware

import (
	"sync"

	"github.com/tigerbot-team/pigpen/pkg/monitoring"
)

// Dummy logs every command and reports encoders that never move.
type Dummy struct {
	lock  sync.Mutex
	power [2]int
	brake [2]BrakeMode
}

func NewDummy() *Dummy {
	return &Dummy{}
}

func (d *Dummy) SetPower(side Side, power int) {
	d.lock.Lock()
	changed := d.power[side] != power
	d.power[side] = power
	d.lock.Unlock()
	if changed {
		monitoring.Logf("DHW: SetPower side=%v power=%v", side, power)
	}
}

func (d *Dummy) SetBrakeMode(side Side, mode BrakeMode) {
	d.lock.Lock()
	d.brake[side] = mode
	d.lock.Unlock()
	monitoring.Logf("DHW: SetBrakeMode side=%v mode=%v", side, mode)
}

func (d *Dummy) ReadTicks(w Wheel) int {
	return 0
}

// DummyBus is a Bus that accepts everything and reads back zero.
func DummyBus() (Bus, error) {
	return &dummyBus{}, nil
}

type dummyBus struct{}

func (b *dummyBus) SetMotorPowers(left, right int8) error {
	monitoring.Logf("DHW: bus motor powers l=%v r=%v", left, right)
	return nil
}

func (b *dummyBus) SetBrakeModes(left, right BrakeMode) error {
	monitoring.Logf("DHW: bus brake modes l=%v r=%v", left, right)
	return nil
}

func (b *dummyBus) ReadEncoders() (Ticks, error) {
	return Ticks{}, nil
}

func (b *dummyBus) Close() error {
	return nil
}

var (
	_ Interface = (*Dummy)(nil)
	_ Opener    = DummyBus
)
