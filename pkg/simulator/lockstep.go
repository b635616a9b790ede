package simulator

import (
	"sync"
	"time"

	"github.com/tigerbot-team/pigpen/pkg/hardware"
)

// Lockstep is a manual robot that advances by a fixed step every time the
// right side power is set.  The drive sets both sides once per control cycle,
// so each cycle sees exactly one step of motion however the goroutines are
// scheduled.
type Lockstep struct {
	*Robot

	step  time.Duration
	lock  sync.Mutex
	after func()
}

func NewLockstep(cfg Config, step time.Duration) *Lockstep {
	return &Lockstep{Robot: NewManual(cfg), step: step}
}

// After registers a function to run following every step, typically an
// odometry update.
func (l *Lockstep) After(f func()) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.after = f
}

func (l *Lockstep) SetPower(side hardware.Side, power int) {
	l.Robot.SetPower(side, power)
	if side != hardware.SideRight {
		return
	}
	l.lock.Lock()
	defer l.lock.Unlock()
	l.Robot.Step(l.step)
	if l.after != nil {
		l.after()
	}
}

var _ hardware.Interface = (*Lockstep)(nil)
