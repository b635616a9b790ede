package drivebus

import "github.com/tigerbot-team/pigpen/pkg/hardware"

// counterTracker widens the board's wrapping 16-bit counters.  The first
// reading is the baseline; after that each change is taken as the shortest
// way round, so the counters must be polled well before they can wrap.
type counterTracker struct {
	doneFirstPoll bool
	last          [hardware.NumWheels]int16
	total         hardware.Ticks
}

func (c *counterTracker) update(raw [hardware.NumWheels]int16) {
	if c.doneFirstPoll {
		for w, v := range raw {
			delta := v - c.last[w]
			c.total[w] += int32(delta)
		}
	}
	c.last = raw
	c.doneFirstPoll = true
}
