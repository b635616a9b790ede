package drive

import (
	"time"

	"github.com/tigerbot-team/pigpen/pkg/pid"
)

// GainTable holds the gains installed by a move when the caller has not
// overridden them.  A nil Standard keeps the controller's defaults.
type GainTable struct {
	Fluid    pid.Gains  `yaml:"fluid"`
	Standard *pid.Gains `yaml:"standard,omitempty"`
}

type GainTables struct {
	Distance GainTable `yaml:"distance"`
	ToX      GainTable `yaml:"to_x"`
	ToY      GainTable `yaml:"to_y"`
	BackToX  GainTable `yaml:"back_to_x"`
	BackToY  GainTable `yaml:"back_to_y"`
}

func (t GainTables) For(m MoveType) GainTable {
	switch m {
	case MoveToXCoord:
		return t.ToX
	case MoveToYCoord:
		return t.ToY
	case MoveBackToXCoord:
		return t.BackToX
	case MoveBackToYCoord:
		return t.BackToY
	}
	return t.Distance
}

type Gains struct {
	Move           pid.Gains  `yaml:"move"`
	Turn           pid.Gains  `yaml:"turn"`
	SweepThreshold pid.Gains  `yaml:"sweep_threshold"`
	Tables         GainTables `yaml:"tables"`
}

type Config struct {
	// Pause between control cycles when a move has no acceleration step,
	// and between checks of a plain turn.
	ControlPeriod time.Duration `yaml:"control_period"`
	// Largest increase in commanded power per cycle while a move with an
	// acceleration step is speeding up.
	RampStep float64 `yaml:"ramp_step"`
	// Share of the speed given to the trailing side when a move is well off
	// its heading.
	CorrectionMultiplier float64 `yaml:"correction_multiplier"`
	// Zero disables the timeout.
	MoveTimeout time.Duration `yaml:"move_timeout"`
	TurnTimeout time.Duration `yaml:"turn_timeout"`
	// Log every control cycle.
	Debug bool `yaml:"debug"`

	Gains Gains `yaml:"gains"`
}

func standard(kP, kI, kD, minSpeed float64) *pid.Gains {
	return &pid.Gains{KP: kP, KI: kI, KD: kD, MinSpeed: minSpeed}
}

func DefaultConfig() Config {
	return Config{
		ControlPeriod:        10 * time.Millisecond,
		RampStep:             4,
		CorrectionMultiplier: 0.2,
		MoveTimeout:          15 * time.Second,
		TurnTimeout:          8 * time.Second,
		Gains: Gains{
			Move:           pid.Gains{KP: 0.15, MinSpeed: 15},
			Turn:           pid.Gains{KP: 1.25, MinSpeed: 15},
			SweepThreshold: pid.Gains{KP: 1.75, MinSpeed: 80},
			Tables: GainTables{
				Distance: GainTable{Fluid: pid.Gains{KP: 0.15, MinSpeed: 75}},
				ToX:      GainTable{Fluid: pid.Gains{KP: 6, MinSpeed: 75}, Standard: standard(6, 0, 0, 30)},
				ToY:      GainTable{Fluid: pid.Gains{KP: 6, MinSpeed: 75}, Standard: standard(6, 0, 0, 30)},
				BackToX:  GainTable{Fluid: pid.Gains{KP: 6, MinSpeed: 75}, Standard: standard(5, 0, 0, 30)},
				BackToY:  GainTable{Fluid: pid.Gains{KP: 6, MinSpeed: 75}, Standard: standard(6, 0, 0, 30)},
			},
		},
	}
}
