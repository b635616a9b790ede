package hardware

import "fmt"

// MaxPower is the largest power magnitude accepted by the drive motors.
const MaxPower = 127

type Side int

const (
	SideLeft Side = iota
	SideRight
)

func (s Side) String() string {
	switch s {
	case SideLeft:
		return "left"
	case SideRight:
		return "right"
	}
	return fmt.Sprintf("side(%d)", int(s))
}

type BrakeMode int

const (
	BrakeCoast BrakeMode = iota
	BrakeHold
)

func (m BrakeMode) String() string {
	if m == BrakeHold {
		return "hold"
	}
	return "coast"
}

// Wheel identifies one of the three free-spinning tracking wheels.
type Wheel int

const (
	WheelLeft Wheel = iota
	WheelRight
	WheelRear

	NumWheels = 3
)

func (w Wheel) String() string {
	switch w {
	case WheelLeft:
		return "left"
	case WheelRight:
		return "right"
	case WheelRear:
		return "rear"
	}
	return fmt.Sprintf("wheel(%d)", int(w))
}

type Drivetrain interface {
	// SetPower commands one side of the drive; power is clamped to ±MaxPower.
	SetPower(side Side, power int)
	SetBrakeMode(side Side, mode BrakeMode)
}

type TrackingSensors interface {
	// ReadTicks returns the accumulated encoder count of a tracking wheel.
	ReadTicks(w Wheel) int
}

type Interface interface {
	Drivetrain
	TrackingSensors
}

// Ticks is a snapshot of all three tracking wheels.
type Ticks [NumWheels]int32

// Bus is the low-level link to a drive coprocessor.  Unlike Interface, its
// operations can fail; Hardware hides the failures from the control loops.
type Bus interface {
	SetMotorPowers(left, right int8) error
	SetBrakeModes(left, right BrakeMode) error
	ReadEncoders() (Ticks, error)
	Close() error
}

// ClampPower rounds a controller output to the nearest valid motor power.
func ClampPower(value float64) int {
	if value >= MaxPower {
		return MaxPower
	}
	if value <= -MaxPower {
		return -MaxPower
	}
	if value < 0 {
		return int(value - 0.5)
	}
	return int(value + 0.5)
}
