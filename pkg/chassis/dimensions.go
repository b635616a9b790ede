package chassis

import "math"

// Tracking wheel geometry, in inches.  Offsets are measured from the centre of
// rotation to the contact patch of each tracking wheel.
const (
	WheelDiameterIn float64 = 2.75
	LeftOffsetIn            = 5.95
	RightOffsetIn           = 5.95
	RearOffsetIn            = 5.75

	TicksPerRevolution = 360
)

type Geometry struct {
	WheelDiameter      float64 `yaml:"wheel_diameter"`
	LeftOffset         float64 `yaml:"left_offset"`
	RightOffset        float64 `yaml:"right_offset"`
	RearOffset         float64 `yaml:"rear_offset"`
	TicksPerRevolution int     `yaml:"ticks_per_revolution"`
}

func DefaultGeometry() Geometry {
	return Geometry{
		WheelDiameter:      WheelDiameterIn,
		LeftOffset:         LeftOffsetIn,
		RightOffset:        RightOffsetIn,
		RearOffset:         RearOffsetIn,
		TicksPerRevolution: TicksPerRevolution,
	}
}

// WheelCircumference is the linear distance covered by one revolution of a
// tracking wheel.
func (g Geometry) WheelCircumference() float64 {
	return g.WheelDiameter * math.Pi
}

// TicksToDistance converts an encoder tick count (or delta) to linear distance.
func (g Geometry) TicksToDistance(ticks float64) float64 {
	return ticks * g.WheelCircumference() / float64(g.TicksPerRevolution)
}

// DistanceToTicks is the inverse of TicksToDistance.
func (g Geometry) DistanceToTicks(distance float64) float64 {
	return distance * float64(g.TicksPerRevolution) / g.WheelCircumference()
}

// TrackWidth is the separation of the two parallel tracking wheels.
func (g Geometry) TrackWidth() float64 {
	return g.LeftOffset + g.RightOffset
}
