package pid

import "math"

const (
	// Integral is discarded whenever the error is larger than this.
	antiWindupThreshold = 40

	// Below this error, small outputs are passed through rather than being
	// raised to the minimum speed.
	deadBand = 0.5
)

type Gains struct {
	KP       float64 `yaml:"kp"`
	KI       float64 `yaml:"ki"`
	KD       float64 `yaml:"kd"`
	MinSpeed float64 `yaml:"min_speed"`
}

// Controller is a PID loop whose output never falls strictly between zero and
// the minimum speed unless the error is already inside the dead band.  The
// gains given at construction are kept as defaults; overrides are undone by
// ResetGainsToDefaults.
type Controller struct {
	gains    Gains
	defaults Gains

	lastError float64
	integral  float64
}

func New(kP, kI, kD, minSpeed float64) *Controller {
	g := Gains{KP: kP, KI: kI, KD: kD, MinSpeed: minSpeed}
	return &Controller{gains: g, defaults: g}
}

// NewP returns a proportional-only controller.
func NewP(kP, minSpeed float64) *Controller {
	return New(kP, 0, 0, minSpeed)
}

func FromGains(g Gains) *Controller {
	return New(g.KP, g.KI, g.KD, g.MinSpeed)
}

// Output returns the power to apply to move current towards target.
func (c *Controller) Output(target, current float64) float64 {
	// The previous error is reset on every call, so the derivative term
	// always equals the current error.
	// TODO: confirm with the gain owners whether a true rate term was intended.
	prevError := 0.0

	err := target - current
	c.lastError = err

	c.integral += err
	if err == 0 || math.Abs(err) > antiWindupThreshold {
		c.integral = 0
	}

	derivative := err - prevError

	power := err*c.gains.KP + derivative*c.gains.KD + c.integral*c.gains.KI

	minSpeed := c.gains.MinSpeed
	if math.Abs(err) < deadBand && power >= -minSpeed && power <= minSpeed {
		return power
	}
	if power >= 0 && power <= minSpeed {
		return minSpeed
	}
	if power < 0 && power >= -minSpeed {
		return -minSpeed
	}
	return power
}

// SetGains overrides the current gains without touching the defaults.
func (c *Controller) SetGains(kP, kI, kD, minSpeed float64) {
	c.gains = Gains{KP: kP, KI: kI, KD: kD, MinSpeed: minSpeed}
}

func (c *Controller) SetGainSet(g Gains) {
	c.gains = g
}

func (c *Controller) ResetGainsToDefaults() {
	c.gains = c.defaults
}

func (c *Controller) GainsAreAtDefaults() bool {
	return c.gains == c.defaults
}

func (c *Controller) Gains() Gains {
	return c.gains
}

func (c *Controller) Defaults() Gains {
	return c.defaults
}

// Error returns the error computed by the most recent call to Output.
func (c *Controller) Error() float64 {
	return c.lastError
}

// Reset clears the accumulated integral and the last error.
func (c *Controller) Reset() {
	c.integral = 0
	c.lastError = 0
}
