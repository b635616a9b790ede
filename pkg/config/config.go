// Package config loads the robot's YAML configuration on top of built-in
// defaults.
package config

import (
	"io/ioutil"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/tigerbot-team/pigpen/pkg/chassis"
	"github.com/tigerbot-team/pigpen/pkg/drive"
	"github.com/tigerbot-team/pigpen/pkg/simulator"
)

const (
	BackendSim    = "sim"
	BackendI2C    = "i2c"
	BackendSerial = "serial"
	BackendDummy  = "dummy"
)

type Config struct {
	Geometry  chassis.Geometry `yaml:"geometry"`
	Control   Control          `yaml:"control"`
	Gains     drive.Gains      `yaml:"gains"`
	Hardware  Hardware         `yaml:"hardware"`
	Simulator simulator.Config `yaml:"simulator"`
}

type Control struct {
	OdometryPeriod       time.Duration `yaml:"odometry_period"`
	ControlPeriod        time.Duration `yaml:"control_period"`
	RampStep             float64       `yaml:"ramp_step"`
	CorrectionMultiplier float64       `yaml:"correction_multiplier"`
	MoveTimeout          time.Duration `yaml:"move_timeout"`
	TurnTimeout          time.Duration `yaml:"turn_timeout"`
	Debug                bool          `yaml:"debug"`
}

type EncoderPins struct {
	A        string `yaml:"a"`
	B        string `yaml:"b"`
	Reversed bool   `yaml:"reversed"`
}

// Encoders names the GPIO pins of the tracking wheels.  When absent the
// drive board's own counters are used.
type Encoders struct {
	Left  EncoderPins `yaml:"left"`
	Right EncoderPins `yaml:"right"`
	Rear  EncoderPins `yaml:"rear"`
}

type Hardware struct {
	Backend      string    `yaml:"backend"`
	I2CDevice    string    `yaml:"i2c_device"`
	I2CAddress   int       `yaml:"i2c_address"`
	SerialDevice string    `yaml:"serial_device"`
	SerialBaud   int       `yaml:"serial_baud"`
	Encoders     *Encoders `yaml:"encoders,omitempty"`
}

func Default() Config {
	d := drive.DefaultConfig()
	return Config{
		Geometry: chassis.DefaultGeometry(),
		Control: Control{
			OdometryPeriod:       10 * time.Millisecond,
			ControlPeriod:        d.ControlPeriod,
			RampStep:             d.RampStep,
			CorrectionMultiplier: d.CorrectionMultiplier,
			MoveTimeout:          d.MoveTimeout,
			TurnTimeout:          d.TurnTimeout,
		},
		Gains: d.Gains,
		Hardware: Hardware{
			Backend:      BackendSim,
			I2CDevice:    "/dev/i2c-1",
			I2CAddress:   0x42,
			SerialDevice: "/dev/ttyACM0",
			SerialBaud:   115200,
		},
		Simulator: simulator.DefaultConfig(),
	}
}

// Load reads the file at path over the defaults.  Unknown keys are errors.
func Load(path string) (Config, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "failed to read config")
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, errors.Wrapf(err, "bad config in %s", path)
	}
	return cfg, nil
}

func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "failed to parse YAML")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	g := c.Geometry
	if g.WheelDiameter <= 0 {
		return errors.Errorf("wheel diameter must be positive, not %v", g.WheelDiameter)
	}
	if g.TicksPerRevolution <= 0 {
		return errors.Errorf("ticks per revolution must be positive, not %v", g.TicksPerRevolution)
	}
	if g.LeftOffset+g.RightOffset <= 0 {
		return errors.New("left and right tracking wheel offsets must not cancel out")
	}
	if c.Control.OdometryPeriod <= 0 {
		return errors.New("odometry period must be positive")
	}
	if c.Control.MoveTimeout < 0 || c.Control.TurnTimeout < 0 {
		return errors.New("timeouts must not be negative")
	}
	switch c.Hardware.Backend {
	case BackendSim, BackendI2C, BackendSerial, BackendDummy:
	default:
		return errors.Errorf("unknown hardware backend %q", c.Hardware.Backend)
	}
	return nil
}

// Drive returns the motion executor's settings.
func (c Config) Drive() drive.Config {
	return drive.Config{
		ControlPeriod:        c.Control.ControlPeriod,
		RampStep:             c.Control.RampStep,
		CorrectionMultiplier: c.Control.CorrectionMultiplier,
		MoveTimeout:          c.Control.MoveTimeout,
		TurnTimeout:          c.Control.TurnTimeout,
		Debug:                c.Control.Debug,
		Gains:                c.Gains,
	}
}

// Sim returns the simulator settings for this robot's geometry.
func (c Config) Sim() simulator.Config {
	s := c.Simulator
	s.Geometry = c.Geometry
	return s
}
