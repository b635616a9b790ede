package config

import (
	"io/ioutil"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerbot-team/pigpen/pkg/drive"
	"github.com/tigerbot-team/pigpen/pkg/pid"
)

func TestDefaultsMatchDrive(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, drive.DefaultConfig(), cfg.Drive())
	assert.Equal(t, 2.75, cfg.Geometry.WheelDiameter)
	assert.Equal(t, cfg.Geometry, cfg.Sim().Geometry)
}

const sample = `
geometry:
  ticks_per_revolution: 8192
control:
  control_period: 5ms
  move_timeout: 0s
  debug: true
gains:
  move: {kp: 0.2, min_speed: 20}
  tables:
    back_to_x:
      standard: {kp: 4, min_speed: 25}
hardware:
  backend: i2c
  encoders:
    left: {a: GPIO17, b: GPIO27}
    right: {a: GPIO22, b: GPIO23, reversed: true}
    rear: {a: GPIO5, b: GPIO6}
simulator:
  max_speed: 40
`

func TestParseOverlaysDefaults(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, 8192, cfg.Geometry.TicksPerRevolution)
	assert.Equal(t, 5.95, cfg.Geometry.LeftOffset)
	assert.Equal(t, 5*time.Millisecond, cfg.Control.ControlPeriod)
	assert.Equal(t, time.Duration(0), cfg.Control.MoveTimeout)
	assert.Equal(t, 8*time.Second, cfg.Control.TurnTimeout)
	assert.True(t, cfg.Drive().Debug)

	assert.Equal(t, pid.Gains{KP: 0.2, MinSpeed: 20}, cfg.Gains.Move)
	assert.Equal(t, pid.Gains{KP: 4, MinSpeed: 25}, *cfg.Gains.Tables.BackToX.Standard)
	assert.Equal(t, 6.0, cfg.Gains.Tables.BackToX.Fluid.KP)

	require.NotNil(t, cfg.Hardware.Encoders)
	assert.Equal(t, "GPIO22", cfg.Hardware.Encoders.Right.A)
	assert.True(t, cfg.Hardware.Encoders.Right.Reversed)
	assert.Equal(t, BackendI2C, cfg.Hardware.Backend)
	assert.Equal(t, "/dev/i2c-1", cfg.Hardware.I2CDevice)

	assert.Equal(t, 40.0, cfg.Sim().MaxSpeed)
	assert.Equal(t, 8192, cfg.Sim().Geometry.TicksPerRevolution)
}

func TestParseRejectsBadInput(t *testing.T) {
	for name, doc := range map[string]string{
		"unknown key":     "control: {bogus: 1}",
		"bad backend":     "hardware: {backend: can}",
		"zero wheel":      "geometry: {wheel_diameter: 0}",
		"bad duration":    "control: {control_period: soon}",
		"negative period": "control: {odometry_period: -1s}",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "robot.yaml")
	require.NoError(t, ioutil.WriteFile(path, []byte("hardware: {backend: dummy}\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, BackendDummy, cfg.Hardware.Backend)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
