// Package robot puts the hardware backend, odometry and drive together as
// described by the configuration.
package robot

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/tigerbot-team/pigpen/pkg/config"
	"github.com/tigerbot-team/pigpen/pkg/drive"
	"github.com/tigerbot-team/pigpen/pkg/drivebus"
	"github.com/tigerbot-team/pigpen/pkg/hardware"
	"github.com/tigerbot-team/pigpen/pkg/monitoring"
	"github.com/tigerbot-team/pigpen/pkg/odometry"
	"github.com/tigerbot-team/pigpen/pkg/quadrature"
	"github.com/tigerbot-team/pigpen/pkg/serialbus"
	"github.com/tigerbot-team/pigpen/pkg/simulator"
)

// The drive board stops the motors if the bus loop goes quiet for this long.
const boardWatchdog = 500 * time.Millisecond

type Robot struct {
	HW      hardware.Interface
	Tracker *odometry.Tracker
	Drive   *drive.Drive
	// Only set for the sim backend.
	Sim *simulator.Robot

	cancel   context.CancelFunc
	shutdown []func()
}

// Build opens the configured backend and starts odometry with the pose at
// the origin.
func Build(ctx context.Context, cfg config.Config) (*Robot, error) {
	ctx, cancel := context.WithCancel(ctx)
	r := &Robot{cancel: cancel}

	var sensors hardware.TrackingSensors
	if enc := cfg.Hardware.Encoders; enc != nil && cfg.Hardware.Backend != config.BackendSim {
		q, err := quadrature.Open(pins(enc.Left), pins(enc.Right), pins(enc.Rear))
		if err != nil {
			cancel()
			return nil, err
		}
		q.Start(ctx)
		r.shutdown = append(r.shutdown, q.Wait)
		sensors = q
	}

	var open hardware.Opener
	switch cfg.Hardware.Backend {
	case config.BackendSim:
		r.Sim = simulator.New(cfg.Sim())
		r.HW = r.Sim
	case config.BackendDummy:
		r.HW = hardware.NewDummy()
	case config.BackendI2C:
		open = drivebus.Opener(cfg.Hardware.I2CDevice, cfg.Hardware.I2CAddress, boardWatchdog)
	case config.BackendSerial:
		open = serialbus.Opener(cfg.Hardware.SerialDevice, cfg.Hardware.SerialBaud)
	default:
		cancel()
		return nil, errors.Errorf("unknown hardware backend %q", cfg.Hardware.Backend)
	}
	if open != nil {
		var hw *hardware.Hardware
		if sensors != nil {
			hw = hardware.NewWithSensors(open, sensors)
		} else {
			hw = hardware.New(open)
		}
		hw.Start(ctx)
		r.shutdown = append([]func(){hw.Shutdown}, r.shutdown...)
		r.HW = hw
	}

	r.Tracker = odometry.New(r.HW, cfg.Geometry, cfg.Control.OdometryPeriod)
	r.Tracker.Start(ctx, true)
	r.Drive = drive.New(r.HW, r.Tracker, cfg.Geometry, cfg.Drive())

	monitoring.Logf("Robot: %s backend ready", cfg.Hardware.Backend)
	return r, nil
}

func pins(p config.EncoderPins) quadrature.Pins {
	return quadrature.Pins{A: p.A, B: p.B, Reversed: p.Reversed}
}

// Close stops any motion and shuts the backend down.
func (r *Robot) Close() {
	r.Drive.Stop()
	r.Tracker.Stop()
	r.cancel()
	for _, f := range r.shutdown {
		f()
	}
	monitoring.Logf("Robot: shut down")
}
