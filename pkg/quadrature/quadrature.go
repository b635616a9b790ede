// Package quadrature counts the tracking wheel encoders directly from GPIO
// pins.
package quadrature

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/host"

	"github.com/tigerbot-team/pigpen/pkg/hardware"
	"github.com/tigerbot-team/pigpen/pkg/monitoring"
)

// Edge waits time out this often so that the loops notice cancellation.
const edgeTimeout = 50 * time.Millisecond

// transitions maps previous<<2|current AB state to a count step.  Invalid
// transitions, where both lines changed at once, count nothing.
var transitions = [16]int8{
	0, +1, -1, 0,
	-1, 0, 0, +1,
	+1, 0, 0, -1,
	0, -1, +1, 0,
}

// Pin is the part of a periph GPIO pin the decoder uses.
type Pin interface {
	Read() gpio.Level
	WaitForEdge(timeout time.Duration) bool
}

type Pins struct {
	A, B     string
	Reversed bool
}

// Decoder counts one encoder.  Four counts per slot.
type Decoder struct {
	a, b     Pin
	reversed bool

	lock  sync.Mutex
	state uint8
	count int
}

func NewDecoder(a, b Pin, reversed bool) *Decoder {
	d := &Decoder{a: a, b: b, reversed: reversed}
	d.state = d.read()
	return d
}

func (d *Decoder) read() uint8 {
	var s uint8
	if d.a.Read() == gpio.High {
		s |= 2
	}
	if d.b.Read() == gpio.High {
		s |= 1
	}
	return s
}

// Sample reads both lines and applies the transition since the last sample.
func (d *Decoder) Sample() {
	d.lock.Lock()
	defer d.lock.Unlock()
	s := d.read()
	step := int(transitions[d.state<<2|s])
	if d.reversed {
		step = -step
	}
	d.count += step
	d.state = s
}

func (d *Decoder) Count() int {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.count
}

// Loop samples on every edge of either line until ctx is done.
func (d *Decoder) Loop(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(2)
	for _, p := range []Pin{d.a, d.b} {
		p := p
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				if p.WaitForEdge(edgeTimeout) {
					d.Sample()
				}
			}
		}()
	}
}

// Sensors reads the three tracking wheels from their own decoders.
type Sensors struct {
	wheels [hardware.NumWheels]*Decoder
	wg     sync.WaitGroup
}

var _ hardware.TrackingSensors = (*Sensors)(nil)

func NewSensors(left, right, rear *Decoder) *Sensors {
	return &Sensors{wheels: [hardware.NumWheels]*Decoder{left, right, rear}}
}

// Open initialises periph and configures the named pins for edge detection.
func Open(left, right, rear Pins) (*Sensors, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "failed to initialise GPIO")
	}
	var decoders [hardware.NumWheels]*Decoder
	for w, pins := range []Pins{left, right, rear} {
		a, err := openPin(pins.A)
		if err != nil {
			return nil, errors.Wrapf(err, "%v encoder", hardware.Wheel(w))
		}
		b, err := openPin(pins.B)
		if err != nil {
			return nil, errors.Wrapf(err, "%v encoder", hardware.Wheel(w))
		}
		decoders[w] = NewDecoder(a, b, pins.Reversed)
	}
	monitoring.Logf("Encoders: opened %v %v %v", left, right, rear)
	return NewSensors(decoders[0], decoders[1], decoders[2]), nil
}

func openPin(name string) (gpio.PinIO, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, errors.Errorf("no GPIO pin called %q", name)
	}
	if err := p.In(gpio.PullUp, gpio.BothEdges); err != nil {
		return nil, errors.Wrapf(err, "failed to configure %s", name)
	}
	return p, nil
}

func (s *Sensors) Start(ctx context.Context) {
	for _, d := range s.wheels {
		d.Loop(ctx, &s.wg)
	}
}

// Wait blocks until the loops started by Start have exited.
func (s *Sensors) Wait() {
	s.wg.Wait()
}

func (s *Sensors) ReadTicks(w hardware.Wheel) int {
	return s.wheels[w].Count()
}
