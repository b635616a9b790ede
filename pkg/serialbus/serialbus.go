// Package serialbus drives a motor controller that speaks a line protocol
// over a USB serial port.
//
// Each command is one line; the controller answers every line with either
// "OK", an encoder report or "ERR <reason>":
//
//	P <left> <right>        set motor powers, -127..127
//	B <left> <right>        brake modes, 0 coast, 1 hold
//	E                       read encoders, answered with "E <left> <right> <rear>"
//	S                       stop and release the motors
package serialbus

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"

	"github.com/tigerbot-team/pigpen/pkg/hardware"
)

const replyTimeout = 100 * time.Millisecond

var (
	ErrRejected = errors.New("controller rejected command")
	ErrNoReply  = errors.New("no reply from controller")
)

type Bus struct {
	port    io.ReadWriteCloser
	buf     [64]byte
	pending []byte
}

var _ hardware.Bus = (*Bus)(nil)

func Open(device string, baud int) (*Bus, error) {
	mode := &serial.Mode{
		BaudRate: baud,
	}
	p, err := serial.Open(device, mode)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open serial port %s", device)
	}
	if err := p.SetReadTimeout(replyTimeout); err != nil {
		_ = p.Close()
		return nil, errors.Wrap(err, "failed to set read timeout")
	}
	_ = p.ResetInputBuffer()
	return New(p), nil
}

func Opener(device string, baud int) hardware.Opener {
	return func() (hardware.Bus, error) {
		return Open(device, baud)
	}
}

// New wraps an already-open port.
func New(port io.ReadWriteCloser) *Bus {
	return &Bus{port: port}
}

func (b *Bus) SetMotorPowers(left, right int8) error {
	_, err := b.command(fmt.Sprintf("P %d %d", left, right))
	return err
}

func brakeFlag(m hardware.BrakeMode) int {
	if m == hardware.BrakeHold {
		return 1
	}
	return 0
}

func (b *Bus) SetBrakeModes(left, right hardware.BrakeMode) error {
	_, err := b.command(fmt.Sprintf("B %d %d", brakeFlag(left), brakeFlag(right)))
	return err
}

func (b *Bus) ReadEncoders() (hardware.Ticks, error) {
	reply, err := b.command("E")
	if err != nil {
		return hardware.Ticks{}, err
	}
	return parseEncoders(reply)
}

func (b *Bus) Close() error {
	_, _ = b.command("S")
	return b.port.Close()
}

func (b *Bus) command(line string) (string, error) {
	if _, err := io.WriteString(b.port, line+"\n"); err != nil {
		return "", errors.Wrapf(err, "failed to send %q", line)
	}
	reply, err := b.readLine()
	if err != nil {
		return "", errors.Wrapf(err, "no reply to %q", line)
	}
	reply = strings.TrimSpace(reply)
	if strings.HasPrefix(reply, "ERR") {
		return "", errors.Wrapf(ErrRejected, "%q: %s", line, strings.TrimSpace(strings.TrimPrefix(reply, "ERR")))
	}
	return reply, nil
}

// readLine returns the next reply line.  The serial port reports a read
// timeout as a read of zero bytes, which ends the wait at once.
func (b *Bus) readLine() (string, error) {
	deadline := time.Now().Add(replyTimeout)
	for {
		if i := bytes.IndexByte(b.pending, '\n'); i >= 0 {
			line := string(b.pending[:i])
			b.pending = b.pending[i+1:]
			return line, nil
		}
		if time.Now().After(deadline) {
			b.pending = nil
			return "", ErrNoReply
		}
		n, err := b.port.Read(b.buf[:])
		if err != nil {
			return "", err
		}
		if n == 0 {
			b.pending = nil
			return "", ErrNoReply
		}
		b.pending = append(b.pending, b.buf[:n]...)
	}
}

func parseEncoders(reply string) (hardware.Ticks, error) {
	var ticks hardware.Ticks
	fields := strings.Fields(reply)
	if len(fields) != 1+hardware.NumWheels || fields[0] != "E" {
		return ticks, errors.Errorf("malformed encoder report %q", reply)
	}
	for w := range ticks {
		v, err := strconv.ParseInt(fields[w+1], 10, 32)
		if err != nil {
			return ticks, errors.Wrapf(err, "malformed encoder report %q", reply)
		}
		ticks[w] = int32(v)
	}
	return ticks, nil
}
