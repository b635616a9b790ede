// Package drivebus talks to the drive coprocessor over I2C.  The board runs
// both drive motors and counts the three tracking wheel encoders.
package drivebus

import (
	"encoding/binary"
	"errors"
	"math"
	"time"

	"golang.org/x/exp/io/i2c"

	"github.com/tigerbot-team/pigpen/pkg/hardware"
	"github.com/tigerbot-team/pigpen/pkg/monitoring"
)

const DefaultAddr = 0x42

type Register byte

const (
	RegCtrl Register = iota
	RegStatus
	RegWatchdogTimeout
	RegFaultCount

	RegLeftPower
	RegRightPower
	RegBrakeMode

	// Free-running 16-bit counters, one per tracking wheel.  Read as one
	// block starting at RegEncoderLeft.
	RegEncoderLeft
	RegEncoderRight
	RegEncoderRear

	RegBattV // LSB=4mV
)

const BattVLSB = 0.004

const (
	RegCtrlEnableI2CControl uint16 = 1 << iota
	RegCtrlRun
	RegCtrlReset
	RegCtrlWatchdogEnable
)

type StatusFlag uint16

const (
	RegStatusFault StatusFlag = 1 << iota
	RegStatusWatchdogExpired
)

const (
	brakeLeftHold uint16 = 1 << iota
	brakeRightHold
)

const (
	writeRetries     = 20
	configRefreshAge = 100 * time.Millisecond
)

var ErrWriteFailed = errors.New("drive board not responding to writes")

// port is the subset of *i2c.Device the board needs.
type port interface {
	Write(buf []byte) error
	ReadReg(reg byte, buf []byte) error
	Close() error
}

type Board struct {
	dev    port
	reopen func() (port, error)

	lastConfigWord  uint16
	lastConfigTime  time.Time
	watchdogEnabled bool

	counters counterTracker
}

var _ hardware.Bus = (*Board)(nil)

func Open(device string, addr int) (*Board, error) {
	open := func() (port, error) {
		return i2c.Open(&i2c.Devfs{Dev: device}, addr)
	}
	dev, err := open()
	if err != nil {
		return nil, err
	}
	return newBoard(dev, open), nil
}

// Opener returns a hardware.Opener for the board at addr on device.
func Opener(device string, addr int, watchdog time.Duration) hardware.Opener {
	return func() (hardware.Bus, error) {
		b, err := Open(device, addr)
		if err != nil {
			return nil, err
		}
		if err := b.SetWatchdog(watchdog); err != nil {
			_ = b.Close()
			return nil, err
		}
		return b, nil
	}
}

func newBoard(dev port, reopen func() (port, error)) *Board {
	return &Board{dev: dev, reopen: reopen}
}

func (b *Board) Reset() error {
	return b.maybeConfigure(true, false)
}

// SetWatchdog makes the board stop the motors if it hears nothing for the
// given time.  Zero disables the watchdog.
func (b *Board) SetWatchdog(timeout time.Duration) error {
	if timeout == 0 {
		b.watchdogEnabled = false
		return b.maybeConfigure(false, false)
	}

	ms := timeout.Milliseconds()
	if ms > math.MaxUint16 {
		ms = math.MaxUint16
	}
	if err := b.writeReg(RegWatchdogTimeout, uint16(ms)); err != nil {
		return err
	}
	b.watchdogEnabled = true
	return b.maybeConfigure(false, false)
}

func (b *Board) SetMotorPowers(left, right int8) error {
	if err := b.maybeConfigure(false, true); err != nil {
		return err
	}
	if err := b.writeReg(RegLeftPower, uint16(int16(left))); err != nil {
		return err
	}
	return b.writeReg(RegRightPower, uint16(int16(right)))
}

func (b *Board) SetBrakeModes(left, right hardware.BrakeMode) error {
	var word uint16
	if left == hardware.BrakeHold {
		word |= brakeLeftHold
	}
	if right == hardware.BrakeHold {
		word |= brakeRightHold
	}
	return b.writeReg(RegBrakeMode, word)
}

// ReadEncoders returns the tracking wheel counts accumulated since the first
// read.
func (b *Board) ReadEncoders() (hardware.Ticks, error) {
	var buf [2 * hardware.NumWheels]byte
	if err := b.dev.ReadReg(byte(RegEncoderLeft), buf[:]); err != nil {
		return hardware.Ticks{}, err
	}
	var raw [hardware.NumWheels]int16
	for w := range raw {
		raw[w] = int16(binary.BigEndian.Uint16(buf[2*w:]))
	}
	b.counters.update(raw)
	return b.counters.total, nil
}

func (b *Board) Close() error {
	_ = b.Reset()
	return b.dev.Close()
}

func (b *Board) BattVolts() (float32, error) {
	raw, err := b.readReg(RegBattV)
	if err != nil {
		return 0, err
	}
	return float32(raw) * BattVLSB, nil
}

func (b *Board) Status() (StatusFlag, error) {
	raw, err := b.readReg(RegStatus)
	if err != nil {
		return 0, err
	}
	return StatusFlag(raw), nil
}

func (b *Board) FaultCount() (uint16, error) {
	return b.readReg(RegFaultCount)
}

func (b *Board) writeWithRetries(data []byte) error {
	for tries := 0; tries < writeRetries; tries++ {
		err := b.dev.Write(data)
		if err == nil {
			if tries > 0 {
				monitoring.Logf("DriveBus: write succeeded after %d retries", tries)
			}
			return nil
		}
		monitoring.Logf("DriveBus: failed to write to drive board: %v", err)
		time.Sleep(time.Millisecond)
		if b.reopen == nil {
			continue
		}
		_ = b.dev.Close()
		dev, err := b.reopen()
		if err != nil {
			continue
		}
		b.dev = dev
	}
	return ErrWriteFailed
}

func (b *Board) maybeConfigure(resetMotors bool, enableMotors bool) error {
	var configWord = RegCtrlEnableI2CControl
	if resetMotors {
		configWord |= RegCtrlReset
	}
	if enableMotors {
		configWord |= RegCtrlRun
	}
	if b.watchdogEnabled {
		configWord |= RegCtrlWatchdogEnable
	}

	if configWord == b.lastConfigWord && time.Since(b.lastConfigTime) < configRefreshAge {
		return nil
	}

	if b.lastConfigWord&RegCtrlWatchdogEnable != 0 {
		status, err := b.Status()
		if err == nil && status&RegStatusWatchdogExpired != 0 {
			monitoring.Logf("DriveBus: watchdog expired, motors were stopped")
		}
	}

	if err := b.writeReg(RegCtrl, configWord); err != nil {
		return err
	}
	// Clear latched status flags.
	if err := b.writeReg(RegStatus, uint16(RegStatusWatchdogExpired|RegStatusFault)); err != nil {
		return err
	}

	b.lastConfigTime = time.Now()
	b.lastConfigWord = configWord &^ RegCtrlReset // Reset flag is not persistent
	return nil
}

func (b *Board) writeReg(reg Register, value uint16) error {
	return b.writeWithRetries([]byte{byte(reg), byte(value >> 8), byte(value)})
}

func (b *Board) readReg(reg Register) (uint16, error) {
	var buf [2]byte
	if err := b.dev.ReadReg(byte(reg), buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}
