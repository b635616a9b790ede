package serialbus

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerbot-team/pigpen/pkg/hardware"
)

// scriptedPort records what is written and plays back canned replies.
type scriptedPort struct {
	sent    bytes.Buffer
	replies *strings.Reader
	closed  bool
}

func newScriptedPort(replies ...string) *scriptedPort {
	return &scriptedPort{replies: strings.NewReader(strings.Join(replies, ""))}
}

func (p *scriptedPort) Read(b []byte) (int, error)  { return p.replies.Read(b) }
func (p *scriptedPort) Write(b []byte) (int, error) { return p.sent.Write(b) }
func (p *scriptedPort) Close() error {
	p.closed = true
	return nil
}

func TestCommands(t *testing.T) {
	p := newScriptedPort("OK\n", "OK\r\n", "E 10 -20 300\n", "OK\n")
	b := New(p)

	require.NoError(t, b.SetMotorPowers(-127, 64))
	require.NoError(t, b.SetBrakeModes(hardware.BrakeHold, hardware.BrakeCoast))
	ticks, err := b.ReadEncoders()
	require.NoError(t, err)
	assert.Equal(t, hardware.Ticks{10, -20, 300}, ticks)
	require.NoError(t, b.Close())

	assert.Equal(t, "P -127 64\nB 1 0\nE\nS\n", p.sent.String())
	assert.True(t, p.closed)
}

func TestRejectedCommand(t *testing.T) {
	b := New(newScriptedPort("ERR overcurrent\n"))

	err := b.SetMotorPowers(100, 100)
	assert.True(t, errors.Is(err, ErrRejected))
	assert.Contains(t, err.Error(), "overcurrent")
}

func TestNoReply(t *testing.T) {
	b := New(newScriptedPort())

	_, err := b.ReadEncoders()
	assert.Error(t, err)
}

// silentPort behaves like a serial port whose read timeout expires with
// nothing received.
type silentPort struct {
	reads int
}

func (p *silentPort) Read(b []byte) (int, error) {
	p.reads++
	return 0, nil
}
func (p *silentPort) Write(b []byte) (int, error) { return len(b), nil }
func (p *silentPort) Close() error                { return nil }

func TestSilentControllerFailsFast(t *testing.T) {
	p := &silentPort{}
	b := New(p)

	start := time.Now()
	err := b.SetMotorPowers(50, 50)
	assert.True(t, errors.Is(err, ErrNoReply))
	assert.Equal(t, 1, p.reads)
	assert.Less(t, time.Since(start), replyTimeout)
}

// tricklePort hands out its replies one byte per read.
type tricklePort struct {
	scriptedPort
}

func (p *tricklePort) Read(b []byte) (int, error) { return p.replies.Read(b[:1]) }

func TestRepliesSplitAcrossReads(t *testing.T) {
	p := &tricklePort{scriptedPort: *newScriptedPort("OK\nE 1 2 3\n")}
	b := New(p)

	require.NoError(t, b.SetMotorPowers(1, 1))
	ticks, err := b.ReadEncoders()
	require.NoError(t, err)
	assert.Equal(t, hardware.Ticks{1, 2, 3}, ticks)
}

func TestParseEncoders(t *testing.T) {
	for _, bad := range []string{"", "E 1 2", "X 1 2 3", "E 1 2 three", "E 1 2 99999999999"} {
		_, err := parseEncoders(bad)
		assert.Error(t, err, bad)
	}
	ticks, err := parseEncoders("E  -1 0   2147483647")
	require.NoError(t, err)
	assert.Equal(t, hardware.Ticks{-1, 0, 2147483647}, ticks)
}
