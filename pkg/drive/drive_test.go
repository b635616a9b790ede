package drive

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerbot-team/pigpen/pkg/hardware"
	"github.com/tigerbot-team/pigpen/pkg/monitoring"
	"github.com/tigerbot-team/pigpen/pkg/odometry"
	"github.com/tigerbot-team/pigpen/pkg/pid"
	"github.com/tigerbot-team/pigpen/pkg/simulator"
)

func init() {
	monitoring.SetLogger(nil)
}

type rig struct {
	drive   *Drive
	robot   *simulator.Robot
	tracker *odometry.Tracker
	pose    *recordingPose
}

// recordingPose remembers the last heading the drive looked at.
type recordingPose struct {
	PoseSource

	lock      sync.Mutex
	lastTheta float64
}

func (p *recordingPose) Theta() float64 {
	theta := p.PoseSource.Theta()
	p.lock.Lock()
	p.lastTheta = theta
	p.lock.Unlock()
	return theta
}

func (p *recordingPose) LastTheta() float64 {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.lastTheta
}

// newRig returns a drive on a simulated robot that moves one control period
// per control cycle, with odometry updated after every step.
func newRig(t *testing.T) *rig {
	cfg := DefaultConfig()
	cfg.ControlPeriod = 2 * time.Millisecond

	simCfg := simulator.DefaultConfig()
	robot := simulator.NewLockstep(simCfg, cfg.ControlPeriod)
	tracker := odometry.New(robot, simCfg.Geometry, time.Millisecond)
	tracker.Update()
	robot.After(tracker.Update)

	pose := &recordingPose{PoseSource: tracker}
	d := New(robot, pose, simCfg.Geometry, cfg)
	t.Cleanup(d.Stop)
	return &rig{drive: d, robot: robot.Robot, tracker: tracker, pose: pose}
}

// newRealTimeRig runs the simulator on the wall clock, for open-loop driving.
func newRealTimeRig(t *testing.T) *rig {
	simCfg := simulator.DefaultConfig()
	robot := simulator.New(simCfg)
	tracker := odometry.New(robot, simCfg.Geometry, time.Millisecond)
	tracker.Start(context.Background(), true)

	cfg := DefaultConfig()
	cfg.ControlPeriod = 2 * time.Millisecond
	pose := &recordingPose{PoseSource: tracker}
	d := New(robot, pose, simCfg.Geometry, cfg)

	t.Cleanup(func() {
		d.Stop()
		tracker.Stop()
	})
	return &rig{drive: d, robot: robot, tracker: tracker, pose: pose}
}

func (r *rig) powers() (int, int) {
	return r.robot.Powers()
}

func TestMoveForDistance(t *testing.T) {
	r := newRig(t)

	task := r.drive.Move(24, 0, 0)
	require.True(t, task.Finished())
	require.NoError(t, task.Err())
	assert.True(t, task.Completed())
	assert.True(t, r.drive.MoveComplete())
	assert.NotEmpty(t, task.ID)

	l, rt := r.powers()
	assert.Equal(t, 0, l)
	assert.Equal(t, 0, rt)
	assert.InDelta(t, 24, r.tracker.Y(), 1.5)
	assert.InDelta(t, 0, r.tracker.X(), 0.5)

	assert.Equal(t, DefaultConfig().Gains.Move, task.Gains())
	assert.True(t, r.drive.movePID.GainsAreAtDefaults())
}

func TestMoveBackwardsForDistance(t *testing.T) {
	r := newRig(t)

	task := r.drive.Move(-12, 0, 5)
	require.NoError(t, task.Err())
	assert.InDelta(t, -12, r.tracker.Y(), 1.5)
	assert.InDelta(t, 0, r.tracker.Theta(), 3)
}

func TestMoveToXCoord(t *testing.T) {
	r := newRig(t)
	r.tracker.SetCoordinates(0, 0, 90)

	task := r.drive.MoveToXCoord(10, 90, 0)
	require.NoError(t, task.Err())
	assert.InDelta(t, 10, r.tracker.X(), 1)
	assert.Equal(t, pid.Gains{KP: 6, MinSpeed: 30}, task.Gains())
}

func TestMoveBackToYCoord(t *testing.T) {
	r := newRig(t)

	task := r.drive.MoveBackToYCoord(-12, 0, 0)
	require.NoError(t, task.Err())
	assert.InDelta(t, -12, r.tracker.Y(), 1)
	assert.Equal(t, pid.Gains{KP: 6, MinSpeed: 30}, task.Gains())
}

func TestMoveToYCoordFromEitherSide(t *testing.T) {
	r := newRig(t)

	task := r.drive.MoveToYCoord(12, 0, 0)
	require.NoError(t, task.Err())
	assert.InDelta(t, 12, r.tracker.Y(), 1)

	// Facing back down the Y axis, forwards takes Y down to the target.
	require.NoError(t, r.drive.Turn(180).Err())
	task = r.drive.MoveToYCoord(4, 180, 0)
	require.NoError(t, task.Err())
	// Coming down, the move ends as soon as the whole inches read 4.
	assert.GreaterOrEqual(t, r.tracker.Y(), 4.0)
	assert.Less(t, r.tracker.Y(), 5.0)
}

func TestFluidMoveKeepsRunning(t *testing.T) {
	r := newRig(t)

	task := r.drive.Move(12, 0, 0, Fluid())
	require.NoError(t, task.Err())
	assert.Equal(t, DefaultConfig().Gains.Tables.Distance.Fluid, task.Gains())

	l, rt := r.powers()
	assert.NotZero(t, l)
	assert.NotZero(t, rt)
}

func TestWithGainsAppliesToOneMove(t *testing.T) {
	r := newRig(t)

	first := r.drive.WithGains(0.2, 0, 0, 40).Move(6, 0, 0)
	require.NoError(t, first.Err())
	assert.Equal(t, pid.Gains{KP: 0.2, MinSpeed: 40}, first.Gains())

	second := r.drive.Move(6, 0, 0)
	require.NoError(t, second.Err())
	assert.Equal(t, DefaultConfig().Gains.Move, second.Gains())
	assert.True(t, r.drive.movePID.GainsAreAtDefaults())
}

func TestWithTurnGainsAppliesToOneTurn(t *testing.T) {
	r := newRig(t)

	first := r.drive.WithTurnGains(2, 0, 0, 20).Turn(30)
	require.NoError(t, first.Err())
	assert.Equal(t, pid.Gains{KP: 2, MinSpeed: 20}, first.Gains())

	second := r.drive.Turn(0)
	require.NoError(t, second.Err())
	assert.Equal(t, DefaultConfig().Gains.Turn, second.Gains())
}

func TestNewMovePreemptsOld(t *testing.T) {
	r := newRig(t)

	first := r.drive.Move(200, 0, 0, Async())
	time.Sleep(50 * time.Millisecond)
	assert.False(t, first.Finished())

	second := r.drive.Move(-6, 0, 0)
	assert.True(t, first.Finished())
	assert.ErrorIs(t, first.Err(), ErrCancelled)
	assert.False(t, first.Completed())
	require.NoError(t, second.Err())
	assert.True(t, r.drive.MoveComplete())
	assert.True(t, r.drive.movePID.GainsAreAtDefaults())
}

func TestCancelledMoveDoesNotBrake(t *testing.T) {
	r := newRig(t)

	task := r.drive.Move(200, 0, 0, Async())
	time.Sleep(50 * time.Millisecond)
	r.drive.moves.cancel()

	assert.ErrorIs(t, task.Err(), ErrCancelled)
	assert.False(t, r.drive.MoveComplete())
	l, rt := r.powers()
	assert.NotZero(t, l)
	assert.NotZero(t, rt)
}

func TestStopCancelsEverything(t *testing.T) {
	r := newRig(t)

	move := r.drive.Move(200, 0, 0, Async())
	turn := r.drive.Turn(720, Async())
	time.Sleep(20 * time.Millisecond)
	r.drive.Stop()

	assert.ErrorIs(t, move.Err(), ErrCancelled)
	assert.ErrorIs(t, turn.Err(), ErrCancelled)
	l, rt := r.powers()
	assert.Equal(t, 0, l)
	assert.Equal(t, 0, rt)
}

func TestMoveTimesOutWhenStalled(t *testing.T) {
	r := newRig(t)
	r.robot.SetStalled(true)

	start := time.Now()
	task := r.drive.Move(10, 0, 0, WithTimeout(100*time.Millisecond))
	assert.ErrorIs(t, task.Err(), ErrTimeout)
	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, r.drive.MoveComplete())

	l, rt := r.powers()
	assert.Equal(t, 0, l)
	assert.Equal(t, 0, rt)
	assert.True(t, r.drive.movePID.GainsAreAtDefaults())
}

func TestTurnSettles(t *testing.T) {
	r := newRig(t)

	task := r.drive.Turn(90)
	require.NoError(t, task.Err())
	assert.True(t, r.drive.TurnComplete())
	assert.InDelta(t, 90, r.tracker.Theta(), settleBand)

	l, rt := r.powers()
	assert.Equal(t, 0, l)
	assert.Equal(t, 0, rt)
	assert.True(t, r.drive.turnPID.GainsAreAtDefaults())
}

func TestSweepRightSettles(t *testing.T) {
	r := newRig(t)

	task := r.drive.SweepRight(45, 2)
	require.NoError(t, task.Err())
	assert.InDelta(t, 45, r.tracker.Theta(), settleBand)
	l, rt := r.powers()
	assert.Equal(t, 0, l)
	assert.Equal(t, 0, rt)
}

func TestSweepWithThresholdHandsOverEarly(t *testing.T) {
	r := newRig(t)

	task := r.drive.SweepRightWithThreshold(90, 20, 10)
	require.NoError(t, task.Err())
	assert.Equal(t, DefaultConfig().Gains.SweepThreshold, task.Gains())

	// The last heading checked is the first one past the threshold.
	exit := r.pose.LastTheta()
	assert.GreaterOrEqual(t, exit, 80.0)
	assert.Less(t, exit, 85.0)

	// Still moving for the next command.
	l, _ := r.powers()
	assert.NotZero(t, l)
}

func TestSweepLeftBackWithThreshold(t *testing.T) {
	r := newRig(t)

	task := r.drive.SweepLeftBackWithThreshold(-60, -20, 5)
	require.NoError(t, task.Err())
	assert.LessOrEqual(t, r.pose.LastTheta(), -55.0)
}

func TestWaitForComplete(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	require.NoError(t, r.drive.WaitForComplete(ctx))

	task := r.drive.Move(12, 0, 0, Async())
	require.NoError(t, r.drive.WaitForComplete(ctx))
	assert.True(t, task.Completed())
	assert.True(t, r.drive.MoveComplete())

	turn := r.drive.Turn(-45, Async())
	require.NoError(t, r.drive.WaitForTurn(ctx))
	assert.True(t, turn.Completed())
}

func TestWaitHonoursContext(t *testing.T) {
	r := newRig(t)

	task := r.drive.Move(200, 0, 0, Async())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, task.Wait(ctx), context.DeadlineExceeded)
	assert.NoError(t, task.Err())
}

func TestBrakeModes(t *testing.T) {
	r := newRig(t)

	r.drive.BrakeLeftSide()
	l, rt := r.robot.BrakeModes()
	assert.Equal(t, hardware.BrakeHold, l)
	assert.Equal(t, hardware.BrakeCoast, rt)

	r.drive.BrakeRightSide()
	_, rt = r.robot.BrakeModes()
	assert.Equal(t, hardware.BrakeHold, rt)

	r.drive.Coast()
	l, rt = r.robot.BrakeModes()
	assert.Equal(t, hardware.BrakeCoast, l)
	assert.Equal(t, hardware.BrakeCoast, rt)

	r.drive.Brake()
	l, rt = r.robot.BrakeModes()
	assert.Equal(t, hardware.BrakeHold, l)
	assert.Equal(t, hardware.BrakeHold, rt)
}

func TestTimedDrive(t *testing.T) {
	r := newRealTimeRig(t)

	require.NoError(t, r.drive.TimedDrive(context.Background(), 100*time.Millisecond, 127, 127))
	l, rt := r.powers()
	assert.Equal(t, 0, l)
	assert.Equal(t, 0, rt)
	assert.Greater(t, r.tracker.Y(), 2.0)

	r.drive.DrivePower(500, -500)
	l, rt = r.powers()
	assert.Equal(t, hardware.MaxPower, l)
	assert.Equal(t, -hardware.MaxPower, rt)
}

// Every move type must stop on its own once the position reaches the target,
// including when the last cycle lands just short of a fractional target.
func TestMovesReachTarget(t *testing.T) {
	for _, tc := range []struct {
		name  string
		theta float64
		move  func(d *Drive, o Option) *Task
		check func(t *testing.T, x, y float64)
	}{
		{"distance", 0, func(d *Drive, o Option) *Task { return d.Move(24, 0, 0, o) },
			func(t *testing.T, x, y float64) { assert.InDelta(t, 24, y, 0.5) }},
		{"distance ramped", 0, func(d *Drive, o Option) *Task { return d.Move(17.3, 0, 5, o) },
			func(t *testing.T, x, y float64) { assert.InDelta(t, 17.3, y, 0.5) }},
		{"distance back", 0, func(d *Drive, o Option) *Task { return d.Move(-9.7, 0, 0, o) },
			func(t *testing.T, x, y float64) { assert.InDelta(t, -9.7, y, 0.5) }},
		{"distance fluid", 0, func(d *Drive, o Option) *Task { return d.Move(12.4, 0, 0, Fluid(), o) },
			func(t *testing.T, x, y float64) { assert.GreaterOrEqual(t, y, 12.0) }},
		{"to x", 90, func(d *Drive, o Option) *Task { return d.MoveToXCoord(10, 90, 0, o) },
			func(t *testing.T, x, y float64) { assert.InDelta(t, 10, x, 0.5) }},
		{"to x fractional", 90, func(d *Drive, o Option) *Task { return d.MoveToXCoord(10.9, 90, 0, o) },
			func(t *testing.T, x, y float64) { assert.InDelta(t, 10, x, 0.5) }},
		{"to y", 0, func(d *Drive, o Option) *Task { return d.MoveToYCoord(15, 0, 0, o) },
			func(t *testing.T, x, y float64) { assert.InDelta(t, 15, y, 0.5) }},
		{"to y fluid", 0, func(d *Drive, o Option) *Task { return d.MoveToYCoord(8, 0, 0, Fluid(), o) },
			func(t *testing.T, x, y float64) { assert.GreaterOrEqual(t, y, 8.0) }},
		{"back to x", -90, func(d *Drive, o Option) *Task { return d.MoveBackToXCoord(7, -90, 0, o) },
			func(t *testing.T, x, y float64) { assert.InDelta(t, 7, x, 0.5) }},
		{"back to y", 0, func(d *Drive, o Option) *Task { return d.MoveBackToYCoord(-12, 0, 0, o) },
			func(t *testing.T, x, y float64) { assert.InDelta(t, -12, y, 0.5) }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			r := newRig(t)
			r.tracker.SetCoordinates(0, 0, tc.theta)

			task := tc.move(r.drive, WithTimeout(10*time.Second))
			require.NoError(t, task.Err())
			assert.True(t, task.Completed())
			tc.check(t, r.tracker.X(), r.tracker.Y())
		})
	}
}
