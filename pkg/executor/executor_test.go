package executor_test

import (
	"testing"
	"time"

	"github.com/alexmihai1804/autowatering/internal/clock"
	"github.com/alexmihai1804/autowatering/pkg/executor"
	"github.com/alexmihai1804/autowatering/pkg/mastervalve"
	"github.com/alexmihai1804/autowatering/pkg/taskqueue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeValve struct {
	open     bool
	closeErr error
}

func (v *fakeValve) Open() error  { v.open = true; return nil }
func (v *fakeValve) Close() error { v.open = false; return v.closeErr }
func (v *fakeValve) IsOpen() bool { return v.open }

type fakeFlow struct{ pulses uint64 }

func (f *fakeFlow) TotalPulses() uint64 { return f.pulses }

func newHarness(t *testing.T) (*executor.Engine, *taskqueue.Queue, *fakeValve, *fakeFlow, *clock.Fake, *[]executor.Status) {
	t.Helper()
	q := taskqueue.New()
	valve := &fakeValve{}
	flow := &fakeFlow{}
	clk := clock.NewFake(time.Date(2026, 1, 1, 7, 0, 0, 0, time.UTC))

	mv, err := mastervalve.New(mastervalve.Config{Enabled: true}, &fakeValve{}, clk)
	require.NoError(t, err)

	var statuses []executor.Status
	applier := func(task taskqueue.Task, status executor.Status, deliveredLiters float64) {
		statuses = append(statuses, status)
	}

	eng := executor.New(q, mv, flow, map[int]executor.Valve{0: valve}, clk, nil, executor.DefaultConfig(1.0/450), applier)
	return eng, q, valve, flow, clk, &statuses
}

func TestExecutor_DurationTaskCompletesAndClosesValve(t *testing.T) {
	eng, q, valve, flow, clk, statuses := newHarness(t)
	q.Enqueue(taskqueue.Task{ChannelID: 0, Target: taskqueue.TargetDuration, DurationSeconds: 300})

	require.NoError(t, eng.Tick(clk.Now()))                 // IDLE -> PREPARE_MASTER
	require.NoError(t, eng.Tick(clk.Now()))                 // PREPARE_MASTER -> RUNNING, opens valve
	assert.True(t, valve.IsOpen())
	assert.Equal(t, executor.StateRunning, eng.State())

	flow.pulses = 5 // flow present, so only the duration target governs completion
	clk.Advance(300 * time.Second)
	require.NoError(t, eng.Tick(clk.Now()))
	assert.False(t, valve.IsOpen())
	assert.Equal(t, executor.StateIdle, eng.State())
	require.Len(t, *statuses, 1)
	assert.Equal(t, executor.StatusCompleted, (*statuses)[0])
}

func TestExecutor_VolumeTaskCompletesOnPulseCount(t *testing.T) {
	eng, q, valve, flow, clk, statuses := newHarness(t)
	q.Enqueue(taskqueue.Task{ChannelID: 0, Target: taskqueue.TargetVolume, VolumeLiters: 3})

	require.NoError(t, eng.Tick(clk.Now()))
	require.NoError(t, eng.Tick(clk.Now())) // -> RUNNING

	flow.pulses = 1350 // 3L at 450 pulses/L
	clk.Advance(time.Second)
	require.NoError(t, eng.Tick(clk.Now()))

	assert.False(t, valve.IsOpen())
	require.Len(t, *statuses, 1)
	assert.Equal(t, executor.StatusCompleted, (*statuses)[0])
}

func TestExecutor_FlowTimeoutAbortsAndReportsNoFlow(t *testing.T) {
	eng, q, valve, _, clk, statuses := newHarness(t)
	q.Enqueue(taskqueue.Task{ChannelID: 0, Target: taskqueue.TargetDuration, DurationSeconds: 300})

	require.NoError(t, eng.Tick(clk.Now()))
	require.NoError(t, eng.Tick(clk.Now())) // -> RUNNING, no pulses

	clk.Advance(31 * time.Second)
	require.NoError(t, eng.Tick(clk.Now()))

	assert.False(t, valve.IsOpen())
	require.Len(t, *statuses, 1)
	assert.Equal(t, executor.StatusNoFlow, (*statuses)[0])
}

func TestExecutor_ConsecutiveFailuresTripFault(t *testing.T) {
	eng, q, _, _, clk, statuses := newHarness(t)

	for i := 0; i < 3; i++ {
		q.Enqueue(taskqueue.Task{ChannelID: 0, Target: taskqueue.TargetDuration, DurationSeconds: 300})
		require.NoError(t, eng.Tick(clk.Now()))
		require.NoError(t, eng.Tick(clk.Now()))
		clk.Advance(31 * time.Second)
		require.NoError(t, eng.Tick(clk.Now()))
	}

	assert.True(t, eng.IsFault())
	assert.Len(t, *statuses, 3)

	eng.ResetFault()
	assert.False(t, eng.IsFault())
}

func TestExecutor_CancelAllReturnsCountWithRunningPlusOne(t *testing.T) {
	eng, q, _, _, clk, _ := newHarness(t)
	q.Enqueue(taskqueue.Task{ChannelID: 0, Target: taskqueue.TargetDuration, DurationSeconds: 300})
	q.Enqueue(taskqueue.Task{ChannelID: 0, Target: taskqueue.TargetDuration, DurationSeconds: 300})

	require.NoError(t, eng.Tick(clk.Now())) // dequeues first -> PREPARE_MASTER
	require.NoError(t, eng.Tick(clk.Now())) // -> RUNNING

	n := eng.CancelAll(clk.Now())
	assert.Equal(t, 2, n) // 1 pending + 1 running
	assert.Equal(t, executor.StateIdle, eng.State())
}

func TestExecutor_NegativePreStartDelayDefersMasterOpen(t *testing.T) {
	q := taskqueue.New()
	zoneValve := &fakeValve{}
	master := &fakeValve{}
	flow := &fakeFlow{pulses: 1}
	clk := clock.NewFake(time.Date(2026, 1, 1, 7, 0, 0, 0, time.UTC))

	mv, err := mastervalve.New(mastervalve.Config{Enabled: true, PreStartDelaySec: -10}, master, clk)
	require.NoError(t, err)

	eng := executor.New(q, mv, flow, map[int]executor.Valve{0: zoneValve}, clk, nil, executor.DefaultConfig(1.0/450), nil)
	q.Enqueue(taskqueue.Task{ChannelID: 0, Target: taskqueue.TargetDuration, DurationSeconds: 300})

	require.NoError(t, eng.Tick(clk.Now())) // IDLE -> PREPARE_MASTER
	require.NoError(t, eng.Tick(clk.Now())) // -> RUNNING, opens zone valve only
	assert.True(t, zoneValve.IsOpen())
	assert.False(t, master.IsOpen())

	clk.Advance(5 * time.Second)
	require.NoError(t, eng.Tick(clk.Now()))
	assert.False(t, master.IsOpen()) // 5s < 10s deferred open

	clk.Advance(6 * time.Second)
	require.NoError(t, eng.Tick(clk.Now()))
	assert.True(t, master.IsOpen()) // 11s >= 10s, now opens
}

func TestExecutor_PauseAndResumePreservesElapsed(t *testing.T) {
	eng, q, valve, flow, clk, _ := newHarness(t)
	q.Enqueue(taskqueue.Task{ChannelID: 0, Target: taskqueue.TargetDuration, DurationSeconds: 300})

	require.NoError(t, eng.Tick(clk.Now()))
	require.NoError(t, eng.Tick(clk.Now())) // -> RUNNING
	flow.pulses = 1 // a pulse after the zone opens suppresses the no-flow timeout path

	clk.Advance(100 * time.Second)
	require.NoError(t, eng.Pause())
	assert.False(t, valve.IsOpen())
	assert.Equal(t, executor.StatePaused, eng.State())

	clk.Advance(1000 * time.Second) // time passes while paused, must not count
	require.NoError(t, eng.Resume())
	assert.True(t, valve.IsOpen())

	clk.Advance(199 * time.Second) // 100 + 199 = 299s elapsed, not yet done
	require.NoError(t, eng.Tick(clk.Now()))
	assert.Equal(t, executor.StateRunning, eng.State())

	clk.Advance(2 * time.Second)
	require.NoError(t, eng.Tick(clk.Now()))
	assert.Equal(t, executor.StateIdle, eng.State())
}
