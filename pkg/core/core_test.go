package core_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexmihai1804/autowatering/internal/clock"
	"github.com/alexmihai1804/autowatering/internal/config"
	"github.com/alexmihai1804/autowatering/pkg/channel"
	"github.com/alexmihai1804/autowatering/pkg/core"
	"github.com/alexmihai1804/autowatering/pkg/envsnap"
	"github.com/alexmihai1804/autowatering/pkg/executor"
	"github.com/alexmihai1804/autowatering/pkg/taskqueue"
)

type fakeValve struct{ open bool }

func (v *fakeValve) Open() error  { v.open = true; return nil }
func (v *fakeValve) Close() error { v.open = false; return nil }
func (v *fakeValve) IsOpen() bool { return v.open }

type fakeFlow struct{ pulses uint64 }

func (f *fakeFlow) TotalPulses() uint64 { return f.pulses }

func dailyChannel(id int) *channel.Channel {
	return &channel.Channel{
		ID:       id,
		Name:     "bed",
		Coverage: channel.Coverage{Kind: channel.CoverageArea, AreaM2: 3},
		Event: channel.WateringEvent{
			Schedule:    channel.Schedule{Kind: channel.ScheduleDaily, DaysOfWeekMask: 0xFF},
			Mode:        channel.Mode{Kind: channel.ModeByDuration, DurationMinutes: 5},
			Start:       channel.StartTime{Hour: 6, Minute: 0},
			AutoEnabled: true,
		},
	}
}

func TestCore_NewRejectsInvalidChannel(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ch := dailyChannel(9) // out of [0,7] range
	_, err := core.New(config.Default(), core.Deps{Clock: clk, Valves: map[int]executor.Valve{}}, []*channel.Channel{ch}, [12]float64{})
	require.Error(t, err)
}

func TestCore_SchedulerTickEnqueuesAndExecutorDrainsQueue(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 7, 30, 6, 0, 0, 0, time.UTC))
	valve := &fakeValve{}
	flow := &fakeFlow{pulses: 1}
	ch := dailyChannel(1)

	c, err := core.New(config.Default(), core.Deps{
		Clock:  clk,
		Valves: map[int]executor.Valve{1: valve},
		Flow:   flow,
	}, []*channel.Channel{ch}, [12]float64{})
	require.NoError(t, err)

	results := c.TickScheduler(clk.Now(), envsnap.Snapshot{})
	require.Len(t, results, 1)
	assert.True(t, results[0].Enqueued)
	assert.Equal(t, 1, c.Queue().Len())

	require.NoError(t, c.TickExecutor(clk.Now())) // IDLE -> PREPARE_MASTER
	require.NoError(t, c.TickExecutor(clk.Now())) // -> RUNNING, opens valve
	assert.True(t, valve.IsOpen())

	clk.Advance(5 * time.Minute)
	require.NoError(t, c.TickExecutor(clk.Now()))
	assert.False(t, valve.IsOpen())
	assert.Equal(t, executor.StateIdle, c.Executor().State())
}

func TestCore_HousekeepingIsNoOpWithoutStore(t *testing.T) {
	clk := clock.NewFake(time.Now())
	c, err := core.New(config.Default(), core.Deps{Clock: clk, Valves: map[int]executor.Valve{}}, nil, [12]float64{})
	require.NoError(t, err)
	assert.NoError(t, c.TickHousekeeping())
}

func TestCore_ChannelLookup(t *testing.T) {
	clk := clock.NewFake(time.Now())
	ch := dailyChannel(2)
	c, err := core.New(config.Default(), core.Deps{Clock: clk, Valves: map[int]executor.Valve{}}, []*channel.Channel{ch}, [12]float64{})
	require.NoError(t, err)

	got, ok := c.Channel(2)
	require.True(t, ok)
	assert.Equal(t, "bed", got.Name)

	_, ok = c.Channel(3)
	assert.False(t, ok)
}

func TestCore_QueueAcceptsManualTask(t *testing.T) {
	clk := clock.NewFake(time.Now())
	c, err := core.New(config.Default(), core.Deps{Clock: clk, Valves: map[int]executor.Valve{}}, nil, [12]float64{})
	require.NoError(t, err)

	c.Queue().Enqueue(taskqueue.Task{ChannelID: 0, Trigger: taskqueue.TriggerManual, Target: taskqueue.TargetDuration, DurationSeconds: 60})
	assert.Equal(t, 1, c.Queue().Len())
}

func TestCore_RainHourBoundaryTicksOncePerHour(t *testing.T) {
	// pkg/rain.Pipeline.HourBoundary documents "called once per UTC
	// hour"; Run must honor that cadence, not the 1-minute cadence the
	// other workers use.
	assert.Equal(t, time.Hour, core.RainHourBoundaryTick)
}
