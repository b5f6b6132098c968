package scheduler_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexmihai1804/autowatering/internal/clock"
	"github.com/alexmihai1804/autowatering/internal/dbfile"
	"github.com/alexmihai1804/autowatering/pkg/channel"
	"github.com/alexmihai1804/autowatering/pkg/fao56"
	"github.com/alexmihai1804/autowatering/pkg/scheduler"
	"github.com/alexmihai1804/autowatering/pkg/taskqueue"
)

type fakeRain struct {
	mm     float64
	hourly []float64
}

func (r fakeRain) Last24hMM() float64 { return r.mm }
func (r fakeRain) TodayMM() float64   { return r.mm }
func (r fakeRain) HourlySeriesMM(hours int) []float64 {
	if r.hourly == nil {
		return nil
	}
	if hours > len(r.hourly) {
		hours = len(r.hourly)
	}
	return r.hourly[len(r.hourly)-hours:]
}

func dailyChannel() *channel.Channel {
	return &channel.Channel{
		ID: 2,
		Event: channel.WateringEvent{
			Schedule:    channel.Schedule{Kind: channel.ScheduleDaily, DaysOfWeekMask: 0xFF},
			Mode:        channel.Mode{Kind: channel.ModeByDuration, DurationMinutes: 10},
			Start:       channel.StartTime{Hour: 6, Minute: 0},
			AutoEnabled: true,
		},
	}
}

func TestScheduler_DailyMatchEnqueuesOnce(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 7, 30, 6, 0, 0, 0, time.UTC))
	q := taskqueue.New()
	s := scheduler.New(clk, nil, nil, fakeRain{}, q)

	in := []scheduler.ChannelInput{{Channel: dailyChannel()}}
	results := s.Evaluate(clk.Now(), in)
	require.Len(t, results, 1)
	assert.True(t, results[0].Enqueued)
	assert.Equal(t, 1, q.Len())

	// same minute re-evaluated (e.g. two ticks landed on 06:00) must not double-enqueue.
	results = s.Evaluate(clk.Now(), in)
	assert.False(t, results[0].Enqueued)
	assert.Equal(t, scheduler.SkipAlreadyRanDay, results[0].Skip)
	assert.Equal(t, 1, q.Len())
}

func TestScheduler_DailySkipsWrongWeekday(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 7, 30, 6, 0, 0, 0, time.UTC))
	q := taskqueue.New()
	s := scheduler.New(clk, nil, nil, fakeRain{}, q)

	ch := dailyChannel()
	ch.Event.Schedule.DaysOfWeekMask = 0 // no day bits set
	results := s.Evaluate(clk.Now(), []scheduler.ChannelInput{{Channel: ch}})
	assert.False(t, results[0].Enqueued)
	assert.Equal(t, 0, q.Len())
}

func TestScheduler_DailySkipsWrongTime(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 7, 30, 6, 1, 0, 0, time.UTC))
	q := taskqueue.New()
	s := scheduler.New(clk, nil, nil, fakeRain{}, q)

	results := s.Evaluate(clk.Now(), []scheduler.ChannelInput{{Channel: dailyChannel()}})
	assert.False(t, results[0].Enqueued)
	assert.Equal(t, 0, q.Len())
}

func TestScheduler_RainAboveThresholdSkips(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 7, 30, 6, 0, 0, 0, time.UTC))
	q := taskqueue.New()
	s := scheduler.New(clk, nil, nil, fakeRain{mm: 10}, q)

	in := scheduler.ChannelInput{Channel: dailyChannel(), SkipThresholdMM: 5}
	results := s.Evaluate(clk.Now(), []scheduler.ChannelInput{in})
	assert.False(t, results[0].Enqueued)
	assert.Equal(t, scheduler.SkipRain, results[0].Skip)
	assert.Equal(t, 0, q.Len())
}

func TestScheduler_ReductionFactorScalesTask(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 7, 30, 6, 0, 0, 0, time.UTC))
	q := taskqueue.New()
	s := scheduler.New(clk, nil, nil, fakeRain{mm: 2}, q)

	in := scheduler.ChannelInput{Channel: dailyChannel(), SkipThresholdMM: 5, ReductionFactor: 0.5}
	results := s.Evaluate(clk.Now(), []scheduler.ChannelInput{in})
	require.True(t, results[0].Enqueued)

	task, ok := q.Peek()
	require.True(t, ok)
	assert.Equal(t, 5*60.0, task.DurationSeconds) // 10min * 60 * 0.5
}

func TestScheduler_PeriodicWaitsForIntervalDays(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 7, 30, 6, 0, 0, 0, time.UTC))
	q := taskqueue.New()
	s := scheduler.New(clk, nil, nil, fakeRain{}, q)

	ch := dailyChannel()
	ch.Event.Schedule = channel.Schedule{Kind: channel.SchedulePeriodic, IntervalDays: 3}

	in := []scheduler.ChannelInput{{Channel: ch}}
	results := s.Evaluate(clk.Now(), in)
	assert.True(t, results[0].Enqueued) // first run always fires

	clk.SetWallClock(clk.Now().Add(24 * time.Hour))
	results = s.Evaluate(clk.Now(), in)
	assert.False(t, results[0].Enqueued) // only 1 day elapsed, needs 3

	clk.SetWallClock(clk.Now().Add(2 * 24 * time.Hour))
	results = s.Evaluate(clk.Now(), in)
	assert.True(t, results[0].Enqueued) // 3 days elapsed since last run
}

func TestScheduler_PolarFallbackUsesConfiguredClock(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 6, 21, 7, 0, 0, 0, time.UTC))
	q := taskqueue.New()
	s := scheduler.New(clk, nil, nil, fakeRain{}, q)

	ch := dailyChannel()
	ch.LatitudeDeg = 80 // polar: real sunrise/sunset calc is invalid around the solstice
	ch.Event.Start = channel.StartTime{Hour: 7, Minute: 0, Solar: channel.SolarSunrise}

	results := s.Evaluate(clk.Now(), []scheduler.ChannelInput{{Channel: ch}})
	assert.True(t, results[0].Enqueued)
}

func autoChannelContext() fao56.ChannelContext {
	return fao56.ChannelContext{
		ChannelID: 4,
		Plant: dbfile.Plant{
			Name: "tomato", KcIni: 0.6, KcMid: 1.15, KcEnd: 0.8,
			StageInitDays: 20, StageDevDays: 30, StageMidDays: 40, StageEndDays: 10,
			DepletionFraction: 0.4, CanopyCoverMax: 0.8, ToptMaxC: 30,
		},
		Soil:   dbfile.Soil{Name: "loam", ThetaFC: 0.3, ThetaWP: 0.1, InfiltrationRateMMH: 10, Texture: 1},
		Method: dbfile.IrrigationMethod{Name: "drip", Efficiency: 0.9, DistributionUniformity: 0.85, WettingFraction: 0.4, FlowRateLPerHourPerM2: 4},
		AreaBased: true, AreaM2: 6,
		LatitudeRad: 0.7, SunExposurePct: 90, MaxVolumeLimitL: 1000,
	}
}

func TestScheduler_AutoModeQueriesDailyPass(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 7, 30, 3, 0, 0, 0, time.UTC))
	q := taskqueue.New()
	fao := fao56.New(clk, nil, [12]float64{4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4}, nil)
	s := scheduler.New(clk, nil, fao, fakeRain{}, q)

	ch := dailyChannel()
	ch.ID = 4
	ch.PlantID = 7
	ch.Event.Schedule.Kind = channel.ScheduleAuto

	in := scheduler.ChannelInput{
		Channel: ch,
		FAOContext: autoChannelContext(),
		Weather:    fao56.WeatherInputs{TempMeanC: 25, TempMinC: 18, TempMaxC: 32, RHMeanPct: 40, HumidityValid: true},
	}

	// Seed a large deficit so the decision is should_water=true.
	fao.SeedBalance(4, fao56.WaterBalance{RWZAwcMM: 60, WettingFraction: 0.4, WettingAwcMM: 24, CurrentDeficitMM: 20})

	results := s.Evaluate(clk.Now(), []scheduler.ChannelInput{in})
	require.Len(t, results, 1)
	if results[0].Enqueued {
		assert.Equal(t, 1, q.Len())
		task, _ := q.Peek()
		assert.Equal(t, taskqueue.TargetVolume, task.Target)
	} else {
		assert.NotEqual(t, scheduler.SkipReason(""), results[0].Skip)
	}
}

func TestScheduler_AutoModeForwardsHourlyRainIntoDailyPass(t *testing.T) {
	// rainAdapter must forward RainQuery.HourlySeriesMM through to
	// fao56.DailyUpdateDeficit's EffectivePrecipitationHourly rather than
	// dropping it; a channel with a deficit that would otherwise need
	// watering must water less (or not at all) once recent heavy rain
	// has refilled the root zone.
	clk := clock.NewFake(time.Date(2026, 7, 30, 3, 0, 0, 0, time.UTC))
	weather := fao56.WeatherInputs{TempMeanC: 25, TempMinC: 18, TempMaxC: 32, RHMeanPct: 40, HumidityValid: true}
	ch := dailyChannel()
	ch.ID = 5
	ch.PlantID = 7
	ch.Event.Schedule.Kind = channel.ScheduleAuto
	in := scheduler.ChannelInput{Channel: ch, FAOContext: autoChannelContext(), Weather: weather}
	in.FAOContext.ChannelID = 5

	dry := fao56.New(clk, nil, [12]float64{4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4}, nil)
	dry.SeedBalance(5, fao56.WaterBalance{RWZAwcMM: 60, WettingFraction: 0.4, WettingAwcMM: 24, CurrentDeficitMM: 20})
	qDry := taskqueue.New()
	sDry := scheduler.New(clk, nil, dry, fakeRain{}, qDry)
	resDry := sDry.Evaluate(clk.Now(), []scheduler.ChannelInput{in})
	require.True(t, resDry[0].Enqueued, "with no rain the channel should still need watering")
	taskDry, ok := qDry.Peek()
	require.True(t, ok)

	wet := fao56.New(clk, nil, [12]float64{4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4}, nil)
	wet.SeedBalance(5, fao56.WaterBalance{RWZAwcMM: 60, WettingFraction: 0.4, WettingAwcMM: 24, CurrentDeficitMM: 20})
	hourly := make([]float64, 24)
	hourly[23] = 25 // a heavy rain hour just before the daily pass
	qWet := taskqueue.New()
	sWet := scheduler.New(clk, nil, wet, fakeRain{mm: 25, hourly: hourly}, qWet)
	resWet := sWet.Evaluate(clk.Now(), []scheduler.ChannelInput{in})

	if resWet[0].Enqueued {
		taskWet, ok := qWet.Peek()
		require.True(t, ok)
		assert.Less(t, taskWet.VolumeLiters, taskDry.VolumeLiters, "hourly rain forwarded through rainAdapter must reduce the watering volume")
	} else {
		assert.Equal(t, scheduler.SkipAutoNoWater, resWet[0].Skip, "heavy recent rain should be able to suppress watering entirely")
	}
}

func TestScheduler_AutoModeUnconfiguredChannelSkips(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 7, 30, 3, 0, 0, 0, time.UTC))
	q := taskqueue.New()
	fao := fao56.New(clk, nil, [12]float64{}, nil)
	s := scheduler.New(clk, nil, fao, fakeRain{}, q)

	ch := dailyChannel()
	ch.Event.Schedule.Kind = channel.ScheduleAuto
	// PlantID left at zero: unconfigured.

	results := s.Evaluate(clk.Now(), []scheduler.ChannelInput{{Channel: ch}})
	assert.False(t, results[0].Enqueued)
	assert.Equal(t, scheduler.SkipUnconfigured, results[0].Skip)
	assert.Equal(t, 0, q.Len())
}
