// Package scheduler implements the once-per-minute schedule evaluator
// (spec §4.L): DAILY/PERIODIC time-of-day matching with optional solar
// resolution, rain-skip, and the AUTO daily FAO-56 pass.
package scheduler

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/alexmihai1804/autowatering/internal/clock"
	"github.com/alexmihai1804/autowatering/pkg/channel"
	"github.com/alexmihai1804/autowatering/pkg/fao56"
	"github.com/alexmihai1804/autowatering/pkg/taskqueue"
)

// RainQuery is the subset of the rain pipeline the scheduler consumes:
// Last24hMM for the rain-skip decision, plus TodayMM/HourlySeriesMM so
// the AUTO path can forward a real fao56.RainSource into the daily
// pass's effective-precipitation calculation instead of a stub.
type RainQuery interface {
	Last24hMM() float64
	TodayMM() float64
	HourlySeriesMM(hours int) []float64
}

// SkipReason is recorded against an event that did not enqueue.
type SkipReason string

const (
	SkipNone          SkipReason = ""
	SkipRain          SkipReason = "RAIN"
	SkipAlreadyRanDay SkipReason = "ALREADY_RAN_TODAY"
	SkipAutoNoWater   SkipReason = "NO_WATER_NEEDED"
	SkipUnconfigured  SkipReason = "CONFIG"
)

// EvalResult is one channel's outcome for a single Evaluate call, kept
// for observability and tests; nothing downstream depends on it.
type EvalResult struct {
	ChannelID int
	Enqueued  bool
	Skip      SkipReason
}

// ChannelInput bundles everything Evaluate needs for one channel on
// one tick. FAOContext and Weather are only consulted when the
// channel is in an automatic mode.
type ChannelInput struct {
	Channel             *channel.Channel
	TimeZoneOffsetHours float64
	SkipThresholdMM     float64
	// ReductionFactor scales a non-skipped task's amount (e.g. light
	// rain trims, but does not cancel, the planned watering); 0 means
	// "unset", treated as 1.0 (no reduction).
	ReductionFactor float64
	FAOContext      fao56.ChannelContext
	Weather         fao56.WeatherInputs
}

type channelState struct {
	lastDailyTriggeredEpochDay   int64
	lastPeriodicWateringEpochDay int64
	periodicInitialized          bool
}

// Scheduler evaluates every channel once per minute and enqueues
// tasks onto the shared FIFO.
type Scheduler struct {
	mu     sync.Mutex
	clk    clock.Source
	log    *logrus.Entry
	fao    *fao56.Engine
	rain   RainQuery
	queue  *taskqueue.Queue
	states map[int]*channelState
}

// New builds a scheduler. rain may be nil (treated as "no rain ever").
func New(clk clock.Source, log *logrus.Logger, fao *fao56.Engine, rain RainQuery, queue *taskqueue.Queue) *Scheduler {
	if log == nil {
		log = logrus.New()
	}
	return &Scheduler{
		clk:    clk,
		log:    log.WithField("component", "scheduler"),
		fao:    fao,
		rain:   rain,
		queue:  queue,
		states: make(map[int]*channelState),
	}
}

func (s *Scheduler) stateFor(channelID int) *channelState {
	st, ok := s.states[channelID]
	if !ok {
		st = &channelState{}
		s.states[channelID] = st
	}
	return st
}

// Evaluate runs one scheduling pass over every given channel at `now`
// (spec §4.L "once per minute, evaluates every channel").
func (s *Scheduler) Evaluate(now time.Time, inputs []ChannelInput) []EvalResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	results := make([]EvalResult, 0, len(inputs))
	for _, in := range inputs {
		results = append(results, s.evaluateOne(now, in))
	}
	return results
}

func (s *Scheduler) evaluateOne(now time.Time, in ChannelInput) EvalResult {
	ch := in.Channel
	res := EvalResult{ChannelID: ch.ID}

	if ch.Event.Schedule.Kind == channel.ScheduleAuto {
		return s.evaluateAuto(now, in)
	}
	if !ch.Event.AutoEnabled {
		return res
	}

	effHour, effMinute := s.effectiveStartTime(now, ch, in.TimeZoneOffsetHours)
	if now.Hour() != effHour || now.Minute() != effMinute {
		return res
	}

	st := s.stateFor(ch.ID)
	epochDay := now.Unix() / 86400

	switch ch.Event.Schedule.Kind {
	case channel.ScheduleDaily:
		if !dayBitSet(ch.Event.Schedule.DaysOfWeekMask, now.Weekday()) {
			return res
		}
		if st.lastDailyTriggeredEpochDay == epochDay {
			res.Skip = SkipAlreadyRanDay
			return res
		}
		st.lastDailyTriggeredEpochDay = epochDay
	case channel.SchedulePeriodic:
		if st.periodicInitialized && epochDay-st.lastPeriodicWateringEpochDay < int64(ch.Event.Schedule.IntervalDays) {
			return res
		}
		st.lastPeriodicWateringEpochDay = epochDay
		st.periodicInitialized = true
	default:
		return res
	}

	return s.enqueueWithRainSkip(now, in, res)
}

func (s *Scheduler) evaluateAuto(now time.Time, in ChannelInput) EvalResult {
	ch := in.Channel
	res := EvalResult{ChannelID: ch.ID}
	if s.fao == nil || !ch.IsConfigured() {
		res.Skip = SkipUnconfigured
		return res
	}

	var rainSource fao56.RainSource
	if s.rain != nil {
		rainSource = rainAdapter{s.rain}
	}

	decision, err := s.fao.DailyUpdateDeficit(in.FAOContext, in.Weather, rainSource, now)
	if err != nil {
		s.log.WithField("channel_id", ch.ID).WithError(err).Warn("AUTO daily pass failed")
		res.Skip = SkipUnconfigured
		return res
	}
	if !decision.ShouldWater {
		res.Skip = SkipAutoNoWater
		return res
	}
	if decision.SkippedReason != "" {
		res.Skip = SkipReason(decision.SkippedReason)
		return res
	}
	if decision.GrossVolumeL <= 0 {
		// a repeat pass on the same UTC day returns the stored decision
		// without a volume; the first pass already built (or rain-skipped)
		// this day's task.
		res.Skip = SkipAlreadyRanDay
		return res
	}

	task := taskqueue.Task{
		ChannelID:    ch.ID,
		Trigger:      taskqueue.TriggerScheduled,
		Target:       taskqueue.TargetVolume,
		VolumeLiters: decision.GrossVolumeL,
	}
	return s.enqueueWithRainSkipTask(now, in, res, task)
}

func (s *Scheduler) enqueueWithRainSkip(now time.Time, in ChannelInput, res EvalResult) EvalResult {
	ch := in.Channel
	var task taskqueue.Task
	switch ch.Event.Mode.Kind {
	case channel.ModeByDuration:
		task = taskqueue.Task{ChannelID: ch.ID, Trigger: taskqueue.TriggerScheduled, Target: taskqueue.TargetDuration, DurationSeconds: ch.Event.Mode.DurationMinutes * 60}
	case channel.ModeByVolume:
		task = taskqueue.Task{ChannelID: ch.ID, Trigger: taskqueue.TriggerScheduled, Target: taskqueue.TargetVolume, VolumeLiters: ch.Event.Mode.VolumeLiters}
	default:
		return s.evaluateAuto(now, in)
	}
	return s.enqueueWithRainSkipTask(now, in, res, task)
}

func (s *Scheduler) enqueueWithRainSkipTask(now time.Time, in ChannelInput, res EvalResult, task taskqueue.Task) EvalResult {
	recentRainMM := 0.0
	if s.rain != nil {
		recentRainMM = s.rain.Last24hMM()
	}
	if in.SkipThresholdMM > 0 && recentRainMM > in.SkipThresholdMM {
		res.Skip = SkipRain
		s.log.WithField("channel_id", in.Channel.ID).WithField("rain_mm", recentRainMM).Info("scheduled watering skipped: RAIN")
		return res
	}

	factor := in.ReductionFactor
	if factor <= 0 {
		factor = 1.0
	}
	task.DurationSeconds *= factor
	task.VolumeLiters *= factor

	s.queue.Enqueue(task)
	res.Enqueued = true
	return res
}

// effectiveStartTime resolves the channel's configured start time,
// optionally via solar timing (spec §4.L "Solar resolution").
func (s *Scheduler) effectiveStartTime(now time.Time, ch *channel.Channel, tzOffsetHours float64) (hour, minute int) {
	st := ch.Event.Start
	if st.Solar == channel.SolarNone {
		return st.Hour, st.Minute
	}

	yearLength := 365
	if fao56.IsLeapYear(now.Year()) {
		yearLength = 366
	}
	latRad := ch.LatitudeDeg * 3.141592653589793 / 180
	solar := fao56.CalcSolarTimes(latRad, now.YearDay(), yearLength, tzOffsetHours)
	if !solar.CalculationValid {
		// polar fallback: use the configured HH:MM literally.
		return st.Hour, st.Minute
	}

	base := solar.SunriseMinutes
	if st.Solar == channel.SolarSunset {
		base = solar.SunsetMinutes
	}
	total := int(base) + st.OffsetMinutes
	for total < 0 {
		total += 1440
	}
	total %= 1440
	return total / 60, total % 60
}

func dayBitSet(mask uint8, day time.Weekday) bool {
	return mask&(1<<uint(day)) != 0
}

type rainAdapter struct{ q RainQuery }

func (r rainAdapter) Last24hMM() float64                 { return r.q.Last24hMM() }
func (r rainAdapter) TodayMM() float64                   { return r.q.TodayMM() }
func (r rainAdapter) HourlySeriesMM(hours int) []float64 { return r.q.HourlySeriesMM(hours) }
