package fao56

import (
	"sync"
	"time"

	"github.com/alexmihai1804/autowatering/internal/apperr"
	"github.com/alexmihai1804/autowatering/internal/clock"
	"github.com/sirupsen/logrus"
)

// RainSource is the subset of the rain pipeline (pkg/rain) the engine
// consumes: the shared sensor's aggregated views. Taking an interface
// here (rather than importing pkg/rain) keeps this package a leaf.
type RainSource interface {
	Last24hMM() float64
	TodayMM() float64
	HourlySeriesMM(hours int) []float64
}

// channelState is the engine's private per-channel working memory:
// everything daily/realtime passes need between calls that is not
// part of the portable WaterBalance itself (spec §5 "AUTO updates
// take a per-channel mutex or equivalent").
type channelState struct {
	mu sync.Mutex

	balance WaterBalance
	etoSlew SlewState

	rainAppliedSurfaceMM float64
	rainAppliedRootMM    float64
	rainAppliedRawMM     float64

	autoCheckJulianDay int
	autoCheckRanToday  bool

	lastCanopyFactor float64
	lastKc           float64
}

// Engine is the FAO-56 water-balance engine (spec §4.F). One Engine
// instance serves every channel; per-channel mutexes protect the
// working state so realtime and daily passes on different channels
// never block each other.
type Engine struct {
	clock clock.Source
	log   *logrus.Entry

	monthClimatology [12]float64
	cache            Cache

	mu     sync.Mutex
	states map[int]*channelState
}

// New builds an engine. monthClimatology is the per-month ET0
// fallback table (mm/day) used when neither estimator is usable.
// cache is the optional ET0/Kc/balance cache (spec §4.F "Cache"); pass
// nil on a resource-constrained deployment to recompute every value.
func New(clk clock.Source, log *logrus.Logger, monthClimatology [12]float64, cache Cache) *Engine {
	if log == nil {
		log = logrus.New()
	}
	return &Engine{
		clock:            clk,
		log:              log.WithField("component", "fao56"),
		monthClimatology: monthClimatology,
		cache:            cache,
		states:           make(map[int]*channelState),
	}
}

// cachedKc consults the cache for a fresh Kc/canopy pair before
// falling back to recomputing the crop-coefficient curve, and fills
// the cache on a miss.
func (e *Engine) cachedKc(ctx ChannelContext, now time.Time) (kc, canopy float64) {
	if e.cache != nil {
		if kc, canopy, ok := e.cache.GetKc(ctx.ChannelID, now); ok {
			return kc, canopy
		}
	}
	kc, canopy = CropCoefficient(PlantStages{
		KcIni: float64(ctx.Plant.KcIni), KcMid: float64(ctx.Plant.KcMid), KcEnd: float64(ctx.Plant.KcEnd),
		StageInitDays: int(ctx.Plant.StageInitDays), StageDevDays: int(ctx.Plant.StageDevDays),
		StageMidDays: int(ctx.Plant.StageMidDays), StageEndDays: int(ctx.Plant.StageEndDays),
		CanopyCoverMax: float64(ctx.Plant.CanopyCoverMax),
	}, ctx.DaysAfterPlanting)
	if e.cache != nil {
		e.cache.PutKc(ctx.ChannelID, kc, canopy, now)
	}
	return kc, canopy
}

func (e *Engine) stateFor(channelID int, initial WaterBalance) *channelState {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.states[channelID]
	if !ok {
		s = &channelState{balance: initial}
		e.states[channelID] = s
	}
	return s
}

// SeedBalance installs a previously-persisted balance for a channel,
// e.g. at boot after loading the KV record.
func (e *Engine) SeedBalance(channelID int, b WaterBalance) {
	s := e.stateFor(channelID, b)
	s.mu.Lock()
	s.balance = b
	s.mu.Unlock()
}

// Balance returns the current in-memory balance for a channel.
func (e *Engine) Balance(channelID int) WaterBalance {
	s := e.stateFor(channelID, WaterBalance{})
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance
}

// CachedBalance returns a cached balance snapshot without taking the
// per-channel mutex, for external read-only consumers (e.g. a status
// surface) that can tolerate the cache's staleness window. It reports
// false whenever the cache is disabled or the entry has expired.
func (e *Engine) CachedBalance(channelID int, now time.Time) (WaterBalance, bool) {
	if e.cache == nil {
		return WaterBalance{}, false
	}
	return e.cache.GetBalance(channelID, now)
}

func validateChannelContext(ctx ChannelContext) error {
	if ctx.ChannelID < 0 || ctx.ChannelID > 7 {
		return apperr.New(apperr.InvalidParam, "channel id out of range")
	}
	if ctx.Plant.Name == "" || ctx.Soil.Name == "" || ctx.Method.Name == "" {
		return apperr.New(apperr.Config, "channel missing plant/soil/irrigation method")
	}
	if !ctx.AreaBased && ctx.PlantCount <= 0 {
		return apperr.New(apperr.Config, "plant-count coverage requires plant_count > 0")
	}
	if ctx.AreaBased && ctx.AreaM2 <= 0 {
		return apperr.New(apperr.Config, "area coverage requires area_m2 > 0")
	}
	return nil
}

func sunFactor(sunExposurePct float64) float64 {
	return clamp(sunExposurePct/100, 0.3, 1.0)
}

// RealtimeUpdateDeficit accumulates crop ET onto current_deficit_mm
// using the uptime delta since the last call, and applies any
// incremental rainfall accrued since the last call (spec §4.F
// "realtime_update_deficit"). It never persists.
func (e *Engine) RealtimeUpdateDeficit(ctx ChannelContext, env WeatherInputs, rainSource RainSource) error {
	if err := validateChannelContext(ctx); err != nil {
		return err
	}
	s := e.stateFor(ctx.ChannelID, WaterBalance{})
	s.mu.Lock()
	defer s.mu.Unlock()

	now := e.clock.Monotonic()
	nowMS := now.Milliseconds()

	var deltaS float64
	if s.balance.LastUpdateTime > 0 {
		deltaS = float64(nowMS-s.balance.LastUpdateTime) / 1000
	}
	if deltaS < 0 {
		deltaS = 0
	}
	s.balance.LastUpdateTime = nowMS

	wallNow := e.clock.Now()
	kc, canopy := e.cachedKc(ctx, wallNow)
	s.lastKc, s.lastCanopyFactor = kc, canopy

	var eto float64
	cachedETo := false
	if e.cache != nil {
		eto, cachedETo = e.cache.GetETo(ctx.ChannelID, env.TempMeanC, env.RHMeanPct, env.PressureHPa, wallNow)
	}
	if !cachedETo {
		ra := extraterrestrialRadiation(ctx.LatitudeRad, dayOfYearFromUnix(wallNow))
		eto = hargreavesSamani(env, ra)
		eto = s.etoSlew.ApplySlew(eto, float64(wallNow.Unix())/86400, IsHeatwave(env))
		if e.cache != nil {
			e.cache.PutETo(ctx.ChannelID, EToCacheEntry{ETo: eto, TempC: env.TempMeanC, RHPct: env.RHMeanPct, PressureHPa: env.PressureHPa, At: wallNow})
		}
	}

	bucket := ComputeSurfaceBucket(float64(ctx.Soil.ThetaFC), float64(ctx.Soil.ThetaWP), ctx.Soil.Texture)
	s.balance.SurfaceTEWMM, s.balance.SurfaceREWMM = bucket.TEWMM, bucket.REWMM
	ke := SoilEvaporationKe(bucket, s.balance.SurfaceDeficitMM, s.balance.SurfaceWetFraction, canopy)

	sf := sunFactor(ctx.SunExposurePct)
	fracDay := deltaS / 86400
	s.balance.CurrentDeficitMM += eto * kc * sf * fracDay
	s.balance.SurfaceDeficitMM += eto * ke * sf * fracDay

	if rainSource != nil {
		rawSinceBoot := rainSource.Last24hMM()
		incremental := rawSinceBoot - s.rainAppliedRawMM
		if incremental > 0.5 {
			eff := EffectivePrecipitation(incremental, float64(ctx.Soil.InfiltrationRateMMH), ctx.Soil.Texture)
			surfApplied, rootApplied := RouteRain(&s.balance, eff)
			s.rainAppliedSurfaceMM += surfApplied
			s.rainAppliedRootMM += rootApplied
			s.rainAppliedRawMM = rawSinceBoot
		}
	}

	s.balance.RWZAwcMM = clampPositive(s.balance.RWZAwcMM)
	s.balance.Clamp()
	if e.cache != nil {
		e.cache.PutBalance(ctx.ChannelID, s.balance, wallNow)
	}
	return nil
}

func clampPositive(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

// DailyUpdateDeficit runs the full daily AUTO pass: daily ET0, Kc,
// Ke, stress-adjusted MAD, should_water decision, and gross volume
// (spec §4.F "daily_update_deficit"). It is idempotent within the
// same UTC day via auto_check_ran_today/auto_check_julian_day.
func (e *Engine) DailyUpdateDeficit(ctx ChannelContext, env WeatherInputs, rain RainSource, now time.Time) (AutoDecision, error) {
	if err := validateChannelContext(ctx); err != nil {
		return AutoDecision{}, err
	}
	s := e.stateFor(ctx.ChannelID, WaterBalance{})
	s.mu.Lock()
	defer s.mu.Unlock()

	julianDay := julianDayNumber(now)
	if s.autoCheckJulianDay == julianDay && s.autoCheckRanToday {
		return e.lastDecisionLocked(s), nil
	}

	var eto float64
	cachedETo := false
	if e.cache != nil {
		eto, cachedETo = e.cache.GetETo(ctx.ChannelID, env.TempMeanC, env.RHMeanPct, env.PressureHPa, now)
	}
	if !cachedETo {
		dayOfYear := now.YearDay()
		rawETo := BlendETo(env, ctx.LatitudeRad, dayOfYear, e.monthClimatology, int(now.Month()))
		eto = s.etoSlew.ApplySlew(rawETo, float64(now.Unix())/86400, IsHeatwave(env))
		if e.cache != nil {
			e.cache.PutETo(ctx.ChannelID, EToCacheEntry{ETo: eto, TempC: env.TempMeanC, RHPct: env.RHMeanPct, PressureHPa: env.PressureHPa, At: now})
		}
	}

	kc, canopy := e.cachedKc(ctx, now)

	bucket := ComputeSurfaceBucket(float64(ctx.Soil.ThetaFC), float64(ctx.Soil.ThetaWP), ctx.Soil.Texture)
	s.balance.SurfaceTEWMM, s.balance.SurfaceREWMM = bucket.TEWMM, bucket.REWMM
	ke := SoilEvaporationKe(bucket, s.balance.SurfaceDeficitMM, s.balance.SurfaceWetFraction, canopy)

	sf := sunFactor(ctx.SunExposurePct)
	s.balance.CurrentDeficitMM += eto * kc * sf
	s.balance.SurfaceDeficitMM += eto * ke * sf

	if rain != nil {
		hourly := rain.HourlySeriesMM(24)
		eff := EffectivePrecipitationHourly(hourly, float64(ctx.Soil.InfiltrationRateMMH), ctx.Soil.Texture, s.rainAppliedRawMM, rain.Last24hMM())
		surfApplied, rootApplied := RouteRain(&s.balance, eff)
		s.rainAppliedSurfaceMM += surfApplied
		s.rainAppliedRootMM += rootApplied
		s.balance.EffectiveRainMM = eff
		s.rainAppliedRawMM = 0
	}

	du := float64(ctx.Method.DistributionUniformity)
	target := TargetWetFraction(float64(ctx.Method.WettingFraction), du)
	s.balance.SurfaceWetFraction = SlewWettingFraction(s.balance.SurfaceWetFraction, target, 1)

	madPrime := MADPrime(float64(ctx.Plant.DepletionFraction), eto*kc, env.TempMaxC, float64(ctx.Plant.ToptMaxC), env.RHMeanPct, ctx.EcoMode)
	should := IrrigationNeeded(s.balance.CurrentDeficitMM, s.balance.WettingAwcMM, madPrime)

	decision := AutoDecision{
		ShouldWater: should,
		ETo:         eto,
		Kc:          kc,
		Ke:          ke,
		MADPrime:    madPrime,
		DeficitMM:   s.balance.CurrentDeficitMM,
	}

	if should {
		volumeL, areaM2 := GrossVolume(ctx, s.balance.CurrentDeficitMM, canopy)
		minThreshold := MinimumVolumeThresholdL(areaM2)
		if volumeL < minThreshold {
			decision.ShouldWater = false
			decision.SkippedReason = "MIN_VOLUME"
		} else {
			clampedL, limited := ClampVolumeLimit(volumeL, ctx.MaxVolumeLimitL)
			if limited {
				e.log.WithField("channel_id", ctx.ChannelID).Warn("gross volume clamped to max_volume_limit_l")
			}
			decision.GrossVolumeL = clampedL

			rateMMPerHour := float64(ctx.Method.FlowRateLPerHourPerM2)
			plan := PlanCycles(clampedL/areaM2, rateMMPerHour, float64(ctx.Soil.InfiltrationRateMMH), ctx.Soil.Texture)
			decision.Cycles = plan.Cycles
			decision.CycleMinutes = plan.CycleMinutes
			decision.SoakMinutes = plan.SoakMinutes
		}
	}

	s.balance.IrrigationNeeded = decision.ShouldWater
	s.balance.Clamp()

	s.autoCheckJulianDay = julianDay
	s.autoCheckRanToday = true
	s.lastKc, s.lastCanopyFactor = kc, canopy

	if e.cache != nil {
		e.cache.PutBalance(ctx.ChannelID, s.balance, now)
	}

	return decision, nil
}

func (e *Engine) lastDecisionLocked(s *channelState) AutoDecision {
	return AutoDecision{
		ShouldWater: s.balance.IrrigationNeeded,
		DeficitMM:   s.balance.CurrentDeficitMM,
		Kc:          s.lastKc,
	}
}

// ApplyRainfallIncrement broadcasts an incremental effective-rainfall
// event to every AUTO-valid channel, updating both surface and root
// buckets (spec §4.F "apply_rainfall_increment").
func (e *Engine) ApplyRainfallIncrement(contexts map[int]ChannelContext, rainMM, airTempC float64, durationS int) error {
	if rainMM < 0 {
		return apperr.New(apperr.InvalidParam, "rainMM must be >= 0")
	}
	for id, ctx := range contexts {
		if err := validateChannelContext(ctx); err != nil {
			continue
		}
		s := e.stateFor(id, WaterBalance{})
		s.mu.Lock()
		eff := EffectivePrecipitation(rainMM, float64(ctx.Soil.InfiltrationRateMMH), ctx.Soil.Texture)
		surfApplied, rootApplied := RouteRain(&s.balance, eff)
		s.rainAppliedSurfaceMM += surfApplied
		s.rainAppliedRootMM += rootApplied
		s.balance.SurfaceWetFraction = OnRainfallEvent()
		s.mu.Unlock()
	}
	return nil
}

// ApplyMissedDaysDeficit performs a climatology-based catch-up after
// a boot gap (spec §4.F "apply_missed_days_deficit"); daysMissed is
// saturated at 30.
func (e *Engine) ApplyMissedDaysDeficit(ctx ChannelContext, daysMissed int) error {
	if err := validateChannelContext(ctx); err != nil {
		return err
	}
	if daysMissed > 30 {
		daysMissed = 30
	}
	if daysMissed <= 0 {
		return nil
	}
	s := e.stateFor(ctx.ChannelID, WaterBalance{})
	s.mu.Lock()
	defer s.mu.Unlock()

	month := int(e.clock.Now().Month()) - 1
	climEto := e.monthClimatology[month]

	kc, _ := CropCoefficient(PlantStages{
		KcIni: float64(ctx.Plant.KcIni), KcMid: float64(ctx.Plant.KcMid), KcEnd: float64(ctx.Plant.KcEnd),
		StageInitDays: int(ctx.Plant.StageInitDays), StageDevDays: int(ctx.Plant.StageDevDays),
		StageMidDays: int(ctx.Plant.StageMidDays), StageEndDays: int(ctx.Plant.StageEndDays),
		CanopyCoverMax: float64(ctx.Plant.CanopyCoverMax),
	}, ctx.DaysAfterPlanting)

	sf := sunFactor(ctx.SunExposurePct)
	s.balance.CurrentDeficitMM += climEto * kc * sf * float64(daysMissed)
	s.etoSlew = SlewState{}
	s.balance.Clamp()
	return nil
}

// ReduceDeficitAfterIrrigation applies a completed task's delivered
// volume back onto the balance, splitting root vs surface by
// efficiency (spec §4.F "reduce_deficit_after_irrigation").
func (e *Engine) ReduceDeficitAfterIrrigation(ctx ChannelContext, volumeL float64) error {
	if err := validateChannelContext(ctx); err != nil {
		return err
	}
	if volumeL < 0 {
		return apperr.New(apperr.InvalidParam, "volumeL must be >= 0")
	}
	s := e.stateFor(ctx.ChannelID, WaterBalance{})
	s.mu.Lock()
	defer s.mu.Unlock()

	var areaM2 float64
	if ctx.AreaBased {
		areaM2 = ctx.AreaM2
	} else {
		areaM2 = areaPerPlantM2(ctx) * float64(ctx.PlantCount)
	}
	if areaM2 <= 0 {
		return apperr.New(apperr.Config, "zero irrigated area")
	}
	appliedMM := volumeL / areaM2
	efficiency := float64(ctx.Method.Efficiency)
	rootMM := appliedMM * efficiency
	surfaceMM := appliedMM * (1 - efficiency)

	s.balance.CurrentDeficitMM -= rootMM
	s.balance.SurfaceDeficitMM -= surfaceMM
	s.balance.SurfaceWetFraction = OnIrrigationEvent(float64(ctx.Method.WettingFraction), float64(ctx.Method.DistributionUniformity))
	s.balance.Clamp()
	return nil
}

func dayOfYearFromUnix(t time.Time) int { return t.YearDay() }

func julianDayNumber(t time.Time) int {
	return int(t.Unix() / 86400)
}

// IsLeapYear reports whether year has 366 days, for solar/day-of-year math.
func IsLeapYear(year int) bool {
	return (year%4 == 0 && year%100 != 0) || year%400 == 0
}
