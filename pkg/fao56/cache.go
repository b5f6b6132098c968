package fao56

import "time"

// Cache tolerances and max ages (spec §4.F "Cache").
const (
	EToTempToleranceC  = 0.5
	EToRHTolerancePct  = 5.0 // expressed as a fraction of the cached RH value
	EToPressureToleranceHPa = 2.0
	EToMaxAge          = time.Hour
	KcMaxAge           = time.Hour
	BalanceMaxAge      = 15 * time.Minute
)

// EToCacheEntry is a cached ET0 result plus the inputs it was
// computed from, so a fresh lookup can check tolerances.
type EToCacheEntry struct {
	ETo         float64
	TempC       float64
	RHPct       float64
	PressureHPa float64
	At          time.Time
}

// Matches reports whether a fresh set of inputs falls within this
// cache entry's tolerance band and age limit.
func (e EToCacheEntry) Matches(tempC, rhPct, pressureHPa float64, now time.Time) bool {
	if now.Sub(e.At) > EToMaxAge {
		return false
	}
	if abs(tempC-e.TempC) > EToTempToleranceC {
		return false
	}
	if abs(pressureHPa-e.PressureHPa) > EToPressureToleranceHPa {
		return false
	}
	rhTol := e.RHPct * (EToRHTolerancePct / 100)
	if rhTol < 1 {
		rhTol = 1
	}
	return abs(rhPct-e.RHPct) <= rhTol
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// Cache is the optional per-channel ET0/Kc/balance cache. A
// resource-constrained deployment disables it and falls back to
// recomputing every value (spec §4.F "A resource-constrained flag
// disables the cache").
type Cache interface {
	GetETo(channelID int, tempC, rhPct, pressureHPa float64, now time.Time) (float64, bool)
	PutETo(channelID int, entry EToCacheEntry)

	GetKc(channelID int, now time.Time) (kc, canopyFactor float64, ok bool)
	PutKc(channelID int, kc, canopyFactor float64, at time.Time)

	GetBalance(channelID int, now time.Time) (WaterBalance, bool)
	PutBalance(channelID int, b WaterBalance, at time.Time)
}
