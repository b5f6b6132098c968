// Package fao56 implements the dual-Kc FAO-56 water balance engine:
// ET0 estimation with ensemble blending and slew limiting, crop and
// soil-evaporation coefficients, effective-rainfall routing,
// management-allowed depletion (MAD) triggering, and gross irrigation
// volume with cycle-and-soak splitting (spec §4.F).
package fao56

import (
	"github.com/alexmihai1804/autowatering/internal/dbfile"
)

// WaterBalance is the per-channel state owned by the channel (spec
// §3 "Water balance"). Every field here is an observable invariant
// surface: 0 <= current_deficit_mm <= wetting_awc_mm, etc.
type WaterBalance struct {
	RWZAwcMM         float64 // root-zone available water capacity
	WettingFraction  float64 // [0.10, 1.00]
	WettingAwcMM     float64 // RWZAwcMM * WettingFraction
	RawMM            float64 // wetting_awc_mm * depletion_fraction
	CurrentDeficitMM float64 // [0, WettingAwcMM]

	SurfaceTEWMM       float64
	SurfaceREWMM       float64
	SurfaceDeficitMM   float64
	SurfaceWetFraction float64 // [0,1]
	SurfaceWetUpdateS  int64   // monotonic seconds of last wet-fraction update

	EffectiveRainMM float64 // last 24h
	LastUpdateTime  int64   // monotonic milliseconds
	IrrigationNeeded bool
}

// Clamp enforces the invariants named in spec §8 after any mutation.
func (b *WaterBalance) Clamp() {
	b.WettingAwcMM = clamp(b.WettingAwcMM, 0, b.RWZAwcMM)
	b.CurrentDeficitMM = clamp(b.CurrentDeficitMM, 0, b.WettingAwcMM)
	b.SurfaceREWMM = clamp(b.SurfaceREWMM, 0, b.SurfaceTEWMM)
	b.SurfaceDeficitMM = clamp(b.SurfaceDeficitMM, 0, b.SurfaceTEWMM)
	b.SurfaceWetFraction = clamp(b.SurfaceWetFraction, 0, 1)
	b.WettingFraction = clamp(b.WettingFraction, 0.10, 1.00)
}

// AutoDecision is the result of a daily AUTO pass (spec §4.F
// daily_update_deficit).
type AutoDecision struct {
	ShouldWater    bool
	GrossVolumeL   float64
	Cycles         int
	CycleMinutes   float64
	SoakMinutes    float64
	ETo            float64
	Kc             float64
	Ke             float64
	MADPrime       float64
	DeficitMM      float64
	SkippedReason  string // "" unless suppressed; the engine sets only "MIN_VOLUME"
}

// ChannelContext is everything the engine needs about a channel for a
// single calculation pass, gathered by the caller so this package
// does not need to import pkg/channel (avoiding an import cycle,
// since pkg/channel embeds a WaterBalance).
type ChannelContext struct {
	ChannelID int

	Plant  dbfile.Plant
	Soil   dbfile.Soil
	Method dbfile.IrrigationMethod

	AreaBased  bool
	AreaM2     float64
	PlantCount int

	LatitudeRad       float64
	SunExposurePct    float64
	EcoMode           bool
	MaxVolumeLimitL   float64
	DaysAfterPlanting int
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
