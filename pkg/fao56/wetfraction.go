package fao56

import "math"

const (
	wetFractionScaleMM  = 3.0   // characteristic ET0 scale for decay
	wetFractionTauHours = 18.0  // time constant when ET0 ~ 0
	wetFractionSlewPerDay = 0.10 / 7.0 // 10%/week
)

// TargetWetFraction is the irrigation-method wetting fraction,
// possibly scaled by distribution uniformity (spec §4.F "Surface wet
// fraction").
func TargetWetFraction(methodWettingFraction, du float64) float64 {
	return clamp(methodWettingFraction*du, 0.10, 1.00)
}

// DecaySurfaceWetFraction advances the first-order filter toward
// target over elapsed time, governed by eto0 (mm/day).
func DecaySurfaceWetFraction(current, target, eto0 float64, elapsedHours float64) float64 {
	if elapsedHours <= 0 {
		return current
	}
	var tauHours float64
	if eto0 <= 0.01 {
		tauHours = wetFractionTauHours
	} else {
		// time to traverse the characteristic scale at the current ET0 rate
		tauHours = (wetFractionScaleMM / eto0) * 24
	}
	decay := math.Exp(-elapsedHours / tauHours)
	return current*decay + target*(1-decay)
}

// OnRainfallEvent jumps the wet fraction to saturation immediately.
func OnRainfallEvent() float64 { return 1.0 }

// OnIrrigationEvent jumps the wet fraction to wettingFraction*DU.
func OnIrrigationEvent(wettingFraction, du float64) float64 {
	return clamp(wettingFraction*du, 0, 1)
}

// SlewWettingFraction bounds the change in effective wetting fraction
// to 10%/week (spec §4.F, invariant in §8).
func SlewWettingFraction(prev, target float64, elapsedDays float64) float64 {
	maxDelta := wetFractionSlewPerDay * elapsedDays
	delta := target - prev
	if delta > maxDelta {
		delta = maxDelta
	} else if delta < -maxDelta {
		delta = -maxDelta
	}
	return clamp(prev+delta, 0.10, 1.00)
}
