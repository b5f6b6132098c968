package fao56

import "math"

// EffectivePrecipitation computes effective rainfall (mm) from a raw
// rainfall amount R (mm), following the piecewise model in spec §4.F
// "Effective precipitation". infiltrationRateMMH and texture bias the
// runoff coefficient.
func EffectivePrecipitation(rMM, infiltrationRateMMH float64, texture uint8) float64 {
	if rMM < 1 {
		return 0.3 * rMM
	}

	durationHours, intensity := durationIntensity(rMM)

	runoff := 0.0
	if intensity > 0 {
		runoff = math.Max(0, intensity-infiltrationRateMMH) / intensity
	}
	switch texture {
	case 2: // clay
		runoff += 0.05
	case 0: // sand
		runoff -= 0.05
	}
	runoff = clamp(runoff, 0, 1)

	postRunoff := rMM * (1 - runoff)

	evapDurationHours := math.Min(durationHours+2, 6)
	evapRate := 0.1 // mm/h baseline
	switch {
	case rMM < 5:
		evapRate *= 1.5
	case rMM > 20:
		evapRate *= 0.7
	}
	evapLoss := evapRate * evapDurationHours
	evapLoss = math.Min(evapLoss, 0.30*postRunoff)

	eff := postRunoff - evapLoss
	if eff < 0 {
		eff = 0
	}
	return eff
}

// durationIntensity derives a plausible storm duration (hours) and
// average intensity (mm/h) from a total rainfall amount, using a
// piecewise-linear table approximating common storm profiles (spec
// §4.F "derive duration and intensity from R").
func durationIntensity(rMM float64) (durationHours, intensityMMH float64) {
	switch {
	case rMM <= 5:
		durationHours = 0.5
	case rMM <= 15:
		durationHours = 1
	case rMM <= 30:
		durationHours = 2
	case rMM <= 60:
		durationHours = 4
	default:
		durationHours = 6
	}
	intensityMMH = rMM / durationHours
	return
}

// EffectivePrecipitationHourly sums per-hour effective precipitation
// for an hourly rainfall series (mm per hour), rather than
// bulk-computing over the total (spec §4.F "When hourly data is
// available"). If the 24h raw sum exceeds remaining capacity already
// applied, the most recent hours are shaved first.
func EffectivePrecipitationHourly(hourlyMM []float64, infiltrationRateMMH float64, texture uint8, alreadyAppliedRawMM, remainingCapacityRawMM float64) float64 {
	rawSum := 0.0
	for _, h := range hourlyMM {
		rawSum += h
	}
	available := remainingCapacityRawMM - alreadyAppliedRawMM
	if available < 0 {
		available = 0
	}

	hours := make([]float64, len(hourlyMM))
	copy(hours, hourlyMM)
	if rawSum > available {
		excess := rawSum - available
		for i := len(hours) - 1; i >= 0 && excess > 1e-9; i-- {
			take := math.Min(hours[i], excess)
			hours[i] -= take
			excess -= take
		}
	}

	total := 0.0
	for _, h := range hours {
		if h <= 0 {
			continue
		}
		total += EffectivePrecipitation(h, infiltrationRateMMH, texture)
	}
	return total
}

// RouteRain splits effective rain (mm) between the surface bucket
// (up to surfaceTEW) and the root-zone deficit, per spec §4.F "Rain
// routing": effective rain first refills surface_deficit_mm up to
// surface_tew_mm, the remainder refills current_deficit_mm.
func RouteRain(b *WaterBalance, effectiveMM float64) (surfaceApplied, rootApplied float64) {
	if effectiveMM <= 0 {
		return 0, 0
	}
	surfaceHeadroom := b.SurfaceDeficitMM
	surfaceApplied = math.Min(effectiveMM, surfaceHeadroom)
	b.SurfaceDeficitMM -= surfaceApplied

	remainder := effectiveMM - surfaceApplied
	rootApplied = math.Min(remainder, b.CurrentDeficitMM)
	b.CurrentDeficitMM -= rootApplied

	b.Clamp()
	return surfaceApplied, rootApplied
}
