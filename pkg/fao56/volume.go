package fao56

import "math"

// ecoVolumeFactor trims the ECO-mode target volume further, paired
// with the ECO MAD boost in MADPrime.
const ecoVolumeFactor = 0.85

// GrossVolume computes the target gross irrigation volume in liters
// for either area-based or plant-count coverage (spec §4.F "Gross
// volume"). irrigatedAreaM2 is returned for the minimum-threshold
// check.
func GrossVolume(ctx ChannelContext, deficitMM float64, canopyFactor float64) (volumeL, irrigatedAreaM2 float64) {
	efficiency := float64(ctx.Method.Efficiency)
	du := float64(ctx.Method.DistributionUniformity)
	ecoFactor := 1.0
	if ctx.EcoMode {
		ecoFactor = ecoVolumeFactor
	}

	if efficiency <= 0 || du <= 0 {
		return 0, 0
	}
	grossMM := deficitMM / (efficiency * du) * ecoFactor

	if ctx.AreaBased {
		irrigatedAreaM2 = ctx.AreaM2
		return grossMM * irrigatedAreaM2, irrigatedAreaM2
	}

	areaPerPlant := areaPerPlantM2(ctx)
	irrigatedAreaM2 = areaPerPlant * float64(ctx.PlantCount)
	canopyReduction := clamp(0.5+0.5*canopyFactor, 0.5, 1.0)
	return grossMM * irrigatedAreaM2 * canopyReduction, irrigatedAreaM2
}

func areaPerPlantM2(ctx ChannelContext) float64 {
	if ctx.Plant.SpacingM > 0 {
		spacing := float64(ctx.Plant.SpacingM)
		return spacing * spacing
	}
	if ctx.Plant.DefaultDensityPerM2 > 0 {
		return 1.0 / float64(ctx.Plant.DefaultDensityPerM2)
	}
	return 1.0
}

// MinimumVolumeThresholdL is the dribble-irrigation suppression floor
// (spec §4.F "a minimum total threshold"). This repo's reading of an
// otherwise-ambiguous constant is recorded in the design ledger.
func MinimumVolumeThresholdL(irrigatedAreaM2 float64) float64 {
	return math.Max(0.5, 0.1*irrigatedAreaM2)
}

// ClampVolumeLimit enforces the channel's max_volume_limit_l,
// returning the clamped volume and whether clamping occurred (the
// caller logs a note when true, per spec §4.F).
func ClampVolumeLimit(volumeL, maxVolumeLimitL float64) (clamped float64, wasLimited bool) {
	if maxVolumeLimitL <= 0 {
		return volumeL, false
	}
	if volumeL > maxVolumeLimitL {
		return maxVolumeLimitL, true
	}
	return volumeL, false
}

// CycleSoakPlan is the cycle-and-soak split for a gross application
// (spec §4.F "Cycle-and-soak").
type CycleSoakPlan struct {
	Cycles       int
	CycleMinutes float64
	SoakMinutes  float64
}

func soakMultiplierForTexture(texture uint8) float64 {
	switch texture {
	case 0: // sand
		return 2
	case 2: // clay
		return 4
	default: // loam
		return 3
	}
}

// PlanCycles computes the cycle-and-soak schedule for a gross
// application of grossMM at the method's nominal application rate
// against the soil's infiltration rate.
func PlanCycles(grossMM float64, methodRateMMPerHour, infiltrationRateMMH float64, texture uint8) CycleSoakPlan {
	if methodRateMMPerHour <= 0 {
		methodRateMMPerHour = infiltrationRateMMH
	}

	if methodRateMMPerHour <= 1.2*infiltrationRateMMH {
		durationMin := grossMM / methodRateMMPerHour * 60
		durationMin = clamp(durationMin, 5, 60*6) // a single cycle isn't clamped to the multi-cycle band
		return CycleSoakPlan{Cycles: 1, CycleMinutes: durationMin, SoakMinutes: 0}
	}

	cycles := int(math.Ceil(methodRateMMPerHour / (0.8 * infiltrationRateMMH)))
	if cycles < 2 {
		cycles = 2
	}
	if cycles > 6 {
		cycles = 6
	}

	perCycleMM := grossMM / float64(cycles)
	cycleMinutes := clamp(perCycleMM/methodRateMMPerHour*60, 5, 60)
	soakMinutes := clamp(cycleMinutes*soakMultiplierForTexture(texture), 10, 240)

	return CycleSoakPlan{Cycles: cycles, CycleMinutes: cycleMinutes, SoakMinutes: soakMinutes}
}
