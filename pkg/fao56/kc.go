package fao56

// CropCoefficient computes Kc_eff at the given day-after-planting
// using the four-stage curve with linear interpolation and canopy
// modulation (spec §4.F "Crop coefficient Kc").
func CropCoefficient(p PlantStages, dap int) (kc, canopyFactor float64) {
	stageInitEnd := p.StageInitDays
	stageDevEnd := stageInitEnd + p.StageDevDays
	stageMidEnd := stageDevEnd + p.StageMidDays
	stageEndEnd := stageMidEnd + p.StageEndDays

	switch {
	case dap <= stageInitEnd:
		kc = p.KcIni
		canopyFactor = 0
	case dap <= stageDevEnd:
		frac := devFraction(dap, stageInitEnd, stageDevEnd)
		kc = p.KcIni + (p.KcMid-p.KcIni)*frac
		canopyFactor = frac * p.CanopyCoverMax
	case dap <= stageMidEnd:
		kc = p.KcMid
		canopyFactor = p.CanopyCoverMax
	case dap <= stageEndEnd:
		frac := devFraction(dap, stageMidEnd, stageEndEnd)
		kc = p.KcMid + (p.KcEnd-p.KcMid)*frac
		canopyFactor = p.CanopyCoverMax
	default:
		kc = p.KcEnd
		canopyFactor = p.CanopyCoverMax
	}

	kcEff := p.KcIni + (kc-p.KcIni)*canopyFactor
	return clamp(kcEff, 0.1, 2.0), canopyFactor
}

func devFraction(dap, start, end int) float64 {
	if end <= start {
		return 1
	}
	f := float64(dap-start) / float64(end-start)
	return clamp(f, 0, 1)
}

// PlantStages is the subset of dbfile.Plant the Kc curve needs,
// expressed in the engine's native float64 units.
type PlantStages struct {
	KcIni, KcMid, KcEnd                             float64
	StageInitDays, StageDevDays, StageMidDays, StageEndDays int
	CanopyCoverMax                                  float64
}
