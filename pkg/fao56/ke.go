package fao56

import "math"

// SurfaceBucket holds the evaporable-water bucket sizing derived from
// soil texture (spec §4.F "Soil evaporation coefficient Ke").
type SurfaceBucket struct {
	TEWMM float64
	REWMM float64
}

// texture-biased REW base (mm), before clamping against TEW.
func rewBaseForTexture(texture uint8) float64 {
	switch texture {
	case 0: // sand
		return 3
	case 2: // clay
		return 8
	default: // loam
		return 6
	}
}

// ComputeSurfaceBucket derives TEW/REW from field capacity and
// wilting point (volumetric fractions) and soil texture.
func ComputeSurfaceBucket(thetaFC, thetaWP float64, texture uint8) SurfaceBucket {
	tew := clamp(1000*0.10*(thetaFC-thetaWP), 4, 15)
	rew := clamp(rewBaseForTexture(texture), 2, math.Min(tew, 8))
	return SurfaceBucket{TEWMM: tew, REWMM: rew}
}

// SoilEvaporationKe computes Ke for the day from the surface bucket
// state, wetted area fraction, and canopy factor.
func SoilEvaporationKe(bucket SurfaceBucket, surfaceDeficitMM, wettedArea, canopyFactor float64) float64 {
	reduction := math.Max(1-0.5*canopyFactor, 0.3)
	keMax := 0.90 * wettedArea * reduction

	var ke float64
	if surfaceDeficitMM <= bucket.REWMM {
		ke = keMax
	} else if bucket.TEWMM > bucket.REWMM {
		ke = keMax * (bucket.TEWMM - surfaceDeficitMM) / (bucket.TEWMM - bucket.REWMM)
	} else {
		ke = 0
	}
	return clamp(ke, 0, 1.2)
}
