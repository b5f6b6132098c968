package fao56

import "math"

// SolarTimes is the result of calc_solar_times (spec §4.F "Solar
// timing").
type SolarTimes struct {
	SunriseMinutes float64 // minutes after local midnight, UTC-based fractional day
	SunsetMinutes  float64
	CalculationValid bool
	IsPolarDay   bool
	IsPolarNight bool
}

const (
	polarFallbackSunriseMin = 6 * 60
	polarFallbackSunsetMin  = 18 * 60
	solarZenithDeg          = 90.833
)

// CalcSolarTimes implements the NOAA sunrise/sunset algorithm
// (fractional-year gamma, equation of time, solar declination,
// sunset hour angle at zenith 90.833 deg) for latitude latRad on the
// given day-of-year (1-366) of a year with the given length (365 or
// 366). Longitude is not modeled (the controller uses UTC offsets via
// the configured timezone, not true solar noon); timeZoneOffsetHours
// shifts the UTC-based result into local clock minutes.
func CalcSolarTimes(latRad float64, dayOfYear, yearLength int, timeZoneOffsetHours float64) SolarTimes {
	gamma := 2 * math.Pi / float64(yearLength) * (float64(dayOfYear) - 1)

	eqTime := 229.18 * (0.000075 +
		0.001868*math.Cos(gamma) - 0.032077*math.Sin(gamma) -
		0.014615*math.Cos(2*gamma) - 0.040849*math.Sin(2*gamma))

	decl := 0.006918 - 0.399912*math.Cos(gamma) + 0.070257*math.Sin(gamma) -
		0.006758*math.Cos(2*gamma) + 0.000907*math.Sin(2*gamma) -
		0.002697*math.Cos(3*gamma) + 0.00148*math.Sin(3*gamma)

	zenith := solarZenithDeg * math.Pi / 180
	cosHA := (math.Cos(zenith) - math.Sin(latRad)*math.Sin(decl)) / (math.Cos(latRad) * math.Cos(decl))

	if cosHA > 1 {
		return SolarTimes{
			SunriseMinutes:   polarFallbackSunriseMin,
			SunsetMinutes:    polarFallbackSunsetMin,
			CalculationValid: false,
			IsPolarNight:     true,
		}
	}
	if cosHA < -1 {
		return SolarTimes{
			SunriseMinutes:   polarFallbackSunriseMin,
			SunsetMinutes:    polarFallbackSunsetMin,
			CalculationValid: false,
			IsPolarDay:       true,
		}
	}

	haDeg := math.Acos(cosHA) * 180 / math.Pi
	tzOffsetMin := timeZoneOffsetHours * 60

	sunriseUTCMin := 720 - 4*(haDeg) - eqTime
	sunsetUTCMin := 720 + 4*(haDeg) - eqTime

	return SolarTimes{
		SunriseMinutes:   wrapMinutes(sunriseUTCMin + tzOffsetMin),
		SunsetMinutes:    wrapMinutes(sunsetUTCMin + tzOffsetMin),
		CalculationValid: true,
	}
}

func wrapMinutes(m float64) float64 {
	for m < 0 {
		m += 1440
	}
	for m >= 1440 {
		m -= 1440
	}
	return m
}

// extraterrestrialRadiation computes Ra (MJ/m^2/day) from latitude
// (rad) and day-of-year using the standard FAO-56 orbital formulas
// (spec §4.F Hargreaves-Samani).
func extraterrestrialRadiation(latRad float64, dayOfYear int) float64 {
	const solarConstant = 0.0820 // MJ/m^2/min (Gsc)
	dr := 1 + 0.033*math.Cos(2*math.Pi/365*float64(dayOfYear))
	decl := 0.409 * math.Sin(2*math.Pi/365*float64(dayOfYear)-1.39)

	cosWs := -math.Tan(latRad) * math.Tan(decl)
	cosWs = clamp(cosWs, -1, 1)
	ws := math.Acos(cosWs)

	ra := (24 * 60 / math.Pi) * solarConstant * dr *
		(ws*math.Sin(latRad)*math.Sin(decl) + math.Cos(latRad)*math.Cos(decl)*math.Sin(ws))
	if ra < 0 {
		ra = 0
	}
	return ra
}
