// Package envsnap maintains a validated min/max/mean environmental
// snapshot (temperature, relative humidity, pressure) from raw sensor
// samples (spec §2 component E). The BME280-class driver itself is an
// external collaborator (spec §1); this package only validates and
// aggregates whatever readings it is handed.
package envsnap

import (
	"sync"
	"time"
)

// Conservative substitution defaults used when a sensor reading is
// invalid or the snapshot window is empty (spec §4.F "Failure
// semantics").
const (
	DefaultTempMinC  = 15.0
	DefaultTempMaxC  = 25.0
	DefaultRHPct     = 60.0
	DefaultPressureH = 1013.25
)

// Valid sensor ranges; a sample outside these is rejected outright
// rather than merely flagged.
const (
	tempMinValidC  = -40.0
	tempMaxValidC  = 85.0
	rhMinValidPct  = 0.0
	rhMaxValidPct  = 100.0
	pMinValidHPa   = 300.0
	pMaxValidHPa   = 1100.0
)

// Sample is one raw reading handed to the snapshot by the sensor
// driver.
type Sample struct {
	At       time.Time
	TempC    float64
	RHPct    float64
	Pressure float64 // hPa
}

// Snapshot is the aggregated min/max/mean view over the current
// window, plus a validity flag and a 0-100 data-quality score.
type Snapshot struct {
	TempMeanC   float64
	TempMinC    float64
	TempMaxC    float64
	RHMeanPct   float64
	PressureHPa float64
	Valid       bool
	DataQuality int
}

// Aggregator accumulates samples over a rolling window (nominally one
// day) and produces validated snapshots on demand.
type Aggregator struct {
	mu      sync.Mutex
	window  time.Duration
	samples []Sample
	bad     int
	total   int
}

// NewAggregator creates an aggregator with the given rolling window
// (typically 24h for the daily FAO-56 pass).
func NewAggregator(window time.Duration) *Aggregator {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &Aggregator{window: window}
}

func validSample(s Sample) bool {
	if s.TempC < tempMinValidC || s.TempC > tempMaxValidC {
		return false
	}
	if s.RHPct < rhMinValidPct || s.RHPct > rhMaxValidPct {
		return false
	}
	if s.Pressure < pMinValidHPa || s.Pressure > pMaxValidHPa {
		return false
	}
	return true
}

// Add records a sample, dropping it (and counting it against data
// quality) if it falls outside physically plausible ranges.
func (a *Aggregator) Add(s Sample) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.total++
	if !validSample(s) {
		a.bad++
		return
	}
	a.samples = append(a.samples, s)
	a.evictLocked(s.At)
}

func (a *Aggregator) evictLocked(now time.Time) {
	cutoff := now.Add(-a.window)
	i := 0
	for i < len(a.samples) && a.samples[i].At.Before(cutoff) {
		i++
	}
	if i > 0 {
		a.samples = append(a.samples[:0], a.samples[i:]...)
	}
}

// Snapshot produces the current aggregate. If the window holds no
// valid samples, it returns the conservative defaults with Valid =
// false per spec §4.F failure semantics.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.samples) == 0 {
		return Snapshot{
			TempMeanC:   (DefaultTempMinC + DefaultTempMaxC) / 2,
			TempMinC:    DefaultTempMinC,
			TempMaxC:    DefaultTempMaxC,
			RHMeanPct:   DefaultRHPct,
			PressureHPa: DefaultPressureH,
			Valid:       false,
			DataQuality: 0,
		}
	}
	minT, maxT := a.samples[0].TempC, a.samples[0].TempC
	var sumT, sumRH, sumP float64
	for _, s := range a.samples {
		if s.TempC < minT {
			minT = s.TempC
		}
		if s.TempC > maxT {
			maxT = s.TempC
		}
		sumT += s.TempC
		sumRH += s.RHPct
		sumP += s.Pressure
	}
	n := float64(len(a.samples))
	quality := 100
	if a.total > 0 {
		quality = 100 - (a.bad*100)/a.total
	}
	return Snapshot{
		TempMeanC:   sumT / n,
		TempMinC:    minT,
		TempMaxC:    maxT,
		RHMeanPct:   sumRH / n,
		PressureHPa: sumP / n,
		Valid:       true,
		DataQuality: quality,
	}
}

// Reset clears the window and quality counters; used after a long
// gap so a stretch of stale bad readings does not haunt the quality
// score forever.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.samples = nil
	a.bad = 0
	a.total = 0
}
