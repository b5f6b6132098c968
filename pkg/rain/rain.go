// Package rain implements the tipping-bucket rain sensor pipeline:
// pulse debounce, outlier statistics, and hourly/daily aggregation
// (spec §4.D). The GPIO edge interrupt itself is an external
// collaborator; this package starts at the debounced pulse.
package rain

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alexmihai1804/autowatering/internal/apperr"
)

// Status is the pipeline's health state.
type Status int

const (
	StatusInactive Status = iota
	StatusActive
	StatusError
)

const (
	DefaultDebounce   = 250 * time.Millisecond
	MinDebounce       = 10 * time.Millisecond
	MaxDebounce       = 1000 * time.Millisecond
	DefaultMaxRateMMH = 100.0
	activeWindow      = 5 * time.Minute
	slidingWindowSize = 10
	statsWindowSize   = 50
	consecutiveInvalidForError = 20
)

// Config is the tunable behavior of the pipeline (spec §4.D).
type Config struct {
	Debounce    time.Duration
	MaxRateMMH  float64
	MMPerPulse  float64
}

// DefaultConfig returns the on-device defaults.
func DefaultConfig(mmPerPulse float64) Config {
	return Config{Debounce: DefaultDebounce, MaxRateMMH: DefaultMaxRateMMH, MMPerPulse: mmPerPulse}
}

func (c Config) validate() error {
	if c.Debounce < MinDebounce || c.Debounce > MaxDebounce {
		return apperr.Newf(apperr.InvalidParam, "debounce %s out of [%s,%s]", c.Debounce, MinDebounce, MaxDebounce)
	}
	if c.MMPerPulse <= 0 {
		return apperr.New(apperr.InvalidParam, "mm_per_pulse must be > 0")
	}
	return nil
}

// Pipeline is the live rain sensor state machine. Pulse handling is
// lock-free on the hot path (atomics only); aggregation and the
// sliding-window statistics take the mutex, matching the ISR/worker
// split in spec §5.
type Pipeline struct {
	cfg Config

	totalPulses   atomic.Uint64
	lastPulseUnixNano atomic.Int64
	consecutiveInvalid atomic.Int32

	mu           sync.Mutex
	pulseWindow  []time.Time // last up-to-10 accepted pulse times, for rate-outlier checks
	statsWindow  []float64   // last up-to-50 inter-pulse intervals (seconds), for z-score
	pulsesThisHour int

	hourly   *hourlyRing
	daily    *dailyRing

	quality int // 0..100
}

// New builds a pipeline with the given config.
func New(cfg Config) (*Pipeline, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Pipeline{
		cfg:     cfg,
		hourly:  newHourlyRing(),
		daily:   newDailyRing(),
		quality: 100,
	}, nil
}

// OnPulse handles one debounced GPIO edge at time now. It validates
// the instantaneous rate against the 10-pulse sliding window,
// updates the 50-sample interval z-score statistic (outliers are
// accepted but counted), and advances the atomic pulse counter.
func (p *Pipeline) OnPulse(now time.Time) {
	lastNano := p.lastPulseUnixNano.Load()
	if lastNano != 0 {
		since := now.Sub(time.Unix(0, lastNano))
		if since < p.cfg.Debounce {
			return // debounced
		}
	}
	p.lastPulseUnixNano.Store(now.UnixNano())

	p.mu.Lock()
	defer p.mu.Unlock()

	isOutlier := p.checkRateOutlierLocked(now)
	p.updateStatsLocked(now)

	if isOutlier {
		p.consecutiveInvalid.Add(1)
		if p.consecutiveInvalid.Load() >= consecutiveInvalidForError {
			p.quality = maxInt(0, p.quality-5)
		}
		return // rejected as outlier, not counted toward the total
	}
	p.consecutiveInvalid.Store(0)

	p.totalPulses.Add(1)
	p.pulsesThisHour++
	p.pushPulseWindowLocked(now)
}

// checkRateOutlierLocked rejects a pulse if the instantaneous rate
// implied by the 10-pulse sliding window would exceed MaxRateMMH.
func (p *Pipeline) checkRateOutlierLocked(now time.Time) bool {
	if len(p.pulseWindow) == 0 {
		return false
	}
	oldest := p.pulseWindow[0]
	elapsed := now.Sub(oldest).Hours()
	if elapsed <= 0 {
		return true
	}
	impliedRate := float64(len(p.pulseWindow)) * p.cfg.MMPerPulse / elapsed
	return impliedRate > p.cfg.MaxRateMMH
}

func (p *Pipeline) pushPulseWindowLocked(now time.Time) {
	p.pulseWindow = append(p.pulseWindow, now)
	if len(p.pulseWindow) > slidingWindowSize {
		p.pulseWindow = p.pulseWindow[len(p.pulseWindow)-slidingWindowSize:]
	}
}

// updateStatsLocked maintains a 50-sample window of inter-pulse
// intervals for z-score based outlier flagging (quality signal only;
// it does not reject pulses the rate check already accepted).
func (p *Pipeline) updateStatsLocked(now time.Time) {
	if len(p.pulseWindow) == 0 {
		return
	}
	interval := now.Sub(p.pulseWindow[len(p.pulseWindow)-1]).Seconds()
	p.statsWindow = append(p.statsWindow, interval)
	if len(p.statsWindow) > statsWindowSize {
		p.statsWindow = p.statsWindow[len(p.statsWindow)-statsWindowSize:]
	}
}

// ZScoreOutlierCount reports, of the current interval statistics
// window, how many samples fall beyond 3 standard deviations of the
// mean.
func (p *Pipeline) ZScoreOutlierCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return zScoreOutliers(p.statsWindow, 3.0)
}

func zScoreOutliers(samples []float64, threshold float64) int {
	n := len(samples)
	if n < 2 {
		return 0
	}
	mean := 0.0
	for _, s := range samples {
		mean += s
	}
	mean /= float64(n)

	var variance float64
	for _, s := range samples {
		d := s - mean
		variance += d * d
	}
	variance /= float64(n)
	if variance == 0 {
		return 0
	}
	stddev := math.Sqrt(variance)

	count := 0
	for _, s := range samples {
		z := (s - mean) / stddev
		if z > threshold || z < -threshold {
			count++
		}
	}
	return count
}

// Status reports the pipeline's current health: ACTIVE if a pulse
// has been seen within the last 5 minutes, INACTIVE otherwise, or
// ERROR after sustained invalid readings.
func (p *Pipeline) Status(now time.Time) Status {
	p.mu.Lock()
	invalidStreak := p.consecutiveInvalid.Load()
	p.mu.Unlock()
	if invalidStreak >= consecutiveInvalidForError {
		return StatusError
	}
	last := p.lastPulseUnixNano.Load()
	if last == 0 {
		return StatusInactive
	}
	if now.Sub(time.Unix(0, last)) <= activeWindow {
		return StatusActive
	}
	return StatusInactive
}

// TotalPulses returns the lifetime accepted pulse count.
func (p *Pipeline) TotalPulses() uint64 { return p.totalPulses.Load() }

// DataQuality returns the current 0-100 quality score.
func (p *Pipeline) DataQuality() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.quality
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
