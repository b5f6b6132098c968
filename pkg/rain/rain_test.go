package rain_test

import (
	"testing"
	"time"

	"github.com/alexmihai1804/autowatering/internal/kvstore/filestore"
	"github.com/alexmihai1804/autowatering/pkg/rain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipeline_DebouncesRapidPulses(t *testing.T) {
	// default 250ms debounce; the rate limit is raised so the 300ms pulse
	// below (0.2mm in 0.3s = 2400 mm/h) is not rejected as a rate outlier.
	p, err := rain.New(rain.Config{Debounce: rain.DefaultDebounce, MaxRateMMH: 100000, MMPerPulse: 0.2})
	require.NoError(t, err)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p.OnPulse(base)
	p.OnPulse(base.Add(50 * time.Millisecond)) // within 250ms debounce, rejected
	assert.Equal(t, uint64(1), p.TotalPulses())

	p.OnPulse(base.Add(300 * time.Millisecond))
	assert.Equal(t, uint64(2), p.TotalPulses())
}

func TestPipeline_RejectsRateOutlier(t *testing.T) {
	p, err := rain.New(rain.Config{Debounce: time.Millisecond, MaxRateMMH: 10, MMPerPulse: 1})
	require.NoError(t, err)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	// ten pulses one second apart: rate = 10mm over ~9s = ~4000mm/h, way over max
	for i := 0; i < 10; i++ {
		p.OnPulse(base.Add(time.Duration(i) * time.Second))
	}
	// the window should have rejected most of these as rate outliers
	assert.Less(t, p.TotalPulses(), uint64(10))
}

func TestPipeline_StatusTransitionsActiveInactive(t *testing.T) {
	p, err := rain.New(rain.DefaultConfig(0.2))
	require.NoError(t, err)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, rain.StatusInactive, p.Status(now))

	p.OnPulse(now)
	assert.Equal(t, rain.StatusActive, p.Status(now.Add(time.Minute)))
	assert.Equal(t, rain.StatusInactive, p.Status(now.Add(10*time.Minute)))
}

func TestPipeline_HourBoundaryWritesRingAndLast24h(t *testing.T) {
	p, err := rain.New(rain.Config{Debounce: time.Millisecond, MaxRateMMH: 10000, MMPerPulse: 0.2})
	require.NoError(t, err)

	hour := time.Date(2026, 1, 1, 5, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		p.OnPulse(hour.Add(time.Duration(i) * time.Second))
	}
	p.HourBoundary(hour.Add(59 * time.Minute))

	assert.InDelta(t, 1.0, p.GetLast24hMM(), 1e-9) // 5 pulses * 0.2mm
}

func TestPipeline_DailyAggregationAtHour23(t *testing.T) {
	p, err := rain.New(rain.Config{Debounce: time.Millisecond, MaxRateMMH: 100000, MMPerPulse: 1})
	require.NoError(t, err)

	day := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for h := 0; h < 24; h++ {
		hourTime := day.Add(time.Duration(h) * time.Hour)
		p.OnPulse(hourTime)
		p.HourBoundary(hourTime)
	}

	var out [4]rain.DailyEntry
	n := p.GetDaily(uint32(day.Unix()), uint32(day.Add(24*time.Hour).Unix()), out[:])
	require.Equal(t, 1, n)
	assert.Equal(t, uint8(24), out[0].ActiveHours)
	assert.Equal(t, uint8(100), out[0].Completeness)
}

func TestPipeline_SaveLoadStateRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := filestore.Open(dir)
	require.NoError(t, err)

	p, err := rain.New(rain.Config{Debounce: time.Millisecond, MaxRateMMH: 100000, MMPerPulse: 0.5})
	require.NoError(t, err)
	hour := time.Date(2026, 2, 1, 3, 0, 0, 0, time.UTC)
	p.OnPulse(hour)
	p.HourBoundary(hour.Add(time.Minute))

	require.NoError(t, p.SaveState(store))

	p2, err := rain.New(rain.Config{Debounce: time.Millisecond, MaxRateMMH: 100000, MMPerPulse: 0.5})
	require.NoError(t, err)
	require.NoError(t, p2.LoadState(store))

	assert.Equal(t, p.TotalPulses(), p2.TotalPulses())
	assert.Equal(t, p.GetLast24hMM(), p2.GetLast24hMM())
}

func TestZScoreOutlierCount_FlagsExtremeIntervals(t *testing.T) {
	p, err := rain.New(rain.Config{Debounce: time.Millisecond, MaxRateMMH: 1e9, MMPerPulse: 1})
	require.NoError(t, err)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t0 := base
	for i := 0; i < 20; i++ {
		t0 = t0.Add(time.Second)
		p.OnPulse(t0)
	}
	t0 = t0.Add(time.Hour) // one wildly different interval
	p.OnPulse(t0)

	assert.GreaterOrEqual(t, p.ZScoreOutlierCount(), 1)
}
