package envsnap_test

import (
	"testing"
	"time"

	"github.com/alexmihai1804/autowatering/pkg/envsnap"
	"github.com/stretchr/testify/assert"
)

func TestAggregator_EmptyWindowReturnsDefaults(t *testing.T) {
	a := envsnap.NewAggregator(time.Hour)
	snap := a.Snapshot()
	assert.False(t, snap.Valid)
	assert.Equal(t, envsnap.DefaultRHPct, snap.RHMeanPct)
	assert.Equal(t, envsnap.DefaultPressureH, snap.PressureHPa)
	assert.Equal(t, 0, snap.DataQuality)
}

func TestAggregator_AggregatesValidSamples(t *testing.T) {
	a := envsnap.NewAggregator(24 * time.Hour)
	base := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	a.Add(envsnap.Sample{At: base, TempC: 10, RHPct: 50, Pressure: 1010})
	a.Add(envsnap.Sample{At: base.Add(time.Hour), TempC: 20, RHPct: 70, Pressure: 1015})

	snap := a.Snapshot()
	assert.True(t, snap.Valid)
	assert.Equal(t, 10.0, snap.TempMinC)
	assert.Equal(t, 20.0, snap.TempMaxC)
	assert.InDelta(t, 15.0, snap.TempMeanC, 1e-9)
	assert.InDelta(t, 60.0, snap.RHMeanPct, 1e-9)
	assert.Equal(t, 100, snap.DataQuality)
}

func TestAggregator_RejectsOutOfRangeSamples(t *testing.T) {
	a := envsnap.NewAggregator(24 * time.Hour)
	base := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	a.Add(envsnap.Sample{At: base, TempC: 20, RHPct: 50, Pressure: 1010})
	a.Add(envsnap.Sample{At: base.Add(time.Minute), TempC: 999, RHPct: 50, Pressure: 1010})

	snap := a.Snapshot()
	assert.True(t, snap.Valid)
	assert.Equal(t, 20.0, snap.TempMeanC)
	assert.Equal(t, 50, snap.DataQuality)
}

func TestAggregator_EvictsSamplesOutsideWindow(t *testing.T) {
	a := envsnap.NewAggregator(time.Hour)
	base := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	a.Add(envsnap.Sample{At: base, TempC: 5, RHPct: 40, Pressure: 1000})
	a.Add(envsnap.Sample{At: base.Add(2 * time.Hour), TempC: 25, RHPct: 60, Pressure: 1020})

	snap := a.Snapshot()
	assert.Equal(t, 25.0, snap.TempMeanC)
}

func TestAggregator_ResetClearsQualityHistory(t *testing.T) {
	a := envsnap.NewAggregator(time.Hour)
	a.Add(envsnap.Sample{At: time.Now(), TempC: 999})
	a.Reset()
	snap := a.Snapshot()
	assert.False(t, snap.Valid)
}
