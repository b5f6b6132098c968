package fao56_test

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexmihai1804/autowatering/pkg/fao56"
)

func newMiniredisCache(t *testing.T) *fao56.RedisCache {
	t.Helper()
	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { client.Close() })

	return fao56.NewRedisCache(client, "fao56:")
}

func TestRedisCache_ETORoundTripWithinTolerance(t *testing.T) {
	cache := newMiniredisCache(t)
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	cache.PutETo(0, fao56.EToCacheEntry{ETo: 4.2, TempC: 22, RHPct: 55, PressureHPa: 1012, At: now})

	got, ok := cache.GetETo(0, 22.2, 55, 1012, now.Add(time.Minute))
	require.True(t, ok)
	assert.InDelta(t, 4.2, got, 1e-9)

	_, ok = cache.GetETo(0, 30, 55, 1012, now.Add(time.Minute))
	assert.False(t, ok, "a temperature outside tolerance should miss")
}

func TestRedisCache_KcRoundTripExpiresAfterMaxAge(t *testing.T) {
	cache := newMiniredisCache(t)
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	cache.PutKc(1, 0.9, 0.4, now)

	kc, canopy, ok := cache.GetKc(1, now.Add(time.Minute))
	require.True(t, ok)
	assert.InDelta(t, 0.9, kc, 1e-9)
	assert.InDelta(t, 0.4, canopy, 1e-9)

	_, _, ok = cache.GetKc(1, now.Add(2*fao56.KcMaxAge))
	assert.False(t, ok, "an entry past KcMaxAge should miss")
}

func TestRedisCache_BalanceRoundTrip(t *testing.T) {
	cache := newMiniredisCache(t)
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	want := fao56.WaterBalance{RWZAwcMM: 40, WettingAwcMM: 30, CurrentDeficitMM: 12.5}
	cache.PutBalance(2, want, now)

	got, ok := cache.GetBalance(2, now.Add(time.Minute))
	require.True(t, ok)
	assert.Equal(t, want, got)

	_, ok = cache.GetBalance(2, now.Add(2*fao56.BalanceMaxAge))
	assert.False(t, ok, "an entry past BalanceMaxAge should miss")
}
