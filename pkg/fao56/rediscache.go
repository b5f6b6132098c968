package fao56

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is the shared-cache alternative to MemCache, for
// deployments that run the FAO-56 engine alongside other processes
// sharing one balance/ET0 cache (spec §4.F "Cache" names the cache as
// optional and backend-agnostic; this repo offers an in-process
// default plus this networked alternative).
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache wraps an existing client. Keys are namespaced under
// prefix (e.g. "fao56:") so the cache can share a Redis instance with
// unrelated keyspaces.
func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) key(kind string, channelID int) string {
	return fmt.Sprintf("%s%s:%d", c.prefix, kind, channelID)
}

func (c *RedisCache) GetETo(channelID int, tempC, rhPct, pressureHPa float64, now time.Time) (float64, bool) {
	ctx := context.Background()
	raw, err := c.client.Get(ctx, c.key("eto", channelID)).Bytes()
	if err != nil {
		return 0, false
	}
	var e EToCacheEntry
	if json.Unmarshal(raw, &e) != nil {
		return 0, false
	}
	if !e.Matches(tempC, rhPct, pressureHPa, now) {
		return 0, false
	}
	return e.ETo, true
}

func (c *RedisCache) PutETo(channelID int, entry EToCacheEntry) {
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	c.client.Set(context.Background(), c.key("eto", channelID), raw, EToMaxAge)
}

type redisKcEntry struct {
	Kc           float64   `json:"kc"`
	CanopyFactor float64   `json:"canopy_factor"`
	At           time.Time `json:"at"`
}

func (c *RedisCache) GetKc(channelID int, now time.Time) (float64, float64, bool) {
	ctx := context.Background()
	raw, err := c.client.Get(ctx, c.key("kc", channelID)).Bytes()
	if err != nil {
		return 0, 0, false
	}
	var e redisKcEntry
	if json.Unmarshal(raw, &e) != nil || now.Sub(e.At) > KcMaxAge {
		return 0, 0, false
	}
	return e.Kc, e.CanopyFactor, true
}

func (c *RedisCache) PutKc(channelID int, kc, canopyFactor float64, at time.Time) {
	raw, err := json.Marshal(redisKcEntry{Kc: kc, CanopyFactor: canopyFactor, At: at})
	if err != nil {
		return
	}
	c.client.Set(context.Background(), c.key("kc", channelID), raw, KcMaxAge)
}

type redisBalanceEntry struct {
	Balance WaterBalance `json:"balance"`
	At      time.Time    `json:"at"`
}

func (c *RedisCache) GetBalance(channelID int, now time.Time) (WaterBalance, bool) {
	ctx := context.Background()
	raw, err := c.client.Get(ctx, c.key("balance", channelID)).Bytes()
	if err != nil {
		return WaterBalance{}, false
	}
	var e redisBalanceEntry
	if json.Unmarshal(raw, &e) != nil || now.Sub(e.At) > BalanceMaxAge {
		return WaterBalance{}, false
	}
	return e.Balance, true
}

func (c *RedisCache) PutBalance(channelID int, b WaterBalance, at time.Time) {
	raw, err := json.Marshal(redisBalanceEntry{Balance: b, At: at})
	if err != nil {
		return
	}
	c.client.Set(context.Background(), c.key("balance", channelID), raw, BalanceMaxAge)
}

var _ Cache = (*RedisCache)(nil)
