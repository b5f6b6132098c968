package fao56

import (
	"sync"
	"time"
)

type kcEntry struct {
	kc, canopyFactor float64
	at               time.Time
}

type balanceEntry struct {
	balance WaterBalance
	at      time.Time
}

// MemCache is the default in-process cache: three maps behind one
// mutex, sized by the eight channels this controller will ever hold.
type MemCache struct {
	mu       sync.Mutex
	eto      map[int]EToCacheEntry
	kc       map[int]kcEntry
	balances map[int]balanceEntry
}

// NewMemCache builds an empty in-memory cache.
func NewMemCache() *MemCache {
	return &MemCache{
		eto:      make(map[int]EToCacheEntry),
		kc:       make(map[int]kcEntry),
		balances: make(map[int]balanceEntry),
	}
}

func (c *MemCache) GetETo(channelID int, tempC, rhPct, pressureHPa float64, now time.Time) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.eto[channelID]
	if !ok || !e.Matches(tempC, rhPct, pressureHPa, now) {
		return 0, false
	}
	return e.ETo, true
}

func (c *MemCache) PutETo(channelID int, entry EToCacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eto[channelID] = entry
}

func (c *MemCache) GetKc(channelID int, now time.Time) (float64, float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.kc[channelID]
	if !ok || now.Sub(e.at) > KcMaxAge {
		return 0, 0, false
	}
	return e.kc, e.canopyFactor, true
}

func (c *MemCache) PutKc(channelID int, kc, canopyFactor float64, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kc[channelID] = kcEntry{kc: kc, canopyFactor: canopyFactor, at: at}
}

func (c *MemCache) GetBalance(channelID int, now time.Time) (WaterBalance, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.balances[channelID]
	if !ok || now.Sub(e.at) > BalanceMaxAge {
		return WaterBalance{}, false
	}
	return e.balance, true
}

func (c *MemCache) PutBalance(channelID int, b WaterBalance, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[channelID] = balanceEntry{balance: b, at: at}
}

var _ Cache = (*MemCache)(nil)
