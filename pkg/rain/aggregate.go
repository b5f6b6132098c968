package rain

import (
	"encoding/binary"
	"time"

	"github.com/alexmihai1804/autowatering/internal/kvstore"
)

// HourBoundary is called once per UTC hour by pkg/core's rain
// hour-boundary worker (core.RainHourBoundaryTick). It computes
// pulses_this_hour * mm_per_pulse, writes the hourly ring entry, and
// at end-of-day aggregates the day's 24 entries into the daily ring.
// Every call pushes a new hourly entry: a second call within the same
// hour adds a second entry for that hour instead of replacing the first.
func (p *Pipeline) HourBoundary(now time.Time) {
	p.mu.Lock()
	pulses := p.pulsesThisHour
	p.pulsesThisHour = 0
	quality := p.quality
	p.mu.Unlock()

	hourStart := now.Truncate(time.Hour)
	rainMM := float64(pulses) * p.cfg.MMPerPulse

	entry := HourlyEntry{
		HourEpoch:      uint32(hourStart.Unix()),
		RainfallMMx100: uint16(rainMM * 100),
		PulseCount:     clampUint8(pulses),
		Quality:        uint8(quality),
	}

	p.mu.Lock()
	p.hourly.Push(entry)
	p.mu.Unlock()

	if hourStart.Hour() == 23 {
		p.aggregateDay(hourStart)
	}
}

func (p *Pipeline) aggregateDay(lastHourOfDay time.Time) {
	dayStart := time.Date(lastHourOfDay.Year(), lastHourOfDay.Month(), lastHourOfDay.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	p.mu.Lock()
	entries := p.hourly.Range(uint32(dayStart.Unix()), uint32(dayEnd.Unix())-1)
	p.mu.Unlock()

	var totalX100 uint32
	var maxHourlyX100 uint16
	activeHours := uint8(0)
	for _, e := range entries {
		totalX100 += uint32(e.RainfallMMx100)
		if e.RainfallMMx100 > maxHourlyX100 {
			maxHourlyX100 = e.RainfallMMx100
		}
		if e.PulseCount > 0 {
			activeHours++
		}
	}
	completeness := uint8((len(entries) * 100) / 24)

	d := DailyEntry{
		DayEpoch:        uint32(dayStart.Unix()),
		TotalMMx100:     totalX100,
		MaxHourlyMMx100: maxHourlyX100,
		ActiveHours:     activeHours,
		Completeness:    completeness,
	}
	p.mu.Lock()
	p.daily.Push(d)
	p.mu.Unlock()
}

func clampUint8(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// GetLast24hMM sums the most recent 24 hourly entries.
func (p *Pipeline) GetLast24hMM() float64 {
	p.mu.Lock()
	entries := p.hourly.Entries(24)
	p.mu.Unlock()
	var total float64
	for _, e := range entries {
		total += float64(e.RainfallMMx100) / 100
	}
	return total
}

// Last24hMM satisfies fao56.RainSource.
func (p *Pipeline) Last24hMM() float64 { return p.GetLast24hMM() }

// TodayMM sums hourly entries whose hour falls within today's UTC
// calendar day.
func (p *Pipeline) TodayMM() float64 {
	now := time.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	p.mu.Lock()
	entries := p.hourly.Range(uint32(dayStart.Unix()), uint32(now.Unix()))
	p.mu.Unlock()
	var total float64
	for _, e := range entries {
		total += float64(e.RainfallMMx100) / 100
	}
	return total
}

// GetTodayMM is the explicit spec-named query alias for TodayMM.
func (p *Pipeline) GetTodayMM() float64 { return p.TodayMM() }

// HourlySeriesMM returns the last `hours` hourly rainfall amounts
// (mm), oldest first, satisfying fao56.RainSource.
func (p *Pipeline) HourlySeriesMM(hours int) []float64 {
	p.mu.Lock()
	entries := p.hourly.Entries(hours)
	p.mu.Unlock()
	out := make([]float64, len(entries))
	for i, e := range entries {
		out[i] = float64(e.RainfallMMx100) / 100
	}
	return out
}

// GetHourly copies entries in [start,end] (unix hour epochs) into out
// and returns the count written.
func (p *Pipeline) GetHourly(start, end uint32, out []HourlyEntry) int {
	p.mu.Lock()
	entries := p.hourly.Range(start, end)
	p.mu.Unlock()
	n := copy(out, entries)
	return n
}

// GetDaily copies entries in [start,end] (unix day epochs) into out
// and returns the count written.
func (p *Pipeline) GetDaily(start, end uint32, out []DailyEntry) int {
	p.mu.Lock()
	entries := p.daily.Range(start, end)
	p.mu.Unlock()
	n := copy(out, entries)
	return n
}

// persistedState is the RAIN_STATE KV record payload: the ring
// contents plus lifetime counters, schema-versioned per spec §6.
type persistedState struct {
	TotalPulses uint64
	Hourly      []HourlyEntry
	Daily       []DailyEntry
}

const rainStateSchemaVersion = 1

// SaveState serializes the pipeline's rings and lifetime counter to
// the KV store at RAIN_STATE, best-effort (spec §4.D "persisted to
// the KV store best-effort at each hour boundary").
func (p *Pipeline) SaveState(store kvstore.Store) error {
	p.mu.Lock()
	hourly := p.hourly.Entries(p.hourly.count)
	daily := p.daily.Entries(p.daily.count)
	total := p.totalPulses.Load()
	p.mu.Unlock()

	payload := encodeState(persistedState{TotalPulses: total, Hourly: hourly, Daily: daily})
	return store.Save(kvstore.RainState, kvstore.EncodeVersioned(rainStateSchemaVersion, payload))
}

// LoadState restores a pipeline's rings and lifetime counter from a
// previously-saved RAIN_STATE record.
func (p *Pipeline) LoadState(store kvstore.Store) error {
	raw, err := store.Load(kvstore.RainState)
	if err != nil {
		return err
	}
	_, payload, err := kvstore.DecodeVersioned(raw)
	if err != nil {
		return err
	}
	state := decodeState(payload)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.totalPulses.Store(state.TotalPulses)
	p.hourly = newHourlyRing()
	for _, e := range state.Hourly {
		p.hourly.Push(e)
	}
	p.daily = newDailyRing()
	for _, e := range state.Daily {
		p.daily.Push(e)
	}
	return nil
}

func encodeState(s persistedState) []byte {
	out := make([]byte, 0, 8+2+len(s.Hourly)*8+2+len(s.Daily)*12)
	var tmp8 [8]byte
	binary.LittleEndian.PutUint64(tmp8[:], s.TotalPulses)
	out = append(out, tmp8[:]...)

	var tmp2 [2]byte
	binary.LittleEndian.PutUint16(tmp2[:], uint16(len(s.Hourly)))
	out = append(out, tmp2[:]...)
	for _, e := range s.Hourly {
		out = append(out, encodeHourly(e)...)
	}

	binary.LittleEndian.PutUint16(tmp2[:], uint16(len(s.Daily)))
	out = append(out, tmp2[:]...)
	for _, e := range s.Daily {
		out = append(out, encodeDaily(e)...)
	}
	return out
}

func encodeHourly(e HourlyEntry) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint32(b[0:4], e.HourEpoch)
	binary.LittleEndian.PutUint16(b[4:6], e.RainfallMMx100)
	b[6] = e.PulseCount
	b[7] = e.Quality
	return b
}

func decodeHourly(b []byte) HourlyEntry {
	return HourlyEntry{
		HourEpoch:      binary.LittleEndian.Uint32(b[0:4]),
		RainfallMMx100: binary.LittleEndian.Uint16(b[4:6]),
		PulseCount:     b[6],
		Quality:        b[7],
	}
}

func encodeDaily(e DailyEntry) []byte {
	b := make([]byte, 12)
	binary.LittleEndian.PutUint32(b[0:4], e.DayEpoch)
	binary.LittleEndian.PutUint32(b[4:8], e.TotalMMx100)
	binary.LittleEndian.PutUint16(b[8:10], e.MaxHourlyMMx100)
	b[10] = e.ActiveHours
	b[11] = e.Completeness
	return b
}

func decodeDaily(b []byte) DailyEntry {
	return DailyEntry{
		DayEpoch:        binary.LittleEndian.Uint32(b[0:4]),
		TotalMMx100:     binary.LittleEndian.Uint32(b[4:8]),
		MaxHourlyMMx100: binary.LittleEndian.Uint16(b[8:10]),
		ActiveHours:     b[10],
		Completeness:    b[11],
	}
}

func decodeState(b []byte) persistedState {
	var s persistedState
	if len(b) < 10 {
		return s
	}
	s.TotalPulses = binary.LittleEndian.Uint64(b[0:8])
	off := 8
	hourlyCount := int(binary.LittleEndian.Uint16(b[off : off+2]))
	off += 2
	s.Hourly = make([]HourlyEntry, 0, hourlyCount)
	for i := 0; i < hourlyCount && off+8 <= len(b); i++ {
		s.Hourly = append(s.Hourly, decodeHourly(b[off:off+8]))
		off += 8
	}
	if off+2 > len(b) {
		return s
	}
	dailyCount := int(binary.LittleEndian.Uint16(b[off : off+2]))
	off += 2
	s.Daily = make([]DailyEntry, 0, dailyCount)
	for i := 0; i < dailyCount && off+12 <= len(b); i++ {
		s.Daily = append(s.Daily, decodeDaily(b[off:off+12]))
		off += 12
	}
	return s
}
