package rain

const (
	hourlyRingSize = 720  // 30 days x 24h
	dailyRingSize  = 1825 // 5 years
)

// HourlyEntry mirrors the 8-byte persisted record in spec §6:
// {u32 hour_epoch, u16 rainfall_mm_x100, u8 pulse_count, u8 quality}.
type HourlyEntry struct {
	HourEpoch      uint32
	RainfallMMx100 uint16
	PulseCount     uint8
	Quality        uint8
}

// DailyEntry mirrors the 12-byte persisted record in spec §6:
// {u32 day_epoch, u32 total_mm_x100, u16 max_hourly_mm_x100, u8
// active_hours, u8 completeness}.
type DailyEntry struct {
	DayEpoch        uint32
	TotalMMx100     uint32
	MaxHourlyMMx100 uint16
	ActiveHours     uint8
	Completeness    uint8
}

// hourlyRing is a fixed-capacity circular buffer of HourlyEntry,
// oldest-overwritten, indexed chronologically via Entries().
type hourlyRing struct {
	buf   [hourlyRingSize]HourlyEntry
	next  int
	count int
}

func newHourlyRing() *hourlyRing { return &hourlyRing{} }

func (r *hourlyRing) Push(e HourlyEntry) {
	r.buf[r.next] = e
	r.next = (r.next + 1) % hourlyRingSize
	if r.count < hourlyRingSize {
		r.count++
	}
}

// Entries returns up to n most recent entries, oldest first.
func (r *hourlyRing) Entries(n int) []HourlyEntry {
	if n > r.count {
		n = r.count
	}
	out := make([]HourlyEntry, n)
	start := (r.next - n + hourlyRingSize) % hourlyRingSize
	for i := 0; i < n; i++ {
		out[i] = r.buf[(start+i)%hourlyRingSize]
	}
	return out
}

func (r *hourlyRing) Range(startEpoch, endEpoch uint32) []HourlyEntry {
	all := r.Entries(r.count)
	out := make([]HourlyEntry, 0, len(all))
	for _, e := range all {
		if e.HourEpoch >= startEpoch && e.HourEpoch <= endEpoch {
			out = append(out, e)
		}
	}
	return out
}

// dailyRing is the analogous circular buffer for DailyEntry.
type dailyRing struct {
	buf   [dailyRingSize]DailyEntry
	next  int
	count int
}

func newDailyRing() *dailyRing { return &dailyRing{} }

func (r *dailyRing) Push(e DailyEntry) {
	r.buf[r.next] = e
	r.next = (r.next + 1) % dailyRingSize
	if r.count < dailyRingSize {
		r.count++
	}
}

func (r *dailyRing) Entries(n int) []DailyEntry {
	if n > r.count {
		n = r.count
	}
	out := make([]DailyEntry, n)
	start := (r.next - n + dailyRingSize) % dailyRingSize
	for i := 0; i < n; i++ {
		out[i] = r.buf[(start+i)%dailyRingSize]
	}
	return out
}

func (r *dailyRing) Range(startEpoch, endEpoch uint32) []DailyEntry {
	all := r.Entries(r.count)
	out := make([]DailyEntry, 0, len(all))
	for _, e := range all {
		if e.DayEpoch >= startEpoch && e.DayEpoch <= endEpoch {
			out = append(out, e)
		}
	}
	return out
}
