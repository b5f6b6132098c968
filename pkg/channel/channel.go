// Package channel implements the per-channel data model of spec §3: a
// channel owns its valve, its watering event, its plant/soil/method
// references, its coverage, and its water balance. The GPIO wiring
// itself (spec §1 "out of scope") is captured here only as the Valve
// interface contract.
package channel

import (
	"github.com/alexmihai1804/autowatering/internal/apperr"
	"github.com/alexmihai1804/autowatering/pkg/fao56"
)

// Valve is the external collaborator contract for a channel's solenoid
// valve: active-high push-pull GPIO (spec §6), driven by a driver this
// repo does not implement.
type Valve interface {
	Open() error
	Close() error
	IsOpen() bool
}

// ScheduleKind is the watering_event.schedule tag.
type ScheduleKind uint8

const (
	ScheduleDaily ScheduleKind = iota
	SchedulePeriodic
	ScheduleAuto
)

// Schedule is the tagged schedule record from spec §3.
type Schedule struct {
	Kind ScheduleKind
	// DaysOfWeekMask is valid for ScheduleDaily: bit 0 = Sunday ... bit 6 = Saturday.
	DaysOfWeekMask uint8
	// IntervalDays is valid for SchedulePeriodic.
	IntervalDays int
}

// ModeKind is the watering_event.mode tag.
type ModeKind uint8

const (
	ModeByDuration ModeKind = iota
	ModeByVolume
	ModeAutomaticQuality
	ModeAutomaticEco
)

// Mode is the tagged mode record from spec §3.
type Mode struct {
	Kind            ModeKind
	DurationMinutes float64 // valid for ModeByDuration
	VolumeLiters    float64 // valid for ModeByVolume
}

// SolarRef is the optional solar-event start-time resolution.
type SolarRef uint8

const (
	SolarNone SolarRef = iota
	SolarSunrise
	SolarSunset
)

// StartTime is a fixed HH:MM, optionally resolved from a solar event
// plus an offset in [-720, 720] minutes (spec §3, §6).
type StartTime struct {
	Hour, Minute  int
	Solar         SolarRef
	OffsetMinutes int
}

// WateringEvent is the schedule+mode+timing record a channel owns.
type WateringEvent struct {
	Schedule    Schedule
	Mode        Mode
	Start       StartTime
	AutoEnabled bool
}

// CoverageKind distinguishes the two mutually exclusive coverage
// representations.
type CoverageKind uint8

const (
	CoverageArea CoverageKind = iota
	CoveragePlantCount
)

// Coverage is exactly one of area (m²) or plant count, per spec §3
// invariant "exactly one of area/plant-count is in use".
type Coverage struct {
	Kind       CoverageKind
	AreaM2     float64
	PlantCount int
}

// AutoMode is the channel-level automatic-mode flag from spec §3,
// independent of (but normally kept consistent with) the watering
// event's ModeAutomaticQuality/ModeAutomaticEco tag.
type AutoMode uint8

const (
	AutoQuality AutoMode = iota
	AutoEco
)

// Channel is one of the eight valve channels (spec §3).
type Channel struct {
	ID   int
	Name string

	Valve Valve
	Event WateringEvent

	PlantID            int // 0 = unconfigured
	SoilID             uint16
	IrrigationMethodID uint16
	Coverage           Coverage

	PlantingDateEpoch int64 // unix seconds, 0 = unset
	LatitudeDeg       float64
	SunExposurePct    float64 // [0, 100]
	AutoMode          AutoMode
	MaxVolumeLimitL   float64 // >= 0

	Balance fao56.WaterBalance
}

// Validate enforces the invariants named in spec §3.
func (c *Channel) Validate() error {
	if c.ID < 0 || c.ID > 7 {
		return apperr.Newf(apperr.InvalidParam, "channel id %d out of range [0,7]", c.ID)
	}
	if len(c.Name) > 63 {
		return apperr.New(apperr.InvalidParam, "channel name exceeds 63 bytes")
	}
	if c.SunExposurePct < 0 || c.SunExposurePct > 100 {
		return apperr.New(apperr.InvalidParam, "sun_exposure_pct out of [0,100]")
	}
	if c.MaxVolumeLimitL < 0 || c.MaxVolumeLimitL > 1000 {
		return apperr.New(apperr.InvalidParam, "max_volume_limit_l out of [0,1000]")
	}
	switch c.Coverage.Kind {
	case CoverageArea:
		if c.Coverage.AreaM2 <= 0 {
			return apperr.New(apperr.InvalidParam, "area-based coverage requires area_m2 > 0")
		}
	case CoveragePlantCount:
		if c.Coverage.PlantCount <= 0 {
			return apperr.New(apperr.InvalidParam, "plant-count coverage requires plant_count > 0")
		}
	default:
		return apperr.New(apperr.InvalidParam, "unknown coverage kind")
	}
	if c.Event.Start.OffsetMinutes < -720 || c.Event.Start.OffsetMinutes > 720 {
		return apperr.New(apperr.InvalidParam, "solar offset out of [-720,720] minutes")
	}
	return nil
}

// IsConfigured reports whether the channel has a plant assigned; an
// unconfigured channel (plant_id == 0) cannot run in AUTO mode (spec
// §4.F "CONFIG" error).
func (c *Channel) IsConfigured() bool {
	return c.PlantID != 0
}

// IsAutoMode reports whether this channel's mode is one of the two
// automatic modes.
func (c *Channel) IsAutoMode() bool {
	return c.Event.Mode.Kind == ModeAutomaticQuality || c.Event.Mode.Kind == ModeAutomaticEco
}

// DaysAfterPlanting computes days-after-planting as of nowEpoch
// (both unix seconds). Returns 0 if PlantingDateEpoch is unset or in
// the future.
func (c *Channel) DaysAfterPlanting(nowEpoch int64) int {
	if c.PlantingDateEpoch == 0 || nowEpoch <= c.PlantingDateEpoch {
		return 0
	}
	return int((nowEpoch - c.PlantingDateEpoch) / 86400)
}
