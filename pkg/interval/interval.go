// Package interval implements the interval-mode watering/pause state
// machine (spec §4.I).
package interval

import (
	"github.com/alexmihai1804/autowatering/internal/apperr"
)

// State is one of the five interval-controller states.
type State int

const (
	StateIdle State = iota
	StateWatering
	StatePausing
	StateCompleted
	StateError
)

// Config is the shared watering/pause timing, as persisted per
// channel (spec §4.I "Inputs").
type Config struct {
	WateringMinutes int
	WateringSeconds int
	PauseMinutes    int
	PauseSeconds    int
}

func (c Config) wateringSeconds() float64 {
	return float64(c.WateringMinutes*60 + c.WateringSeconds)
}

func (c Config) pauseSeconds() float64 {
	return float64(c.PauseMinutes*60 + c.PauseSeconds)
}

// TargetKind distinguishes a duration-total from a volume-total task.
type TargetKind int

const (
	TargetDuration TargetKind = iota
	TargetVolume
)

// Controller drives one interval-mode task. It is not safe for
// concurrent use; the execution engine owns it for the lifetime of
// one running task.
type Controller struct {
	cfg    Config
	target TargetKind
	// TotalTarget is seconds for duration-mode, milliliters for volume-mode.
	totalTarget float64

	state State

	elapsedInPhaseS  float64
	wateringElapsedS float64 // total watering-phase elapsed time (duration mode)
	volumeDelivered  float64 // total ml delivered during WATERING phases (volume mode)

	cyclesCompleted int
}

// New builds a controller for a task in the IDLE state.
func New(cfg Config, target TargetKind, totalTarget float64) *Controller {
	return &Controller{cfg: cfg, target: target, totalTarget: totalTarget, state: StateIdle}
}

// State returns the current state.
func (c *Controller) State() State { return c.state }

// CyclesCompleted returns the number of WATERING->PAUSING transitions
// so far (spec §4.I "Cycle counting").
func (c *Controller) CyclesCompleted() int { return c.cyclesCompleted }

// Start transitions IDLE -> WATERING, the only legal start
// transition (spec "valid transitions exactly as enumerated").
func (c *Controller) Start() error {
	if c.state != StateIdle {
		return apperr.Newf(apperr.InvalidParam, "cannot start from state %d", c.state)
	}
	c.state = StateWatering
	c.elapsedInPhaseS = 0
	return nil
}

// Update computes elapsed and volume, determines whether the current
// phase's time budget is exhausted, toggles phases, and checks
// overall completion (spec §4.I "Update contract"). deltaSeconds is
// the wall-clock time since the previous Update call.
func (c *Controller) Update(deltaSeconds, currentVolumeMLDelta, flowRateMLs float64) error {
	switch c.state {
	case StateWatering, StatePausing:
	default:
		return apperr.Newf(apperr.InvalidParam, "update called in terminal/idle state %d", c.state)
	}
	if deltaSeconds < 0 {
		return apperr.New(apperr.InvalidParam, "deltaSeconds must be >= 0")
	}

	c.elapsedInPhaseS += deltaSeconds
	if c.state == StateWatering {
		c.wateringElapsedS += deltaSeconds
		if c.target == TargetVolume {
			c.volumeDelivered += currentVolumeMLDelta
		}
	}

	phaseBudget := c.cfg.wateringSeconds()
	if c.state == StatePausing {
		phaseBudget = c.cfg.pauseSeconds()
	}

	if c.elapsedInPhaseS >= phaseBudget {
		c.togglePhase()
	}

	if c.isOverallComplete() {
		c.state = StateCompleted
	}
	return nil
}

func (c *Controller) togglePhase() {
	c.elapsedInPhaseS = 0
	if c.state == StateWatering {
		c.cyclesCompleted++
		c.state = StatePausing
	} else {
		c.state = StateWatering
	}
}

func (c *Controller) isOverallComplete() bool {
	switch c.target {
	case TargetDuration:
		return c.wateringElapsedS >= c.totalTarget
	case TargetVolume:
		return c.volumeDelivered >= c.totalTarget
	default:
		return false
	}
}

// RemainingSeconds reports time-to-completion for duration mode, or
// volume-derived remaining time for volume mode (0 if no flow), per
// spec §4.I "Remaining-time".
func (c *Controller) RemainingSeconds(flowRateMLs float64) float64 {
	switch c.target {
	case TargetDuration:
		rem := c.totalTarget - c.wateringElapsedS
		if rem < 0 {
			return 0
		}
		return rem
	case TargetVolume:
		remainingML := c.totalTarget - c.volumeDelivered
		if remainingML <= 0 {
			return 0
		}
		if flowRateMLs <= 0 {
			return 0
		}
		return remainingML / flowRateMLs
	default:
		return 0
	}
}

// Abort forces ERROR state, used when the caller detects a fault
// outside this controller's own invariants (e.g. flow timeout).
func (c *Controller) Abort() {
	c.state = StateError
}

// Reset returns a completed or errored controller to IDLE so it can
// be reused for the next task on the same channel.
func (c *Controller) Reset() error {
	if c.state != StateCompleted && c.state != StateError {
		return apperr.Newf(apperr.InvalidParam, "cannot reset from state %d", c.state)
	}
	c.state = StateIdle
	c.elapsedInPhaseS = 0
	c.wateringElapsedS = 0
	c.volumeDelivered = 0
	c.cyclesCompleted = 0
	return nil
}
