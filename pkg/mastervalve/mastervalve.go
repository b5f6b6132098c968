// Package mastervalve implements the sole authority over the shared
// upstream master valve (spec §4.J).
package mastervalve

import (
	"sync"
	"time"

	"github.com/alexmihai1804/autowatering/internal/apperr"
	"github.com/alexmihai1804/autowatering/internal/clock"
)

// Valve is the GPIO collaborator; satisfied by pkg/channel.Valve too.
type Valve interface {
	Open() error
	Close() error
	IsOpen() bool
}

// Config is the persisted master-valve configuration (spec §4.J
// "Configuration").
type Config struct {
	Enabled          bool
	PreStartDelaySec int // [-300, 300]
	PostStopDelaySec int // [-300, 300]
	OverlapGraceSec  int // [0, 600]
	AutoManagement   bool
}

// Validate enforces the persisted field ranges.
func (c Config) Validate() error {
	if c.PreStartDelaySec < -300 || c.PreStartDelaySec > 300 {
		return apperr.New(apperr.InvalidParam, "pre_start_delay_sec out of range")
	}
	if c.PostStopDelaySec < -300 || c.PostStopDelaySec > 300 {
		return apperr.New(apperr.InvalidParam, "post_stop_delay_sec out of range")
	}
	if c.OverlapGraceSec < 0 || c.OverlapGraceSec > 600 {
		return apperr.New(apperr.InvalidParam, "overlap_grace_sec out of range")
	}
	return nil
}

// Manager is the single authority on master-valve GPIO state; no
// other component toggles that valve (spec §4.J "Behavior").
type Manager struct {
	mu    sync.Mutex
	cfg   Config
	valve Valve
	clk   clock.Source

	pendingCloseScheduled bool
	pendingCloseAt        time.Time
}

// New builds a manager for the given valve and clock.
func New(cfg Config, valve Valve, clk clock.Source) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Manager{cfg: cfg, valve: valve, clk: clk}, nil
}

// Config returns the manager's current configuration.
func (m *Manager) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// SetConfig replaces the configuration after validating it.
func (m *Manager) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
	return nil
}

// IsActive reports whether the valve is currently open.
func (m *Manager) IsActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.valve.IsOpen()
}

// Open is called by the execution engine's PREPARE_MASTER state. It
// cancels any pending scheduled close and opens the valve if not
// already open.
func (m *Manager) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pendingCloseScheduled = false
	if m.valve.IsOpen() {
		return nil
	}
	if err := m.valve.Open(); err != nil {
		return apperr.Wrap(err, apperr.Hardware, "master valve open failed")
	}
	return nil
}

// ScheduleClose is called by the execution engine's COMPLETED/ABORTING
// states. It schedules a close at now + post_stop_delay_sec rather
// than closing immediately, so a following task within overlap grace
// can cancel it (spec §4.K "COMPLETED").
func (m *Manager) ScheduleClose(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delay := time.Duration(m.cfg.PostStopDelaySec) * time.Second
	m.pendingCloseAt = now.Add(delay)
	m.pendingCloseScheduled = true
}

// NotifyUpcomingTask cancels a pending scheduled close if the next
// task's start time falls within overlap_grace_sec of it (spec §4.J
// "notify_upcoming_task").
func (m *Manager) NotifyUpcomingTask(startTime time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.pendingCloseScheduled {
		return
	}
	grace := time.Duration(m.cfg.OverlapGraceSec) * time.Second
	diff := startTime.Sub(m.pendingCloseAt)
	if diff < 0 {
		diff = -diff
	}
	if diff <= grace {
		m.pendingCloseScheduled = false
	}
}

// Tick closes the valve if a scheduled close's time has arrived. The
// caller (execution engine or housekeeping loop) drives this
// periodically; it is not a self-scheduling timer.
func (m *Manager) Tick(now time.Time) error {
	m.mu.Lock()
	if !m.pendingCloseScheduled || now.Before(m.pendingCloseAt) {
		m.mu.Unlock()
		return nil
	}
	m.pendingCloseScheduled = false
	m.mu.Unlock()

	if err := m.valve.Close(); err != nil {
		return apperr.Wrap(err, apperr.Hardware, "master valve close failed")
	}
	return nil
}

// ForceClose closes the valve immediately and cancels any pending
// scheduled close; used by ABORTING when overlap grace does not apply.
func (m *Manager) ForceClose() error {
	m.mu.Lock()
	m.pendingCloseScheduled = false
	m.mu.Unlock()
	if err := m.valve.Close(); err != nil {
		return apperr.Wrap(err, apperr.Hardware, "master valve close failed")
	}
	return nil
}

// ManualOpen is the user-facing open call; rejected when
// auto_management is enabled (spec §4.J).
func (m *Manager) ManualOpen() error {
	m.mu.Lock()
	auto := m.cfg.AutoManagement
	m.mu.Unlock()
	if auto {
		return apperr.New(apperr.Busy, "master valve is under automatic management")
	}
	return m.Open()
}

// ManualClose is the user-facing close call; rejected when
// auto_management is enabled.
func (m *Manager) ManualClose() error {
	m.mu.Lock()
	auto := m.cfg.AutoManagement
	m.mu.Unlock()
	if auto {
		return apperr.New(apperr.Busy, "master valve is under automatic management")
	}
	return m.ForceClose()
}
