// Package executor implements the single-task-at-a-time execution
// engine (spec §4.K): it pulls the head of the task queue, drives the
// master valve and zone valve through the required offsets, supervises
// flow, and applies the balance update for a completed task before the
// next one is pulled.
package executor

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/alexmihai1804/autowatering/internal/apperr"
	"github.com/alexmihai1804/autowatering/internal/clock"
	"github.com/alexmihai1804/autowatering/pkg/interval"
	"github.com/alexmihai1804/autowatering/pkg/mastervalve"
	"github.com/alexmihai1804/autowatering/pkg/taskqueue"
)

// State is one of the execution engine's states (spec §4.K "State machine").
type State int

const (
	StateIdle State = iota
	StatePrepareMaster
	StateRunning
	StateIntervalRunning
	StatePaused
	StateAborting
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StatePrepareMaster:
		return "PREPARE_MASTER"
	case StateRunning:
		return "RUNNING"
	case StateIntervalRunning:
		return "INTERVAL_RUNNING"
	case StatePaused:
		return "PAUSED"
	case StateAborting:
		return "ABORTING"
	case StateCompleted:
		return "COMPLETED"
	default:
		return "UNKNOWN"
	}
}

// FlowSensor is the single global flow meter, consumable by at most
// one running task at a time (spec §5 "Shared resources").
type FlowSensor interface {
	// TotalPulses returns the lifetime pulse count.
	TotalPulses() uint64
}

// Valve is the per-channel zone valve contract.
type Valve interface {
	Open() error
	Close() error
	IsOpen() bool
}

// Status is the terminal status recorded against a finished task.
type Status int

const (
	StatusCompleted Status = iota
	StatusNoFlow
	StatusUnexpectedFlow
	StatusErrorHardware
	StatusAborted
)

// Config tunes flow supervision and fault promotion.
type Config struct {
	FlowTimeout         time.Duration // default 30s
	LitersPerPulse      float64
	ConsecutiveFaultMax int // default 3
}

// DefaultConfig returns the spec's defaults (spec §4.K "Flow supervision").
func DefaultConfig(litersPerPulse float64) Config {
	return Config{FlowTimeout: 30 * time.Second, LitersPerPulse: litersPerPulse, ConsecutiveFaultMax: 3}
}

// RunningTask is the execution engine's view of the task currently in
// flight, including derived progress fields a status query can read.
type RunningTask struct {
	Task             taskqueue.Task
	State            State
	StartedMonotonic time.Duration
	PulsesAtStart    uint64
	PausedMonotonic  time.Duration
	Interval         *interval.Controller // non-nil only for interval-mode tasks
	MasterOpened     bool                 // false while a negative pre_start_delay_sec still defers the open
}

// TaskApplier is called once per completed (including aborted) task so
// the caller can run pkg/fao56's ReduceDeficitAfterIrrigation or
// equivalent balance update before the next task is pulled (spec §5
// "Balance updates for a completed task are applied before the next
// task is pulled from the queue").
type TaskApplier func(task taskqueue.Task, status Status, deliveredLiters float64)

// Engine drives exactly one task at a time across all channels.
type Engine struct {
	mu sync.Mutex

	queue  *taskqueue.Queue
	master *mastervalve.Manager
	flow   FlowSensor
	valves map[int]Valve
	clk    clock.Source
	log    *logrus.Entry
	cfg    Config

	cb      *gobreaker.CircuitBreaker
	applier TaskApplier

	state   State
	current *RunningTask
	fault   bool
}

// New builds an execution engine. valves maps channel id to its zone
// valve.
func New(queue *taskqueue.Queue, master *mastervalve.Manager, flow FlowSensor, valves map[int]Valve, clk clock.Source, log *logrus.Logger, cfg Config, applier TaskApplier) *Engine {
	if log == nil {
		log = logrus.New()
	}
	e := &Engine{
		queue:   queue,
		master:  master,
		flow:    flow,
		valves:  valves,
		clk:     clk,
		log:     log.WithField("component", "executor"),
		cfg:     cfg,
		applier: applier,
		state:   StateIdle,
	}
	e.cb = e.newBreaker()
	return e
}

func (e *Engine) newBreaker() *gobreaker.CircuitBreaker {
	threshold := uint32(e.cfg.ConsecutiveFaultMax)
	if threshold == 0 {
		threshold = 3
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "execution-engine",
		MaxRequests: 1,
		Timeout:     365 * 24 * time.Hour, // fault is sticky until reset_fault
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				e.mu.Lock()
				e.fault = true
				e.mu.Unlock()
				e.log.WithField("from", from.String()).Warn("execution engine entered FAULT state")
			}
		},
	})
}

// State returns the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// IsFault reports whether consecutive hardware/timeout failures have
// tripped the sticky FAULT state (spec §4.K "Flow supervision").
func (e *Engine) IsFault() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fault
}

// ResetFault clears the sticky FAULT state (spec §4.K "cleared only by
// reset_fault"). It replaces the circuit breaker with a fresh one
// rather than mutating gobreaker's internal counts, since gobreaker
// exposes no public reset call.
func (e *Engine) ResetFault() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fault = false
	e.cb = e.newBreaker()
}

// Tick advances the state machine by one step; it is driven by the
// execution-engine thread at whatever cadence the caller chooses (spec
// §5 "execution-engine thread driving the current task"). now is wall
// clock for master-valve scheduling; it returns quickly and never
// blocks on I/O beyond a single valve GPIO call.
func (e *Engine) Tick(now time.Time) error {
	e.mu.Lock()
	state := e.state
	e.mu.Unlock()

	switch state {
	case StateIdle:
		return e.tryStartNext(now)
	case StatePrepareMaster:
		return e.advancePrepareMaster(now)
	case StateRunning:
		return e.superviseRunning(now)
	case StateIntervalRunning:
		return e.superviseInterval(now)
	case StatePaused:
		return nil
	case StateAborting:
		return e.finishAborting(now)
	case StateCompleted:
		return e.finishCompleted(now)
	}
	return nil
}

func (e *Engine) tryStartNext(now time.Time) error {
	if e.IsFault() {
		return nil
	}
	t, err := e.queue.Dequeue()
	if err != nil {
		return nil // queue empty, stay IDLE
	}

	e.mu.Lock()
	// Interval-mode is selected by the caller populating rt.Interval via
	// AttachIntervalController before the next Tick; ordinary tasks
	// leave it nil and run the plain RUNNING path.
	rt := &RunningTask{Task: t, StartedMonotonic: e.clk.Monotonic()}
	e.current = rt
	e.state = StatePrepareMaster
	e.mu.Unlock()

	if e.master != nil {
		e.master.NotifyUpcomingTask(now)
	}
	return nil
}

// AttachIntervalController installs an interval-mode controller onto
// the just-dequeued current task, before the next Tick drives it into
// RUNNING/INTERVAL_RUNNING (spec §4.K "INTERVAL_RUNNING").
func (e *Engine) AttachIntervalController(c *interval.Controller) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current != nil {
		e.current.Interval = c
	}
}

func (e *Engine) advancePrepareMaster(now time.Time) error {
	e.mu.Lock()
	rt := e.current
	e.mu.Unlock()
	if rt == nil {
		e.mu.Lock()
		e.state = StateIdle
		e.mu.Unlock()
		return nil
	}

	if e.master != nil {
		cfg := e.master.Config()
		if cfg.Enabled && cfg.PreStartDelaySec >= 0 {
			if err := e.master.Open(); err != nil {
				return e.abortCurrent(now, StatusErrorHardware)
			}
			rt.MasterOpened = true
		}
		// a negative pre_start_delay_sec defers the open until that
		// many seconds into RUNNING/INTERVAL_RUNNING; ensureMasterOpen
		// drives it from there.
	} else {
		rt.MasterOpened = true
	}

	v := e.valves[rt.Task.ChannelID]
	if v == nil {
		return e.abortCurrent(now, StatusErrorHardware)
	}
	if err := v.Open(); err != nil {
		return e.abortCurrent(now, StatusErrorHardware)
	}

	e.mu.Lock()
	rt.PulsesAtStart = e.flowPulses()
	rt.StartedMonotonic = e.clk.Monotonic()
	if rt.Interval != nil {
		e.state = StateIntervalRunning
	} else {
		e.state = StateRunning
	}
	e.mu.Unlock()
	return nil
}

// ensureMasterOpen performs the deferred master-valve open for a
// negative pre_start_delay_sec: the master stays closed until that
// many seconds have elapsed since the task actually started flowing.
func (e *Engine) ensureMasterOpen(rt *RunningTask, now time.Time) error {
	if e.master == nil || rt.MasterOpened {
		return nil
	}
	cfg := e.master.Config()
	if !cfg.Enabled {
		return nil
	}
	deferSec := -cfg.PreStartDelaySec
	elapsed := e.clk.Monotonic() - rt.StartedMonotonic
	if elapsed.Seconds() < float64(deferSec) {
		return nil
	}
	if err := e.master.Open(); err != nil {
		return e.abortCurrent(now, StatusErrorHardware)
	}
	rt.MasterOpened = true
	return nil
}

func (e *Engine) flowPulses() uint64 {
	if e.flow == nil {
		return 0
	}
	return e.flow.TotalPulses()
}

func (e *Engine) superviseRunning(now time.Time) error {
	e.mu.Lock()
	rt := e.current
	e.mu.Unlock()
	if rt == nil {
		return nil
	}

	if err := e.ensureMasterOpen(rt, now); err != nil {
		return err
	}

	elapsed := e.clk.Monotonic() - rt.StartedMonotonic
	pulses := e.flowPulses() - rt.PulsesAtStart

	if pulses == 0 && elapsed >= e.cfg.FlowTimeout {
		e.log.WithField("channel_id", rt.Task.ChannelID).Warn("flow timeout, no pulses")
		return e.abortCurrent(now, StatusNoFlow)
	}

	done := false
	switch rt.Task.Target {
	case taskqueue.TargetDuration:
		done = elapsed.Seconds() >= rt.Task.DurationSeconds
	case taskqueue.TargetVolume:
		delivered := float64(pulses) * e.cfg.LitersPerPulse
		done = delivered >= rt.Task.VolumeLiters
	}
	if done {
		return e.completeCurrent(now)
	}
	return nil
}

func (e *Engine) superviseInterval(now time.Time) error {
	e.mu.Lock()
	rt := e.current
	e.mu.Unlock()
	if rt == nil || rt.Interval == nil {
		return e.superviseRunning(now)
	}

	if err := e.ensureMasterOpen(rt, now); err != nil {
		return err
	}

	pulses := e.flowPulses() - rt.PulsesAtStart
	deliveredML := float64(pulses) * e.cfg.LitersPerPulse * 1000
	flowRateMLs := 0.0
	if d := e.clk.Monotonic() - rt.StartedMonotonic; d > 0 {
		flowRateMLs = deliveredML / d.Seconds()
	}

	v := e.valves[rt.Task.ChannelID]
	wasWatering := rt.Interval.State() == interval.StateWatering
	if err := rt.Interval.Update(1, 0, flowRateMLs); err != nil {
		return e.abortCurrent(now, StatusErrorHardware)
	}

	switch rt.Interval.State() {
	case interval.StateWatering:
		if !wasWatering && v != nil {
			if err := v.Open(); err != nil {
				return e.abortCurrent(now, StatusErrorHardware)
			}
		}
	case interval.StatePausing:
		if wasWatering && v != nil {
			if err := v.Close(); err != nil {
				return e.abortCurrent(now, StatusErrorHardware)
			}
		}
	case interval.StateCompleted:
		return e.completeCurrent(now)
	case interval.StateError:
		return e.abortCurrent(now, StatusErrorHardware)
	}
	return nil
}

// Pause halts the current task, closing valves and preserving
// elapsed-before-pause accounting (spec §4.K "PAUSED").
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateRunning && e.state != StateIntervalRunning {
		return apperr.New(apperr.InvalidParam, "no running task to pause")
	}
	if e.current != nil {
		if v := e.valves[e.current.Task.ChannelID]; v != nil {
			_ = v.Close()
		}
		e.current.PausedMonotonic = e.clk.Monotonic()
	}
	e.state = StatePaused
	return nil
}

// Resume restores a paused task, preserving elapsed time accrued
// before the pause (spec §4.K "Resume restores timers with
// elapsed-before-pause preserved").
func (e *Engine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StatePaused || e.current == nil {
		return apperr.New(apperr.InvalidParam, "no paused task to resume")
	}
	pauseDuration := e.clk.Monotonic() - e.current.PausedMonotonic
	e.current.StartedMonotonic += pauseDuration
	if e.current.Interval != nil {
		e.state = StateIntervalRunning
	} else {
		e.state = StateRunning
	}
	if v := e.valves[e.current.Task.ChannelID]; v != nil {
		_ = v.Open()
	}
	return nil
}

func (e *Engine) abortCurrent(now time.Time, status Status) error {
	e.mu.Lock()
	rt := e.current
	e.mu.Unlock()
	if rt != nil {
		if v := e.valves[rt.Task.ChannelID]; v != nil {
			_ = v.Close()
		}
	}
	e.mu.Lock()
	e.state = StateAborting
	e.mu.Unlock()
	return e.finishWith(now, rt, status)
}

func (e *Engine) completeCurrent(now time.Time) error {
	e.mu.Lock()
	rt := e.current
	e.mu.Unlock()
	if rt != nil {
		if v := e.valves[rt.Task.ChannelID]; v != nil {
			_ = v.Close()
		}
	}
	e.mu.Lock()
	e.state = StateCompleted
	e.mu.Unlock()
	return e.finishWith(now, rt, StatusCompleted)
}

func (e *Engine) finishAborting(now time.Time) error {
	// abortCurrent already closed valves and called finishWith; Tick
	// landing here with state still ABORTING means finishWith hasn't
	// transitioned state yet (shouldn't normally happen), so no-op.
	return nil
}

func (e *Engine) finishCompleted(now time.Time) error {
	return nil
}

func (e *Engine) finishWith(now time.Time, rt *RunningTask, status Status) error {
	if e.master != nil {
		if status == StatusCompleted {
			e.master.ScheduleClose(now)
		} else {
			cfg := e.master.Config()
			grace := time.Duration(cfg.OverlapGraceSec) * time.Second
			if grace > 0 {
				e.master.ScheduleClose(now)
			} else {
				_ = e.master.ForceClose()
			}
		}
	}

	isFailure := status != StatusCompleted
	_, _ = e.cb.Execute(func() (interface{}, error) {
		if isFailure {
			return nil, apperr.New(apperr.Hardware, "task execution failed")
		}
		return nil, nil
	})

	if rt != nil && e.applier != nil {
		delivered := 0.0
		if e.flow != nil {
			pulses := e.flowPulses() - rt.PulsesAtStart
			delivered = float64(pulses) * e.cfg.LitersPerPulse
		}
		e.applier(rt.Task, status, delivered)
	}

	e.mu.Lock()
	e.current = nil
	e.state = StateIdle
	e.mu.Unlock()
	return nil
}

// CancelAll discards every pending task and aborts the running one if
// any, returning the total removed count (spec §4.K "Ordering
// guarantees": pending + 1 if running).
func (e *Engine) CancelAll(now time.Time) int {
	n := e.queue.DiscardAll()
	e.mu.Lock()
	running := e.state == StateRunning || e.state == StateIntervalRunning || e.state == StatePaused
	e.mu.Unlock()
	if running {
		_ = e.abortCurrent(now, StatusAborted)
		n++
	}
	return n
}

// NotifyFlowPulseWhileClosed is called when a flow pulse arrives while
// every valve is closed; after confirmation (a caller-side debounce)
// it is the spec's STATUS_UNEXPECTED_FLOW path toward FAULT (spec
// §4.K "Flow supervision").
func (e *Engine) NotifyFlowPulseWhileClosed(now time.Time) {
	e.mu.Lock()
	idle := e.state == StateIdle
	e.mu.Unlock()
	if !idle {
		return
	}
	e.log.Warn("unexpected flow while all valves closed")
	_, _ = e.cb.Execute(func() (interface{}, error) {
		return nil, apperr.New(apperr.Hardware, "unexpected flow")
	})
}
