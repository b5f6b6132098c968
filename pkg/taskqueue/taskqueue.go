// Package taskqueue implements the FIFO queue of pending watering
// tasks with cancellation (spec §2 component H, §3 "Task").
package taskqueue

import (
	"sync"

	"github.com/google/uuid"

	"github.com/alexmihai1804/autowatering/internal/apperr"
)

// Trigger is how a task came to be enqueued.
type Trigger int

const (
	TriggerManual Trigger = iota
	TriggerScheduled
	TriggerRemote
)

// TargetKind distinguishes a duration-bound task from a volume-bound one.
type TargetKind int

const (
	TargetDuration TargetKind = iota
	TargetVolume
)

// Task is a unit of work: a channel reference, a trigger, and either
// a duration or a volume target. Tasks have no persistent identity
// across reboots (spec §3) — the CorrelationID exists only for
// in-process log correlation.
type Task struct {
	CorrelationID   uuid.UUID
	ChannelID       int
	Trigger         Trigger
	Target          TargetKind
	DurationSeconds float64
	VolumeLiters    float64
}

// Queue is the FIFO of pending tasks. The execution engine owns the
// single currently-running task separately (spec §3 "Ownership");
// this type holds only what has not yet started.
type Queue struct {
	mu      sync.Mutex
	pending []Task
}

// New builds an empty queue.
func New() *Queue {
	return &Queue{}
}

// Enqueue appends a task to the tail of the queue.
func (q *Queue) Enqueue(t Task) Task {
	if t.CorrelationID == uuid.Nil {
		t.CorrelationID = uuid.New()
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, t)
	return t
}

// Dequeue removes and returns the head task in enqueue order (spec
// §8 "Queue ordering: tasks dequeue in enqueue order").
func (q *Queue) Dequeue() (Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return Task{}, apperr.New(apperr.InvalidParam, "queue is empty")
	}
	t := q.pending[0]
	q.pending = q.pending[1:]
	return t, nil
}

// Peek returns the head task without removing it.
func (q *Queue) Peek() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return Task{}, false
	}
	return q.pending[0], true
}

// Len returns the number of pending (not-yet-started) tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// DiscardAll removes every pending task without side effects and
// returns the count removed (spec §5 "Cancellation"). The currently
// running task, if any, is not this queue's concern — the caller
// (execution engine) must separately abort it and add 1 to this
// return value per spec §4.K "cancel_all_tasks".
func (q *Queue) DiscardAll() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.pending)
	q.pending = nil
	return n
}
