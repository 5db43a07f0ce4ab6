// Package progressbus is the Progress Event Bus (C11): a per-task ordered
// event stream that a long-running operation (cache warming, a mixtape
// regeneration) emits to and that a listener drains until a terminal event
// arrives. Grounded on original_source's progress_tracker.py — ProgressEvent,
// ProgressTracker.emit/listen, the synthesized "connected" event, the
// keepalive-on-idle behavior, and cleanup_task on termination all carry
// over — but the tracker itself is never a package-level singleton the way
// get_progress_tracker() was: each caller constructs its own *Bus with New
// and passes it where needed (the "cache warm" command creates one per run).
// The Supervisor does not hold a Bus.
package progressbus

import (
	"context"
	"sync"
	"time"
)

// Status is a task's lifecycle state, mirroring ProgressStatus.
type Status string

const (
	StatusStarted   Status = "started"
	StatusProgress  Status = "in_progress"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status ends the task's event stream.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Event is one entry in a task's stream.
type Event struct {
	Type      string    `json:"type"`
	TaskID    string    `json:"task_id"`
	Status    Status    `json:"status,omitempty"`
	Current   int       `json:"current,omitempty"`
	Total     int       `json:"total,omitempty"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const defaultBuffer = 256

// Bus fans progress events out per task_id. The zero value is not usable;
// construct with New.
type Bus struct {
	mu              sync.Mutex
	tasks           map[string]chan Event
	listenerTimeout time.Duration
	keepaliveEvery  time.Duration
}

// New returns a Bus. listenerTimeout is how long a Listen call waits with no
// new events before giving up (spec §4.11 default: 300s); zero uses that
// default.
func New(listenerTimeout time.Duration) *Bus {
	if listenerTimeout <= 0 {
		listenerTimeout = 300 * time.Second
	}
	return &Bus{
		tasks:           make(map[string]chan Event),
		listenerTimeout: listenerTimeout,
		keepaliveEvery:  time.Second,
	}
}

func (b *Bus) queueFor(taskID string) chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.tasks[taskID]
	if !ok {
		ch = make(chan Event, defaultBuffer)
		b.tasks[taskID] = ch
	}
	return ch
}

// Emit appends an event to taskID's stream, creating the stream if this is
// its first event. If the stream's buffer is full the oldest pending event
// is dropped to make room — a slow listener loses history, not the producer.
func (b *Bus) Emit(taskID string, e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	e.TaskID = taskID
	ch := b.queueFor(taskID)
	select {
	case ch <- e:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- e:
	default:
	}
}

func (b *Bus) cleanup(taskID string) {
	b.mu.Lock()
	delete(b.tasks, taskID)
	b.mu.Unlock()
}

// Listen streams taskID's events to onEvent, starting with a synthesized
// "connected" event, until one of: a terminal event is delivered, ctx is
// canceled, onEvent returns an error, or listenerTimeout elapses with no new
// events (a keepalive event is sent at most once per second while idle).
// The task's stream is discarded when Listen returns, matching cleanup_task.
func (b *Bus) Listen(ctx context.Context, taskID string, onEvent func(Event) error) error {
	ch := b.queueFor(taskID)
	defer b.cleanup(taskID)

	if err := onEvent(Event{Type: "connected", TaskID: taskID, Timestamp: time.Now().UTC()}); err != nil {
		return err
	}

	ticker := time.NewTicker(b.keepaliveEvery)
	defer ticker.Stop()
	lastActivity := time.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e := <-ch:
			lastActivity = time.Now()
			if err := onEvent(e); err != nil {
				return err
			}
			if e.Status.Terminal() {
				return nil
			}
		case <-ticker.C:
			if time.Since(lastActivity) >= b.listenerTimeout {
				return nil
			}
			if err := onEvent(Event{Type: "keepalive", TaskID: taskID, Timestamp: time.Now().UTC()}); err != nil {
				return err
			}
		}
	}
}
