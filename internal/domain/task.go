package domain

import (
	"log/slog"
	"sync"
	"time"
)

// State represents the lifecycle state of a task.
type State string

const (
	StateRunning   State = "RUNNING"
	StateCompleted State = "COMPLETED"
	StateFailed    State = "FAILED"
)

// IsTerminal returns true if no further state transitions are possible.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// StatusEntry is one line of a task's append-only status history.
type StatusEntry struct {
	Phase   string    `json:"phase"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Task is the pollable execution record for one submitted operation chain.
//
// A Task is mutated only through its own methods. All methods are safe for
// concurrent use. Once the task reaches a terminal state every further
// mutation is dropped: the outcome of a finished task is immutable and late
// writers lose silently.
type Task struct {
	id        string
	createdAt time.Time
	logger    *slog.Logger

	mu          sync.Mutex
	state       State
	history     []StatusEntry
	results     []any
	failure     *Failure
	completedAt *time.Time
}

// NewTask creates a task in RUNNING state with an empty history.
func NewTask(id string, logger *slog.Logger) *Task {
	if logger == nil {
		logger = slog.Default()
	}
	return &Task{
		id:        id,
		createdAt: time.Now().UTC(),
		state:     StateRunning,
		logger:    logger,
	}
}

// ID returns the task's unique identifier.
func (t *Task) ID() string { return t.id }

// State returns the task's current lifecycle state.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// History returns a copy of the ordered status history.
func (t *Task) History() []StatusEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]StatusEntry, len(t.history))
	copy(out, t.history)
	return out
}

// Results returns a copy of the accumulated operation results.
// Nil entries mark operations that produced no output.
func (t *Task) Results() []any {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]any, len(t.results))
	copy(out, t.results)
	return out
}

// Failure returns the classified failure, or nil if the task has not failed.
func (t *Task) Failure() *Failure {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failure
}

// UpdateStatus appends one history entry with the current time. A late
// update against a terminal task is logged and dropped rather than raised,
// so a stray writer cannot destabilize a finishing chain.
func (t *Task) UpdateStatus(phase, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.IsTerminal() {
		t.logger.Warn("status update on terminal task dropped",
			slog.String("task_id", t.id),
			slog.String("phase", phase),
			slog.String("state", string(t.state)),
		)
		return
	}
	t.history = append(t.history, StatusEntry{
		Phase:   phase,
		Message: message,
		Time:    time.Now().UTC(),
	})
}

// Complete transitions the task to COMPLETED with the accumulated result
// list. A second terminal transition is a no-op returning AlreadyTerminalError.
func (t *Task) Complete(results []any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.IsTerminal() {
		return &AlreadyTerminalError{TaskID: t.id, State: t.state}
	}
	now := time.Now().UTC()
	t.state = StateCompleted
	t.results = results
	t.completedAt = &now
	return nil
}

// Fail transitions the task to FAILED, recording a classified failure and
// any results accumulated before the failing operation. A second terminal
// transition is a no-op returning AlreadyTerminalError.
func (t *Task) Fail(failure *Failure, priorResults []any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.IsTerminal() {
		return &AlreadyTerminalError{TaskID: t.id, State: t.state}
	}
	now := time.Now().UTC()
	t.state = StateFailed
	t.failure = failure
	t.results = priorResults
	t.completedAt = &now
	return nil
}

// TaskSnapshot is an immutable, serializable view of a task, used by the
// status API, the redis mirror, and the terminal-task archive.
type TaskSnapshot struct {
	ID          string        `json:"id"`
	State       State         `json:"state"`
	History     []StatusEntry `json:"history"`
	Results     []any         `json:"results,omitempty"`
	Failure     *Failure      `json:"failure,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// Snapshot captures the task's current state in one consistent read.
func (t *Task) Snapshot() TaskSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	history := make([]StatusEntry, len(t.history))
	copy(history, t.history)
	results := make([]any, len(t.results))
	copy(results, t.results)
	return TaskSnapshot{
		ID:          t.id,
		State:       t.state,
		History:     history,
		Results:     results,
		Failure:     t.failure,
		CreatedAt:   t.createdAt,
		CompletedAt: t.completedAt,
	}
}
