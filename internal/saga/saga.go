// Package saga is the durable, event-sourced execution mode for chains
// that must survive process restarts. Every transition is appended to the
// event log before it is applied in memory; the log is authoritative and
// replaying it deterministically reconstructs the saga's state.
package saga

import (
	"context"
	"encoding/json"
	"time"
)

// EventType enumerates the saga event log's entry types.
type EventType string

const (
	EventSagaStarted      EventType = "SAGA_STARTED"
	EventStepStarted      EventType = "STEP_STARTED"
	EventStepCompleted    EventType = "STEP_COMPLETED"
	EventStepFailed       EventType = "STEP_FAILED"
	EventStepCompensating EventType = "STEP_COMPENSATING"
	EventStepCompensated  EventType = "STEP_COMPENSATED"
	EventSagaCompleted    EventType = "SAGA_COMPLETED"
	EventSagaCompensated  EventType = "SAGA_COMPENSATED"
)

// Terminal reports whether the event type ends a saga.
func (t EventType) Terminal() bool {
	return t == EventSagaCompleted || t == EventSagaCompensated
}

// Event is one durable entry in a saga's log. Payload is opaque to the
// engine: step outputs for completed steps, the flow name for the start
// event, the failure text for failed steps.
type Event struct {
	SagaID  string          `json:"saga_id"`
	Type    EventType       `json:"type"`
	Step    string          `json:"step,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Time    time.Time       `json:"time"`
}

// Repository persists saga event logs. Append must be durable before the
// corresponding in-memory transition is considered committed.
type Repository interface {
	Append(ctx context.Context, event Event) error
	// Load returns the ordered event log for a saga, or SagaNotFoundError.
	Load(ctx context.Context, sagaID string) ([]Event, error)
	// ListActive returns the IDs of sagas without a terminal event, for
	// resumption after a restart.
	ListActive(ctx context.Context) ([]string, error)
}

// StepState is the replayed state of one step.
type StepState string

const (
	StepPending      StepState = "PENDING"
	StepStarted      StepState = "STARTED"
	StepCompleted    StepState = "COMPLETED"
	StepFailed       StepState = "FAILED"
	StepCompensating StepState = "COMPENSATING"
	StepCompensated  StepState = "COMPENSATED"
)

// Step is one unit of a saga flow. Compensate is optional; a nil
// Compensate means the step has no undo and is skipped during
// compensation. Compensate receives the step's recorded output so an
// undo started after a process restart still has the data the apply
// produced.
type Step struct {
	Name       string
	Apply      func(ctx context.Context, prior any) (any, error)
	Compensate func(ctx context.Context, output any) error
}

// Flow is a named, ordered sequence of saga steps. The flow name is
// recorded in the SAGA_STARTED event so a restarted process can find the
// step definitions to resume with.
type Flow struct {
	Name  string
	Steps []Step
}

// State is the in-memory reconstruction of a saga from its event log.
type State struct {
	FlowName string

	steps          map[string]StepState
	outputs        map[string]json.RawMessage
	completedOrder []string
	terminal       EventType
	failedStep     string
}

// Replay folds an ordered event log into saga state. The same log always
// produces the same state.
func Replay(events []Event) *State {
	s := &State{
		steps:   make(map[string]StepState),
		outputs: make(map[string]json.RawMessage),
	}
	for _, e := range events {
		switch e.Type {
		case EventSagaStarted:
			var start struct {
				Flow string `json:"flow"`
			}
			_ = json.Unmarshal(e.Payload, &start)
			s.FlowName = start.Flow
		case EventStepStarted:
			s.steps[e.Step] = StepStarted
		case EventStepCompleted:
			s.steps[e.Step] = StepCompleted
			s.outputs[e.Step] = e.Payload
			s.completedOrder = append(s.completedOrder, e.Step)
		case EventStepFailed:
			s.steps[e.Step] = StepFailed
			s.failedStep = e.Step
		case EventStepCompensating:
			s.steps[e.Step] = StepCompensating
		case EventStepCompensated:
			s.steps[e.Step] = StepCompensated
		case EventSagaCompleted, EventSagaCompensated:
			s.terminal = e.Type
		}
	}
	return s
}

// StepState returns the replayed state of a step, PENDING if unseen.
func (s *State) StepState(name string) StepState {
	if st, ok := s.steps[name]; ok {
		return st
	}
	return StepPending
}

// StepStates returns a copy of all non-pending step states.
func (s *State) StepStates() map[string]StepState {
	out := make(map[string]StepState, len(s.steps))
	for k, v := range s.steps {
		out[k] = v
	}
	return out
}

// Output returns the recorded output payload of a completed step.
func (s *State) Output(name string) json.RawMessage { return s.outputs[name] }

// CompletedOrder returns step names in completion order. Compensation runs
// over this slice in reverse.
func (s *State) CompletedOrder() []string {
	out := make([]string, len(s.completedOrder))
	copy(out, s.completedOrder)
	return out
}

// Terminal reports whether the saga has ended, and how.
func (s *State) Terminal() (EventType, bool) {
	return s.terminal, s.terminal != ""
}

// Failed reports whether a step has failed, and which.
func (s *State) Failed() (string, bool) {
	return s.failedStep, s.failedStep != ""
}
