package orchestration

import (
	"context"
	"time"

	"github.com/skylinehq/skyline/internal/domain"
)

// OperationEvent is emitted after each operation in a chain finishes.
type OperationEvent struct {
	TaskID    string              `json:"task_id"`
	Operation string              `json:"operation"`
	Index     int                 `json:"index"`
	Error     string              `json:"error,omitempty"`
	Duration  time.Duration       `json:"duration_ns"`
	Snapshot  domain.TaskSnapshot `json:"snapshot"`
}

// ChainEvent is emitted once when a chain reaches a terminal state.
type ChainEvent struct {
	TaskID   string              `json:"task_id"`
	State    domain.State        `json:"state"`
	Failure  *domain.Failure     `json:"failure,omitempty"`
	Duration time.Duration       `json:"duration_ns"`
	Snapshot domain.TaskSnapshot `json:"snapshot"`
}

// EventHook observes chain execution for external concerns: auditing, state
// mirroring, archival. Hook errors are logged by the processor and never
// roll back or fail the chain.
type EventHook interface {
	OperationCompleted(ctx context.Context, event OperationEvent) error
	ChainFinished(ctx context.Context, event ChainEvent) error
}
