package taskstore

import (
	"context"

	"github.com/skylinehq/skyline/internal/domain"
)

type currentTaskKey struct{}

// WithCurrent binds task as the current task for all work done under ctx.
// The orchestration processor binds it once at chain start; operation units
// and provider handlers reach the task through Current without it being
// passed through every call layer. Because the binding lives on the context
// it cannot leak across chains when goroutines are reused.
func WithCurrent(ctx context.Context, task *domain.Task) context.Context {
	return context.WithValue(ctx, currentTaskKey{}, task)
}

// Current returns the task bound to ctx. Calling it outside a chain run is
// a programming error, not a recoverable condition, so it panics.
func Current(ctx context.Context) *domain.Task {
	task, ok := ctx.Value(currentTaskKey{}).(*domain.Task)
	if !ok {
		panic("taskstore: no current task bound to context")
	}
	return task
}

// CurrentOK returns the bound task and whether one is bound. Reserved for
// call sites that legitimately run both inside and outside a chain.
func CurrentOK(ctx context.Context) (*domain.Task, bool) {
	task, ok := ctx.Value(currentTaskKey{}).(*domain.Task)
	return task, ok
}
