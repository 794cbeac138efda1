// Package dispatch resolves resource kinds to provider handlers and routes
// verbs through tagged capability sets.
package dispatch

import (
	"context"

	"github.com/skylinehq/skyline/internal/domain"
)

// Capability names one behavior a provider handler may implement.
type Capability string

const (
	CapabilityScale  Capability = "scale"
	CapabilityDelete Capability = "delete"
	CapabilityUndo   Capability = "undo"
)

// ScaleFunc adjusts the replica count of a resource. The owning task is
// passed so the handler can report fine-grained sub-status under phase.
type ScaleFunc func(ctx context.Context, task *domain.Task, phase, namespace, name string, replicas int) error

// DeleteFunc removes a resource.
type DeleteFunc func(ctx context.Context, task *domain.Task, phase, namespace, name string) error

// UndoFunc rolls a resource back to its previous revision.
type UndoFunc func(ctx context.Context, task *domain.Task, phase, namespace, name string) error

// Handler is a provider's implementation for one resource kind. A handler
// carries an explicit capability set — one typed function per capability,
// where a nil function means the capability is absent. Dispatch is a
// set-membership check, never a runtime type test, so the capabilities of
// any handler are enumerable.
//
// Handlers are long-lived and shared across tasks; all per-call state is
// passed as arguments.
type Handler struct {
	Kind   string
	Scale  ScaleFunc
	Delete DeleteFunc
	Undo   UndoFunc
}

// Supports reports whether the handler carries the given capability.
func (h *Handler) Supports(c Capability) bool {
	switch c {
	case CapabilityScale:
		return h.Scale != nil
	case CapabilityDelete:
		return h.Delete != nil
	case CapabilityUndo:
		return h.Undo != nil
	default:
		return false
	}
}

// Capabilities enumerates the handler's capability set.
func (h *Handler) Capabilities() []Capability {
	var caps []Capability
	for _, c := range []Capability{CapabilityScale, CapabilityDelete, CapabilityUndo} {
		if h.Supports(c) {
			caps = append(caps, c)
		}
	}
	return caps
}
