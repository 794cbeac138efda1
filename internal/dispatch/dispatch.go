package dispatch

import (
	"sync"

	"github.com/skylinehq/skyline/internal/domain"
)

// Coordinates locate one resource within an account.
type Coordinates struct {
	Kind      string
	Namespace string
	Name      string
}

// HandlerRegistry is the per-credentials resource-property registry mapping
// a resource kind to its provider handler. It is populated once at provider
// registration and read-mostly afterwards.
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string]*Handler
}

// NewHandlerRegistry creates an empty HandlerRegistry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[string]*Handler)}
}

// Register adds a handler for its resource kind. A duplicate kind is a
// wiring defect and fails fast with HandlerConflictError.
func (r *HandlerRegistry) Register(h *Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[h.Kind]; exists {
		return &domain.HandlerConflictError{Kind: h.Kind}
	}
	r.handlers[h.Kind] = h
	return nil
}

// Get resolves the handler for kind, failing with UnknownResourceKindError
// if absent.
func (r *HandlerRegistry) Get(kind string) (*Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[kind]
	if !ok {
		return nil, &domain.UnknownResourceKindError{Kind: kind}
	}
	return h, nil
}

// Kinds enumerates the registered resource kinds.
func (r *HandlerRegistry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		kinds = append(kinds, k)
	}
	return kinds
}

// ResolveCapability resolves the handler for kind and verifies it carries
// the capability the requested verb needs. Operations call this before
// appending any status entry for the verb, so a task's history never
// records a step that could not possibly succeed.
//
// Fails with UnknownResourceKindError when the kind has no handler, and
// with UnsupportedCapabilityError naming both the kind and the missing
// capability when the handler cannot serve the verb.
func ResolveCapability(reg *HandlerRegistry, kind string, c Capability) (*Handler, error) {
	h, err := reg.Get(kind)
	if err != nil {
		return nil, err
	}
	if !h.Supports(c) {
		return nil, &domain.UnsupportedCapabilityError{Kind: kind, Capability: string(c)}
	}
	return h, nil
}
