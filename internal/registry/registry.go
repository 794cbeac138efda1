// Package registry maps (provider, operation type) pairs to converters that
// build executable operations from raw descriptions. Decoupling which
// providers exist from how chains execute lets providers be added without
// touching the orchestration processor.
package registry

import (
	"sync"

	"github.com/skylinehq/skyline/internal/domain"
)

// Converter builds one atomic operation from a validated raw description.
// Converters perform their own input validation and return
// InvalidDescriptionError for malformed payloads. Conversion happens before
// any task exists; operations reach their task at execution time through
// the context-bound handle.
type Converter func(desc domain.Description) (domain.Operation, error)

type converterKey struct {
	provider      string
	operationType string
}

// Registry holds operation converters. Registration happens once per
// provider plugin at startup; lookups afterwards are lock-cheap and safe
// for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	converters map[converterKey]Converter
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{converters: make(map[converterKey]Converter)}
}

// Register associates a converter with a provider and operation type.
// Re-registering the same pair fails with ConverterConflictError: ambiguous
// wiring is a startup defect and must fail fast, never silently overwrite.
func (r *Registry) Register(provider, operationType string, c Converter) error {
	key := converterKey{provider: provider, operationType: operationType}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.converters[key]; exists {
		return &domain.ConverterConflictError{Provider: provider, OperationType: operationType}
	}
	r.converters[key] = c
	return nil
}

// Convert builds the operation for one description. It fails with
// UnsupportedOperationError when no converter is registered, and propagates
// the converter's own InvalidDescriptionError when validation rejects the
// payload.
func (r *Registry) Convert(desc domain.Description) (domain.Operation, error) {
	key := converterKey{provider: desc.Provider(), operationType: desc.Type()}

	r.mu.RLock()
	c, ok := r.converters[key]
	r.mu.RUnlock()
	if !ok {
		return nil, &domain.UnsupportedOperationError{
			Provider:      key.provider,
			OperationType: key.operationType,
		}
	}
	return c(desc)
}

// Supports reports whether a converter exists for the pair.
func (r *Registry) Supports(provider, operationType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.converters[converterKey{provider: provider, operationType: operationType}]
	return ok
}
