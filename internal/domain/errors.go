package domain

import "fmt"

// TaskNotFoundError is returned when a task ID does not exist or has been
// evicted by the retention reaper.
type TaskNotFoundError struct {
	TaskID string
}

func (e *TaskNotFoundError) Error() string {
	return fmt.Sprintf("task not found: %s", e.TaskID)
}

// AlreadyTerminalError is returned when a terminal transition is attempted
// on a task that already completed or failed.
type AlreadyTerminalError struct {
	TaskID string
	State  State
}

func (e *AlreadyTerminalError) Error() string {
	return fmt.Sprintf("task %s is already terminal with state %s", e.TaskID, e.State)
}

// UnauthorizedError is returned by the authorization gate when a description
// authorizer or allowed-accounts validator rejects a submission.
type UnauthorizedError struct {
	Authorizer string
	Account    string
	Reason     string
}

func (e *UnauthorizedError) Error() string {
	if e.Account != "" {
		return fmt.Sprintf("authorizer %q rejected account %q: %s", e.Authorizer, e.Account, e.Reason)
	}
	return fmt.Sprintf("authorizer %q rejected submission: %s", e.Authorizer, e.Reason)
}

// UnsupportedOperationError is returned when no converter is registered for
// a provider and operation type pair.
type UnsupportedOperationError struct {
	Provider      string
	OperationType string
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("provider %q does not support operation %q", e.Provider, e.OperationType)
}

// ConverterConflictError is returned when a converter is registered twice
// for the same provider and operation type.
type ConverterConflictError struct {
	Provider      string
	OperationType string
}

func (e *ConverterConflictError) Error() string {
	return fmt.Sprintf("converter already registered for provider %q operation %q", e.Provider, e.OperationType)
}

// InvalidDescriptionError is returned when a converter rejects a raw
// operation description, e.g. for a missing required field.
type InvalidDescriptionError struct {
	Provider      string
	OperationType string
	Reason        string
}

func (e *InvalidDescriptionError) Error() string {
	return fmt.Sprintf("invalid %s description for provider %q: %s", e.OperationType, e.Provider, e.Reason)
}

// HandlerConflictError is returned when a resource-kind handler is
// registered twice in the same registry.
type HandlerConflictError struct {
	Kind string
}

func (e *HandlerConflictError) Error() string {
	return fmt.Sprintf("handler already registered for resource kind %q", e.Kind)
}

// UnknownResourceKindError is returned when a resource kind has no handler
// in the credentials' resource-property registry.
type UnknownResourceKindError struct {
	Kind string
}

func (e *UnknownResourceKindError) Error() string {
	return fmt.Sprintf("no handler registered for resource kind %q", e.Kind)
}

// UnsupportedCapabilityError is returned when the handler resolved for a
// resource kind does not carry the capability the requested verb requires.
type UnsupportedCapabilityError struct {
	Kind       string
	Capability string
}

func (e *UnsupportedCapabilityError) Error() string {
	return fmt.Sprintf("resource kind %q does not support %s", e.Kind, e.Capability)
}

// AccountNotFoundError is returned when a description names an account the
// credentials repository does not know.
type AccountNotFoundError struct {
	Account string
}

func (e *AccountNotFoundError) Error() string {
	return fmt.Sprintf("account not found: %s", e.Account)
}

// OperationError wraps a failure raised by one atomic operation in a chain.
type OperationError struct {
	Operation string
	Err       error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("operation %s failed: %v", e.Operation, e.Err)
}

func (e *OperationError) Unwrap() error { return e.Err }

// UpstreamError marks a failure originating in a cloud provider's API
// rather than in caller input or this process.
type UpstreamError struct {
	Provider string
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// SagaNotFoundError is returned when a saga ID has no persisted events.
type SagaNotFoundError struct {
	SagaID string
}

func (e *SagaNotFoundError) Error() string {
	return fmt.Sprintf("saga not found: %s", e.SagaID)
}
