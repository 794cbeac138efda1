package domain

import "errors"

// FailureKind buckets a chain failure by origin, so the status API can show
// a clean message for caller mistakes while keeping full detail on internal
// defects for operator diagnosis.
type FailureKind string

const (
	// FailureKindUser covers caller-input problems: bad descriptions,
	// unknown kinds, missing capabilities.
	FailureKindUser FailureKind = "USER"
	// FailureKindProvider covers failures of the upstream cloud API.
	FailureKindProvider FailureKind = "PROVIDER"
	// FailureKindSystem covers everything else — internal defects.
	FailureKindSystem FailureKind = "SYSTEM"
)

// Failure is the classified error recorded on a failed task.
type Failure struct {
	Kind      FailureKind `json:"kind"`
	Operation string      `json:"operation,omitempty"`
	Message   string      `json:"message"`
}

// Classify inspects an operation failure and buckets it by origin.
//
// User-kind failures surface the typed error's own message, which names
// the offending field or kind without internal detail. Provider failures
// keep the upstream message. Anything unrecognized is SYSTEM and retains
// the full error chain text.
func Classify(operation string, err error) *Failure {
	f := &Failure{Operation: operation, Message: err.Error()}

	var (
		invalidDesc *InvalidDescriptionError
		unknownKind *UnknownResourceKindError
		unsupCap    *UnsupportedCapabilityError
		unsupOp     *UnsupportedOperationError
		noAccount   *AccountNotFoundError
		upstream    *UpstreamError
	)
	switch {
	case errors.As(err, &invalidDesc):
		f.Kind = FailureKindUser
		f.Message = invalidDesc.Error()
	case errors.As(err, &unknownKind):
		f.Kind = FailureKindUser
		f.Message = unknownKind.Error()
	case errors.As(err, &unsupCap):
		f.Kind = FailureKindUser
		f.Message = unsupCap.Error()
	case errors.As(err, &unsupOp):
		f.Kind = FailureKindUser
		f.Message = unsupOp.Error()
	case errors.As(err, &noAccount):
		f.Kind = FailureKindUser
		f.Message = noAccount.Error()
	case errors.As(err, &upstream):
		f.Kind = FailureKindProvider
	default:
		f.Kind = FailureKindSystem
	}
	return f
}
