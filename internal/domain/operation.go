package domain

import "context"

// Description is the raw, semi-typed payload of one requested operation.
// It names a provider, an operation type, and a target account, plus
// operation-specific parameters. Descriptions are never mutated after
// authorization and never executed directly — they are converted into
// Operations by the registry.
type Description map[string]any

// Provider returns the "provider" field, or "".
func (d Description) Provider() string { return d.stringField("provider") }

// Type returns the "type" field naming the operation, or "".
func (d Description) Type() string { return d.stringField("type") }

// Account returns the "account" field naming the target account, or "".
func (d Description) Account() string { return d.stringField("account") }

// StringField returns the named field as a string.
func (d Description) StringField(key string) (string, bool) {
	s, ok := d[key].(string)
	return s, ok
}

// IntField returns the named field as an int, accepting the float64 that
// JSON decoding produces for numbers.
func (d Description) IntField(key string) (int, bool) {
	switch v := d[key].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func (d Description) stringField(key string) string {
	s, _ := d[key].(string)
	return s
}

// Operation is one executable unit of a task's chain. An operation is owned
// by exactly one position in one chain for one task and is never shared.
//
// Operate receives the previous unit's output (nil for the first unit) and
// returns its own output, or nil for a no-op. The current task is reachable
// through the context (taskstore.Current) for status reporting.
type Operation interface {
	Name() string
	Operate(ctx context.Context, prior any) (any, error)
}
