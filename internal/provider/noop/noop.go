// Package noop is the always-available provider used by smoke flows and
// deployments with no cloud account wired yet. Its single operation does
// nothing but report that it did so.
package noop

import (
	"context"

	"github.com/skylinehq/skyline/internal/domain"
	"github.com/skylinehq/skyline/internal/registry"
	"github.com/skylinehq/skyline/internal/taskstore"
)

const (
	// Provider is the provider identifier.
	Provider = "noop"

	opName = "NOOP"
)

// Register wires the noop provider's converters into the registry.
func Register(reg *registry.Registry) error {
	return reg.Register(Provider, "noop", convert)
}

func convert(desc domain.Description) (domain.Operation, error) {
	message, _ := desc.StringField("message")
	return &operation{message: message}, nil
}

type operation struct {
	message string
}

func (o *operation) Name() string { return opName }

func (o *operation) Operate(ctx context.Context, _ any) (any, error) {
	task := taskstore.Current(ctx)
	if o.message != "" {
		task.UpdateStatus(opName, o.message)
	} else {
		task.UpdateStatus(opName, "No-op operation executed")
	}
	return nil, nil
}
