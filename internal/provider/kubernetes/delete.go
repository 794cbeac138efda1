package kubernetes

import (
	"context"
	"fmt"

	"github.com/skylinehq/skyline/internal/credentials"
	"github.com/skylinehq/skyline/internal/dispatch"
	"github.com/skylinehq/skyline/internal/domain"
	"github.com/skylinehq/skyline/internal/taskstore"
)

const opDeleteManifest = "DELETE_MANIFEST"

func (p *Plugin) convertDelete(desc domain.Description) (domain.Operation, error) {
	coords, err := coordinatesFrom(desc)
	if err != nil {
		return nil, err
	}
	creds, err := p.accounts.Get(desc.Account())
	if err != nil {
		return nil, err
	}
	return &deleteOperation{creds: creds, coords: coords}, nil
}

type deleteOperation struct {
	creds  *credentials.Credentials
	coords dispatch.Coordinates
}

func (o *deleteOperation) Name() string { return opDeleteManifest }

func (o *deleteOperation) Operate(ctx context.Context, _ any) (any, error) {
	task := taskstore.Current(ctx)

	h, err := dispatch.ResolveCapability(o.creds.Resources, o.coords.Kind, dispatch.CapabilityDelete)
	if err != nil {
		return nil, err
	}

	task.UpdateStatus(opDeleteManifest,
		fmt.Sprintf("Starting delete operation in account %s...", o.creds.Name))
	task.UpdateStatus(opDeleteManifest,
		fmt.Sprintf("Calling delete operation for %s in namespace %s...",
			o.coords.Name, o.coords.Namespace))

	if err := h.Delete(ctx, task, opDeleteManifest, o.coords.Namespace, o.coords.Name); err != nil {
		return nil, err
	}

	task.UpdateStatus(opDeleteManifest, "Delete operation completed successfully")
	return map[string]any{
		"deleted": fmt.Sprintf("%s %s/%s", o.coords.Kind, o.coords.Namespace, o.coords.Name),
	}, nil
}

func (p *Plugin) deleteHandler(kind string) dispatch.DeleteFunc {
	return func(ctx context.Context, task *domain.Task, phase, namespace, name string) error {
		if err := p.client.Delete(ctx, namespace, kind, name); err != nil {
			return err
		}
		task.UpdateStatus(phase, fmt.Sprintf("Cluster accepted delete of %s %s/%s", kind, namespace, name))
		return nil
	}
}
