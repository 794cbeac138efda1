package kubernetes

import (
	"context"
	"fmt"

	"github.com/skylinehq/skyline/internal/credentials"
	"github.com/skylinehq/skyline/internal/dispatch"
	"github.com/skylinehq/skyline/internal/domain"
	"github.com/skylinehq/skyline/internal/taskstore"
)

const opScaleManifest = "SCALE_MANIFEST"

// convertScale validates a scaleManifest description and binds it to its
// account's credentials.
func (p *Plugin) convertScale(desc domain.Description) (domain.Operation, error) {
	coords, err := coordinatesFrom(desc)
	if err != nil {
		return nil, err
	}
	replicas, ok := desc.IntField("replicas")
	if !ok || replicas < 0 {
		return nil, &domain.InvalidDescriptionError{
			Provider:      Provider,
			OperationType: desc.Type(),
			Reason:        "missing or negative field 'replicas'",
		}
	}
	creds, err := p.accounts.Get(desc.Account())
	if err != nil {
		return nil, err
	}
	return &scaleOperation{creds: creds, coords: coords, replicas: replicas}, nil
}

type scaleOperation struct {
	creds    *credentials.Credentials
	coords   dispatch.Coordinates
	replicas int
}

func (o *scaleOperation) Name() string { return opScaleManifest }

func (o *scaleOperation) Operate(ctx context.Context, _ any) (any, error) {
	task := taskstore.Current(ctx)

	// Resolve handler and capability before the first status entry: the
	// history must never claim a scale is proceeding when the kind cannot
	// scale at all.
	h, err := dispatch.ResolveCapability(o.creds.Resources, o.coords.Kind, dispatch.CapabilityScale)
	if err != nil {
		return nil, err
	}

	task.UpdateStatus(opScaleManifest,
		fmt.Sprintf("Starting scale operation in account %s...", o.creds.Name))
	task.UpdateStatus(opScaleManifest,
		fmt.Sprintf("Calling scale operation for %s in namespace %s with replicas %d...",
			o.coords.Name, o.coords.Namespace, o.replicas))

	if err := h.Scale(ctx, task, opScaleManifest, o.coords.Namespace, o.coords.Name, o.replicas); err != nil {
		return nil, err
	}

	task.UpdateStatus(opScaleManifest, "Scale operation completed successfully")
	return nil, nil
}

// scaleHandler adapts the cluster client into a dispatch scale capability
// for one kind, reporting sub-status on the owning task.
func (p *Plugin) scaleHandler(kind string) dispatch.ScaleFunc {
	return func(ctx context.Context, task *domain.Task, phase, namespace, name string, replicas int) error {
		if err := p.client.Scale(ctx, namespace, kind, name, replicas); err != nil {
			return err
		}
		task.UpdateStatus(phase, fmt.Sprintf("Cluster accepted replicas=%d for %s %s/%s", replicas, kind, namespace, name))
		return nil
	}
}

func coordinatesFrom(desc domain.Description) (dispatch.Coordinates, error) {
	kind, _ := desc.StringField("kind")
	name, _ := desc.StringField("name")
	namespace, _ := desc.StringField("namespace")
	if kind == "" || name == "" || namespace == "" {
		return dispatch.Coordinates{}, &domain.InvalidDescriptionError{
			Provider:      Provider,
			OperationType: desc.Type(),
			Reason:        "fields 'kind', 'name' and 'namespace' are required",
		}
	}
	return dispatch.Coordinates{Kind: kind, Namespace: namespace, Name: name}, nil
}
