package kubernetes

import (
	"context"
	"errors"
	"fmt"

	"github.com/skylinehq/skyline/internal/dispatch"
	"github.com/skylinehq/skyline/internal/domain"
	"github.com/skylinehq/skyline/internal/saga"
)

// FlowScaleManifest names the durable scale flow in the saga event log.
const FlowScaleManifest = "kubernetes-scale-manifest"

// scaleParams is the parameter set a durable scale carries through the
// event log. The prepare step records it so later steps, and compensation
// after a restart, can work from the log alone.
type scaleParams struct {
	Account         string `json:"account"`
	Kind            string `json:"kind"`
	Namespace       string `json:"namespace"`
	Name            string `json:"name"`
	Replicas        int    `json:"replicas"`
	RestoreReplicas int    `json:"restore_replicas"`
	HasRestore      bool   `json:"has_restore"`
}

func (p scaleParams) asOutput() map[string]any {
	return map[string]any{
		"account":          p.Account,
		"kind":             p.Kind,
		"namespace":        p.Namespace,
		"name":             p.Name,
		"replicas":         p.Replicas,
		"restore_replicas": p.RestoreReplicas,
		"has_restore":      p.HasRestore,
	}
}

func paramsFromOutput(output any) (scaleParams, error) {
	m, ok := output.(map[string]any)
	if !ok {
		return scaleParams{}, errors.New("scale flow: prior output is not a parameter map")
	}
	get := func(key string) string { s, _ := m[key].(string); return s }
	getInt := func(key string) int {
		switch v := m[key].(type) {
		case int:
			return v
		case float64:
			return int(v)
		}
		return 0
	}
	hasRestore, _ := m["has_restore"].(bool)
	params := scaleParams{
		Account:         get("account"),
		Kind:            get("kind"),
		Namespace:       get("namespace"),
		Name:            get("name"),
		Replicas:        getInt("replicas"),
		RestoreReplicas: getInt("restore_replicas"),
		HasRestore:      hasRestore,
	}
	if params.Kind == "" || params.Name == "" || params.Namespace == "" {
		return scaleParams{}, errors.New("scale flow: parameter map is missing coordinates")
	}
	return params, nil
}

// Flows returns the provider's resumable flow definitions for engine
// registration at startup.
func (p *Plugin) Flows() []saga.Flow {
	return []saga.Flow{p.scaleFlow(nil)}
}

// scaleFlow builds the durable scale flow. With non-nil params it is the
// conversion-time variant carrying the description's values; with nil
// params it is the resume variant registered at startup, which works
// entirely from outputs recorded in the event log. A saga that crashed
// before its parameters were recorded cannot be resumed and fails its
// first step instead.
func (p *Plugin) scaleFlow(params *scaleParams) saga.Flow {
	return saga.Flow{
		Name: FlowScaleManifest,
		Steps: []saga.Step{
			{
				Name: "prepare",
				Apply: func(_ context.Context, _ any) (any, error) {
					if params == nil {
						return nil, errors.New("scale flow: parameters were not recorded before the restart")
					}
					return params.asOutput(), nil
				},
			},
			{
				Name: "scale",
				Apply: func(ctx context.Context, prior any) (any, error) {
					sp, err := paramsFromOutput(prior)
					if err != nil {
						return nil, err
					}
					if err := p.scaleVia(ctx, sp.Account, sp.Kind, sp.Namespace, sp.Name, sp.Replicas); err != nil {
						return nil, err
					}
					return sp.asOutput(), nil
				},
				Compensate: func(ctx context.Context, output any) error {
					sp, err := paramsFromOutput(output)
					if err != nil {
						return err
					}
					if !sp.HasRestore {
						return nil
					}
					return p.scaleVia(ctx, sp.Account, sp.Kind, sp.Namespace, sp.Name, sp.RestoreReplicas)
				},
			},
		},
	}
}

// scaleVia resolves the account's scale capability for kind and invokes it
// directly against the cluster. Saga steps run outside a task chain on
// resume, so no task handle is involved here.
func (p *Plugin) scaleVia(ctx context.Context, account, kind, namespace, name string, replicas int) error {
	creds, err := p.accounts.Get(account)
	if err != nil {
		return err
	}
	if _, err := dispatch.ResolveCapability(creds.Resources, kind, dispatch.CapabilityScale); err != nil {
		return err
	}
	return p.client.Scale(ctx, namespace, kind, name, replicas)
}

// convertScaleDurable binds a durable scale description to the saga
// engine. Requires the optional "restoreReplicas" field when compensation
// should scale back instead of leaving the failed target as-is.
func (p *Plugin) convertScaleDurable(desc domain.Description) (domain.Operation, error) {
	if p.engine == nil {
		return nil, &domain.InvalidDescriptionError{
			Provider:      Provider,
			OperationType: desc.Type(),
			Reason:        "durable execution is not enabled",
		}
	}
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
	if _, err := p.accounts.Get(desc.Account()); err != nil {
		return nil, err
	}
	params := &scaleParams{
		Account:   desc.Account(),
		Kind:      coords.Kind,
		Namespace: coords.Namespace,
		Name:      coords.Name,
		Replicas:  replicas,
	}
	if restore, ok := desc.IntField("restoreReplicas"); ok {
		if restore < 0 {
			return nil, &domain.InvalidDescriptionError{
				Provider:      Provider,
				OperationType: desc.Type(),
				Reason:        fmt.Sprintf("negative field 'restoreReplicas' (%d)", restore),
			}
		}
		params.RestoreReplicas = restore
		params.HasRestore = true
	}
	return saga.AsOperation(p.engine, p.scaleFlow(params)), nil
}
