// Package kubernetes is the Kubernetes provider plugin: converters for
// manifest operations and capability handlers for the resource kinds the
// provider can act on.
package kubernetes

import (
	"fmt"

	"github.com/skylinehq/skyline/internal/credentials"
	"github.com/skylinehq/skyline/internal/dispatch"
	"github.com/skylinehq/skyline/internal/registry"
	"github.com/skylinehq/skyline/internal/saga"
)

const (
	// Provider is the provider identifier.
	Provider = "kubernetes"

	KindDeployment  = "deployment"
	KindStatefulSet = "statefulset"
	KindJob         = "job"
)

// Plugin bundles the provider's client with its registration pass.
type Plugin struct {
	client   Client
	accounts credentials.Repository
	engine   *saga.Engine
}

// PluginOption configures a Plugin.
type PluginOption func(*Plugin)

// WithSagaEngine enables the provider's durable operations. Without it,
// scaleManifestSaga descriptions are rejected at conversion.
func WithSagaEngine(engine *saga.Engine) PluginOption {
	return func(p *Plugin) { p.engine = engine }
}

// NewPlugin creates the plugin over a cluster client and the account
// repository whose kubernetes accounts it will serve.
func NewPlugin(client Client, accounts credentials.Repository, opts ...PluginOption) *Plugin {
	p := &Plugin{client: client, accounts: accounts}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Register wires the provider's converters into the operation registry and
// populates the handler registry of every kubernetes account. Called once
// at startup; conflicts fail fast.
func (p *Plugin) Register(reg *registry.Registry) error {
	if err := reg.Register(Provider, "scaleManifest", p.convertScale); err != nil {
		return fmt.Errorf("register scaleManifest: %w", err)
	}
	if err := reg.Register(Provider, "deleteManifest", p.convertDelete); err != nil {
		return fmt.Errorf("register deleteManifest: %w", err)
	}
	if err := reg.Register(Provider, "scaleManifestSaga", p.convertScaleDurable); err != nil {
		return fmt.Errorf("register scaleManifestSaga: %w", err)
	}

	for _, account := range p.accounts.All() {
		if account.Provider != Provider {
			continue
		}
		for _, h := range p.handlers() {
			if err := account.Resources.Register(h); err != nil {
				return fmt.Errorf("register handlers for account %s: %w", account.Name, err)
			}
		}
	}
	return nil
}

// handlers builds the provider's capability handlers. Deployments and
// statefulsets expose the scale subresource; jobs can only be deleted.
func (p *Plugin) handlers() []*dispatch.Handler {
	scalable := func(kind string) *dispatch.Handler {
		return &dispatch.Handler{
			Kind:   kind,
			Scale:  p.scaleHandler(kind),
			Delete: p.deleteHandler(kind),
		}
	}
	return []*dispatch.Handler{
		scalable(KindDeployment),
		scalable(KindStatefulSet),
		{
			Kind:   KindJob,
			Delete: p.deleteHandler(KindJob),
		},
	}
}
