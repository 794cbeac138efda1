package dispatch_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skylinehq/skyline/internal/dispatch"
	"github.com/skylinehq/skyline/internal/domain"
)

func noopScale(context.Context, *domain.Task, string, string, string, int) error { return nil }

func noopDelete(context.Context, *domain.Task, string, string, string) error { return nil }

func TestHandler_CapabilityMembership(t *testing.T) {
	h := &dispatch.Handler{Kind: "deployment", Scale: noopScale, Delete: noopDelete}

	assert.True(t, h.Supports(dispatch.CapabilityScale))
	assert.True(t, h.Supports(dispatch.CapabilityDelete))
	assert.False(t, h.Supports(dispatch.CapabilityUndo))
	assert.Equal(t, []dispatch.Capability{dispatch.CapabilityScale, dispatch.CapabilityDelete}, h.Capabilities())
}

func TestHandler_EmptyCapabilitySet(t *testing.T) {
	h := &dispatch.Handler{Kind: "inert"}

	assert.False(t, h.Supports(dispatch.CapabilityScale))
	assert.Empty(t, h.Capabilities())
}

func TestHandlerRegistry_RegisterAndGet(t *testing.T) {
	reg := dispatch.NewHandlerRegistry()
	require.NoError(t, reg.Register(&dispatch.Handler{Kind: "deployment", Scale: noopScale}))

	h, err := reg.Get("deployment")
	require.NoError(t, err)
	assert.Equal(t, "deployment", h.Kind)
	assert.ElementsMatch(t, []string{"deployment"}, reg.Kinds())
}

func TestHandlerRegistry_DuplicateKindConflicts(t *testing.T) {
	reg := dispatch.NewHandlerRegistry()
	require.NoError(t, reg.Register(&dispatch.Handler{Kind: "deployment"}))

	err := reg.Register(&dispatch.Handler{Kind: "deployment"})
	var conflict *domain.HandlerConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "deployment", conflict.Kind)
}

func TestHandlerRegistry_UnknownKind(t *testing.T) {
	reg := dispatch.NewHandlerRegistry()

	_, err := reg.Get("gadget")
	var unknown *domain.UnknownResourceKindError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "gadget", unknown.Kind)
}

func TestResolveCapability(t *testing.T) {
	reg := dispatch.NewHandlerRegistry()
	require.NoError(t, reg.Register(&dispatch.Handler{Kind: "deployment", Scale: noopScale}))
	require.NoError(t, reg.Register(&dispatch.Handler{Kind: "job", Delete: noopDelete}))

	h, err := dispatch.ResolveCapability(reg, "deployment", dispatch.CapabilityScale)
	require.NoError(t, err)
	assert.NotNil(t, h.Scale)

	_, err = dispatch.ResolveCapability(reg, "gadget", dispatch.CapabilityScale)
	var unknown *domain.UnknownResourceKindError
	assert.ErrorAs(t, err, &unknown)

	// A kind that exists but cannot serve the verb names both sides.
	_, err = dispatch.ResolveCapability(reg, "job", dispatch.CapabilityScale)
	var unsupported *domain.UnsupportedCapabilityError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "job", unsupported.Kind)
	assert.Equal(t, "scale", unsupported.Capability)
}
