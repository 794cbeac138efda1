package registry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skylinehq/skyline/internal/domain"
	"github.com/skylinehq/skyline/internal/registry"
)

type stubOperation struct{ name string }

func (o *stubOperation) Name() string { return o.name }

func (o *stubOperation) Operate(context.Context, any) (any, error) { return nil, nil }

func stubConverter(name string) registry.Converter {
	return func(domain.Description) (domain.Operation, error) {
		return &stubOperation{name: name}, nil
	}
}

func TestRegistry_RegisterAndConvert(t *testing.T) {
	reg := registry.NewRegistry()
	require.NoError(t, reg.Register("kubernetes", "scaleManifest", stubConverter("SCALE")))

	op, err := reg.Convert(domain.Description{
		"provider": "kubernetes",
		"type":     "scaleManifest",
		"account":  "prod",
	})
	require.NoError(t, err)
	assert.Equal(t, "SCALE", op.Name())
	assert.True(t, reg.Supports("kubernetes", "scaleManifest"))
}

func TestRegistry_DuplicateRegistrationConflicts(t *testing.T) {
	reg := registry.NewRegistry()
	require.NoError(t, reg.Register("kubernetes", "scaleManifest", stubConverter("first")))

	err := reg.Register("kubernetes", "scaleManifest", stubConverter("second"))
	var conflict *domain.ConverterConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "kubernetes", conflict.Provider)
	assert.Equal(t, "scaleManifest", conflict.OperationType)

	// The original converter must still win.
	op, err := reg.Convert(domain.Description{"provider": "kubernetes", "type": "scaleManifest"})
	require.NoError(t, err)
	assert.Equal(t, "first", op.Name())
}

func TestRegistry_SameTypeDifferentProviders(t *testing.T) {
	reg := registry.NewRegistry()
	require.NoError(t, reg.Register("kubernetes", "scaleManifest", stubConverter("k8s")))
	require.NoError(t, reg.Register("nomad", "scaleManifest", stubConverter("nomad")))

	op, err := reg.Convert(domain.Description{"provider": "nomad", "type": "scaleManifest"})
	require.NoError(t, err)
	assert.Equal(t, "nomad", op.Name())
}

func TestRegistry_ConvertUnsupportedOperation(t *testing.T) {
	reg := registry.NewRegistry()

	_, err := reg.Convert(domain.Description{"provider": "kubernetes", "type": "resizeDisk"})
	var unsupported *domain.UnsupportedOperationError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "kubernetes", unsupported.Provider)
	assert.Equal(t, "resizeDisk", unsupported.OperationType)
}

func TestRegistry_ConverterValidationPropagates(t *testing.T) {
	reg := registry.NewRegistry()
	require.NoError(t, reg.Register("kubernetes", "scaleManifest",
		func(desc domain.Description) (domain.Operation, error) {
			if _, ok := desc.IntField("replicas"); !ok {
				return nil, &domain.InvalidDescriptionError{
					Provider:      "kubernetes",
					OperationType: "scaleManifest",
					Reason:        "missing field 'replicas'",
				}
			}
			return &stubOperation{name: "SCALE"}, nil
		}))

	_, err := reg.Convert(domain.Description{"provider": "kubernetes", "type": "scaleManifest"})
	var invalid *domain.InvalidDescriptionError
	require.ErrorAs(t, err, &invalid)
	assert.Contains(t, invalid.Reason, "replicas")
}
