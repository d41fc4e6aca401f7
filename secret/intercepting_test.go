package secret

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterceptingManager_DelegatesWhenNotHandled(t *testing.T) {
	RegisterInterceptor("test-passthrough", func(name string) (string, error, bool) {
		return "", nil, false
	})

	m := InterceptingManager{
		Underlying:      Container{Manager: StaticManager{Values: map[string]string{"K": "underlying-value"}}},
		InterceptorName: "test-passthrough",
	}

	v, err := m.GetSecret("K")
	require.NoError(t, err)
	assert.Equal(t, "underlying-value", v)
}

func TestInterceptingManager_OverridesWhenHandled(t *testing.T) {
	RegisterInterceptor("test-override", func(name string) (string, error, bool) {
		return "intercepted-" + name, nil, true
	})

	m := InterceptingManager{
		Underlying:      Container{Manager: StaticManager{}},
		InterceptorName: "test-override",
	}

	v, err := m.GetSecret("K")
	require.NoError(t, err)
	assert.Equal(t, "intercepted-K", v)
}

func TestInterceptingManager_UnregisteredInterceptorErrors(t *testing.T) {
	m := InterceptingManager{InterceptorName: "never-registered"}
	_, err := m.GetSecret("K")
	require.Error(t, err)
}

func TestInterceptingManager_HandledErrorIsPropagated(t *testing.T) {
	RegisterInterceptor("test-error", func(name string) (string, error, bool) {
		return "", fmt.Errorf("boom"), true
	})

	m := InterceptingManager{InterceptorName: "test-error"}
	_, err := m.GetSecret("K")
	require.Error(t, err)
}
