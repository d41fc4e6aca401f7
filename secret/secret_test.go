package secret

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvManager_ReadsPrefixedVariable(t *testing.T) {
	os.Setenv("LLMRT_OPENAI_API_KEY", "sk-test")
	defer os.Unsetenv("LLMRT_OPENAI_API_KEY")

	v, err := EnvManager{}.GetSecret("OPENAI_API_KEY")
	require.NoError(t, err)
	assert.Equal(t, "sk-test", v)
}

func TestEnvManager_MissingReturnsNotFound(t *testing.T) {
	_, err := EnvManager{}.GetSecret("DOES_NOT_EXIST")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStaticManager_ReturnsConfiguredValue(t *testing.T) {
	m := StaticManager{Values: map[string]string{"OPENAI_API_KEY": "static-key"}}
	v, err := m.GetSecret("OPENAI_API_KEY")
	require.NoError(t, err)
	assert.Equal(t, "static-key", v)
}

func TestStaticManager_MissingReturnsNotFound(t *testing.T) {
	m := StaticManager{Values: map[string]string{}}
	_, err := m.GetSecret("OPENAI_API_KEY")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCompositeManager_FallsThroughToSecondManager(t *testing.T) {
	c := NewCompositeManager(
		StaticManager{Values: map[string]string{}},
		StaticManager{Values: map[string]string{"OPENAI_API_KEY": "fallback"}},
	)
	v, err := c.GetSecret("OPENAI_API_KEY")
	require.NoError(t, err)
	assert.Equal(t, "fallback", v)
}

func TestCompositeManager_AllFailReturnsError(t *testing.T) {
	c := NewCompositeManager(StaticManager{}, StaticManager{})
	_, err := c.GetSecret("OPENAI_API_KEY")
	require.Error(t, err)
}

func TestMockManager_ReturnsTestSecretForAPIKeys(t *testing.T) {
	v, err := MockManager{}.GetSecret("ANTHROPIC_API_KEY")
	require.NoError(t, err)
	assert.Equal(t, "test-secret", v)
}

func TestMockManager_RejectsNonAPIKeyNames(t *testing.T) {
	_, err := MockManager{}.GetSecret("SOME_OTHER_VALUE")
	require.Error(t, err)
}

func TestContainer_RoundTripsStaticManagerThroughJSON(t *testing.T) {
	c := Container{Manager: StaticManager{Values: map[string]string{"K": "v"}}}
	data, err := c.MarshalJSON()
	require.NoError(t, err)

	var decoded Container
	require.NoError(t, decoded.UnmarshalJSON(data))

	v, err := decoded.Manager.GetSecret("K")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}

func TestContainer_UnknownTypeIsRejected(t *testing.T) {
	var c Container
	err := c.UnmarshalJSON([]byte(`{"Type":"bogus","Manager":{}}`))
	require.Error(t, err)
}
