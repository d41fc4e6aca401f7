package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscode_RoundTripsStructToMap(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
		Age  int    `json:"age"`
	}

	var out map[string]any
	require.NoError(t, Transcode(payload{Name: "Ada", Age: 36}, &out))
	assert.Equal(t, "Ada", out["name"])
	assert.Equal(t, float64(36), out["age"])
}

func TestTranscode_UnmarshalableTargetReturnsError(t *testing.T) {
	var out int
	err := Transcode(map[string]any{"a": 1}, &out)
	require.Error(t, err)
}

func TestPrettyJSON_IndentsValidValue(t *testing.T) {
	out := PrettyJSON(map[string]any{"a": 1})
	assert.Contains(t, out, "\"a\": 1")
}

func TestPrettyJSON_FallsBackOnUnmarshalableValue(t *testing.T) {
	out := PrettyJSON(func() {})
	assert.NotEmpty(t, out)
}
