package provider

import (
	"testing"

	"llmrt/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterToolsByName_ReturnsSingleMatch(t *testing.T) {
	tools := []llm.ToolDescriptor{{Name: "a"}, {Name: "b"}}
	result := filterToolsByName(tools, "b")
	assert.Equal(t, []llm.ToolDescriptor{{Name: "b"}}, result)
}

func TestFilterToolsByName_NoMatchReturnsAll(t *testing.T) {
	tools := []llm.ToolDescriptor{{Name: "a"}, {Name: "b"}}
	result := filterToolsByName(tools, "missing")
	assert.Equal(t, tools, result)
}

func TestOpenAIFinishReason_MapsKnownReasons(t *testing.T) {
	assert.Equal(t, llm.FinishStop, openaiFinishReason("stop"))
	assert.Equal(t, llm.FinishLength, openaiFinishReason("length"))
	assert.Equal(t, llm.FinishToolUse, openaiFinishReason("tool_calls"))
	assert.Equal(t, llm.FinishToolUse, openaiFinishReason("function_call"))
	assert.Equal(t, llm.FinishContentFilter, openaiFinishReason("content_filter"))
}

func TestOpenAIFinishReason_UnknownMapsToOther(t *testing.T) {
	assert.Equal(t, llm.FinishOther, openaiFinishReason("something_new"))
}

func TestCleanOpenAIToolName_StripsKnownPrefixes(t *testing.T) {
	assert.Equal(t, "add", cleanOpenAIToolName("tools.add"))
	assert.Equal(t, "add", cleanOpenAIToolName("functions.add"))
	assert.Equal(t, "add", cleanOpenAIToolName("add"))
}

func TestJSONSchemaToMap_NilSchemaYieldsEmptyMap(t *testing.T) {
	m, err := jsonSchemaToMap(nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, m)
}

func TestJSONSchemaToMap_ConvertsStruct(t *testing.T) {
	type schema struct {
		Type string `json:"type"`
	}
	m, err := jsonSchemaToMap(schema{Type: "object"})
	require.NoError(t, err)
	assert.Equal(t, "object", m["type"])
}
