package provider

import (
	"testing"

	"llmrt/llm"

	"github.com/stretchr/testify/assert"
)

func TestOllamaFinishReason_ToolCallsTakePrecedence(t *testing.T) {
	assert.Equal(t, llm.FinishToolUse, ollamaFinishReason("stop", 2))
}

func TestOllamaFinishReason_MapsKnownReasons(t *testing.T) {
	assert.Equal(t, llm.FinishStop, ollamaFinishReason("stop", 0))
	assert.Equal(t, llm.FinishStop, ollamaFinishReason("", 0))
	assert.Equal(t, llm.FinishLength, ollamaFinishReason("length", 0))
}

func TestOllamaFinishReason_UnknownMapsToOther(t *testing.T) {
	assert.Equal(t, llm.FinishOther, ollamaFinishReason("something_new", 0))
}

func TestOllamaAdapter_BaseURLTrimsTrailingSlash(t *testing.T) {
	a := NewOllamaAdapter("http://localhost:11434/", "")
	assert.Equal(t, "http://localhost:11434", a.baseURL())
}

func TestOllamaAdapter_BaseURLDefaultsWhenUnset(t *testing.T) {
	a := NewOllamaAdapter("", "")
	assert.NotEmpty(t, a.baseURL())
}

func TestOllamaAdapter_ModelFallsBackToDefault(t *testing.T) {
	a := NewOllamaAdapter("", "llama3.1")
	assert.Equal(t, "llama3.1", a.model(llm.Request{}))
	assert.Equal(t, "mistral", a.model(llm.Request{Model: "mistral"}))
}
