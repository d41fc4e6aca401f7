package accumulate

import (
	"testing"

	"llmrt/llm"
	"llmrt/provider"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestAccumulator_ContentOnly(t *testing.T) {
	a := New()
	a.Push(llm.ContentDeltaEvent("Hello, "))
	a.Push(llm.ContentDeltaEvent("world!"))
	finish := llm.FinishStop
	a.Push(llm.MetadataDeltaEvent(llm.MetadataDelta{FinishReason: &finish, Model: strPtr("gpt-5.2")}))
	a.Push(llm.DoneEvent())

	resp, err := a.Result()
	require.NoError(t, err)
	assert.Equal(t, "Hello, world!", resp.ContentText)
	assert.Equal(t, llm.FinishStop, resp.FinishReason)
	assert.Equal(t, "gpt-5.2", resp.Model)
	assert.Empty(t, resp.ToolCalls)
}

func TestAccumulator_ToolCallAssembly(t *testing.T) {
	a := New()
	id, name := "call_1", "get_weather"
	a.Push(llm.ToolCallDeltaEvent(llm.ToolCallDelta{Index: 0, ID: &id, Name: &name}))
	a.Push(llm.ToolCallDeltaEvent(llm.ToolCallDelta{Index: 0, ArgumentsFragment: strPtr(`{"loc`)}))
	a.Push(llm.ToolCallDeltaEvent(llm.ToolCallDelta{Index: 0, ArgumentsFragment: strPtr(`ation":"SF"}`)}))
	a.Push(llm.DoneEvent())

	resp, err := a.Result()
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "call_1", resp.ToolCalls[0].ID)
	assert.Equal(t, "get_weather", resp.ToolCalls[0].Name)
	assert.Equal(t, `{"location":"SF"}`, resp.ToolCalls[0].Arguments)
	assert.Equal(t, llm.FinishToolUse, resp.FinishReason)
}

func TestAccumulator_MultipleToolCallSlotsInterleaved(t *testing.T) {
	a := New()
	id0, name0 := "call_0", "tool_a"
	id1, name1 := "call_1", "tool_b"
	a.Push(llm.ToolCallDeltaEvent(llm.ToolCallDelta{Index: 0, ID: &id0, Name: &name0}))
	a.Push(llm.ToolCallDeltaEvent(llm.ToolCallDelta{Index: 1, ID: &id1, Name: &name1}))
	a.Push(llm.ToolCallDeltaEvent(llm.ToolCallDelta{Index: 0, ArgumentsFragment: strPtr(`{"a":1}`)}))
	a.Push(llm.ToolCallDeltaEvent(llm.ToolCallDelta{Index: 1, ArgumentsFragment: strPtr(`{"b":2}`)}))
	a.Push(llm.DoneEvent())

	resp, err := a.Result()
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 2)
	assert.Equal(t, "call_0", resp.ToolCalls[0].ID)
	assert.Equal(t, "call_1", resp.ToolCalls[1].ID)
}

func TestAccumulator_IncompleteArgumentsIsValidationError(t *testing.T) {
	a := New()
	id, name := "call_1", "get_weather"
	a.Push(llm.ToolCallDeltaEvent(llm.ToolCallDelta{Index: 0, ID: &id, Name: &name}))
	a.Push(llm.ToolCallDeltaEvent(llm.ToolCallDelta{Index: 0, ArgumentsFragment: strPtr(`{"location":`)}))
	a.Push(llm.DoneEvent())

	_, err := a.Result()
	require.Error(t, err)
	assert.True(t, llm.IsKind(err, llm.KindValidation))
}

func TestAccumulator_NameAndIDSetOnce(t *testing.T) {
	a := New()
	id, name := "call_1", "get_weather"
	otherID, otherName := "call_overwritten", "other_tool"
	a.Push(llm.ToolCallDeltaEvent(llm.ToolCallDelta{Index: 0, ID: &id, Name: &name}))
	a.Push(llm.ToolCallDeltaEvent(llm.ToolCallDelta{Index: 0, ID: &otherID, Name: &otherName}))
	a.Push(llm.ToolCallDeltaEvent(llm.ToolCallDelta{Index: 0, ArgumentsFragment: strPtr(`{}`)}))
	a.Push(llm.DoneEvent())

	resp, err := a.Result()
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "call_1", resp.ToolCalls[0].ID)
	assert.Equal(t, "get_weather", resp.ToolCalls[0].Name)
}

func TestAccumulator_ErrorChunkFailsAccumulation(t *testing.T) {
	boom := llm.NewNetworkError("connection reset", nil)
	a := New()
	a.Push(llm.ContentDeltaEvent("partial"))
	a.Fail(boom)
	a.Push(llm.ContentDeltaEvent("more text after failure is ignored"))

	_, err := a.Result()
	assert.ErrorIs(t, err, boom)
}

func TestAccumulator_Deterministic(t *testing.T) {
	events := []llm.StreamEvent{
		llm.ContentDeltaEvent("partial "),
		llm.ContentDeltaEvent("answer"),
		llm.MetadataDeltaEvent(llm.MetadataDelta{Usage: &llm.Usage{InputTokens: 10, OutputTokens: 2, TotalTokens: 12}}),
		llm.DoneEvent(),
	}

	run := func() *llm.Response {
		a := New()
		for _, e := range events {
			a.Push(e)
		}
		resp, err := a.Result()
		require.NoError(t, err)
		return resp
	}

	first, second := run(), run()
	assert.Equal(t, first, second)
}

func TestAccumulate_DrainsChannel(t *testing.T) {
	ch := make(chan provider.Chunk, 4)
	ch <- provider.Chunk{Event: llm.ContentDeltaEvent("hi")}
	ch <- provider.Chunk{Event: llm.DoneEvent()}
	close(ch)

	resp, err := Accumulate(ch)
	require.NoError(t, err)
	assert.Equal(t, "hi", resp.ContentText)
}
