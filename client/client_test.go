package client

import (
	"context"
	"testing"

	"llmrt/llm"
	"llmrt/provider"
	"llmrt/secret"

	"github.com/stretchr/testify/require"
)

type mockProvider struct {
	name      string
	requestFn func(ctx context.Context, opts llm.CallOptions) (*llm.Response, error)
	streamFn  func(ctx context.Context, opts llm.CallOptions) (<-chan provider.Chunk, error)
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) Request(ctx context.Context, opts llm.CallOptions) (*llm.Response, error) {
	return m.requestFn(ctx, opts)
}

func (m *mockProvider) Stream(ctx context.Context, opts llm.CallOptions) (<-chan provider.Chunk, error) {
	return m.streamFn(ctx, opts)
}

func chunkChan(events ...provider.Chunk) <-chan provider.Chunk {
	ch := make(chan provider.Chunk, len(events))
	for _, e := range events {
		ch <- e
	}
	close(ch)
	return ch
}

func TestClient_ChatReturnsContentText(t *testing.T) {
	mp := &mockProvider{name: "mock", requestFn: func(ctx context.Context, opts llm.CallOptions) (*llm.Response, error) {
		return &llm.Response{ContentText: "hello there"}, nil
	}}
	c := New(mp, secret.Container{})

	text, err := c.Chat(context.Background(), "m1", []llm.Message{llm.UserMessage("hi")})
	require.NoError(t, err)
	require.Equal(t, "hello there", text)
}

func TestClient_StreamChatFiltersToContentDeltas(t *testing.T) {
	mp := &mockProvider{name: "mock", streamFn: func(ctx context.Context, opts llm.CallOptions) (<-chan provider.Chunk, error) {
		return chunkChan(
			provider.Chunk{Event: llm.ContentDeltaEvent("hello ")},
			provider.Chunk{Event: llm.ToolCallDeltaEvent(llm.ToolCallDelta{Index: 0})},
			provider.Chunk{Event: llm.ContentDeltaEvent("world")},
			provider.Chunk{Event: llm.DoneEvent()},
		), nil
	}}
	c := New(mp, secret.Container{})

	textCh, err := c.StreamChat(context.Background(), "m1", []llm.Message{llm.UserMessage("hi")})
	require.NoError(t, err)

	var got string
	for fragment := range textCh {
		got += fragment
	}
	require.Equal(t, "hello world", got)
}

type structuredAnswer struct {
	Answer string `json:"answer"`
}

func TestChatStructured_DecodesResponseIntoType(t *testing.T) {
	mp := &mockProvider{name: "mock", requestFn: func(ctx context.Context, opts llm.CallOptions) (*llm.Response, error) {
		require.NotNil(t, opts.Request.ResponseFormat)
		require.Equal(t, llm.ResponseFormatJSONSchema, opts.Request.ResponseFormat.Type)
		return &llm.Response{ContentText: `{"answer":"42"}`}, nil
	}}
	c := New(mp, secret.Container{})

	result, err := ChatStructured[structuredAnswer](context.Background(), c, "m1", []llm.Message{llm.UserMessage("what?")})
	require.NoError(t, err)
	require.Equal(t, "42", result.Answer)
}

func TestChatStructured_InvalidJSONIsSerializationError(t *testing.T) {
	mp := &mockProvider{name: "mock", requestFn: func(ctx context.Context, opts llm.CallOptions) (*llm.Response, error) {
		return &llm.Response{ContentText: `not json`}, nil
	}}
	c := New(mp, secret.Container{})

	_, err := ChatStructured[structuredAnswer](context.Background(), c, "m1", []llm.Message{llm.UserMessage("what?")})
	require.Error(t, err)
	require.True(t, llm.IsKind(err, llm.KindSerialization))
}

func TestBuilder_BuildsAndSendsRequest(t *testing.T) {
	mp := &mockProvider{name: "mock", requestFn: func(ctx context.Context, opts llm.CallOptions) (*llm.Response, error) {
		require.Equal(t, "m1", opts.Request.Model)
		require.Len(t, opts.Request.Tools, 1)
		return &llm.Response{ContentText: "ok"}, nil
	}}
	c := New(mp, secret.Container{})

	resp, err := c.Request("m1").
		Messages(llm.UserMessage("hi")).
		Tools(llm.ToolDescriptor{Name: "search"}).
		Send(context.Background(), c)
	require.NoError(t, err)
	require.Equal(t, "ok", resp.ContentText)
}
