package middleware

import (
	"context"
	"testing"
	"time"

	"llmrt/llm"
	"llmrt/provider"

	"github.com/stretchr/testify/require"
)

func TestCache_HitAvoidsSecondCall(t *testing.T) {
	stub := &stubService{
		requestFn: func(n int) (*llm.Response, error) {
			return &llm.Response{ContentText: "first"}, nil
		},
	}
	svc := Cache(CacheConfig{MaxEntries: 10, TTL: time.Minute})(stub)

	req := llm.CallOptions{Request: llm.Request{Model: "m1", Messages: []llm.Message{llm.UserMessage("hi")}}}

	resp1, err := svc.Request(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "first", resp1.ContentText)

	resp2, err := svc.Request(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "first", resp2.ContentText)
	require.Equal(t, 1, stub.callCount())
}

func TestCache_DifferentRequestsMiss(t *testing.T) {
	stub := &stubService{
		requestFn: func(n int) (*llm.Response, error) {
			return &llm.Response{ContentText: "resp"}, nil
		},
	}
	svc := Cache(CacheConfig{MaxEntries: 10, TTL: time.Minute})(stub)

	req1 := llm.CallOptions{Request: llm.Request{Model: "m1", Messages: []llm.Message{llm.UserMessage("a")}}}
	req2 := llm.CallOptions{Request: llm.Request{Model: "m1", Messages: []llm.Message{llm.UserMessage("b")}}}

	_, err := svc.Request(context.Background(), req1)
	require.NoError(t, err)
	_, err = svc.Request(context.Background(), req2)
	require.NoError(t, err)
	require.Equal(t, 2, stub.callCount())
}

func TestCache_TTLExpiry(t *testing.T) {
	stub := &stubService{
		requestFn: func(n int) (*llm.Response, error) {
			return &llm.Response{ContentText: "resp"}, nil
		},
	}
	svc := Cache(CacheConfig{MaxEntries: 10, TTL: 5 * time.Millisecond})(stub)

	req := llm.CallOptions{Request: llm.Request{Model: "m1", Messages: []llm.Message{llm.UserMessage("hi")}}}

	_, err := svc.Request(context.Background(), req)
	require.NoError(t, err)

	time.Sleep(15 * time.Millisecond)

	_, err = svc.Request(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, 2, stub.callCount())
}

func TestCache_EvictsLeastRecentlyUsedBeyondMaxEntries(t *testing.T) {
	stub := &stubService{
		requestFn: func(n int) (*llm.Response, error) {
			return &llm.Response{ContentText: "resp"}, nil
		},
	}
	svc := Cache(CacheConfig{MaxEntries: 1, TTL: time.Minute})(stub)

	req1 := llm.CallOptions{Request: llm.Request{Model: "m1", Messages: []llm.Message{llm.UserMessage("a")}}}
	req2 := llm.CallOptions{Request: llm.Request{Model: "m1", Messages: []llm.Message{llm.UserMessage("b")}}}

	_, err := svc.Request(context.Background(), req1)
	require.NoError(t, err)
	_, err = svc.Request(context.Background(), req2)
	require.NoError(t, err)
	require.Equal(t, 2, stub.callCount())

	// req1 was evicted to make room for req2, so it misses again.
	_, err = svc.Request(context.Background(), req1)
	require.NoError(t, err)
	require.Equal(t, 3, stub.callCount())
}

func TestCache_StreamPassesThroughUncached(t *testing.T) {
	stub := &stubService{
		streamFn: func(n int) (<-chan provider.Chunk, error) {
			return chunkChan(provider.Chunk{Event: llm.DoneEvent()}), nil
		},
	}
	svc := Cache(CacheConfig{MaxEntries: 10, TTL: time.Minute})(stub)

	req := llm.CallOptions{Request: llm.Request{Model: "m1"}}
	chunks, err := svc.Stream(context.Background(), req)
	require.NoError(t, err)
	for range chunks {
	}

	chunks, err = svc.Stream(context.Background(), req)
	require.NoError(t, err)
	for range chunks {
	}
	require.Equal(t, 2, stub.callCount())
}
