package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"llmrt/llm"
	"llmrt/secret"

	"github.com/stretchr/testify/require"
)

func namedClient(name string, delay time.Duration, text string, err error) *Client {
	mp := &mockProvider{name: name, requestFn: func(ctx context.Context, opts llm.CallOptions) (*llm.Response, error) {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if err != nil {
			return nil, err
		}
		return &llm.Response{ContentText: text}, nil
	}}
	return New(mp, secret.Container{})
}

func TestParallelClient_FirstSuccessIgnoresSlowerFailure(t *testing.T) {
	clients := map[string]*Client{
		"fast": namedClient("fast", time.Millisecond, "fast answer", nil),
		"slow": namedClient("slow", 50*time.Millisecond, "", errors.New("down")),
	}
	pc := NewParallelClient(clients, []string{"fast", "slow"})

	o, err := pc.FirstSuccess(context.Background(), "m1", []llm.Message{llm.UserMessage("hi")})
	require.NoError(t, err)
	require.Equal(t, "fast", o.Provider)
	require.Equal(t, "fast answer", o.Response.ContentText)
}

func TestParallelClient_FirstSuccessAllFailReturnsAggregateError(t *testing.T) {
	clients := map[string]*Client{
		"a": namedClient("a", time.Millisecond, "", errors.New("down a")),
		"b": namedClient("b", time.Millisecond, "", errors.New("down b")),
	}
	pc := NewParallelClient(clients, []string{"a", "b"})

	_, err := pc.FirstSuccess(context.Background(), "m1", nil)
	require.Error(t, err)
}

func TestParallelClient_RaceReturnsWhicheverFinishesFirst(t *testing.T) {
	clients := map[string]*Client{
		"fast": namedClient("fast", time.Millisecond, "", errors.New("fast failure")),
		"slow": namedClient("slow", 50*time.Millisecond, "slow answer", nil),
	}
	pc := NewParallelClient(clients, []string{"fast", "slow"})

	o, err := pc.Race(context.Background(), "m1", nil)
	require.Error(t, err)
	require.Equal(t, "fast", o.Provider)
}

func TestParallelClient_AllPreservesOrderRegardlessOfCompletion(t *testing.T) {
	clients := map[string]*Client{
		"a": namedClient("a", 20*time.Millisecond, "answer a", nil),
		"b": namedClient("b", time.Millisecond, "answer b", nil),
	}
	pc := NewParallelClient(clients, []string{"a", "b"})

	outcomes := pc.All(context.Background(), "m1", nil)
	require.Len(t, outcomes, 2)
	require.Equal(t, "a", outcomes[0].Provider)
	require.Equal(t, "b", outcomes[1].Provider)
}

func TestParallelClient_ConsensusAgreesAmongMajority(t *testing.T) {
	clients := map[string]*Client{
		"a": namedClient("a", time.Millisecond, "same answer", nil),
		"b": namedClient("b", time.Millisecond, "same answer", nil),
		"c": namedClient("c", time.Millisecond, "different", nil),
	}
	pc := NewParallelClient(clients, []string{"a", "b", "c"})

	o, err := pc.Consensus(context.Background(), "m1", nil, 2)
	require.NoError(t, err)
	require.Equal(t, "same answer", o.Response.ContentText)
}

func TestParallelClient_ConsensusFailsWithoutAgreement(t *testing.T) {
	clients := map[string]*Client{
		"a": namedClient("a", time.Millisecond, "one", nil),
		"b": namedClient("b", time.Millisecond, "two", nil),
		"c": namedClient("c", time.Millisecond, "three", nil),
	}
	pc := NewParallelClient(clients, []string{"a", "b", "c"})

	_, err := pc.Consensus(context.Background(), "m1", nil, 2)
	require.Error(t, err)
}
