package client

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"llmrt/llm"
)

// Strategy selects how a ParallelClient combines outcomes from its member
// clients.
type Strategy string

const (
	StrategyFirstSuccess Strategy = "first_success"
	StrategyAll          Strategy = "all"
	StrategyRace         Strategy = "race"
)

// Outcome pairs one member client's provider name with its result.
type Outcome struct {
	Provider string
	Response *llm.Response
	Err      error
}

// member is one named backend in a ParallelClient.
type member struct {
	Name   string
	Client *Client
}

// ParallelClient dispatches a single request to multiple clients at once
// and combines the outcomes per Strategy.
type ParallelClient struct {
	members []member
}

// NewParallelClient builds a ParallelClient over the given name->Client
// pairs. Order is preserved for the All strategy's result vector.
func NewParallelClient(clients map[string]*Client, order []string) *ParallelClient {
	members := make([]member, 0, len(order))
	for _, name := range order {
		if c, ok := clients[name]; ok {
			members = append(members, member{Name: name, Client: c})
		}
	}
	return &ParallelClient{members: members}
}

func (p *ParallelClient) dispatch(ctx context.Context, model string, messages []llm.Message) (context.CancelFunc, <-chan Outcome) {
	ctx, cancel := context.WithCancel(ctx)
	out := make(chan Outcome, len(p.members))

	var wg sync.WaitGroup
	for _, m := range p.members {
		m := m
		wg.Add(1)
		go func() {
			defer wg.Done()
			text, err := m.Client.Chat(ctx, model, messages)
			var resp *llm.Response
			if err == nil {
				resp = &llm.Response{ContentText: text, Model: model}
			}
			select {
			case out <- Outcome{Provider: m.Name, Response: resp, Err: err}:
			case <-ctx.Done():
			}
		}()
	}
	go func() {
		wg.Wait()
		close(out)
	}()

	return cancel, out
}

// FirstSuccess dispatches to every member, returns the first successful
// Outcome, and cancels the rest. If every member fails, returns an
// aggregate error.
func (p *ParallelClient) FirstSuccess(ctx context.Context, model string, messages []llm.Message) (Outcome, error) {
	cancel, out := p.dispatch(ctx, model, messages)
	defer cancel()

	var errs []error
	for o := range out {
		if o.Err == nil {
			return o, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", o.Provider, o.Err))
	}
	return Outcome{}, llm.NewProviderError("parallel", fmt.Sprintf("all providers failed: %v", errs), 0, false)
}

// Race returns whichever member completes first, success or failure.
func (p *ParallelClient) Race(ctx context.Context, model string, messages []llm.Message) (Outcome, error) {
	cancel, out := p.dispatch(ctx, model, messages)
	defer cancel()

	o, ok := <-out
	if !ok {
		return Outcome{}, llm.NewProviderError("parallel", "no providers configured", 0, false)
	}
	return o, o.Err
}

// All waits for every member and returns their outcomes in the order the
// ParallelClient was constructed with.
func (p *ParallelClient) All(ctx context.Context, model string, messages []llm.Message) []Outcome {
	cancel, out := p.dispatch(ctx, model, messages)
	defer cancel()

	byName := make(map[string]Outcome, len(p.members))
	for o := range out {
		byName[o.Provider] = o
	}

	results := make([]Outcome, len(p.members))
	for i, m := range p.members {
		results[i] = byName[m.Name]
	}
	return results
}

// Consensus waits for every member and returns a response once at least k
// members agree on a canonical hash of their content text; otherwise
// returns an aggregate error describing the disagreement.
func (p *ParallelClient) Consensus(ctx context.Context, model string, messages []llm.Message, k int) (Outcome, error) {
	outcomes := p.All(ctx, model, messages)

	counts := make(map[string]int)
	firstByHash := make(map[string]Outcome)
	for _, o := range outcomes {
		if o.Err != nil || o.Response == nil {
			continue
		}
		h := contentHash(o.Response.ContentText)
		counts[h]++
		if _, ok := firstByHash[h]; !ok {
			firstByHash[h] = o
		}
	}

	for h, n := range counts {
		if n >= k {
			return firstByHash[h], nil
		}
	}

	return Outcome{}, llm.NewProviderError("parallel", fmt.Sprintf("no consensus of %d reached among %d providers", k, len(outcomes)), 0, false)
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
