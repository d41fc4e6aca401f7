// Package middleware composes layered wrappers around a provider.Provider:
// logging, retry, rate-limiting, and caching, each implementing the same
// Service contract as the provider it wraps so they nest transparently.
package middleware

import (
	"context"

	"llmrt/llm"
	"llmrt/provider"
)

// Service is any value exposing the same call contract as a provider.Provider.
// A provider.Provider trivially satisfies Service (see ProviderService); a
// Layer-wrapped Service is itself a Service, so layers compose.
type Service interface {
	Request(ctx context.Context, opts llm.CallOptions) (*llm.Response, error)
	Stream(ctx context.Context, opts llm.CallOptions) (<-chan provider.Chunk, error)
}

// Layer transforms a Service into a Service, typically by wrapping its
// Request/Stream calls with cross-cutting behavior. Composing layers around
// a provider is: L1(L2(...Lk(provider))) — the outermost layer sees the
// original request first.
type Layer func(Service) Service

// ProviderService adapts a provider.Provider to Service.
type ProviderService struct {
	Provider provider.Provider
}

func (p ProviderService) Request(ctx context.Context, opts llm.CallOptions) (*llm.Response, error) {
	return p.Provider.Request(ctx, opts)
}

func (p ProviderService) Stream(ctx context.Context, opts llm.CallOptions) (<-chan provider.Chunk, error) {
	return p.Provider.Stream(ctx, opts)
}

// Chain wraps base with layers, outermost first: Chain(base, L1, L2) returns
// L1(L2(base)), so L1 sees the request before L2 does.
func Chain(base Service, layers ...Layer) Service {
	svc := base
	for i := len(layers) - 1; i >= 0; i-- {
		svc = layers[i](svc)
	}
	return svc
}
