// Package provider adapts the canonical request/response/event types in
// llm to the wire dialects of concrete LLM backends: OpenAI-style chat
// completions, Anthropic messages, and Ollama's local chat API.
package provider

import (
	"context"

	"llmrt/llm"
)

// Chunk is one element of the lazy event sequence a Provider yields for a
// streaming call. Exactly one of Event or Err is meaningful: a non-nil Err
// is always the last chunk sent on the channel.
type Chunk struct {
	Event llm.StreamEvent
	Err   error
}

// Provider is a value implementing the two operations every backend
// adapter must support: a blocking request/response call, and a streaming
// call that returns a single-consumer, finite, cancellation-aware sequence
// of events.
//
// Stream returns a channel the Provider itself owns and closes once the
// sequence ends (either with a Done event or a failed Chunk). Callers
// release the underlying transport by canceling ctx; they must not assume
// they can re-read from a channel after ctx is canceled.
type Provider interface {
	// Name identifies the backend family, used in error messages and
	// logging (e.g. "openai", "anthropic", "ollama").
	Name() string

	// Request sends one request and blocks until the complete response (or
	// an error) is available.
	Request(ctx context.Context, opts llm.CallOptions) (*llm.Response, error)

	// Stream sends one request and returns a channel of Chunks. The error
	// return is reserved for failures that occur before the first chunk
	// would be produced (e.g. building the HTTP request); once the channel
	// is returned, all further failures — including transport errors mid
	// stream — are delivered as a Chunk with a non-nil Err.
	Stream(ctx context.Context, opts llm.CallOptions) (<-chan Chunk, error)
}
