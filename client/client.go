// Package client provides the caller-facing facade over a provider (or a
// middleware-wrapped service): convenience entry points for plain-text
// chat, streamed text, schema-validated structured output, a fluent
// request builder, and a parallel client that fans a request out across
// multiple backends.
package client

import (
	"context"
	"encoding/json"
	"fmt"

	"llmrt/accumulate"
	"llmrt/llm"
	"llmrt/middleware"
	"llmrt/provider"
	"llmrt/secret"

	"github.com/invopop/jsonschema"
)

// Client wraps a middleware.Service (which a bare provider.Provider
// satisfies via middleware.ProviderService) with the convenience surface
// callers reach for most often.
type Client struct {
	Service middleware.Service
	Secrets secret.Container
}

// New wraps a provider with an optional layer chain into a Client.
func New(p provider.Provider, secrets secret.Container, layers ...middleware.Layer) *Client {
	return &Client{
		Service: middleware.Chain(middleware.ProviderService{Provider: p}, layers...),
		Secrets: secrets,
	}
}

func (c *Client) callOptions(req llm.Request) llm.CallOptions {
	return llm.CallOptions{Request: req, Secrets: c.Secrets}
}

// Chat sends messages and returns the response's content text.
func (c *Client) Chat(ctx context.Context, model string, messages []llm.Message) (string, error) {
	req := llm.Request{Model: model, Messages: messages}
	resp, err := c.Service.Request(ctx, c.callOptions(req))
	if err != nil {
		return "", err
	}
	return resp.ContentText, nil
}

// StreamChat sends messages and returns a channel of content-text
// fragments, filtering out tool-call and metadata events. The channel is
// closed when the stream ends; a non-nil error is only returned for
// establishment failures, matching provider.Provider.Stream's contract.
func (c *Client) StreamChat(ctx context.Context, model string, messages []llm.Message) (<-chan string, error) {
	req := llm.Request{Model: model, Messages: messages}
	chunks, err := c.Service.Stream(ctx, c.callOptions(req))
	if err != nil {
		return nil, err
	}

	out := make(chan string)
	go func() {
		defer close(out)
		for chunk := range chunks {
			if chunk.Err != nil {
				return
			}
			if chunk.Event.Kind == llm.EventContentDelta && chunk.Event.ContentDelta != "" {
				out <- chunk.Event.ContentDelta
			}
		}
	}()
	return out, nil
}

// ChatStructured sends messages with a json_schema response format derived
// from T, then parses and decodes the response content into a T value.
func ChatStructured[T any](ctx context.Context, c *Client, model string, messages []llm.Message) (T, error) {
	var zero T

	schema := (&jsonschema.Reflector{DoNotReference: true}).Reflect(new(T))
	req := llm.Request{
		Model:    model,
		Messages: messages,
		ResponseFormat: &llm.ResponseFormat{
			Type:   llm.ResponseFormatJSONSchema,
			Schema: schema,
			Strict: true,
		},
	}

	resp, err := c.Service.Request(ctx, c.callOptions(req))
	if err != nil {
		return zero, err
	}

	var result T
	if err := json.Unmarshal([]byte(resp.ContentText), &result); err != nil {
		return zero, llm.NewSerializationError(fmt.Sprintf("decode structured output for model %s", model), err)
	}
	return result, nil
}

// RequestAccumulated sends a streaming request and accumulates the event
// sequence into a single Response, as a non-streaming caller would see it
// but driven through the streaming path (useful for providers/layers that
// only observe incremental events, e.g. a streaming-only cache warm path).
func (c *Client) RequestAccumulated(ctx context.Context, req llm.Request) (*llm.Response, error) {
	chunks, err := c.Service.Stream(ctx, c.callOptions(req))
	if err != nil {
		return nil, err
	}
	return accumulate.Accumulate(chunks)
}

// Builder fluently assembles an llm.Request.
type Builder struct {
	req llm.Request
}

// Request starts a new request builder for the given model.
func (c *Client) Request(model string) *Builder {
	return &Builder{req: llm.Request{Model: model}}
}

func (b *Builder) Messages(messages ...llm.Message) *Builder {
	b.req.Messages = append(b.req.Messages, messages...)
	return b
}

func (b *Builder) Tools(tools ...llm.ToolDescriptor) *Builder {
	b.req.Tools = append(b.req.Tools, tools...)
	return b
}

func (b *Builder) ToolChoice(choice llm.ToolChoice) *Builder {
	b.req.ToolChoice = choice
	return b
}

func (b *Builder) ResponseFormat(format llm.ResponseFormat) *Builder {
	b.req.ResponseFormat = &format
	return b
}

func (b *Builder) Parameters(params llm.Parameters) *Builder {
	b.req.Parameters = params
	return b
}

// Build returns the assembled Request.
func (b *Builder) Build() llm.Request {
	return b.req
}

// Send builds the request and issues it through c.
func (b *Builder) Send(ctx context.Context, c *Client) (*llm.Response, error) {
	return c.Service.Request(ctx, c.callOptions(b.req))
}
