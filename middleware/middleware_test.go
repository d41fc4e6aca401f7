package middleware

import (
	"context"
	"sync/atomic"

	"llmrt/llm"
	"llmrt/provider"
)

// stubService is a Service whose Request/Stream behavior is supplied by the
// test, with a call counter so retry/rate-limit tests can assert attempts.
type stubService struct {
	calls int32

	requestFn func(callNum int) (*llm.Response, error)
	streamFn  func(callNum int) (<-chan provider.Chunk, error)
}

func (s *stubService) Request(ctx context.Context, opts llm.CallOptions) (*llm.Response, error) {
	n := atomic.AddInt32(&s.calls, 1)
	return s.requestFn(int(n))
}

func (s *stubService) Stream(ctx context.Context, opts llm.CallOptions) (<-chan provider.Chunk, error) {
	n := atomic.AddInt32(&s.calls, 1)
	return s.streamFn(int(n))
}

func (s *stubService) callCount() int {
	return int(atomic.LoadInt32(&s.calls))
}

func chunkChan(events ...provider.Chunk) <-chan provider.Chunk {
	ch := make(chan provider.Chunk, len(events))
	for _, e := range events {
		ch <- e
	}
	close(ch)
	return ch
}
