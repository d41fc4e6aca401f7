package middleware

import (
	"context"
	"time"

	"llmrt/llm"
	"llmrt/provider"

	"golang.org/x/time/rate"
)

// RateLimitConfig describes a token bucket: Capacity tokens refill at
// RefillPerPeriod tokens every Period.
type RateLimitConfig struct {
	Capacity        int
	RefillPerPeriod float64
	Period          time.Duration
}

// RateLimit wraps a Service with a token-bucket limiter shared across every
// call through the returned Layer (one limiter instance per Chain, not per
// call): Request and Stream calls each acquire a single token before
// delegating, suspending until one is available or ctx is canceled.
func RateLimit(cfg RateLimitConfig) Layer {
	limiter := rate.NewLimiter(rate.Limit(cfg.RefillPerPeriod/cfg.Period.Seconds()), cfg.Capacity)
	return func(next Service) Service {
		return &rateLimitService{next: next, limiter: limiter}
	}
}

type rateLimitService struct {
	next    Service
	limiter *rate.Limiter
}

func (s *rateLimitService) Request(ctx context.Context, opts llm.CallOptions) (*llm.Response, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, llm.NewCanceledError("rate limit wait: " + err.Error())
	}
	return s.next.Request(ctx, opts)
}

func (s *rateLimitService) Stream(ctx context.Context, opts llm.CallOptions) (<-chan provider.Chunk, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, llm.NewCanceledError("rate limit wait: " + err.Error())
	}
	return s.next.Stream(ctx, opts)
}
