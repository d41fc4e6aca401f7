package middleware

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"llmrt/llm"
	"llmrt/provider"
)

// RetryConfig parameterizes the exponential backoff loop: up to MaxAttempts
// total tries (1 means no retry), starting at InitialDelay, doubling (times
// Base) each attempt, capped at MaxDelay, with up to ±Jitter fraction of
// randomness applied to each computed delay.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Base         float64
	MaxDelay     time.Duration
	Jitter       float64
}

// DefaultRetryConfig matches a conventional exponential-backoff-with-jitter
// policy: 3 attempts, starting at 250ms, doubling, capped at 10s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 250 * time.Millisecond,
		Base:         2,
		MaxDelay:     10 * time.Second,
		Jitter:       0.2,
	}
}

// Retry wraps a Service in an exponential-backoff retry loop. On streaming
// calls, only an error returned by the inner Stream call itself is retried.
// Once Stream has returned a channel, every failure on it reaches the caller
// as a failed Chunk without retrying, including a failure delivered as the
// very first Chunk.
func Retry(cfg RetryConfig) Layer {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return func(next Service) Service {
		return &retryService{next: next, cfg: cfg}
	}
}

type retryService struct {
	next Service
	cfg  RetryConfig
}

func (s *retryService) delay(attempt int) time.Duration {
	d := float64(s.cfg.InitialDelay) * math.Pow(s.cfg.Base, float64(attempt))
	if d > float64(s.cfg.MaxDelay) {
		d = float64(s.cfg.MaxDelay)
	}
	if s.cfg.Jitter > 0 {
		spread := d * s.cfg.Jitter
		d += (rand.Float64()*2 - 1) * spread
		if d < 0 {
			d = 0
		}
	}
	return time.Duration(d)
}

// isRetriableErr reports whether err is an *llm.Error the retry layer
// should treat as transient, per the Kind's own Retriable() rule.
func isRetriableErr(err error) bool {
	var e *llm.Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Retriable()
}

// exhaustedErr tags the last error from a retry loop with how many attempts
// were made, per the contract that exhaustion re-emits the underlying error
// rather than swallowing the attempt history. attempts counts from 1.
func exhaustedErr(err error, attempts int) error {
	return fmt.Errorf("giving up after %d attempt(s): %w", attempts, err)
}

func (s *retryService) Request(ctx context.Context, opts llm.CallOptions) (*llm.Response, error) {
	var lastErr error
	for attempt := 0; attempt < s.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(s.delay(attempt - 1)):
			case <-ctx.Done():
				return nil, llm.NewCanceledError("retry wait canceled: " + ctx.Err().Error())
			}
		}

		attemptOpts := opts
		attemptOpts.Request = opts.Request.Clone()

		resp, err := s.next.Request(ctx, attemptOpts)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !isRetriableErr(err) {
			return nil, err
		}
	}
	return nil, exhaustedErr(lastErr, s.cfg.MaxAttempts)
}

func (s *retryService) Stream(ctx context.Context, opts llm.CallOptions) (<-chan provider.Chunk, error) {
	var lastErr error
	for attempt := 0; attempt < s.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(s.delay(attempt - 1)):
			case <-ctx.Done():
				return nil, llm.NewCanceledError("retry wait canceled: " + ctx.Err().Error())
			}
		}

		attemptOpts := opts
		attemptOpts.Request = opts.Request.Clone()

		chunks, err := s.next.Stream(ctx, attemptOpts)
		if err == nil {
			return chunks, nil
		}
		lastErr = err
		if !isRetriableErr(err) {
			return nil, err
		}
	}
	return nil, exhaustedErr(lastErr, s.cfg.MaxAttempts)
}
