package middleware

import (
	"context"
	"time"

	"llmrt/llm"
	"llmrt/provider"

	"github.com/rs/zerolog"
)

// LoggingConfig controls what the Logging layer records. LogContent is
// opt-in: request/response text is only emitted when explicitly enabled, so
// embedders don't leak prompt or completion text into logs by default.
type LoggingConfig struct {
	Logger     zerolog.Logger
	LogContent bool
}

// Logging wraps a Service with structured request-begin, response-end (or
// stream-end), and error records. It never mutates the request or response.
func Logging(cfg LoggingConfig) Layer {
	return func(next Service) Service {
		return &loggingService{next: next, cfg: cfg}
	}
}

type loggingService struct {
	next Service
	cfg  LoggingConfig
}

func (s *loggingService) Request(ctx context.Context, opts llm.CallOptions) (*llm.Response, error) {
	start := time.Now()
	event := s.cfg.Logger.Info().Fields(opts.LogFields())
	if s.cfg.LogContent {
		event = event.Interface("messages", opts.Request.Messages)
	}
	event.Msg("llm request begin")

	resp, err := s.next.Request(ctx, opts)
	elapsed := time.Since(start)

	if err != nil {
		s.cfg.Logger.Error().Err(err).Dur("elapsed", elapsed).Fields(opts.LogFields()).Msg("llm request failed")
		return nil, err
	}

	doneEvent := s.cfg.Logger.Info().
		Dur("elapsed", elapsed).
		Str("model", resp.Model).
		Str("finishReason", string(resp.FinishReason)).
		Int("toolCallCount", len(resp.ToolCalls)).
		Int("contentLength", len(resp.ContentText))
	if resp.Usage != nil {
		doneEvent = doneEvent.Int("inputTokens", resp.Usage.InputTokens).Int("outputTokens", resp.Usage.OutputTokens)
	}
	if s.cfg.LogContent {
		doneEvent = doneEvent.Str("contentText", resp.ContentText)
	}
	doneEvent.Msg("llm request end")

	return resp, nil
}

func (s *loggingService) Stream(ctx context.Context, opts llm.CallOptions) (<-chan provider.Chunk, error) {
	start := time.Now()
	s.cfg.Logger.Info().Fields(opts.LogFields()).Msg("llm stream begin")

	chunks, err := s.next.Stream(ctx, opts)
	if err != nil {
		s.cfg.Logger.Error().Err(err).Fields(opts.LogFields()).Msg("llm stream establishment failed")
		return nil, err
	}

	out := make(chan provider.Chunk)
	go func() {
		defer close(out)
		var contentLen, eventCount int
		for c := range chunks {
			if c.Err != nil {
				s.cfg.Logger.Error().Err(c.Err).Dur("elapsed", time.Since(start)).Fields(opts.LogFields()).Msg("llm stream failed")
			} else if c.Event.Kind == llm.EventContentDelta {
				contentLen += len(c.Event.ContentDelta)
			}
			eventCount++
			out <- c
		}
		s.cfg.Logger.Info().
			Dur("elapsed", time.Since(start)).
			Int("eventCount", eventCount).
			Int("contentLength", contentLen).
			Fields(opts.LogFields()).
			Msg("llm stream end")
	}()
	return out, nil
}
