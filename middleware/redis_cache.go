package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"llmrt/llm"
	"llmrt/provider"

	"github.com/redis/go-redis/v9"
)

// RedisCacheConfig configures a shared-cache Layer backed by Redis, for
// deployments that run more than one process against the same cache
// (the in-memory Cache layer is per-process only).
type RedisCacheConfig struct {
	Client    *redis.Client
	TTL       time.Duration
	KeyPrefix string
}

// RedisCache wraps a Service with a Redis-backed cache keyed on the same
// request fingerprint as Cache. Like Cache, only non-streaming Request
// calls are cached; Stream passes through unmodified.
func RedisCache(cfg RedisCacheConfig) Layer {
	return func(next Service) Service {
		return &redisCacheService{next: next, cfg: cfg}
	}
}

type redisCacheService struct {
	next Service
	cfg  RedisCacheConfig
}

func (s *redisCacheService) key(req llm.Request) string {
	return s.cfg.KeyPrefix + fingerprint(req)
}

func (s *redisCacheService) Request(ctx context.Context, opts llm.CallOptions) (*llm.Response, error) {
	key := s.key(opts.Request)

	if cached, err := s.cfg.Client.Get(ctx, key).Result(); err == nil {
		var resp llm.Response
		if jsonErr := json.Unmarshal([]byte(cached), &resp); jsonErr == nil {
			return &resp, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		return nil, llm.NewNetworkError("redis cache get", err)
	}

	resp, err := s.next.Request(ctx, opts)
	if err != nil {
		return nil, err
	}

	if data, jsonErr := json.Marshal(resp); jsonErr == nil {
		s.cfg.Client.Set(ctx, key, data, s.cfg.TTL) //nolint:errcheck
	}
	return resp, nil
}

func (s *redisCacheService) Stream(ctx context.Context, opts llm.CallOptions) (<-chan provider.Chunk, error) {
	return s.next.Stream(ctx, opts)
}
