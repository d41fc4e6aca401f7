package middleware

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"llmrt/llm"
	"llmrt/provider"
)

// CacheConfig bounds an in-memory response cache: at most MaxEntries live
// entries, each valid for TTL after it was stored.
type CacheConfig struct {
	MaxEntries int
	TTL        time.Duration
}

// Cache wraps a Service with a bounded LRU+TTL cache keyed on a deterministic
// fingerprint of the request. Only non-streaming Request calls are cached;
// Stream passes through unmodified since a cached stream can't reproduce
// incremental delivery.
func Cache(cfg CacheConfig) Layer {
	if cfg.MaxEntries < 1 {
		cfg.MaxEntries = 1
	}
	return func(next Service) Service {
		return &cacheService{
			next:    next,
			cfg:     cfg,
			entries: make(map[string]*list.Element),
			order:   list.New(),
		}
	}
}

type cacheEntry struct {
	key      string
	response *llm.Response
	storedAt time.Time
}

type cacheService struct {
	next Service
	cfg  CacheConfig

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List
}

// fingerprint hashes the fields of a request that affect the response:
// messages, tools, tool choice, response format, and sampling parameters.
// Secrets and non-deterministic fields (request IDs, context) are excluded.
func fingerprint(req llm.Request) string {
	h := sha256.New()
	enc := json.NewEncoder(h)
	enc.Encode(req.Model)          //nolint:errcheck
	enc.Encode(req.Messages)       //nolint:errcheck
	enc.Encode(req.Tools)          //nolint:errcheck
	enc.Encode(req.ToolChoice)     //nolint:errcheck
	enc.Encode(req.ResponseFormat) //nolint:errcheck
	enc.Encode(req.Parameters)     //nolint:errcheck
	return hex.EncodeToString(h.Sum(nil))
}

func (s *cacheService) lookup(key string) (*llm.Response, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if s.cfg.TTL > 0 && time.Since(entry.storedAt) > s.cfg.TTL {
		s.order.Remove(el)
		delete(s.entries, key)
		return nil, false
	}
	s.order.MoveToFront(el)
	return entry.response, true
}

func (s *cacheService) store(key string, resp *llm.Response) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.entries[key]; ok {
		el.Value.(*cacheEntry).response = resp
		el.Value.(*cacheEntry).storedAt = time.Now()
		s.order.MoveToFront(el)
		return
	}

	el := s.order.PushFront(&cacheEntry{key: key, response: resp, storedAt: time.Now()})
	s.entries[key] = el

	for s.order.Len() > s.cfg.MaxEntries {
		oldest := s.order.Back()
		if oldest == nil {
			break
		}
		s.order.Remove(oldest)
		delete(s.entries, oldest.Value.(*cacheEntry).key)
	}
}

func (s *cacheService) Request(ctx context.Context, opts llm.CallOptions) (*llm.Response, error) {
	key := fingerprint(opts.Request)
	if resp, ok := s.lookup(key); ok {
		return resp, nil
	}

	resp, err := s.next.Request(ctx, opts)
	if err != nil {
		return nil, err
	}
	s.store(key, resp)
	return resp, nil
}

func (s *cacheService) Stream(ctx context.Context, opts llm.CallOptions) (<-chan provider.Chunk, error) {
	return s.next.Stream(ctx, opts)
}
