// Package state persists llm.ConversationState values behind a small
// pluggable Store contract, with in-memory and file-backed implementations.
package state

import (
	"context"
	"sync"
	"time"

	"llmrt/llm"

	"github.com/google/uuid"
)

// Store is the persistence contract every backing implementation satisfies.
// Operations on a single id are linearizable from any single caller's
// perspective; concurrent writers to the same id produce a well-defined
// last-writer-wins outcome.
type Store interface {
	// Save upserts state by its ID, refreshing UpdatedAt (and CreatedAt, the
	// first time an ID is seen). If ID is empty, Save assigns a new UUID.
	Save(ctx context.Context, s llm.ConversationState) (llm.ConversationState, error)
	Load(ctx context.Context, id string) (llm.ConversationState, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]llm.ConversationState, error)
	// FindByTags returns every state whose tag set contains all of tags.
	FindByTags(ctx context.Context, tags []string) ([]llm.ConversationState, error)
}

// MemoryStore is an in-memory Store guarded by a single RWMutex.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]llm.ConversationState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]llm.ConversationState)}
}

func (m *MemoryStore) Save(ctx context.Context, s llm.ConversationState) (llm.ConversationState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.ID == "" {
		s.ID = uuid.NewString()
	}

	now := time.Now()
	if existing, ok := m.states[s.ID]; ok {
		s.CreatedAt = existing.CreatedAt
	} else {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	m.states[s.ID] = s.Clone()
	return s.Clone(), nil
}

func (m *MemoryStore) Load(ctx context.Context, id string) (llm.ConversationState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.states[id]
	if !ok {
		return llm.ConversationState{}, llm.NewNotFoundError("conversation state not found: " + id)
	}
	return s.Clone(), nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.states[id]; !ok {
		return llm.NewNotFoundError("conversation state not found: " + id)
	}
	delete(m.states, id)
	return nil
}

func (m *MemoryStore) List(ctx context.Context) ([]llm.ConversationState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]llm.ConversationState, 0, len(m.states))
	for _, s := range m.states {
		result = append(result, s.Clone())
	}
	return result, nil
}

func (m *MemoryStore) FindByTags(ctx context.Context, tags []string) ([]llm.ConversationState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []llm.ConversationState
	for _, s := range m.states {
		if s.Metadata.HasTags(tags) {
			result = append(result, s.Clone())
		}
	}
	return result, nil
}
