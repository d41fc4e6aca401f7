package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"llmrt/llm"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

// FileStore persists one ConversationState per JSON file under Dir, named
// by the state's id. Writes go to a temp file in the same directory and
// are renamed into place, so a reader never observes a partially written
// file. A per-id flock.Flock additionally serializes concurrent writers to
// the same id across processes.
type FileStore struct {
	Dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	return &FileStore{Dir: dir}, nil
}

func sanitizeID(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, "/\\") || id == "." || id == ".." {
		return "", llm.NewValidationError("invalid conversation state id")
	}
	return id, nil
}

func (f *FileStore) path(id string) string {
	return filepath.Join(f.Dir, id+".json")
}

func (f *FileStore) lockPath(id string) string {
	return filepath.Join(f.Dir, id+".lock")
}

func (f *FileStore) withLock(id string, fn func() error) error {
	lock := flock.New(f.lockPath(id))
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("acquire lock for state %s: %w", id, err)
	}
	defer lock.Unlock()
	return fn()
}

func (f *FileStore) Save(ctx context.Context, s llm.ConversationState) (llm.ConversationState, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	id, err := sanitizeID(s.ID)
	if err != nil {
		return llm.ConversationState{}, err
	}

	var result llm.ConversationState
	err = f.withLock(id, func() error {
		now := time.Now()
		if existing, loadErr := f.readUnlocked(id); loadErr == nil {
			s.CreatedAt = existing.CreatedAt
		} else {
			s.CreatedAt = now
		}
		s.UpdatedAt = now

		data, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal conversation state: %w", err)
		}

		tmp, err := os.CreateTemp(f.Dir, id+".tmp-*")
		if err != nil {
			return fmt.Errorf("create temp state file: %w", err)
		}
		tmpPath := tmp.Name()
		if _, err := tmp.Write(data); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("write temp state file: %w", err)
		}
		if err := tmp.Close(); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("close temp state file: %w", err)
		}
		if err := os.Rename(tmpPath, f.path(id)); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("rename temp state file into place: %w", err)
		}

		result = s
		return nil
	})
	if err != nil {
		return llm.ConversationState{}, err
	}
	return result.Clone(), nil
}

func (f *FileStore) readUnlocked(id string) (llm.ConversationState, error) {
	data, err := os.ReadFile(f.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return llm.ConversationState{}, llm.NewNotFoundError("conversation state not found: " + id)
		}
		return llm.ConversationState{}, fmt.Errorf("read state file: %w", err)
	}
	var s llm.ConversationState
	if err := json.Unmarshal(data, &s); err != nil {
		return llm.ConversationState{}, llm.NewSerializationError("decode conversation state "+id, err)
	}
	return s, nil
}

func (f *FileStore) Load(ctx context.Context, id string) (llm.ConversationState, error) {
	id, err := sanitizeID(id)
	if err != nil {
		return llm.ConversationState{}, err
	}
	s, err := f.readUnlocked(id)
	if err != nil {
		return llm.ConversationState{}, err
	}
	return s.Clone(), nil
}

func (f *FileStore) Delete(ctx context.Context, id string) error {
	id, err := sanitizeID(id)
	if err != nil {
		return err
	}
	return f.withLock(id, func() error {
		if err := os.Remove(f.path(id)); err != nil {
			if os.IsNotExist(err) {
				return llm.NewNotFoundError("conversation state not found: " + id)
			}
			return fmt.Errorf("remove state file: %w", err)
		}
		os.Remove(f.lockPath(id))
		return nil
	})
}

func (f *FileStore) List(ctx context.Context) ([]llm.ConversationState, error) {
	entries, err := os.ReadDir(f.Dir)
	if err != nil {
		return nil, fmt.Errorf("read state directory: %w", err)
	}

	var result []llm.ConversationState
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		id := strings.TrimSuffix(name, ".json")
		s, err := f.readUnlocked(id)
		if err != nil {
			continue
		}
		result = append(result, s.Clone())
	}
	return result, nil
}

func (f *FileStore) FindByTags(ctx context.Context, tags []string) ([]llm.ConversationState, error) {
	all, err := f.List(ctx)
	if err != nil {
		return nil, err
	}
	var result []llm.ConversationState
	for _, s := range all {
		if s.Metadata.HasTags(tags) {
			result = append(result, s)
		}
	}
	return result, nil
}

var _ Store = (*MemoryStore)(nil)
var _ Store = (*FileStore)(nil)
