package jobstatus

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for dev and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]TaskState
}

// NewMemoryStore creates an empty in-memory task state store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: map[string]TaskState{}}
}

func (s *MemoryStore) Set(ctx context.Context, state TaskState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[state.TaskID] = state
	return nil
}

// Keys lists the stored task IDs. Intended for tests and diagnostics.
func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.items))
	for k := range s.items {
		keys = append(keys, k)
	}
	return keys
}

func (s *MemoryStore) Delete(ctx context.Context, taskID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, taskID)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, taskID string) (TaskState, error) {
	if err := ctx.Err(); err != nil {
		return TaskState{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.items[taskID]
	if !ok {
		return TaskState{}, ErrNotFound
	}
	return state, nil
}
