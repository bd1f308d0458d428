package syncer

import (
	"context"
	"sync"
	"time"
)

// SyncState is what the orchestrator remembers between runs of one source.
type SyncState struct {
	Fingerprint string
	LastSyncAt  time.Time
}

// SyncStateStore persists SyncState per source key.
type SyncStateStore interface {
	Get(ctx context.Context, key string) (SyncState, bool, error)
	Set(ctx context.Context, key string, st SyncState) error
}

// MemoryStateStore keeps state in process memory.
type MemoryStateStore struct {
	mu     sync.Mutex
	states map[string]SyncState
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: make(map[string]SyncState)}
}

func (m *MemoryStateStore) Get(_ context.Context, key string) (SyncState, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[key]
	return st, ok, nil
}

func (m *MemoryStateStore) Set(_ context.Context, key string, st SyncState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[key] = st
	return nil
}
