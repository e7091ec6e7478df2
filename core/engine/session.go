package engine

import (
	"context"
	"sync"
)

// SessionStore persists per-user, per-state session blobs. The absence of a
// key is not an error: Load returns (nil, nil) and callers treat it as fresh
// state. No compare-and-swap is offered; concurrent writes from the same
// user are a documented last-write-wins race.
type SessionStore interface {
	Load(ctx context.Context, userID int64, stateID string) ([]byte, error)
	Save(ctx context.Context, userID int64, stateID string, blob []byte) error
	Reset(ctx context.Context, userID int64, stateID string) error
	ResetAll(ctx context.Context, userID int64) error
}

type memoryStore struct {
	mu       sync.RWMutex
	sessions map[int64]map[string][]byte
}

// NewMemoryStore constructs an in-memory SessionStore for tests and
// development. It is safe for concurrent use.
func NewMemoryStore() SessionStore {
	return &memoryStore{sessions: make(map[int64]map[string][]byte)}
}

func (m *memoryStore) Load(_ context.Context, userID int64, stateID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.sessions[userID]
	if !ok {
		return nil, nil
	}
	blob, ok := user[stateID]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(blob))
	copy(out, blob)
	return out, nil
}

func (m *memoryStore) Save(_ context.Context, userID int64, stateID string, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.sessions[userID]
	if !ok {
		user = make(map[string][]byte)
		m.sessions[userID] = user
	}
	stored := make([]byte, len(blob))
	copy(stored, blob)
	user[stateID] = stored
	return nil
}

func (m *memoryStore) Reset(_ context.Context, userID int64, stateID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user, ok := m.sessions[userID]; ok {
		delete(user, stateID)
	}
	return nil
}

func (m *memoryStore) ResetAll(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
	return nil
}
