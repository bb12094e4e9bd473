// Package history persists chat transcripts keyed by page-session. System
// context messages are never written here; callers persist only the user's
// messages and the marker-stripped assistant replies.
package history

import (
	"sync"

	"github.com/ciciliostudio/sidekick/internal/types"
)

// Store is the persistence capability consumed by the session orchestrator.
type Store interface {
	Read(sessionKey string) ([]types.Message, error)
	Write(sessionKey string, messages []types.Message) error
	Clear(sessionKey string) error
	Close() error
}

// MemoryStore keeps transcripts in memory; used in tests and when
// persistence is disabled in config.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]types.Message
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]types.Message)}
}

func (s *MemoryStore) Read(sessionKey string) ([]types.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.sessions[sessionKey]
	out := make([]types.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *MemoryStore) Write(sessionKey string, messages []types.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]types.Message, len(messages))
	copy(stored, messages)
	s.sessions[sessionKey] = stored
	return nil
}

func (s *MemoryStore) Clear(sessionKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionKey)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
