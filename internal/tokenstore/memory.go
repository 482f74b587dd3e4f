package tokenstore

import (
	"context"
	"sync"
)

// MemoryStore is the non-persistent backend. A process restart loses the
// session, which is exactly what tests and throwaway dev runs want.
type MemoryStore struct {
	mu      sync.Mutex
	access  string
	refresh string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Access(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.access, nil
}

func (s *MemoryStore) SetAccess(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = token
	return nil
}

func (s *MemoryStore) Refresh(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refresh, nil
}

func (s *MemoryStore) SetRefresh(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh = token
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = ""
	s.refresh = ""
	return nil
}
