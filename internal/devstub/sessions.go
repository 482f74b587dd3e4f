package devstub

import (
	"context"
	"encoding/base64"
	"errors"
	"sort"
	"sync"
	"time"
)

var ErrSessionNotFound = errors.New("session not found")

// Session is one issued login: the id lives inside the access token, the
// refresh hash matches the rotating refresh token.
type Session struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	RefreshTokenHash []byte    `json:"refresh_token_hash"`
	CreatedAt        time.Time `json:"created_at"`
	ExpiresAt        time.Time `json:"expires_at"`
}

func (s Session) expired(now time.Time) bool {
	return s.ExpiresAt.Before(now)
}

// SessionStore persists issued sessions. Memory for zero-infrastructure
// runs, Redis when the stub should survive restarts.
type SessionStore interface {
	Create(ctx context.Context, session Session) error
	Get(ctx context.Context, id string) (Session, error)
	Delete(ctx context.Context, id string) error
	FindByRefreshHash(ctx context.Context, hash []byte) (Session, error)
	// PruneUser keeps the newest sessions of a user, dropping the rest.
	PruneUser(ctx context.Context, userID string, keep int) error
	// DeleteExpired removes sessions past their expiry, returning how many.
	DeleteExpired(ctx context.Context) (int, error)
}

// MemorySessionStore is the default backend.
type MemorySessionStore struct {
	mu        sync.Mutex
	sessions  map[string]Session
	byRefresh map[string]string // refresh hash -> session id
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions:  make(map[string]Session),
		byRefresh: make(map[string]string),
	}
}

func (s *MemorySessionStore) Create(_ context.Context, session Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.sessions[session.ID]; ok {
		delete(s.byRefresh, refreshKey(old.RefreshTokenHash))
	}
	s.sessions[session.ID] = session
	s.byRefresh[refreshKey(session.RefreshTokenHash)] = session.ID
	return nil
}

func (s *MemorySessionStore) Get(_ context.Context, id string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok || session.expired(time.Now()) {
		return Session{}, ErrSessionNotFound
	}
	return session, nil
}

func (s *MemorySessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil
	}
	delete(s.sessions, id)
	delete(s.byRefresh, refreshKey(session.RefreshTokenHash))
	return nil
}

func (s *MemorySessionStore) FindByRefreshHash(_ context.Context, hash []byte) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byRefresh[refreshKey(hash)]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	session, ok := s.sessions[id]
	if !ok || session.expired(time.Now()) {
		return Session{}, ErrSessionNotFound
	}
	return session, nil
}

func (s *MemorySessionStore) PruneUser(_ context.Context, userID string, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var owned []Session
	for _, session := range s.sessions {
		if session.UserID == userID {
			owned = append(owned, session)
		}
	}
	if len(owned) <= keep {
		return nil
	}

	sort.Slice(owned, func(i, j int) bool {
		return owned[i].CreatedAt.After(owned[j].CreatedAt)
	})
	for _, session := range owned[keep:] {
		delete(s.sessions, session.ID)
		delete(s.byRefresh, refreshKey(session.RefreshTokenHash))
	}
	return nil
}

func (s *MemorySessionStore) DeleteExpired(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	removed := 0
	for id, session := range s.sessions {
		if session.expired(now) {
			delete(s.sessions, id)
			delete(s.byRefresh, refreshKey(session.RefreshTokenHash))
			removed++
		}
	}
	return removed, nil
}

func refreshKey(hash []byte) string {
	return base64.RawStdEncoding.EncodeToString(hash)
}
