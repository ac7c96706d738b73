package session

import (
	"context"
	"slices"
	"sync"

	"github.com/parleyhq/parley/pkg/api"
)

// MemoryStore provides an in-memory implementation of the Store interface
// for development and testing. Sessions never expire.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[api.UserID]*api.Session
}

// NewMemoryStore creates a new in-memory session store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: map[api.UserID]*api.Session{},
	}
}

// Load retrieves a session by user ID. Returns a copy to prevent external
// mutations.
func (s *MemoryStore) Load(
	_ context.Context, userID api.UserID,
) (*api.Session, error) {
	if userID == "" {
		return nil, ErrInvalidUser
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return copySession(sess), nil
}

// Save persists a session
func (s *MemoryStore) Save(_ context.Context, sess *api.Session) error {
	if sess == nil {
		return ErrInvalidSession
	}
	if sess.UserID == "" {
		return ErrInvalidUser
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sess.UserID] = copySession(sess)
	return nil
}

// Close is a no-op for the in-memory store
func (s *MemoryStore) Close() error {
	return nil
}

func copySession(sess *api.Session) *api.Session {
	res := *sess
	res.Turns = slices.Clone(sess.Turns)
	return &res
}
