package profile

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/parleyhq/parley/pkg/api"
)

// Store is the persistence contract for profiles. Profiles are append-only;
// corrections arrive as new profiles.
type Store interface {
	// Put appends a profile to the user's list
	Put(ctx context.Context, p *Profile) error

	// FindByUser returns the user's profiles, oldest first
	FindByUser(ctx context.Context, userID api.UserID) ([]*Profile, error)

	// Close releases any held resources
	Close() error
}

// ErrNotFound is returned when no profile matches the lookup
var ErrNotFound = errors.New("profile not found")

// MemoryStore provides an in-memory implementation of the Store interface
// for development and testing
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[api.UserID][]*Profile
}

// NewMemoryStore creates a new in-memory profile store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles: map[api.UserID][]*Profile{},
	}
}

// Put appends a profile to the user's list
func (s *MemoryStore) Put(_ context.Context, p *Profile) error {
	if p == nil || p.UserID == "" {
		return ErrInvalidUser
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *p
	s.profiles[p.UserID] = append(s.profiles[p.UserID], &cp)
	return nil
}

// FindByUser returns the user's profiles, oldest first
func (s *MemoryStore) FindByUser(
	_ context.Context, userID api.UserID,
) ([]*Profile, error) {
	if userID == "" {
		return nil, ErrInvalidUser
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make([]*Profile, 0, len(s.profiles[userID]))
	for _, p := range s.profiles[userID] {
		cp := *p
		res = append(res, &cp)
	}
	return slices.Clip(res), nil
}

// Close is a no-op for the in-memory store
func (s *MemoryStore) Close() error {
	return nil
}
