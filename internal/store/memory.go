package store

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/parleyhq/parley/pkg/api"
)

// MemoryStore provides an in-memory implementation of the Store interface.
// It is thread-safe and suitable for development and testing. Terminal
// retention is not enforced; entries stay until deleted.
type MemoryStore struct {
	mu        sync.RWMutex
	instances map[api.InstanceKey]*api.Instance
}

// NewMemoryStore creates a new in-memory instance store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		instances: map[api.InstanceKey]*api.Instance{},
	}
}

// Load retrieves an instance by key. Returns a copy to prevent external
// mutations.
func (s *MemoryStore) Load(
	_ context.Context, key api.InstanceKey,
) (*api.Instance, error) {
	if key.UserID == "" || key.WorkflowID == "" {
		return nil, ErrInvalidKey
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	in, ok := s.instances[key]
	if !ok {
		return nil, ErrNotFound
	}
	return copyInstance(in), nil
}

// Create persists a brand-new instance at version 1, replacing any terminal
// instance occupying the key
func (s *MemoryStore) Create(
	_ context.Context, in *api.Instance,
) (*api.Instance, error) {
	if err := validateInstance(in); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.instances[in.Key]; ok && !cur.IsTerminal() {
		return nil, ErrAlreadyExists
	}

	next := copyInstance(in)
	next.Version = 1
	s.instances[in.Key] = next
	return copyInstance(next), nil
}

// Save persists in only while the stored version still equals expected
func (s *MemoryStore) Save(
	_ context.Context, in *api.Instance, expected int64,
) (*api.Instance, error) {
	if err := validateInstance(in); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.instances[in.Key]
	if !ok {
		return nil, ErrNotFound
	}
	if cur.Version != expected {
		return nil, ErrVersionConflict
	}

	next := copyInstance(in)
	next.Version = expected + 1
	next.UpdatedAt = time.Now()
	s.instances[in.Key] = next
	return copyInstance(next), nil
}

// FindByUser returns every retained instance for the user
func (s *MemoryStore) FindByUser(
	_ context.Context, userID api.UserID,
) ([]*api.Instance, error) {
	if userID == "" {
		return nil, ErrInvalidKey
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var res []*api.Instance
	for key, in := range s.instances {
		if key.UserID == userID {
			res = append(res, copyInstance(in))
		}
	}
	return res, nil
}

// FindStaleWaiting returns WAITING instances whose wait began at or before
// the cutoff
func (s *MemoryStore) FindStaleWaiting(
	_ context.Context, cutoff time.Time,
) ([]*api.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var res []*api.Instance
	for _, in := range s.instances {
		if in.Status != api.StatusWaiting {
			continue
		}
		if in.WaitingSince.After(cutoff) {
			continue
		}
		res = append(res, copyInstance(in))
	}
	return res, nil
}

// Delete removes an instance by key
func (s *MemoryStore) Delete(_ context.Context, key api.InstanceKey) error {
	if key.UserID == "" || key.WorkflowID == "" {
		return ErrInvalidKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.instances[key]; !ok {
		return ErrNotFound
	}
	delete(s.instances, key)
	return nil
}

// Close is a no-op for the in-memory store
func (s *MemoryStore) Close() error {
	return nil
}

func copyInstance(in *api.Instance) *api.Instance {
	res := *in
	res.Context = maps.Clone(in.Context)
	res.History = slices.Clone(in.History)
	return &res
}
