// Package store persists workflow instances with optimistic concurrency
// control. Saves carry the version the writer loaded; a mismatch against the
// stored version fails with ErrVersionConflict so the caller can reload and
// reconcile.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/parleyhq/parley/pkg/api"
)

// Store is the persistence contract for workflow instances. One instance is
// retained per (user, workflow) key; terminal instances linger for a
// retention window so recent history stays inspectable.
type Store interface {
	// Load retrieves an instance by key
	Load(ctx context.Context, key api.InstanceKey) (*api.Instance, error)

	// Create persists a brand-new instance at version 1. A live instance
	// already occupying the key fails with ErrAlreadyExists; a terminal
	// one is replaced.
	Create(ctx context.Context, in *api.Instance) (*api.Instance, error)

	// Save persists in only while the stored version still equals
	// expected, returning the stored copy with its version incremented
	Save(
		ctx context.Context, in *api.Instance, expected int64,
	) (*api.Instance, error)

	// FindByUser returns every retained instance for the user
	FindByUser(
		ctx context.Context, userID api.UserID,
	) ([]*api.Instance, error)

	// FindStaleWaiting returns WAITING instances whose wait began at or
	// before the cutoff
	FindStaleWaiting(
		ctx context.Context, cutoff time.Time,
	) ([]*api.Instance, error)

	// Delete removes an instance outright
	Delete(ctx context.Context, key api.InstanceKey) error

	// Close releases any held resources
	Close() error
}

var (
	ErrNotFound        = errors.New("instance not found")
	ErrInvalidKey      = errors.New("invalid instance key")
	ErrInvalidInstance = errors.New("invalid instance")
	ErrAlreadyExists   = errors.New("instance already exists")
	ErrVersionConflict = errors.New("instance version conflict")
)
