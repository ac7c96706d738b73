// Package session persists per-user conversational state: the rolling
// transcript and the last routed intent. Sessions are working memory rather
// than records, so stores expire them after inactivity.
package session

import (
	"context"
	"errors"

	"github.com/parleyhq/parley/pkg/api"
)

// Store is the persistence contract for user sessions
type Store interface {
	// Load retrieves a session by user ID
	Load(ctx context.Context, userID api.UserID) (*api.Session, error)

	// Save persists a session, refreshing its expiry
	Save(ctx context.Context, sess *api.Session) error

	// Close releases any held resources
	Close() error
}

var (
	ErrNotFound       = errors.New("session not found")
	ErrInvalidUser    = errors.New("invalid user ID")
	ErrInvalidSession = errors.New("invalid session")
)
