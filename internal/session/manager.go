package session

import (
	"context"
	"errors"
	"time"

	"github.com/parleyhq/parley/pkg/api"
)

type (
	// Manager wraps a session store with transcript bookkeeping. Turn
	// history is bounded so long-lived users cannot grow documents without
	// limit.
	Manager struct {
		store Store
		limit int
	}

	// Option configures a Manager
	Option func(*Manager)
)

// DefaultTurnLimit bounds how many transcript turns a session retains
const DefaultTurnLimit = 50

// WithTurnLimit sets how many transcript turns are retained per session
func WithTurnLimit(limit int) Option {
	return func(m *Manager) {
		m.limit = limit
	}
}

// NewManager creates a session manager on top of the given store
func NewManager(store Store, opts ...Option) *Manager {
	res := &Manager{
		store: store,
		limit: DefaultTurnLimit,
	}

	for _, opt := range opts {
		opt(res)
	}

	return res
}

// Get returns the user's session, creating an empty one when absent
func (m *Manager) Get(
	ctx context.Context, userID api.UserID,
) (*api.Session, error) {
	sess, err := m.store.Load(ctx, userID)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	now := time.Now()
	return &api.Session{
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// RecordUser appends the inbound message to the transcript, stamps the
// routed intent, and persists the result. Returns the updated session.
func (m *Manager) RecordUser(
	ctx context.Context, msg *api.Message, intent api.IntentID,
) (*api.Session, error) {
	sess, err := m.Get(ctx, msg.UserID)
	if err != nil {
		return nil, err
	}

	at := msg.ReceivedAt
	if at.IsZero() {
		at = time.Now()
	}
	sess = sess.AppendTurn(api.MessageTurn{
		Role: api.RoleUser,
		Text: msg.Text,
		At:   at,
	}, m.limit)
	if intent != "" {
		sess = sess.SetLastIntent(intent)
	}

	if err := m.store.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// RecordAssistant appends the engine's reply to the transcript and persists
// the result. Empty responses leave the session untouched.
func (m *Manager) RecordAssistant(
	ctx context.Context, userID api.UserID, res *api.Response,
) error {
	if res.IsEmpty() || res.Text == "" {
		return nil
	}

	sess, err := m.Get(ctx, userID)
	if err != nil {
		return err
	}

	sess = sess.AppendTurn(api.MessageTurn{
		Role: api.RoleAssistant,
		Text: res.Text,
		At:   time.Now(),
	}, m.limit)

	return m.store.Save(ctx, sess)
}

// Close releases the underlying store
func (m *Manager) Close() error {
	return m.store.Close()
}
