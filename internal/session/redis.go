package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/parleyhq/parley/pkg/api"
)

type (
	// RedisStore is a Redis-backed session store. Sessions are JSON
	// documents refreshed with a sliding TTL on every save.
	RedisStore struct {
		client *redis.Client
		ttl    time.Duration
		prefix string
	}

	// RedisOption configures a RedisStore
	RedisOption func(*RedisStore)
)

const (
	// DefaultTTL is how long an idle session survives between messages
	DefaultTTL = 12 * time.Hour

	// DefaultPrefix namespaces every key written by the store
	DefaultPrefix = "parley"
)

// WithTTL sets the idle expiry for sessions. Zero disables expiry.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for Redis keys
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// NewRedisStore creates a new Redis-backed session store
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	res := &RedisStore{
		client: client,
		ttl:    DefaultTTL,
		prefix: DefaultPrefix,
	}

	for _, opt := range opts {
		opt(res)
	}

	return res
}

// Load retrieves a session by user ID from Redis
func (s *RedisStore) Load(
	ctx context.Context, userID api.UserID,
) (*api.Session, error) {
	if userID == "" {
		return nil, ErrInvalidUser
	}

	data, err := s.client.Get(ctx, s.sessionKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var sess api.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &sess, nil
}

// Save persists a session to Redis, refreshing its TTL
func (s *RedisStore) Save(ctx context.Context, sess *api.Session) error {
	if sess == nil {
		return ErrInvalidSession
	}
	if sess.UserID == "" {
		return ErrInvalidUser
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	key := s.sessionKey(sess.UserID)
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Close releases the underlying Redis client
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// sessionKey generates the Redis key for a user's session
func (s *RedisStore) sessionKey(userID api.UserID) string {
	return fmt.Sprintf("%s:session:%s", s.prefix, userID)
}
