package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/parleyhq/parley/pkg/api"
)

type (
	// RedisStore is a Redis-backed profile store. Each user's profiles
	// live in a Redis list, appended with RPUSH so creation stays atomic
	// without read-modify-write.
	RedisStore struct {
		client *redis.Client
		prefix string
	}

	// RedisOption configures a RedisStore
	RedisOption func(*RedisStore)
)

// DefaultPrefix namespaces every key written by the store
const DefaultPrefix = "parley"

// WithPrefix sets the key prefix for Redis keys
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// NewRedisStore creates a new Redis-backed profile store
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	res := &RedisStore{
		client: client,
		prefix: DefaultPrefix,
	}

	for _, opt := range opts {
		opt(res)
	}

	return res
}

// Put appends a profile to the user's list
func (s *RedisStore) Put(ctx context.Context, p *Profile) error {
	if p == nil || p.UserID == "" {
		return ErrInvalidUser
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	key := s.profilesKey(p.UserID)
	if err := s.client.RPush(ctx, key, data).Err(); err != nil {
		return fmt.Errorf("redis rpush failed: %w", err)
	}
	return nil
}

// FindByUser returns the user's profiles, oldest first
func (s *RedisStore) FindByUser(
	ctx context.Context, userID api.UserID,
) ([]*Profile, error) {
	if userID == "" {
		return nil, ErrInvalidUser
	}

	vals, err := s.client.LRange(ctx, s.profilesKey(userID), 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis lrange failed: %w", err)
	}

	res := make([]*Profile, 0, len(vals))
	for _, v := range vals {
		var p Profile
		if err := json.Unmarshal([]byte(v), &p); err != nil {
			return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
		}
		res = append(res, &p)
	}
	return res, nil
}

// Close releases the underlying Redis client
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// profilesKey generates the Redis key for a user's profile list
func (s *RedisStore) profilesKey(userID api.UserID) string {
	return fmt.Sprintf("%s:profiles:%s", s.prefix, userID)
}
