package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/parleyhq/parley/pkg/api"
)

type (
	// RedisStore is a Redis-backed Store. Instances are JSON documents
	// guarded by WATCH-based compare-and-set on the version field. A
	// per-user set indexes each user's instances and a sorted set tracks
	// WAITING instances by when their wait began.
	RedisStore struct {
		client    *redis.Client
		prefix    string
		retention time.Duration
	}

	// RedisOption configures a RedisStore
	RedisOption func(*RedisStore)
)

const (
	// DefaultPrefix namespaces every key written by the store
	DefaultPrefix = "parley"

	// DefaultRetention is how long terminal instances are kept before
	// Redis expires them
	DefaultRetention = 7 * 24 * time.Hour

	// casAttempts bounds WATCH retries when a concurrent writer trips the
	// transaction before the version check can reject it
	casAttempts = 3
)

// WithPrefix sets the key prefix for Redis keys
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// WithRetention sets how long terminal instances linger before expiry.
// Zero disables expiry.
func WithRetention(retention time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.retention = retention
	}
}

// NewRedisStore creates a new Redis-backed instance store
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	res := &RedisStore{
		client:    client,
		prefix:    DefaultPrefix,
		retention: DefaultRetention,
	}

	for _, opt := range opts {
		opt(res)
	}

	return res
}

// Load retrieves an instance by key from Redis
func (s *RedisStore) Load(
	ctx context.Context, key api.InstanceKey,
) (*api.Instance, error) {
	if key.UserID == "" || key.WorkflowID == "" {
		return nil, ErrInvalidKey
	}

	data, err := s.client.Get(ctx, s.instanceKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	return unmarshalInstance(data)
}

// Create persists a brand-new instance at version 1. A terminal instance
// already occupying the key is replaced; a live one fails the call with
// ErrAlreadyExists.
func (s *RedisStore) Create(
	ctx context.Context, in *api.Instance,
) (*api.Instance, error) {
	if err := validateInstance(in); err != nil {
		return nil, err
	}

	key := s.instanceKey(in.Key)
	var created *api.Instance
	err := s.watchRetry(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			cur, err := unmarshalInstance(data)
			if err != nil {
				return err
			}
			if !cur.IsTerminal() {
				return ErrAlreadyExists
			}
		case !errors.Is(err, redis.Nil):
			return fmt.Errorf("redis get failed: %w", err)
		}

		next := *in
		next.Version = 1
		created = &next
		return s.write(ctx, tx, &next)
	}, key)
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Save persists in only while the stored version still equals expected.
// The stored copy comes back with its version incremented and its update
// time stamped.
func (s *RedisStore) Save(
	ctx context.Context, in *api.Instance, expected int64,
) (*api.Instance, error) {
	if err := validateInstance(in); err != nil {
		return nil, err
	}

	key := s.instanceKey(in.Key)
	var saved *api.Instance
	err := s.watchRetry(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			return fmt.Errorf("redis get failed: %w", err)
		}
		cur, err := unmarshalInstance(data)
		if err != nil {
			return err
		}
		if cur.Version != expected {
			return ErrVersionConflict
		}

		next := *in
		next.Version = expected + 1
		next.UpdatedAt = time.Now()
		saved = &next
		return s.write(ctx, tx, &next)
	}, key)
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// FindByUser returns every retained instance for the user. Index entries
// whose instance has expired are pruned along the way.
func (s *RedisStore) FindByUser(
	ctx context.Context, userID api.UserID,
) ([]*api.Instance, error) {
	if userID == "" {
		return nil, ErrInvalidKey
	}

	indexKey := s.userIndexKey(userID)
	members, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis smembers failed: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(members))
	for i, wf := range members {
		key := api.NewInstanceKey(userID, api.WorkflowID(wf))
		cmds[i] = pipe.Get(ctx, s.instanceKey(key))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis pipeline failed: %w", err)
	}

	var stale []any
	res := make([]*api.Instance, 0, len(members))
	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				stale = append(stale, members[i])
				continue
			}
			return nil, fmt.Errorf("redis get failed: %w", err)
		}
		in, err := unmarshalInstance(data)
		if err != nil {
			return nil, err
		}
		res = append(res, in)
	}

	if len(stale) > 0 {
		_ = s.client.SRem(ctx, indexKey, stale...).Err()
	}
	return res, nil
}

// FindStaleWaiting returns WAITING instances whose wait began at or before
// the cutoff. Entries that have moved on since they were indexed are pruned
// from the waiting set.
func (s *RedisStore) FindStaleWaiting(
	ctx context.Context, cutoff time.Time,
) ([]*api.Instance, error) {
	keys, err := s.client.ZRangeByScore(ctx, s.waitingKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff.UnixMilli(), 10),
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis zrangebyscore failed: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.Get(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis pipeline failed: %w", err)
	}

	var stale []any
	res := make([]*api.Instance, 0, len(keys))
	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				stale = append(stale, keys[i])
				continue
			}
			return nil, fmt.Errorf("redis get failed: %w", err)
		}
		in, err := unmarshalInstance(data)
		if err != nil {
			return nil, err
		}
		if in.Status != api.StatusWaiting {
			stale = append(stale, keys[i])
			continue
		}
		res = append(res, in)
	}

	if len(stale) > 0 {
		_ = s.client.ZRem(ctx, s.waitingKey(), stale...).Err()
	}
	return res, nil
}

// Delete removes an instance and its index entries
func (s *RedisStore) Delete(ctx context.Context, key api.InstanceKey) error {
	if key.UserID == "" || key.WorkflowID == "" {
		return ErrInvalidKey
	}

	rkey := s.instanceKey(key)
	pipe := s.client.Pipeline()
	delCmd := pipe.Del(ctx, rkey)
	pipe.SRem(ctx, s.userIndexKey(key.UserID), string(key.WorkflowID))
	pipe.ZRem(ctx, s.waitingKey(), rkey)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}

	if delCmd.Val() == 0 {
		return ErrNotFound
	}
	return nil
}

// Close releases the underlying Redis client
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// watchRetry runs fn under WATCH on the given keys, retrying a bounded
// number of times when a concurrent writer trips the transaction. Retries
// re-read the stored document, so version and liveness checks stay
// authoritative.
func (s *RedisStore) watchRetry(
	ctx context.Context, fn func(*redis.Tx) error, keys ...string,
) error {
	var err error
	for range casAttempts {
		err = s.client.Watch(ctx, fn, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return ErrVersionConflict
}

// write stages the instance document and its index maintenance in a single
// MULTI/EXEC block on the watched connection
func (s *RedisStore) write(
	ctx context.Context, tx *redis.Tx, in *api.Instance,
) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal instance: %w", err)
	}

	key := s.instanceKey(in.Key)
	_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		var ttl time.Duration
		if in.IsTerminal() {
			ttl = s.retention
		}
		pipe.Set(ctx, key, payload, ttl)
		pipe.SAdd(
			ctx, s.userIndexKey(in.Key.UserID), string(in.Key.WorkflowID),
		)
		if in.Status == api.StatusWaiting {
			pipe.ZAdd(ctx, s.waitingKey(), redis.Z{
				Score:  float64(in.WaitingSince.UnixMilli()),
				Member: key,
			})
		} else {
			pipe.ZRem(ctx, s.waitingKey(), key)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis transaction failed: %w", err)
	}
	return nil
}

// instanceKey generates the Redis key for an instance document
func (s *RedisStore) instanceKey(key api.InstanceKey) string {
	return fmt.Sprintf("%s:instance:%s:%s", s.prefix, key.UserID,
		key.WorkflowID)
}

// userIndexKey generates the Redis key for a user's instance index
func (s *RedisStore) userIndexKey(userID api.UserID) string {
	return fmt.Sprintf("%s:user:%s:instances", s.prefix, userID)
}

// waitingKey generates the Redis key for the waiting instance index
func (s *RedisStore) waitingKey() string {
	return fmt.Sprintf("%s:waiting", s.prefix)
}

func validateInstance(in *api.Instance) error {
	if in == nil {
		return ErrInvalidInstance
	}
	if in.Key.UserID == "" || in.Key.WorkflowID == "" {
		return ErrInvalidKey
	}
	return nil
}

func unmarshalInstance(data []byte) (*api.Instance, error) {
	var in api.Instance
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("failed to unmarshal instance: %w", err)
	}
	return &in, nil
}
