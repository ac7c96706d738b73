package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/parleyhq/parley/internal/assert"
	"github.com/parleyhq/parley/internal/store"
	"github.com/parleyhq/parley/pkg/api"
)

// withStores runs the same scenario against both store implementations so
// their semantics cannot drift apart
func withStores(t *testing.T, fn func(*testing.T, store.Store)) {
	t.Helper()

	t.Run("memory", func(t *testing.T) {
		s := store.NewMemoryStore()
		t.Cleanup(func() { _ = s.Close() })
		fn(t, s)
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		s := store.NewRedisStore(client, store.WithPrefix("test"))
		t.Cleanup(func() { _ = s.Close() })
		fn(t, s)
	})
}

func newTestInstance(user api.UserID, wf api.WorkflowID) *api.Instance {
	key := api.NewInstanceKey(user, wf)
	return api.NewInstance(key, "collect_basic_info", time.Now())
}

func TestLoadNotFound(t *testing.T) {
	withStores(t, func(t *testing.T, s store.Store) {
		as := assert.New(t)
		ctx := context.Background()

		_, err := s.Load(ctx, api.NewInstanceKey("nobody", "add_profile"))
		as.ErrorIs(err, store.ErrNotFound)
	})
}

func TestLoadInvalidKey(t *testing.T) {
	withStores(t, func(t *testing.T, s store.Store) {
		as := assert.New(t)
		ctx := context.Background()

		_, err := s.Load(ctx, api.InstanceKey{})
		as.ErrorIs(err, store.ErrInvalidKey)

		_, err = s.Load(ctx, api.InstanceKey{UserID: "user-1"})
		as.ErrorIs(err, store.ErrInvalidKey)
	})
}

func TestCreateAndLoad(t *testing.T) {
	withStores(t, func(t *testing.T, s store.Store) {
		as := assert.New(t)
		ctx := context.Background()

		in := newTestInstance("user-1", "add_profile")
		created, err := s.Create(ctx, in)
		as.NoError(err)
		as.Equal(int64(1), created.Version)

		loaded, err := s.Load(ctx, in.Key)
		as.NoError(err)
		as.Equal(in.Key, loaded.Key)
		as.Equal(api.StepID("collect_basic_info"), loaded.CurrentStepID)
		as.InstanceStatus(loaded, api.StatusActive)
		as.Equal(int64(1), loaded.Version)
	})
}

func TestCreateOverLiveInstance(t *testing.T) {
	withStores(t, func(t *testing.T, s store.Store) {
		as := assert.New(t)
		ctx := context.Background()

		in := newTestInstance("user-1", "add_profile")
		_, err := s.Create(ctx, in)
		as.NoError(err)

		_, err = s.Create(ctx, newTestInstance("user-1", "add_profile"))
		as.ErrorIs(err, store.ErrAlreadyExists)
	})
}

func TestCreateReplacesTerminal(t *testing.T) {
	withStores(t, func(t *testing.T, s store.Store) {
		as := assert.New(t)
		ctx := context.Background()

		in := newTestInstance("user-1", "add_profile")
		created, err := s.Create(ctx, in)
		as.NoError(err)

		done := created.SetStatus(api.StatusCompleted)
		_, err = s.Save(ctx, done, created.Version)
		as.NoError(err)

		fresh, err := s.Create(ctx, newTestInstance("user-1", "add_profile"))
		as.NoError(err)
		as.Equal(int64(1), fresh.Version)
		as.InstanceStatus(fresh, api.StatusActive)
	})
}

func TestSaveBumpsVersion(t *testing.T) {
	withStores(t, func(t *testing.T, s store.Store) {
		as := assert.New(t)
		ctx := context.Background()

		in := newTestInstance("user-1", "add_profile")
		created, err := s.Create(ctx, in)
		as.NoError(err)

		next := created.MergeContext(api.Context{"name": "Asha"})
		saved, err := s.Save(ctx, next, created.Version)
		as.NoError(err)
		as.Equal(int64(2), saved.Version)

		loaded, err := s.Load(ctx, in.Key)
		as.NoError(err)
		as.Equal(int64(2), loaded.Version)
		as.Equal("Asha", loaded.Context["name"])
	})
}

func TestSaveVersionConflict(t *testing.T) {
	withStores(t, func(t *testing.T, s store.Store) {
		as := assert.New(t)
		ctx := context.Background()

		in := newTestInstance("user-1", "add_profile")
		created, err := s.Create(ctx, in)
		as.NoError(err)

		// First writer wins
		_, err = s.Save(
			ctx, created.MergeContext(api.Context{"name": "Asha"}),
			created.Version,
		)
		as.NoError(err)

		// Second writer holds a stale version
		_, err = s.Save(
			ctx, created.MergeContext(api.Context{"name": "Dev"}),
			created.Version,
		)
		as.ErrorIs(err, store.ErrVersionConflict)

		loaded, err := s.Load(ctx, in.Key)
		as.NoError(err)
		as.Equal("Asha", loaded.Context["name"])
	})
}

func TestSaveNotFound(t *testing.T) {
	withStores(t, func(t *testing.T, s store.Store) {
		as := assert.New(t)
		ctx := context.Background()

		in := newTestInstance("user-1", "add_profile")
		_, err := s.Save(ctx, in, 1)
		as.ErrorIs(err, store.ErrNotFound)
	})
}

func TestFindByUser(t *testing.T) {
	withStores(t, func(t *testing.T, s store.Store) {
		as := assert.New(t)
		ctx := context.Background()

		_, err := s.Create(ctx, newTestInstance("user-1", "add_profile"))
		as.NoError(err)
		_, err = s.Create(ctx, newTestInstance("user-1", "generate_report"))
		as.NoError(err)
		_, err = s.Create(ctx, newTestInstance("user-2", "add_profile"))
		as.NoError(err)

		found, err := s.FindByUser(ctx, "user-1")
		as.NoError(err)
		as.Len(found, 2)
		for _, in := range found {
			as.Equal(api.UserID("user-1"), in.Key.UserID)
		}

		found, err = s.FindByUser(ctx, "user-3")
		as.NoError(err)
		as.Empty(found)
	})
}

func TestFindStaleWaiting(t *testing.T) {
	withStores(t, func(t *testing.T, s store.Store) {
		as := assert.New(t)
		ctx := context.Background()
		now := time.Now()

		stale := newTestInstance("user-1", "generate_report")
		created, err := s.Create(ctx, stale)
		as.NoError(err)
		waiting := created.SetWait(
			"tok-1", api.EventPaymentCaptured, now.Add(-2*time.Hour),
		)
		_, err = s.Save(ctx, waiting, created.Version)
		as.NoError(err)

		fresh := newTestInstance("user-2", "generate_report")
		created, err = s.Create(ctx, fresh)
		as.NoError(err)
		waiting = created.SetWait("tok-2", api.EventPaymentCaptured, now)
		_, err = s.Save(ctx, waiting, created.Version)
		as.NoError(err)

		active := newTestInstance("user-3", "add_profile")
		_, err = s.Create(ctx, active)
		as.NoError(err)

		found, err := s.FindStaleWaiting(ctx, now.Add(-time.Hour))
		as.NoError(err)
		as.Len(found, 1)
		as.Equal(api.UserID("user-1"), found[0].Key.UserID)
		as.Equal(api.Token("tok-1"), found[0].WaitToken)
	})
}

func TestWaitingIndexClearedOnResume(t *testing.T) {
	withStores(t, func(t *testing.T, s store.Store) {
		as := assert.New(t)
		ctx := context.Background()
		now := time.Now()

		in := newTestInstance("user-1", "generate_report")
		created, err := s.Create(ctx, in)
		as.NoError(err)

		waiting := created.SetWait(
			"tok-1", api.EventPaymentCaptured, now.Add(-2*time.Hour),
		)
		saved, err := s.Save(ctx, waiting, created.Version)
		as.NoError(err)

		resumed := saved.SetStatus(api.StatusActive).ClearWait()
		_, err = s.Save(ctx, resumed, saved.Version)
		as.NoError(err)

		found, err := s.FindStaleWaiting(ctx, now)
		as.NoError(err)
		as.Empty(found)
	})
}

func TestDelete(t *testing.T) {
	withStores(t, func(t *testing.T, s store.Store) {
		as := assert.New(t)
		ctx := context.Background()

		in := newTestInstance("user-1", "add_profile")
		_, err := s.Create(ctx, in)
		as.NoError(err)

		as.NoError(s.Delete(ctx, in.Key))

		_, err = s.Load(ctx, in.Key)
		as.ErrorIs(err, store.ErrNotFound)

		as.ErrorIs(s.Delete(ctx, in.Key), store.ErrNotFound)
	})
}

func TestCreateInvalidInstance(t *testing.T) {
	withStores(t, func(t *testing.T, s store.Store) {
		as := assert.New(t)
		ctx := context.Background()

		_, err := s.Create(ctx, nil)
		as.ErrorIs(err, store.ErrInvalidInstance)

		_, err = s.Create(ctx, &api.Instance{})
		as.ErrorIs(err, store.ErrInvalidKey)
	})
}
