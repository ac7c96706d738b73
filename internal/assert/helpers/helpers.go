// Package helpers provides shared fixtures for engine and server tests: a
// fully wired in-memory engine environment, scriptable steps, and a
// settable clock.
package helpers

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/internal/config"
	"github.com/parleyhq/parley/internal/engine"
	"github.com/parleyhq/parley/internal/session"
	"github.com/parleyhq/parley/internal/store"
	"github.com/parleyhq/parley/pkg/api"
)

type (
	// TestEnv holds all the components needed for engine testing
	TestEnv struct {
		Engine     *engine.Engine
		Registry   *engine.Registry
		Store      store.Store
		Sessions   *session.Manager
		Classifier *ScriptedClassifier
		Config     *config.Config
		Clock      *Clock
	}

	// Clock is a settable time source for deterministic engine tests
	Clock struct {
		mu  sync.Mutex
		now time.Time
	}
)

// NewTestConfig creates a default configuration with debug logging enabled
func NewTestConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.LogLevel = "debug"
	cfg.ShutdownTimeout = 2 * time.Second
	cfg.ReportBucketURL = "mem://"
	return cfg
}

// NewTestEnv creates a fully wired engine environment over in-memory
// stores, a scripted classifier, and a frozen clock
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	cfg := NewTestConfig()
	st := store.NewMemoryStore()
	sessions := session.NewManager(
		session.NewMemoryStore(),
		session.WithTurnLimit(cfg.SessionTurns),
	)
	classifier := &ScriptedClassifier{}
	clock := NewClock()
	reg := engine.NewRegistry()

	eng := engine.New(
		reg, st, sessions, classifier, cfg,
		engine.WithClock(clock.Now),
	)
	t.Cleanup(func() {
		_ = st.Close()
		_ = sessions.Close()
	})

	return &TestEnv{
		Engine:     eng,
		Registry:   reg,
		Store:      st,
		Sessions:   sessions,
		Classifier: classifier,
		Config:     cfg,
		Clock:      clock,
	}
}

// Register installs the steps and then the workflow into the registry
func (e *TestEnv) Register(
	t *testing.T, wf *api.Workflow, steps ...api.Step,
) {
	t.Helper()
	for _, s := range steps {
		require.NoError(t, e.Registry.RegisterStep(s))
	}
	require.NoError(t, e.Registry.RegisterWorkflow(wf))
}

// WithEnv creates a test environment, executes the provided function with
// it, and ensures cleanup happens automatically
func WithEnv(t *testing.T, fn func(*TestEnv)) {
	t.Helper()
	fn(NewTestEnv(t))
}

// WithStartedEngine creates a test environment, starts its engine, and
// stops it when the function returns
func WithStartedEngine(t *testing.T, fn func(*TestEnv)) {
	t.Helper()
	WithEnv(t, func(env *TestEnv) {
		env.Engine.Start()
		defer func() {
			require.NoError(t, env.Engine.Stop())
		}()
		fn(env)
	})
}

// NewClock creates a clock frozen at a fixed instant
func NewClock() *Clock {
	return &Clock{
		now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

// Now returns the clock's current instant
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward and returns the new instant
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// Set pins the clock to the given instant
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
