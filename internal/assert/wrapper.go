package assert

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/parleyhq/parley/internal/config"
	"github.com/parleyhq/parley/pkg/api"
)

type (
	// Loader fetches a workflow instance so assertions can inspect its
	// accumulated context
	Loader interface {
		Load(ctx context.Context, key api.InstanceKey) (*api.Instance, error)
	}

	// Wrapper wraps testify assertions with Parley-specific helpers
	Wrapper struct {
		*testing.T
		*assert.Assertions
		Require *assert.Assertions
	}
)

// DefaultRetryInterval is the default polling interval for Eventually checks
const DefaultRetryInterval = 100 * time.Millisecond

// New creates a new test assertion wrapper with both assert and require from
// testify plus Parley-specific helpers
func New(t *testing.T) *Wrapper {
	return &Wrapper{
		T:          t,
		Assertions: assert.New(t),
		Require:    assert.New(t),
	}
}

// WorkflowValid asserts that a workflow definition is valid
func (w *Wrapper) WorkflowValid(wf *api.Workflow) {
	w.Helper()
	w.NoError(wf.Validate())
	w.NotEmpty(wf.ID)
	w.NotEmpty(wf.Name)
	w.NotEmpty(wf.Steps)
	w.True(wf.ContainsStep(wf.InitialStep))
}

// WorkflowInvalid asserts that a workflow definition is invalid and returns
// the validation error
func (w *Wrapper) WorkflowInvalid(
	wf *api.Workflow, expectedErrorContains string,
) error {
	w.Helper()
	err := wf.Validate()
	w.Error(err)
	if err != nil && expectedErrorContains != "" {
		w.Contains(err.Error(), expectedErrorContains)
	}
	return err
}

// InstanceStatus asserts the status of a workflow instance
func (w *Wrapper) InstanceStatus(in *api.Instance, expected api.Status) {
	w.Helper()
	w.Equal(expected, in.Status)
}

// InstanceStep asserts the current step of a workflow instance
func (w *Wrapper) InstanceStep(in *api.Instance, expected api.StepID) {
	w.Helper()
	w.Equal(expected, in.CurrentStepID)
}

// InstanceHasContext asserts that an instance has specific context keys
func (w *Wrapper) InstanceHasContext(
	ctx context.Context, load Loader, key api.InstanceKey, names ...string,
) {
	w.Helper()
	in, err := load.Load(ctx, key)
	w.NoError(err, "failed to load instance: %s", key)
	if in == nil {
		return
	}
	for _, name := range names {
		w.True(in.Context.Has(name), "instance should have context key: %s",
			name)
	}
}

// ContextEquals asserts that a context key has the expected value
func (w *Wrapper) ContextEquals(
	ctx context.Context, load Loader, key api.InstanceKey, name string,
	expected any,
) {
	w.Helper()
	in, err := load.Load(ctx, key)
	w.NoError(err, "failed to load instance: %s", key)
	if in == nil {
		return
	}
	val, ok := in.Context[name]
	w.True(ok, "instance should have context key: %s", name)
	w.Equal(expected, val)
}

// ResultValid asserts that a step result is well formed
func (w *Wrapper) ResultValid(r *api.StepResult) {
	w.Helper()
	w.NotNil(r)
	if r != nil {
		w.NoError(r.Validate())
	}
}

// ConfigValid asserts that a configuration is valid
func (w *Wrapper) ConfigValid(cfg *config.Config) {
	w.Helper()
	w.NoError(cfg.Validate())
	w.True(cfg.APIPort > 0 && cfg.APIPort <= 65535)
	w.True(cfg.WaitTTL > 0)
}

// ConfigInvalid asserts that a configuration is invalid
func (w *Wrapper) ConfigInvalid(cfg *config.Config, contains string) {
	w.Helper()
	err := cfg.Validate()
	w.Error(err)
	if contains != "" {
		w.Contains(err.Error(), contains)
	}
}

// Eventually runs a condition repeatedly until it passes or times out
func (w *Wrapper) Eventually(
	condition func() bool, timeout time.Duration, msg string, args ...any,
) {
	w.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(DefaultRetryInterval)
	}
	w.Fail(msg, args...)
}

// EventuallyWithError runs a condition that returns an error until it succeeds
// or times out
func (w *Wrapper) EventuallyWithError(
	condition func() error, timeout time.Duration, msg string, args ...any,
) {
	w.Helper()
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		err := condition()
		if err == nil {
			return
		}
		lastErr = err
		time.Sleep(DefaultRetryInterval)
	}
	if lastErr != nil {
		w.Fail(msg+": last error: "+lastErr.Error(), args...)
		return
	}
	w.Fail(msg, args...)
}
