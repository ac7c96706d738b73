package helpers

import (
	"context"
	"sync/atomic"

	"github.com/parleyhq/parley/internal/intent"
	"github.com/parleyhq/parley/pkg/api"
)

type (
	// StepFunc is the scriptable body of a FakeStep
	StepFunc func(
		ctx context.Context, msg *api.Message, sess *api.Session,
		wc api.Context,
	) (*api.StepResult, error)

	// EventFunc is the scriptable event handler of a FakeEventStep
	EventFunc func(
		ctx context.Context, ev *api.Event, wc api.Context,
	) (*api.StepResult, error)

	// FakeStep is a scriptable step implementation. With no body it
	// completes immediately.
	FakeStep struct {
		StepID api.StepID
		Fn     StepFunc
		calls  atomic.Int32
	}

	// FakeEventStep extends FakeStep with a scriptable event handler
	FakeEventStep struct {
		FakeStep
		EventFn    EventFunc
		eventCalls atomic.Int32
	}

	// ScriptedClassifier returns a canned classification outcome
	ScriptedClassifier struct {
		Intent api.IntentID
		Err    error
		calls  atomic.Int32
	}
)

var (
	_ api.Step          = (*FakeStep)(nil)
	_ api.EventStep     = (*FakeEventStep)(nil)
	_ intent.Classifier = (*ScriptedClassifier)(nil)
)

// NewFakeStep creates a scriptable step with the given body
func NewFakeStep(id api.StepID, fn StepFunc) *FakeStep {
	return &FakeStep{StepID: id, Fn: fn}
}

// NewFakeEventStep creates a scriptable event-capable step
func NewFakeEventStep(
	id api.StepID, fn StepFunc, eventFn EventFunc,
) *FakeEventStep {
	return &FakeEventStep{
		FakeStep: FakeStep{StepID: id, Fn: fn},
		EventFn:  eventFn,
	}
}

func (s *FakeStep) ID() api.StepID {
	return s.StepID
}

func (s *FakeStep) Execute(
	ctx context.Context, msg *api.Message, sess *api.Session, wc api.Context,
) (*api.StepResult, error) {
	s.calls.Add(1)
	if s.Fn == nil {
		return api.NewResult(api.ActionComplete).WithText("done"), nil
	}
	return s.Fn(ctx, msg, sess, wc)
}

// Calls reports how many times Execute ran
func (s *FakeStep) Calls() int {
	return int(s.calls.Load())
}

func (s *FakeEventStep) OnEvent(
	ctx context.Context, ev *api.Event, wc api.Context,
) (*api.StepResult, error) {
	s.eventCalls.Add(1)
	if s.EventFn == nil {
		return api.NewResult(api.ActionContinue), nil
	}
	return s.EventFn(ctx, ev, wc)
}

// EventCalls reports how many times OnEvent ran
func (s *FakeEventStep) EventCalls() int {
	return int(s.eventCalls.Load())
}

func (c *ScriptedClassifier) Classify(
	_ context.Context, _ *api.Message, _ *api.Session,
) (api.IntentID, error) {
	c.calls.Add(1)
	if c.Err != nil {
		return "", c.Err
	}
	if c.Intent == "" {
		return intent.Unknown, nil
	}
	return c.Intent, nil
}

// Calls reports how many times Classify ran
func (c *ScriptedClassifier) Calls() int {
	return int(c.calls.Load())
}

// NewWorkflow builds a linear workflow over the given step IDs
func NewWorkflow(
	id api.WorkflowID, intents []api.IntentID, steps ...api.StepID,
) *api.Workflow {
	return &api.Workflow{
		ID:      id,
		Name:    string(id),
		Steps:   steps,
		Intents: intents,
	}
}
