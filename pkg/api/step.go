package api

import (
	"context"
	"errors"
	"fmt"
)

type (
	// StepAction is the transition directive a step returns to the engine
	StepAction string

	// JumpTarget names the workflow and step a JUMP transfers control to.
	// An empty StepID targets the workflow's initial step
	JumpTarget struct {
		WorkflowID WorkflowID `json:"workflow_id"`
		StepID     StepID     `json:"step_id,omitempty"`
	}

	// StepResult is the outcome of one step execution: an optional response
	// for the user, the transition to apply, and context updates to merge
	StepResult struct {
		Response  *Response      `json:"response,omitempty"`
		Action    StepAction     `json:"action"`
		Updates   Context        `json:"updates,omitempty"`
		Jump      *JumpTarget    `json:"jump,omitempty"`
		Handoff   map[string]any `json:"handoff,omitempty"`
		WaitToken Token          `json:"wait_token,omitempty"`
		WaitEvent EventType      `json:"wait_event,omitempty"`
	}

	// Step is one unit of conversational logic. Implementations are
	// stateless; every piece of state they depend on lives in the instance
	// context passed to Execute
	Step interface {
		ID() StepID
		Execute(
			ctx context.Context, msg *Message, sess *Session, wc Context,
		) (*StepResult, error)
	}

	// EventStep is implemented by steps that can be waiting on an external
	// event. OnEvent is invoked when a matching event resumes the instance
	EventStep interface {
		Step
		OnEvent(
			ctx context.Context, ev *Event, wc Context,
		) (*StepResult, error)
	}
)

const (
	// ActionContinue advances to the next step in definition order; the
	// engine executes it within the same turn
	ActionContinue StepAction = "continue"

	// ActionRepeat re-invokes the same step on the next message
	ActionRepeat StepAction = "repeat"

	// ActionJump transfers control to an explicit workflow and step,
	// optionally carrying a handoff payload
	ActionJump StepAction = "jump"

	// ActionWait suspends the instance until an external event presents the
	// wait token
	ActionWait StepAction = "wait"

	// ActionComplete terminates the instance successfully
	ActionComplete StepAction = "complete"

	// ActionAbort terminates the instance with failure
	ActionAbort StepAction = "abort"
)

var (
	ErrResultNil         = errors.New("step returned nil result")
	ErrInvalidAction     = errors.New("invalid step action")
	ErrJumpTargetMissing = errors.New("jump result has no target")
	ErrWaitTokenMissing  = errors.New("wait result has no token")
	ErrWaitEventMissing  = errors.New("wait result has no event type")

	// ErrEventUnhandled is returned by OnEvent when the step does not
	// recognize the event type; the dispatcher drops the event instead of
	// treating it as a step failure
	ErrEventUnhandled = errors.New("event not handled by step")
)

var validActions = map[StepAction]struct{}{
	ActionContinue: {},
	ActionRepeat:   {},
	ActionJump:     {},
	ActionWait:     {},
	ActionComplete: {},
	ActionAbort:    {},
}

// NewResult creates a StepResult carrying the given action
func NewResult(action StepAction) *StepResult {
	return &StepResult{Action: action}
}

// Reply creates a REPEAT result with a text response, the common shape for
// multi-turn prompts
func Reply(text string) *StepResult {
	return NewResult(ActionRepeat).WithText(text)
}

// WithText attaches a text response to the result
func (sr *StepResult) WithText(text string) *StepResult {
	if sr.Response == nil {
		sr.Response = &Response{}
	}
	sr.Response.Text = text
	return sr
}

// WithResponse attaches a full response to the result
func (sr *StepResult) WithResponse(r *Response) *StepResult {
	sr.Response = r
	return sr
}

// WithQuickReplies attaches quick replies to the result's response
func (sr *StepResult) WithQuickReplies(replies ...QuickReply) *StepResult {
	if sr.Response == nil {
		sr.Response = &Response{}
	}
	sr.Response.QuickReplies = replies
	return sr
}

// WithUpdate adds one context update to merge on transition
func (sr *StepResult) WithUpdate(key string, value any) *StepResult {
	if sr.Updates == nil {
		sr.Updates = Context{}
	}
	sr.Updates[key] = value
	return sr
}

// WithUpdates merges a set of context updates into the result
func (sr *StepResult) WithUpdates(updates Context) *StepResult {
	if sr.Updates == nil {
		sr.Updates = Context{}
	}
	for k, v := range updates {
		sr.Updates[k] = v
	}
	return sr
}

// WithJump sets the jump target. An empty stepID targets the workflow's
// initial step
func (sr *StepResult) WithJump(wf WorkflowID, stepID StepID) *StepResult {
	sr.Jump = &JumpTarget{WorkflowID: wf, StepID: stepID}
	return sr
}

// WithHandoff adds one key to the payload carried across a jump
func (sr *StepResult) WithHandoff(key string, value any) *StepResult {
	if sr.Handoff == nil {
		sr.Handoff = map[string]any{}
	}
	sr.Handoff[key] = value
	return sr
}

// WithWait sets the wait token and the event type expected to resume
func (sr *StepResult) WithWait(token Token, event EventType) *StepResult {
	sr.WaitToken = token
	sr.WaitEvent = event
	return sr
}

// Validate checks that the action is known and carries its required
// arguments
func (sr *StepResult) Validate() error {
	if sr == nil {
		return ErrResultNil
	}
	if _, ok := validActions[sr.Action]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidAction, sr.Action)
	}

	switch sr.Action {
	case ActionJump:
		if sr.Jump == nil || sr.Jump.WorkflowID == "" {
			return ErrJumpTargetMissing
		}
	case ActionWait:
		if sr.WaitToken == "" {
			return ErrWaitTokenMissing
		}
		if sr.WaitEvent == "" {
			return ErrWaitEventMissing
		}
	}
	return nil
}
