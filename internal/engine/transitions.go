package engine

import (
	"errors"

	"github.com/parleyhq/parley/pkg/api"
	"github.com/parleyhq/parley/pkg/util"
)

// StateTransitions maps states to their set of valid next states
type StateTransitions[T comparable] map[T]util.Set[T]

var ErrInvalidTransition = errors.New("invalid status transition")

// instanceTransitions validates instance status changes. A waiting
// instance always resumes through ACTIVE before reaching COMPLETED; the
// direct WAITING to ABORTED edge is the sweeper's
var instanceTransitions = StateTransitions[api.Status]{
	api.StatusActive: util.SetOf(
		api.StatusWaiting,
		api.StatusCompleted,
		api.StatusAborted,
	),
	api.StatusWaiting: util.SetOf(
		api.StatusActive,
		api.StatusAborted,
	),
	api.StatusCompleted: {},
	api.StatusAborted:   {},
}

// CanTransition returns whether transition from one state to another is
// valid
func (t StateTransitions[T]) CanTransition(from, to T) bool {
	allowed, ok := t[from]
	if !ok {
		return false
	}
	return allowed.Contains(to)
}

// IsTerminal returns true if the state has no valid transitions
func (t StateTransitions[T]) IsTerminal(state T) bool {
	allowed, ok := t[state]
	return ok && allowed.IsEmpty()
}
