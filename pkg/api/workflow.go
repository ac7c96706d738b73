package api

import (
	"errors"
	"fmt"
	"slices"
)

// Workflow is an immutable descriptor of a named, ordered step sequence.
// Definitions are built once at process start from declarative
// configuration and shared read-only across all instances
type Workflow struct {
	ID          WorkflowID `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Steps       []StepID   `json:"steps"`
	InitialStep StepID     `json:"initial_step,omitempty"`
	Intents     []IntentID `json:"intents,omitempty"`
}

var (
	ErrWorkflowIDEmpty    = errors.New("workflow ID empty")
	ErrWorkflowNameEmpty  = errors.New("workflow name empty")
	ErrWorkflowNoSteps    = errors.New("workflow has no steps")
	ErrDuplicateStep      = errors.New("duplicate step in workflow")
	ErrInitialStepUnknown = errors.New("initial step not in workflow")
)

// Validate checks the structural integrity of a definition. Step existence
// against a registry is checked separately at registration time
func (w *Workflow) Validate() error {
	if w.ID == "" {
		return ErrWorkflowIDEmpty
	}
	if w.Name == "" {
		return fmt.Errorf("%w: %s", ErrWorkflowNameEmpty, w.ID)
	}
	if len(w.Steps) == 0 {
		return fmt.Errorf("%w: %s", ErrWorkflowNoSteps, w.ID)
	}

	seen := make(map[StepID]struct{}, len(w.Steps))
	for _, id := range w.Steps {
		if _, ok := seen[id]; ok {
			return fmt.Errorf("%w: %s in %s", ErrDuplicateStep, id, w.ID)
		}
		seen[id] = struct{}{}
	}

	if w.InitialStep != "" && !slices.Contains(w.Steps, w.InitialStep) {
		return fmt.Errorf("%w: %s in %s",
			ErrInitialStepUnknown, w.InitialStep, w.ID)
	}
	return nil
}

// First returns the step an instance of this workflow starts at
func (w *Workflow) First() StepID {
	if w.InitialStep != "" {
		return w.InitialStep
	}
	return w.Steps[0]
}

// NextStep returns the step following the given one in definition order.
// The second result is false when the given step is last or unknown
func (w *Workflow) NextStep(after StepID) (StepID, bool) {
	idx := slices.Index(w.Steps, after)
	if idx < 0 || idx+1 >= len(w.Steps) {
		return "", false
	}
	return w.Steps[idx+1], true
}

// ContainsStep reports whether the step belongs to this workflow
func (w *Workflow) ContainsStep(id StepID) bool {
	return slices.Contains(w.Steps, id)
}
