package engine

import (
	"errors"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/parleyhq/parley/pkg/api"
)

// Registry holds the workflow definitions and step implementations the
// engine routes against. It is populated once at startup and frozen before
// the first message arrives; after that every lookup is a plain map read
// shared safely across goroutines
type Registry struct {
	workflows map[api.WorkflowID]*api.Workflow
	steps     map[api.StepID]api.Step
	intents   map[api.IntentID]api.WorkflowID
	frozen    atomic.Bool
}

var (
	ErrRegistryFrozen  = errors.New("registry is frozen")
	ErrWorkflowExists  = errors.New("workflow already registered")
	ErrStepExists      = errors.New("step already registered")
	ErrStepNotFound    = errors.New("step not registered")
	ErrIntentConflict  = errors.New("intent already routed")
	ErrUnknownWorkflow = errors.New("unknown workflow")
)

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		workflows: map[api.WorkflowID]*api.Workflow{},
		steps:     map[api.StepID]api.Step{},
		intents:   map[api.IntentID]api.WorkflowID{},
	}
}

// RegisterStep adds a step implementation
func (r *Registry) RegisterStep(step api.Step) error {
	if r.frozen.Load() {
		return ErrRegistryFrozen
	}
	id := step.ID()
	if _, ok := r.steps[id]; ok {
		return fmt.Errorf("%w: %s", ErrStepExists, id)
	}
	r.steps[id] = step
	return nil
}

// RegisterWorkflow adds a workflow definition. Every step it names must
// already be registered, and its intents must not collide with another
// workflow's
func (r *Registry) RegisterWorkflow(wf *api.Workflow) error {
	if r.frozen.Load() {
		return ErrRegistryFrozen
	}
	if err := wf.Validate(); err != nil {
		return err
	}
	if _, ok := r.workflows[wf.ID]; ok {
		return fmt.Errorf("%w: %s", ErrWorkflowExists, wf.ID)
	}
	for _, stepID := range wf.Steps {
		if _, ok := r.steps[stepID]; !ok {
			return fmt.Errorf("%w: %s in %s", ErrStepNotFound, stepID, wf.ID)
		}
	}
	for _, intent := range wf.Intents {
		if owner, ok := r.intents[intent]; ok {
			return fmt.Errorf("%w: %s claimed by %s",
				ErrIntentConflict, intent, owner)
		}
	}

	r.workflows[wf.ID] = wf
	for _, intent := range wf.Intents {
		r.intents[intent] = wf.ID
	}
	return nil
}

// Freeze seals the registry against further registration
func (r *Registry) Freeze() {
	r.frozen.Store(true)
}

// Workflow returns the definition with the given ID
func (r *Registry) Workflow(id api.WorkflowID) (*api.Workflow, bool) {
	wf, ok := r.workflows[id]
	return wf, ok
}

// Step returns the step implementation with the given ID
func (r *Registry) Step(id api.StepID) (api.Step, bool) {
	step, ok := r.steps[id]
	return step, ok
}

// WorkflowForIntent resolves an intent to the workflow that claims it
func (r *Registry) WorkflowForIntent(
	intent api.IntentID,
) (*api.Workflow, bool) {
	id, ok := r.intents[intent]
	if !ok {
		return nil, false
	}
	return r.Workflow(id)
}

// Workflows returns all registered definitions ordered by ID
func (r *Registry) Workflows() []*api.Workflow {
	res := make([]*api.Workflow, 0, len(r.workflows))
	for _, wf := range r.workflows {
		res = append(res, wf)
	}
	slices.SortFunc(res, func(a, b *api.Workflow) int {
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return res
}
