// Package workflows loads the declarative definitions file and installs
// the shipped step catalog and workflow descriptors into a registry
package workflows

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/parleyhq/parley/pkg/api"
)

type (
	// Document is the root of the definitions file: an ordered list of
	// workflow declarations
	Document struct {
		Workflows []Definition `yaml:"workflows"`
	}

	// Definition declares one workflow. Steps reference registered step
	// implementations by id; Scripts declares inline Lua steps that are
	// registered before the workflow itself
	Definition struct {
		ID          api.WorkflowID `yaml:"id"`
		Name        string         `yaml:"name"`
		Description string         `yaml:"description"`
		Intents     []api.IntentID `yaml:"intents"`
		InitialStep api.StepID     `yaml:"initial_step"`
		Steps       []api.StepID   `yaml:"steps"`
		Scripts     []Script       `yaml:"scripts"`
	}

	// Script is an inline Lua step body declared by a workflow
	Script struct {
		Step   api.StepID `yaml:"step"`
		Source string     `yaml:"source"`
	}
)

// Shipped workflow ids. The definitions file may declare others; these
// are the ones the rest of the system references by name
const (
	AddProfile     api.WorkflowID = "add_profile"
	GenerateReport api.WorkflowID = "generate_report"
	ProfileQNA     api.WorkflowID = "profile_qna"
	MainMenu       api.WorkflowID = "main_menu"
	Fallback       api.WorkflowID = "unknown"
)

var (
	ErrNoWorkflows       = errors.New("definitions declare no workflows")
	ErrDuplicateWorkflow = errors.New("duplicate workflow id")
	ErrDuplicateScript   = errors.New("duplicate script step")
	ErrScriptStepEmpty   = errors.New("script step id empty")
	ErrScriptSourceEmpty = errors.New("script source empty")
)

// Validate checks the document's structural integrity. Step existence is
// checked later, at registration time, once the full catalog is known
func (d *Document) Validate() error {
	if len(d.Workflows) == 0 {
		return ErrNoWorkflows
	}
	seen := make(map[api.WorkflowID]struct{}, len(d.Workflows))
	for i := range d.Workflows {
		def := &d.Workflows[i]
		if err := def.Validate(); err != nil {
			return err
		}
		if _, ok := seen[def.ID]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateWorkflow, def.ID)
		}
		seen[def.ID] = struct{}{}
	}
	return nil
}

// Definition returns the declaration with the given id, if present
func (d *Document) Definition(id api.WorkflowID) (*Definition, bool) {
	for i := range d.Workflows {
		if d.Workflows[i].ID == id {
			return &d.Workflows[i], true
		}
	}
	return nil, false
}

// Validate checks one declaration, including its inline scripts
func (d *Definition) Validate() error {
	if err := d.Workflow().Validate(); err != nil {
		return err
	}
	seen := make(map[api.StepID]struct{}, len(d.Scripts))
	for _, s := range d.Scripts {
		if s.Step == "" {
			return fmt.Errorf("%w: in %s", ErrScriptStepEmpty, d.ID)
		}
		if strings.TrimSpace(s.Source) == "" {
			return fmt.Errorf(
				"%w: %s in %s", ErrScriptSourceEmpty, s.Step, d.ID,
			)
		}
		if _, ok := seen[s.Step]; ok {
			return fmt.Errorf(
				"%w: %s in %s", ErrDuplicateScript, s.Step, d.ID,
			)
		}
		seen[s.Step] = struct{}{}
	}
	return nil
}

// Workflow converts the declaration into the immutable api descriptor
func (d *Definition) Workflow() *api.Workflow {
	return &api.Workflow{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		Steps:       slices.Clone(d.Steps),
		InitialStep: d.InitialStep,
		Intents:     slices.Clone(d.Intents),
	}
}
