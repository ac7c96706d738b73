package workflows

import (
	"fmt"

	"github.com/parleyhq/parley/internal/config"
	"github.com/parleyhq/parley/internal/engine"
	"github.com/parleyhq/parley/internal/llm"
	"github.com/parleyhq/parley/internal/payment"
	"github.com/parleyhq/parley/internal/profile"
	"github.com/parleyhq/parley/internal/report"
	"github.com/parleyhq/parley/internal/steps"
	"github.com/parleyhq/parley/pkg/api"
)

// Deps carries the collaborators the built-in steps close over. Lua is
// optional; a fresh environment is created when nil
type Deps struct {
	Config   *config.Config
	LLM      llm.Client
	Profiles *profile.Service
	Places   *profile.PlaceResolver
	Payments payment.Client
	Reports  *report.Generator
	Archive  *report.Archive
	Lua      *steps.LuaEnv
}

// Install loads the definitions file named by the configuration and
// registers everything it declares
func Install(reg *engine.Registry, deps *Deps) (*Document, error) {
	doc, err := Load(deps.Config.DefinitionsPath)
	if err != nil {
		return nil, err
	}
	if err := Register(reg, doc, deps); err != nil {
		return nil, err
	}
	return doc, nil
}

// Register installs the built-in step catalog, the scripted steps the
// document declares, and the workflows themselves. Steps go first; the
// registry refuses workflows that reference a step it has never seen
func Register(reg *engine.Registry, doc *Document, deps *Deps) error {
	for _, step := range builtins(deps) {
		if err := reg.RegisterStep(step); err != nil {
			return err
		}
	}

	env := deps.Lua
	if env == nil {
		env = steps.NewLuaEnv()
	}
	for i := range doc.Workflows {
		def := &doc.Workflows[i]
		for _, s := range def.Scripts {
			step, err := steps.NewLuaStep(s.Step, env, s.Source)
			if err != nil {
				return fmt.Errorf("workflow %s: %w", def.ID, err)
			}
			if err := reg.RegisterStep(step); err != nil {
				return err
			}
		}
		if err := reg.RegisterWorkflow(def.Workflow()); err != nil {
			return err
		}
	}
	return nil
}

// builtins constructs the compiled step catalog. Scripted steps are not
// here; they come from the definitions file
func builtins(deps *Deps) []api.Step {
	base := deps.Config.WebhookBaseURL
	return []api.Step{
		steps.NewCollectBasicInfo(deps.LLM, deps.Places),
		steps.NewConfirm(AddProfile, steps.CollectBasicInfoID),
		steps.NewCreateRecord(deps.Profiles, deps.Places),
		steps.NewResolveProfile(deps.Profiles, AddProfile),
		steps.NewCollectPayment(deps.Payments, base+"/webhook"),
		steps.NewRenderReport(
			deps.Profiles, deps.Reports, deps.Archive, base,
		),
		steps.NewAnswerQuestion(deps.LLM, deps.Profiles),
	}
}
