package workflows_test

import (
	"context"
	"path/filepath"
	"testing"

	_ "gocloud.dev/blob/memblob"

	"github.com/parleyhq/parley/internal/assert"
	"github.com/parleyhq/parley/internal/assert/helpers"
	"github.com/parleyhq/parley/internal/engine"
	"github.com/parleyhq/parley/internal/llm"
	"github.com/parleyhq/parley/internal/payment"
	"github.com/parleyhq/parley/internal/profile"
	"github.com/parleyhq/parley/internal/report"
	"github.com/parleyhq/parley/internal/steps"
	"github.com/parleyhq/parley/internal/workflows"
	"github.com/parleyhq/parley/pkg/api"
)

type (
	stubLLM      struct{}
	stubPayments struct{}
)

func (stubLLM) Complete(
	context.Context, *llm.CompletionRequest,
) (string, error) {
	return "ok", nil
}

func (stubLLM) Extract(
	context.Context, *llm.ExtractionRequest,
) (llm.Fields, error) {
	return llm.Fields{}, nil
}

func (stubPayments) CreateLink(
	context.Context, *payment.LinkRequest,
) (*payment.Link, error) {
	return &payment.Link{URL: "https://pay.example/x"}, nil
}

func newDeps(t *testing.T) *workflows.Deps {
	t.Helper()

	store := profile.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	archive, err := report.NewArchive(context.Background(), "mem://", "")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = archive.Close() })

	return &workflows.Deps{
		Config:   helpers.NewTestConfig(),
		LLM:      stubLLM{},
		Profiles: profile.NewService(store),
		Places:   profile.NewPlaceResolver(),
		Payments: stubPayments{},
		Reports:  report.NewGenerator(),
		Archive:  archive,
	}
}

func shippedDocument(t *testing.T) *workflows.Document {
	t.Helper()
	doc, err := workflows.Load(
		filepath.Join("..", "..", "configs", "workflows.yaml"),
	)
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func TestRegisterShippedDocument(t *testing.T) {
	as := assert.New(t)

	reg := engine.NewRegistry()
	as.Require.NoError(
		workflows.Register(reg, shippedDocument(t), newDeps(t)),
	)

	for _, id := range []api.WorkflowID{
		workflows.AddProfile, workflows.GenerateReport,
		workflows.ProfileQNA, workflows.MainMenu, workflows.Fallback,
	} {
		_, ok := reg.Workflow(id)
		as.True(ok, "workflow %s", id)
	}

	for _, id := range []api.StepID{
		steps.CollectBasicInfoID, steps.ConfirmID, steps.CreateRecordID,
		steps.ResolveProfileID, steps.CollectPaymentID,
		steps.RenderReportID, steps.AnswerQuestionID,
		"show_menu", "unknown_fallback",
	} {
		_, ok := reg.Step(id)
		as.True(ok, "step %s", id)
	}

	wf, ok := reg.WorkflowForIntent("generate_report")
	as.Require.True(ok)
	as.Equal(workflows.GenerateReport, wf.ID)

	wf, ok = reg.WorkflowForIntent("unknown")
	as.Require.True(ok)
	as.Equal(workflows.Fallback, wf.ID)
}

func TestRegisterUnknownStep(t *testing.T) {
	as := assert.New(t)

	doc, err := workflows.Parse([]byte(`
workflows:
  - id: broken
    name: Broken
    steps: [does_not_exist]
`))
	as.Require.NoError(err)

	err = workflows.Register(engine.NewRegistry(), doc, newDeps(t))
	as.ErrorIs(err, engine.ErrStepNotFound)
}

func TestRegisterBadScript(t *testing.T) {
	as := assert.New(t)

	doc, err := workflows.Parse([]byte(`
workflows:
  - id: broken
    name: Broken
    steps: [bad_script]
    scripts:
      - step: bad_script
        source: "return ("
`))
	as.Require.NoError(err)

	err = workflows.Register(engine.NewRegistry(), doc, newDeps(t))
	as.Require.Error(err)
	as.Contains(err.Error(), "broken")
	as.ErrorIs(err, steps.ErrLuaLoad)
}

func TestInstallFromConfiguredPath(t *testing.T) {
	as := assert.New(t)

	deps := newDeps(t)
	deps.Config.DefinitionsPath = filepath.Join(
		"..", "..", "configs", "workflows.yaml",
	)

	reg := engine.NewRegistry()
	doc, err := workflows.Install(reg, deps)
	as.Require.NoError(err)
	as.Len(doc.Workflows, 5)

	_, ok := reg.Workflow(workflows.GenerateReport)
	as.True(ok)
}

func TestInstallMissingFile(t *testing.T) {
	as := assert.New(t)

	deps := newDeps(t)
	deps.Config.DefinitionsPath = filepath.Join(t.TempDir(), "nope.yaml")

	_, err := workflows.Install(engine.NewRegistry(), deps)
	as.Require.Error(err)
	as.Contains(err.Error(), "read definitions")
}

func TestShippedMenuScriptRuns(t *testing.T) {
	as := assert.New(t)

	reg := engine.NewRegistry()
	as.Require.NoError(
		workflows.Register(reg, shippedDocument(t), newDeps(t)),
	)

	step, ok := reg.Step("show_menu")
	as.Require.True(ok)

	res, err := step.Execute(
		context.Background(),
		&api.Message{UserID: "user-1", Text: "/menu"},
		nil, api.Context{},
	)
	as.Require.NoError(err)
	as.Equal(api.ActionComplete, res.Action)
	as.Equal("What would you like to do?", res.Response.Text)
	as.Require.Len(res.Response.QuickReplies, 3)
	as.Equal(api.IntentID("add_profile"), res.Response.QuickReplies[0].Intent)
}

func TestShippedFallbackScriptGreetsNewUsers(t *testing.T) {
	as := assert.New(t)

	reg := engine.NewRegistry()
	as.Require.NoError(
		workflows.Register(reg, shippedDocument(t), newDeps(t)),
	)

	step, ok := reg.Step("unknown_fallback")
	as.Require.True(ok)
	msg := &api.Message{UserID: "user-1", Text: "hmmm"}

	res, err := step.Execute(
		context.Background(), msg, nil, api.Context{},
	)
	as.Require.NoError(err)
	as.Contains(res.Response.Text, "Hi!")

	seasoned := &api.Session{
		UserID: "user-1",
		Turns:  []api.MessageTurn{{Role: api.RoleUser, Text: "earlier"}},
	}
	res, err = step.Execute(
		context.Background(), msg, seasoned, api.Context{},
	)
	as.Require.NoError(err)
	as.Contains(res.Response.Text, "didn't quite catch")
}
