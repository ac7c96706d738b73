package steps_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/parleyhq/parley/internal/steps"
	"github.com/parleyhq/parley/pkg/api"
)

const menuScript = `
return {
  text = "What would you like to do?",
  action = "complete",
  quick_replies = {
    {label = "Add a profile", intent = "add_profile"},
    {label = "Detailed report", intent = "generate_report"},
    {label = "Ask a question", intent = "profile_qna"},
  },
}
`

func TestLuaStepMenu(t *testing.T) {
	env := steps.NewLuaEnv()

	step, err := steps.NewLuaStep("show_menu", env, menuScript)
	assert.NoError(t, err)
	assert.Equal(t, api.StepID("show_menu"), step.ID())

	res, err := step.Execute(
		context.Background(), newMsg("/menu"), nil, api.Context{},
	)
	assert.NoError(t, err)
	assert.Equal(t, api.ActionComplete, res.Action)
	assert.Equal(t, "What would you like to do?", res.Response.Text)
	assert.Len(t, res.Response.QuickReplies, 3)
	assert.Equal(t, api.IntentID("add_profile"),
		res.Response.QuickReplies[0].Intent)
}

func TestLuaStepReadsMessageAndContext(t *testing.T) {
	env := steps.NewLuaEnv()

	step, err := steps.NewLuaStep("echo", env, `
return {
  text = "Hello " .. message.user_id .. ", you said: " .. message.text,
  action = "complete",
  updates = {["echo.count"] = (context["echo.count"] or 0) + 1},
}
`)
	assert.NoError(t, err)

	res, err := step.Execute(
		context.Background(), newMsg("hi there"), nil,
		api.Context{"echo.count": 2},
	)
	assert.NoError(t, err)
	assert.Equal(t, "Hello user-1, you said: hi there", res.Response.Text)
	assert.Equal(t, 3, res.Updates["echo.count"])
}

func TestLuaStepDefaultsToComplete(t *testing.T) {
	env := steps.NewLuaEnv()

	step, err := steps.NewLuaStep("plain", env,
		`return {text = "Sorry, I didn't catch that."}`)
	assert.NoError(t, err)

	res, err := step.Execute(
		context.Background(), newMsg("???"), nil, api.Context{},
	)
	assert.NoError(t, err)
	assert.Equal(t, api.ActionComplete, res.Action)
}

func TestLuaStepRejectsUnsupportedAction(t *testing.T) {
	env := steps.NewLuaEnv()

	step, err := steps.NewLuaStep("jumper", env,
		`return {action = "jump"}`)
	assert.NoError(t, err)

	_, err = step.Execute(
		context.Background(), newMsg("x"), nil, api.Context{},
	)
	assert.ErrorIs(t, err, steps.ErrLuaBadAction)
}

func TestLuaStepCompileError(t *testing.T) {
	env := steps.NewLuaEnv()

	_, err := steps.NewLuaStep("broken", env, `return {text = `)
	assert.ErrorIs(t, err, steps.ErrLuaLoad)
}

func TestLuaStepSandbox(t *testing.T) {
	env := steps.NewLuaEnv()

	step, err := steps.NewLuaStep("escape", env,
		`return {text = os.getenv("HOME")}`)
	assert.NoError(t, err)

	_, err = step.Execute(
		context.Background(), newMsg("x"), nil, api.Context{},
	)
	assert.ErrorIs(t, err, steps.ErrLuaExecution)
}

func TestLuaStepSessionTable(t *testing.T) {
	env := steps.NewLuaEnv()

	step, err := steps.NewLuaStep("greet", env, `
if session.last_intent == "" then
  return {text = "Welcome!", action = "complete"}
end
return {text = "Welcome back!", action = "complete"}
`)
	assert.NoError(t, err)

	res, err := step.Execute(
		context.Background(), newMsg("hi"), nil, api.Context{},
	)
	assert.NoError(t, err)
	assert.Equal(t, "Welcome!", res.Response.Text)

	sess := &api.Session{UserID: "user-1", LastIntent: "main_menu"}
	res, err = step.Execute(context.Background(), newMsg("hi"), sess,
		api.Context{})
	assert.NoError(t, err)
	assert.Equal(t, "Welcome back!", res.Response.Text)
}
