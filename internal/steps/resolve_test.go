package steps_test

import (
	"context"
	"testing"

	"github.com/parleyhq/parley/internal/assert"
	"github.com/parleyhq/parley/internal/steps"
	"github.com/parleyhq/parley/pkg/api"
)

func TestResolveNoProfilesHandsOff(t *testing.T) {
	as := assert.New(t)
	step := steps.NewResolveProfile(newProfileService(t), "add_profile")

	res, err := step.Execute(
		context.Background(), newMsg("I want a detailed report"), nil,
		api.Context{},
	)
	as.NoError(err)
	as.Equal(api.ActionJump, res.Action)
	as.Equal(api.WorkflowID("add_profile"), res.Jump.WorkflowID)
	as.Equal("generate_report", res.Handoff["origin"])
}

func TestResolveSingleProfile(t *testing.T) {
	as := assert.New(t)
	svc := newProfileService(t, storedProfile("prof_aaa", "Asha"))
	step := steps.NewResolveProfile(svc, "add_profile")

	res, err := step.Execute(
		context.Background(), newMsg("I want a detailed report"), nil,
		api.Context{},
	)
	as.NoError(err)
	as.Equal(api.ActionContinue, res.Action)
	as.Equal("prof_aaa", res.Updates["report.profile_id"])
	as.Equal("Asha", res.Updates["report.profile_name"])
}

func TestResolveManyProfilesAsksWhich(t *testing.T) {
	as := assert.New(t)
	svc := newProfileService(t,
		storedProfile("prof_aaa", "Asha"),
		storedProfile("prof_bbb", "Ravi"),
	)
	step := steps.NewResolveProfile(svc, "add_profile")

	res, err := step.Execute(
		context.Background(), newMsg("I want a detailed report"), nil,
		api.Context{},
	)
	as.NoError(err)
	as.Equal(api.ActionRepeat, res.Action)
	as.Len(res.Response.QuickReplies, 2)
	as.Equal("Asha", res.Response.QuickReplies[0].Label)
}

func TestResolveMatchesNameInMessage(t *testing.T) {
	as := assert.New(t)
	svc := newProfileService(t,
		storedProfile("prof_aaa", "Asha"),
		storedProfile("prof_bbb", "Ravi"),
	)
	step := steps.NewResolveProfile(svc, "add_profile")

	res, err := step.Execute(
		context.Background(), newMsg("A report for Ravi please"), nil,
		api.Context{},
	)
	as.NoError(err)
	as.Equal(api.ActionContinue, res.Action)
	as.Equal("prof_bbb", res.Updates["report.profile_id"])
}

func TestResolveAlreadyChosen(t *testing.T) {
	as := assert.New(t)
	svc := newProfileService(t, storedProfile("prof_aaa", "Asha"))
	step := steps.NewResolveProfile(svc, "add_profile")

	wc := api.Context{"report.profile_id": "prof_aaa"}
	res, err := step.Execute(
		context.Background(), newMsg("Asha"), nil, wc,
	)
	as.NoError(err)
	as.Equal(api.ActionContinue, res.Action)
	as.Nil(res.Updates)
}
