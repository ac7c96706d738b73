package steps_test

import (
	"context"
	"errors"
	"testing"

	"github.com/parleyhq/parley/internal/assert"
	"github.com/parleyhq/parley/internal/llm"
	"github.com/parleyhq/parley/internal/profile"
	"github.com/parleyhq/parley/internal/steps"
	"github.com/parleyhq/parley/pkg/api"
)

func newCollect(client llm.Client) *steps.CollectBasicInfo {
	return steps.NewCollectBasicInfo(client, profile.NewPlaceResolver())
}

func TestCollectPromptsForName(t *testing.T) {
	as := assert.New(t)
	step := newCollect(&scriptedLLM{})

	res, err := step.Execute(
		context.Background(), newMsg("I want to add a profile"), nil,
		api.Context{},
	)
	as.NoError(err)
	as.ResultValid(res)
	as.Equal(api.ActionRepeat, res.Action)
	as.Contains(res.Response.Text, "name")
}

func TestCollectEverythingInOneMessage(t *testing.T) {
	as := assert.New(t)
	step := newCollect(&scriptedLLM{fields: llm.Fields{
		"name":        "Asha",
		"birth_date":  "1992-07-09",
		"birth_time":  "06:45",
		"birth_place": "Pune",
	}})

	res, err := step.Execute(
		context.Background(),
		newMsg("Add a profile for Asha, born 1992-07-09 at 06:45 in Pune"),
		nil, api.Context{},
	)
	as.NoError(err)
	as.Equal(api.ActionContinue, res.Action)
	as.Equal("Asha", res.Updates["profile.name"])
	as.Equal("1992-07-09", res.Updates["profile.birth_date"])
	as.Equal("06:45", res.Updates["profile.birth_time"])
	as.Equal("Pune, Maharashtra, India", res.Updates["profile.birth_place"])
}

func TestCollectPromptsForNextMissingField(t *testing.T) {
	as := assert.New(t)
	step := newCollect(&scriptedLLM{fields: llm.Fields{"name": "Asha"}})

	res, err := step.Execute(
		context.Background(), newMsg("It's for Asha"), nil, api.Context{},
	)
	as.NoError(err)
	as.Equal(api.ActionRepeat, res.Action)
	as.Contains(res.Response.Text, "Asha")
	as.Contains(res.Response.Text, "date of birth")
	as.Equal("Asha", res.Updates["profile.name"])
}

func TestCollectLiteralAnswerFallback(t *testing.T) {
	as := assert.New(t)

	// Extraction finds nothing; the message itself answers the pending
	// prompt
	step := newCollect(&scriptedLLM{})

	wc := api.Context{"profile.pending_field": "name"}
	res, err := step.Execute(context.Background(), newMsg("Asha"), nil, wc)
	as.NoError(err)
	as.Equal(api.ActionRepeat, res.Action)
	as.Equal("Asha", res.Updates["profile.name"])
	as.Contains(res.Response.Text, "date of birth")
}

func TestCollectExtractionOutageDegrades(t *testing.T) {
	as := assert.New(t)
	step := newCollect(&scriptedLLM{
		extractErr: errors.New("backend down"),
	})

	wc := api.Context{"profile.pending_field": "name"}
	res, err := step.Execute(context.Background(), newMsg("Asha"), nil, wc)
	as.NoError(err)
	as.Equal("Asha", res.Updates["profile.name"])
}

func TestCollectRejectsBadDate(t *testing.T) {
	as := assert.New(t)
	step := newCollect(&scriptedLLM{fields: llm.Fields{
		"birth_date": "9th of July 92",
	}})

	wc := api.Context{"profile.name": "Asha"}
	res, err := step.Execute(
		context.Background(), newMsg("9th of July 92"), nil, wc,
	)
	as.NoError(err)
	as.Equal(api.ActionRepeat, res.Action)
	as.Contains(res.Response.Text, "YYYY-MM-DD")
	as.False(res.Updates.Has("profile.birth_date"))
}

func TestCollectRejectsBadTime(t *testing.T) {
	as := assert.New(t)
	step := newCollect(&scriptedLLM{fields: llm.Fields{
		"birth_time": "quarter to seven",
	}})

	wc := api.Context{
		"profile.name":       "Asha",
		"profile.birth_date": "1992-07-09",
	}
	res, err := step.Execute(
		context.Background(), newMsg("quarter to seven"), nil, wc,
	)
	as.NoError(err)
	as.Equal(api.ActionRepeat, res.Action)
	as.Contains(res.Response.Text, "24-hour")
}

func TestCollectAmbiguousPlace(t *testing.T) {
	as := assert.New(t)
	step := newCollect(&scriptedLLM{fields: llm.Fields{
		"birth_place": "Hyderabad",
	}})

	wc := api.Context{
		"profile.name":       "Asha",
		"profile.birth_date": "1992-07-09",
		"profile.birth_time": "06:45",
	}
	res, err := step.Execute(
		context.Background(), newMsg("Hyderabad"), nil, wc,
	)
	as.NoError(err)
	as.Equal(api.ActionRepeat, res.Action)
	as.Len(res.Response.QuickReplies, 2)
	as.Contains(res.Response.Text, "more than one")
}

func TestCollectQualifiedPlaceResolves(t *testing.T) {
	as := assert.New(t)

	// Tapping a disambiguation quick reply sends its label back as text
	step := newCollect(&scriptedLLM{})

	wc := api.Context{
		"profile.name":          "Asha",
		"profile.birth_date":    "1992-07-09",
		"profile.birth_time":    "06:45",
		"profile.pending_field": "birth_place",
	}
	res, err := step.Execute(
		context.Background(), newMsg("Hyderabad, Telangana, India"), nil, wc,
	)
	as.NoError(err)
	as.Equal(api.ActionContinue, res.Action)
	as.Equal("Hyderabad, Telangana, India",
		res.Updates["profile.birth_place"])
}

func TestCollectUnknownPlaceReasks(t *testing.T) {
	as := assert.New(t)
	step := newCollect(&scriptedLLM{fields: llm.Fields{
		"birth_place": "Atlantis",
	}})

	wc := api.Context{
		"profile.name":       "Asha",
		"profile.birth_date": "1992-07-09",
		"profile.birth_time": "06:45",
	}
	res, err := step.Execute(
		context.Background(), newMsg("Atlantis"), nil, wc,
	)
	as.NoError(err)
	as.Equal(api.ActionRepeat, res.Action)
	as.Contains(res.Response.Text, "Atlantis")
}

func TestCollectHandoffIntro(t *testing.T) {
	as := assert.New(t)
	step := newCollect(&scriptedLLM{})

	wc := api.Context{
		api.HandoffKey: map[string]any{"origin": "generate_report"},
	}
	res, err := step.Execute(
		context.Background(), newMsg(""), nil, wc,
	)
	as.NoError(err)
	as.Contains(res.Response.Text, "profile first")
}

func TestCollectKeepsSiblingCapturesOnHalt(t *testing.T) {
	as := assert.New(t)
	step := newCollect(&scriptedLLM{fields: llm.Fields{
		"name":        "Asha",
		"birth_place": "Springfield",
	}})

	res, err := step.Execute(
		context.Background(),
		newMsg("Asha, born in Springfield"), nil, api.Context{},
	)
	as.NoError(err)
	as.Equal(api.ActionRepeat, res.Action)
	// Place disambiguation halts the turn, but the name survives
	as.Equal("Asha", res.Updates["profile.name"])
	as.Len(res.Response.QuickReplies, 2)
}
