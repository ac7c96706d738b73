package steps_test

import (
	"context"
	"testing"

	"github.com/parleyhq/parley/internal/assert"
	"github.com/parleyhq/parley/internal/profile"
	"github.com/parleyhq/parley/internal/steps"
	"github.com/parleyhq/parley/pkg/api"
)

func newCreate(t *testing.T) (*steps.CreateRecord, *profile.Service) {
	svc := newProfileService(t)
	step := steps.NewCreateRecord(svc, profile.NewPlaceResolver())
	return step, svc
}

func TestCreateRecordPersistsProfile(t *testing.T) {
	as := assert.New(t)
	step, svc := newCreate(t)

	wc := collectedContext().Set("profile.confirmed", true)
	res, err := step.Execute(context.Background(), newMsg("yes"), nil, wc)
	as.NoError(err)
	as.Equal(api.ActionComplete, res.Action)

	// The reference ID lands in both response and context
	id, ok := res.Updates["profile.id"].(string)
	as.True(ok)
	as.Contains(id, "prof_")
	as.Contains(res.Response.Text, id)
	as.Contains(res.Response.Text, "Asha")
	as.Contains(res.Response.Text, "Cancer")

	stored, err := svc.Get(context.Background(), "user-1", id)
	as.NoError(err)
	as.Equal("Asha", stored.Name)
	as.Equal("Pune", stored.Place.Name)
	as.Equal("Asia/Kolkata", stored.Place.Timezone)
}

func TestCreateRecordReportHint(t *testing.T) {
	as := assert.New(t)
	step, _ := newCreate(t)

	wc := collectedContext().
		Set("profile.confirmed", true).
		Set(api.HandoffKey, map[string]any{"origin": "generate_report"})
	res, err := step.Execute(context.Background(), newMsg("yes"), nil, wc)
	as.NoError(err)
	as.Contains(res.Response.Text, "detailed report")
}

func TestCreateRecordFailsOnMissingFields(t *testing.T) {
	as := assert.New(t)
	step, _ := newCreate(t)

	_, err := step.Execute(
		context.Background(), newMsg("yes"), nil, api.Context{},
	)
	as.Error(err)
}
