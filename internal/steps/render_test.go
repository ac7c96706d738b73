package steps_test

import (
	"context"
	"testing"

	"github.com/parleyhq/parley/internal/assert"
	"github.com/parleyhq/parley/internal/report"
	"github.com/parleyhq/parley/internal/steps"
	"github.com/parleyhq/parley/pkg/api"

	_ "gocloud.dev/blob/memblob"
)

const testBaseURL = "https://parley.example.com"

func newRender(t *testing.T) (*steps.RenderReport, *report.Archive) {
	t.Helper()
	svc := newProfileService(t, storedProfile("prof_aaa", "Asha"))

	archive, err := report.NewArchive(context.Background(), "mem://", "")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = archive.Close() })

	step := steps.NewRenderReport(
		svc, report.NewGenerator(), archive, testBaseURL,
	)
	return step, archive
}

func TestRenderReportCompletes(t *testing.T) {
	as := assert.New(t)
	step, archive := newRender(t)

	wc := reportContext().Set("payment.status", "captured")
	res, err := step.Execute(context.Background(), newMsg(""), nil, wc)
	as.NoError(err)
	as.Equal(api.ActionComplete, res.Action)
	as.Contains(res.Response.Text, "Asha")

	as.Len(res.Response.Attachments, 1)
	att := res.Response.Attachments[0]
	as.Equal(api.AttachmentDocument, att.Type)
	as.Contains(att.URL, testBaseURL+"/api/v1/reports/user-1/")

	id, ok := res.Updates["report.id"].(string)
	as.True(ok)

	doc, err := archive.Get(context.Background(), "user-1", id)
	as.NoError(err)
	as.Contains(doc.Body, "Sun Sign: Cancer")
}

func TestRenderReportUnknownProfile(t *testing.T) {
	as := assert.New(t)
	step, _ := newRender(t)

	wc := api.Context{"report.profile_id": "prof_missing"}
	_, err := step.Execute(context.Background(), newMsg(""), nil, wc)
	as.Error(err)
}
