package api_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/parleyhq/parley/pkg/api"
)

func TestResponseMerge(t *testing.T) {
	first := api.NewResponse("details saved").WithQuickReplies(
		api.QuickReply{Label: "Menu", Intent: "main_menu"},
	)
	second := api.NewResponse("here is your summary").WithQuickReplies(
		api.QuickReply{Label: "Confirm", Intent: "confirm_yes"},
	)

	merged := first.Merge(second)
	assert.Equal(t, "details saved\n\nhere is your summary", merged.Text)
	assert.Equal(t, api.IntentID("confirm_yes"), merged.QuickReplies[0].Intent,
		"later quick replies win",
	)
}

func TestResponseMergeEmpty(t *testing.T) {
	resp := api.NewResponse("hello")

	assert.Equal(t, resp, resp.Merge(nil))
	assert.Equal(t, resp, resp.Merge(&api.Response{}))

	var empty *api.Response
	assert.Equal(t, resp, empty.Merge(resp))
}

func TestResponseMergeAttachments(t *testing.T) {
	doc := api.Attachment{
		Type: api.AttachmentDocument,
		Name: "report.json",
		URL:  "https://cdn.example.com/report.json",
	}

	merged := api.NewResponse("done").
		Merge(api.NewResponse("report ready").WithAttachment(doc))

	assert.Len(t, merged.Attachments, 1)
	assert.Equal(t, doc, merged.Attachments[0])
}

func TestSessionAppendTurn(t *testing.T) {
	now := time.Now()
	sess := &api.Session{UserID: "user-1", CreatedAt: now}

	for i := range 5 {
		sess = sess.AppendTurn(api.MessageTurn{
			Role: api.RoleUser,
			Text: "message",
			At:   now.Add(time.Duration(i) * time.Second),
		}, 3)
	}

	assert.Len(t, sess.Turns, 3, "history is bounded")
	assert.Equal(t, now.Add(4*time.Second), sess.UpdatedAt)
}

func TestSessionTranscript(t *testing.T) {
	now := time.Now()
	sess := (&api.Session{UserID: "user-1"}).
		AppendTurn(api.MessageTurn{
			Role: api.RoleUser, Text: "create profile", At: now,
		}, 0).
		AppendTurn(api.MessageTurn{
			Role: api.RoleAssistant, Text: "what is the name?", At: now,
		}, 0)

	assert.Equal(t,
		"user: create profile\nassistant: what is the name?",
		sess.Transcript(10),
	)
}

func TestSanitizeID(t *testing.T) {
	assert.Equal(t,
		api.WorkflowID("add_profile"),
		api.SanitizeID(api.WorkflowID("Add Profile!")),
	)
	assert.Equal(t, api.StepID("confirm"), api.SanitizeID(api.StepID("confirm")))
}
