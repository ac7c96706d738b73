package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/parleyhq/parley/pkg/api"
)

// Confirm plays the collected details back and waits for a yes or no. A
// yes moves on to record creation; a no restarts the collection from a
// clean slate by jumping to a fresh instance of the same workflow
type Confirm struct {
	workflowID api.WorkflowID
	restartAt  api.StepID
}

// ConfirmID identifies the step in workflow definitions
const ConfirmID api.StepID = "confirm"

// keyAwaitingConfirm marks that the summary has been shown and the next
// message answers it
const keyAwaitingConfirm = "profile.awaiting_confirmation"

var _ api.Step = (*Confirm)(nil)

// NewConfirm creates the confirmation step. A negative answer jumps to
// restartAt in workflowID, discarding everything collected so far
func NewConfirm(workflowID api.WorkflowID, restartAt api.StepID) *Confirm {
	return &Confirm{workflowID: workflowID, restartAt: restartAt}
}

func (s *Confirm) ID() api.StepID {
	return ConfirmID
}

func (s *Confirm) Execute(
	_ context.Context, msg *api.Message, _ *api.Session, wc api.Context,
) (*api.StepResult, error) {
	if !wc.GetBool(keyAwaitingConfirm, false) {
		return s.summary(wc), nil
	}

	text := strings.TrimSpace(msg.Text)
	switch {
	case IsAffirmative(text):
		return api.NewResult(api.ActionContinue).
			WithUpdate(KeyProfileConfirmed, true), nil
	case IsNegative(text):
		res := api.NewResult(api.ActionJump).
			WithJump(s.workflowID, s.restartAt).
			WithText("No problem, let's start over.")
		if handoff, ok := wc.Handoff(); ok {
			res.Handoff = handoff
		}
		return res, nil
	default:
		return api.Reply("Please answer yes or no.").
			WithQuickReplies(yesNoReplies()...), nil
	}
}

func (s *Confirm) summary(wc api.Context) *api.StepResult {
	text := fmt.Sprintf(
		"Here's what I have:\n"+
			"Name: %s\n"+
			"Date of birth: %s\n"+
			"Time of birth: %s\n"+
			"Place of birth: %s\n"+
			"Is this correct?",
		wc.GetString(KeyProfileName, ""),
		wc.GetString(KeyProfileBirthDate, ""),
		wc.GetString(KeyProfileBirthTime, ""),
		wc.GetString(KeyProfilePlace, ""),
	)
	return api.Reply(text).
		WithQuickReplies(yesNoReplies()...).
		WithUpdate(keyAwaitingConfirm, true)
}

func yesNoReplies() []api.QuickReply {
	return []api.QuickReply{
		{Label: "Yes"},
		{Label: "No"},
	}
}
