package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/parleyhq/parley/internal/profile"
	"github.com/parleyhq/parley/pkg/api"
)

// ResolveProfile decides which profile the report is for. No profiles at
// all hands the user off to profile creation; exactly one is taken as is;
// several become quick replies until the user picks one
type ResolveProfile struct {
	profiles *profile.Service
	addFlow  api.WorkflowID
}

// ResolveProfileID identifies the step in workflow definitions
const ResolveProfileID api.StepID = "resolve_profile"

const maxProfileChoices = 6

var _ api.Step = (*ResolveProfile)(nil)

// NewResolveProfile creates the profile resolution step. addFlow is the
// workflow a profile-less user is handed off to
func NewResolveProfile(
	profiles *profile.Service, addFlow api.WorkflowID,
) *ResolveProfile {
	return &ResolveProfile{profiles: profiles, addFlow: addFlow}
}

func (s *ResolveProfile) ID() api.StepID {
	return ResolveProfileID
}

func (s *ResolveProfile) Execute(
	ctx context.Context, msg *api.Message, _ *api.Session, wc api.Context,
) (*api.StepResult, error) {
	if wc.Has(KeyReportProfileID) {
		return api.NewResult(api.ActionContinue), nil
	}

	all, err := s.profiles.List(ctx, msg.UserID)
	if err != nil {
		return nil, fmt.Errorf("profile lookup failed: %w", err)
	}

	switch len(all) {
	case 0:
		return api.NewResult(api.ActionJump).
			WithJump(s.addFlow, "").
			WithHandoff(HandoffOrigin, "generate_report"), nil
	case 1:
		return chooseProfile(all[0]), nil
	}

	if chosen := matchProfile(all, msg.Text); chosen != nil {
		return chooseProfile(chosen), nil
	}

	shown := all
	if len(shown) > maxProfileChoices {
		shown = shown[:maxProfileChoices]
	}
	replies := make([]api.QuickReply, len(shown))
	for i, p := range shown {
		replies[i] = api.QuickReply{Label: p.Name}
	}
	return api.Reply("Which profile is this report for?").
		WithQuickReplies(replies...), nil
}

func chooseProfile(p *profile.Profile) *api.StepResult {
	return api.NewResult(api.ActionContinue).
		WithUpdate(KeyReportProfileID, p.ID).
		WithUpdate(KeyReportProfileName, p.Name)
}

// matchProfile looks for a profile name mentioned in the message
func matchProfile(all []*profile.Profile, text string) *profile.Profile {
	lowered := strings.ToLower(text)
	for _, p := range all {
		if strings.Contains(lowered, strings.ToLower(p.Name)) {
			return p
		}
	}
	return nil
}
