package steps

import (
	"context"
	"fmt"

	"github.com/parleyhq/parley/internal/profile"
	"github.com/parleyhq/parley/pkg/api"
)

// CreateRecord persists the confirmed profile and closes the workflow
// with the minted reference ID in the response
type CreateRecord struct {
	profiles *profile.Service
	places   *profile.PlaceResolver
}

// CreateRecordID identifies the step in workflow definitions
const CreateRecordID api.StepID = "create_record"

var _ api.Step = (*CreateRecord)(nil)

// NewCreateRecord creates the record creation step
func NewCreateRecord(
	profiles *profile.Service, places *profile.PlaceResolver,
) *CreateRecord {
	return &CreateRecord{profiles: profiles, places: places}
}

func (s *CreateRecord) ID() api.StepID {
	return CreateRecordID
}

func (s *CreateRecord) Execute(
	ctx context.Context, msg *api.Message, _ *api.Session, wc api.Context,
) (*api.StepResult, error) {
	place, err := s.resolvePlace(wc)
	if err != nil {
		return nil, err
	}

	created, err := s.profiles.Create(ctx, &profile.Profile{
		UserID:    msg.UserID,
		Name:      wc.GetString(KeyProfileName, ""),
		BirthDate: wc.GetString(KeyProfileBirthDate, ""),
		BirthTime: wc.GetString(KeyProfileBirthTime, ""),
		Place:     place,
	})
	if err != nil {
		return nil, fmt.Errorf("profile creation failed: %w", err)
	}

	text := fmt.Sprintf(
		"All set! I've created %s's profile (%s). Sun sign: %s.",
		created.Name, created.ID, created.SunSign,
	)
	if handoff, ok := wc.Handoff(); ok {
		if handoff[HandoffOrigin] == "generate_report" {
			text += " You can ask for the detailed report now."
		}
	}

	return api.NewResult(api.ActionComplete).
		WithText(text).
		WithUpdate(KeyProfileID, created.ID), nil
}

// resolvePlace turns the stored place label back into its gazetteer entry.
// Collection stores fully qualified labels, so this resolves uniquely
func (s *CreateRecord) resolvePlace(wc api.Context) (profile.Place, error) {
	label := wc.GetString(KeyProfilePlace, "")
	places, err := s.places.Resolve(label)
	if err != nil {
		return profile.Place{}, err
	}
	return places[0], nil
}
