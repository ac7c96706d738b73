package steps

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/parleyhq/parley/internal/astro"
	"github.com/parleyhq/parley/internal/llm"
	"github.com/parleyhq/parley/internal/profile"
	"github.com/parleyhq/parley/pkg/api"
)

// CollectBasicInfo gathers the four birth profile fields over as many
// turns as it takes: extraction pulls what it can from each message, the
// first still-missing field drives the next prompt, and an ambiguous
// birthplace comes back as quick replies
type CollectBasicInfo struct {
	llm    llm.Client
	places *profile.PlaceResolver
}

// CollectBasicInfoID identifies the step in workflow definitions
const CollectBasicInfoID api.StepID = "collect_basic_info"

// Extraction field names, in prompting order
const (
	FieldName       = "name"
	FieldBirthDate  = "birth_date"
	FieldBirthTime  = "birth_time"
	FieldBirthPlace = "birth_place"
)

// keyPendingField remembers which field the last prompt asked for, so a
// plain-text answer can be captured even when extraction returns nothing
const keyPendingField = "profile.pending_field"

const maxPlaceChoices = 5

var fieldOrder = []string{
	FieldName, FieldBirthDate, FieldBirthTime, FieldBirthPlace,
}

var _ api.Step = (*CollectBasicInfo)(nil)

// NewCollectBasicInfo creates the collection step
func NewCollectBasicInfo(
	client llm.Client, places *profile.PlaceResolver,
) *CollectBasicInfo {
	return &CollectBasicInfo{llm: client, places: places}
}

func (s *CollectBasicInfo) ID() api.StepID {
	return CollectBasicInfoID
}

func (s *CollectBasicInfo) Execute(
	ctx context.Context, msg *api.Message, _ *api.Session, wc api.Context,
) (*api.StepResult, error) {
	updates := api.Context{}

	if text := strings.TrimSpace(msg.Text); text != "" {
		if halt := s.capture(ctx, text, wc, updates); halt != nil {
			return halt.WithUpdates(updates), nil
		}
	}

	effective := wc.Merge(updates)
	for _, field := range fieldOrder {
		if !effective.Has(fieldKey(field)) {
			return s.prompt(field, effective).WithUpdates(updates), nil
		}
	}

	updates[keyPendingField] = ""
	return api.NewResult(api.ActionContinue).WithUpdates(updates), nil
}

// capture extracts whatever the message offers for the still-missing
// fields and validates each one. A non-nil result halts the turn to
// re-ask or disambiguate; captured siblings stay in updates either way
func (s *CollectBasicInfo) capture(
	ctx context.Context, text string, wc api.Context, updates api.Context,
) *api.StepResult {
	missing := s.missingFields(wc)
	if len(missing) == 0 {
		return nil
	}

	fields, err := s.llm.Extract(ctx, &llm.ExtractionRequest{
		Text:   text,
		Fields: missing,
	})
	if err != nil {
		slog.Warn("Field extraction unavailable, using literal answer",
			slog.Any("error", err))
		fields = llm.Fields{}
	}

	// The user answered the last prompt; if extraction found nothing for
	// that field, take the message itself as the answer
	pending := wc.GetString(keyPendingField, "")
	if pending != "" && fields[pending] == "" &&
		slices.Contains(missing, pending) && plausibleLiteral(text) {
		fields[pending] = text
	}

	for _, field := range fieldOrder {
		value, ok := fields[field]
		if !ok || !slices.Contains(missing, field) {
			continue
		}
		if halt := s.captureField(field, value, updates); halt != nil {
			updates[keyPendingField] = field
			return halt
		}
	}
	return nil
}

func (s *CollectBasicInfo) captureField(
	field, value string, updates api.Context,
) *api.StepResult {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}

	switch field {
	case FieldName:
		updates[KeyProfileName] = value
	case FieldBirthDate:
		if _, err := time.Parse(astro.DateLayout, value); err != nil {
			return api.Reply("I couldn't read that date. Please use " +
				"YYYY-MM-DD, for example 1992-07-09.")
		}
		updates[KeyProfileBirthDate] = value
	case FieldBirthTime:
		if _, err := time.Parse(profile.TimeLayout, value); err != nil {
			return api.Reply("I couldn't read that time. Please use " +
				"HH:MM in 24-hour form, for example 06:45.")
		}
		updates[KeyProfileBirthTime] = value
	case FieldBirthPlace:
		return s.capturePlace(value, updates)
	}
	return nil
}

func (s *CollectBasicInfo) capturePlace(
	value string, updates api.Context,
) *api.StepResult {
	places, err := s.places.Resolve(value)
	if err != nil {
		return api.Reply(fmt.Sprintf("I don't know %q yet. Could you "+
			"give the nearest major city?", value))
	}
	if len(places) == 1 {
		updates[KeyProfilePlace] = places[0].Label()
		return nil
	}

	if len(places) > maxPlaceChoices {
		places = places[:maxPlaceChoices]
	}
	replies := make([]api.QuickReply, len(places))
	for i, p := range places {
		replies[i] = api.QuickReply{Label: p.Label()}
	}
	return api.Reply(fmt.Sprintf(
		"There's more than one %s. Which one?", places[0].Name,
	)).WithQuickReplies(replies...)
}

func (s *CollectBasicInfo) prompt(
	field string, effective api.Context,
) *api.StepResult {
	name := effective.GetString(KeyProfileName, "")

	var text string
	switch field {
	case FieldName:
		text = "What is the name for this profile?"
		if _, ok := effective.Handoff(); ok {
			text = "Let's set up a birth profile first. " + text
		}
	case FieldBirthDate:
		text = fmt.Sprintf(
			"What is %s's date of birth? Please use YYYY-MM-DD.", name)
	case FieldBirthTime:
		text = fmt.Sprintf(
			"What time was %s born? Please use HH:MM, 24-hour.", name)
	case FieldBirthPlace:
		text = fmt.Sprintf("Where was %s born?", name)
	}

	res := api.Reply(text)
	res.Updates = api.Context{keyPendingField: field}
	return res
}

func (s *CollectBasicInfo) missingFields(wc api.Context) []string {
	var res []string
	for _, field := range fieldOrder {
		if !wc.Has(fieldKey(field)) {
			res = append(res, field)
		}
	}
	return res
}

func fieldKey(field string) string {
	return "profile." + field
}

// plausibleLiteral filters out messages that are clearly not an answer to
// the pending prompt
func plausibleLiteral(text string) bool {
	return len(text) <= 80 && !strings.HasSuffix(text, "?")
}
