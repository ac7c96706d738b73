package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/parleyhq/parley/internal/llm"
	"github.com/parleyhq/parley/internal/profile"
	"github.com/parleyhq/parley/pkg/api"
)

// AnswerQuestion handles one-shot astrology questions grounded in the
// user's stored profiles. Each question is its own short-lived workflow
// instance; follow-ups re-classify and land here again with the session
// transcript carrying the thread
type AnswerQuestion struct {
	llm      llm.Client
	profiles *profile.Service
}

// AnswerQuestionID identifies the step in workflow definitions
const AnswerQuestionID api.StepID = "answer_question"

const answerSystemPrompt = "You are a friendly astrology assistant. " +
	"Answer briefly and only from the profile facts given. If the " +
	"question needs a profile the user doesn't have, say so."

// transcriptTurns bounds how much session history travels with a question
const transcriptTurns = 6

var _ api.Step = (*AnswerQuestion)(nil)

// NewAnswerQuestion creates the question answering step
func NewAnswerQuestion(
	client llm.Client, profiles *profile.Service,
) *AnswerQuestion {
	return &AnswerQuestion{llm: client, profiles: profiles}
}

func (s *AnswerQuestion) ID() api.StepID {
	return AnswerQuestionID
}

func (s *AnswerQuestion) Execute(
	ctx context.Context, msg *api.Message, sess *api.Session, _ api.Context,
) (*api.StepResult, error) {
	system, err := s.systemPrompt(ctx, msg.UserID)
	if err != nil {
		return nil, err
	}

	var transcript string
	if sess != nil {
		transcript = sess.Transcript(transcriptTurns)
	}

	text, err := s.llm.Complete(ctx, &llm.CompletionRequest{
		System:     system,
		Transcript: transcript,
		Prompt:     msg.Text,
	})
	if err != nil {
		return nil, fmt.Errorf("answer generation failed: %w", err)
	}

	return api.NewResult(api.ActionComplete).WithText(text), nil
}

func (s *AnswerQuestion) systemPrompt(
	ctx context.Context, userID api.UserID,
) (string, error) {
	all, err := s.profiles.List(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("profile lookup failed: %w", err)
	}

	var b strings.Builder
	b.WriteString(answerSystemPrompt)
	if len(all) == 0 {
		b.WriteString("\nThe user has no profiles yet.")
		return b.String(), nil
	}

	b.WriteString("\nKnown profiles:")
	for _, p := range all {
		fmt.Fprintf(&b, "\n- %s: born %s at %s in %s, sun sign %s",
			p.Name, p.BirthDate, p.BirthTime, p.Place.Label(), p.SunSign)
	}
	return b.String(), nil
}
