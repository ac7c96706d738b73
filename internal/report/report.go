// Package report renders paid birth chart reports and archives the
// rendered documents in bucket storage
package report

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/parleyhq/parley/internal/astro"
	"github.com/parleyhq/parley/internal/llm"
	"github.com/parleyhq/parley/internal/profile"
	"github.com/parleyhq/parley/pkg/api"
)

type (
	// Document is one rendered report
	Document struct {
		ID        string     `json:"id"`
		UserID    api.UserID `json:"user_id"`
		ProfileID string     `json:"profile_id"`
		Title     string     `json:"title"`
		Body      string     `json:"body"`
		CreatedAt time.Time  `json:"created_at"`
	}

	// Generator composes report documents from a profile. When a
	// completion client is configured it adds a personalized narrative;
	// otherwise the report stays fully deterministic
	Generator struct {
		llm llm.Client
	}

	// GeneratorOption configures a Generator
	GeneratorOption func(*Generator)
)

const narrativePrompt = "Write a warm two-paragraph personality sketch " +
	"for a person whose sun sign is %s (%s, %s). Do not mention that " +
	"this was generated."

// WithCompletionClient enables the personalized narrative section
func WithCompletionClient(c llm.Client) GeneratorOption {
	return func(g *Generator) {
		g.llm = c
	}
}

// NewGenerator creates a report generator
func NewGenerator(opts ...GeneratorOption) *Generator {
	res := &Generator{}
	for _, opt := range opts {
		opt(res)
	}
	return res
}

// Render composes the report document for a profile. A narrative failure
// never fails the render; payment was already captured by the time this
// runs, so the deterministic sections stand on their own
func (g *Generator) Render(
	ctx context.Context, p *profile.Profile,
) (*Document, error) {
	sign := p.SunSign
	element := astro.Element(sign)
	modality := astro.Modality(sign)

	var b strings.Builder
	fmt.Fprintf(&b, "Birth Chart Report for %s\n\n", p.Name)
	fmt.Fprintf(&b, "Born %s at %s in %s.\n\n",
		p.BirthDate, p.BirthTime, p.Place.Label())
	fmt.Fprintf(&b, "Sun Sign: %s\n", sign)
	fmt.Fprintf(&b, "Element: %s\n", element)
	fmt.Fprintf(&b, "Modality: %s\n", modality)

	if narrative := g.narrative(ctx, sign, element, modality); narrative != "" {
		fmt.Fprintf(&b, "\n%s\n", narrative)
	}

	return &Document{
		ID:        NewID(),
		UserID:    p.UserID,
		ProfileID: p.ID,
		Title:     fmt.Sprintf("Birth Chart Report: %s", p.Name),
		Body:      b.String(),
		CreatedAt: time.Now(),
	}, nil
}

func (g *Generator) narrative(
	ctx context.Context, sign astro.Sign, element, modality string,
) string {
	if g.llm == nil {
		return ""
	}
	text, err := g.llm.Complete(ctx, &llm.CompletionRequest{
		Prompt: fmt.Sprintf(narrativePrompt, sign, element, modality),
	})
	if err != nil {
		slog.Warn("Report narrative unavailable",
			slog.String("sign", string(sign)),
			slog.Any("error", err))
		return ""
	}
	return strings.TrimSpace(text)
}

// NewID mints a unique report identifier
func NewID() string {
	return "rep_" + uuid.NewString()[:8]
}
