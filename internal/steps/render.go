package steps

import (
	"context"
	"fmt"

	"github.com/parleyhq/parley/internal/profile"
	"github.com/parleyhq/parley/internal/report"
	"github.com/parleyhq/parley/pkg/api"
)

// RenderReport composes the paid report, archives it, and closes the
// workflow with the document attached
type RenderReport struct {
	profiles *profile.Service
	reports  *report.Generator
	archive  *report.Archive
	baseURL  string
}

// RenderReportID identifies the step in workflow definitions
const RenderReportID api.StepID = "render_report"

var _ api.Step = (*RenderReport)(nil)

// NewRenderReport creates the rendering step. baseURL prefixes the
// download link handed back to the user
func NewRenderReport(
	profiles *profile.Service, reports *report.Generator,
	archive *report.Archive, baseURL string,
) *RenderReport {
	return &RenderReport{
		profiles: profiles,
		reports:  reports,
		archive:  archive,
		baseURL:  baseURL,
	}
}

func (s *RenderReport) ID() api.StepID {
	return RenderReportID
}

func (s *RenderReport) Execute(
	ctx context.Context, msg *api.Message, _ *api.Session, wc api.Context,
) (*api.StepResult, error) {
	profileID := wc.GetString(KeyReportProfileID, "")
	p, err := s.profiles.Get(ctx, msg.UserID, profileID)
	if err != nil {
		return nil, fmt.Errorf("report profile lookup failed: %w", err)
	}

	doc, err := s.reports.Render(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("report rendering failed: %w", err)
	}
	if err := s.archive.Put(ctx, doc); err != nil {
		return nil, fmt.Errorf("report archival failed: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/reports/%s/%s",
		s.baseURL, doc.UserID, doc.ID)

	res := api.NewResult(api.ActionComplete).
		WithText(fmt.Sprintf(
			"Your detailed report for %s is ready.", p.Name)).
		WithUpdate(KeyReportID, doc.ID).
		WithUpdate(KeyReportURL, url)
	res.Response = res.Response.WithAttachment(api.Attachment{
		Type: api.AttachmentDocument,
		Name: doc.Title,
		URL:  url,
	})
	return res, nil
}
