package history

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/bryanwahyu/codesight/internal/domain/history"
)

// ErrExportDisabled is returned when no artifact store is configured.
var ErrExportDisabled = errors.New("export is not configured")

// Report is a rendered analysis in two formats.
type Report struct {
	Markdown []byte
	HTML     []byte
}

// Renderer turns an item into a shareable report.
type Renderer interface {
	Render(item *domain.Item) (Report, error)
}

// ExportResult holds the object URLs of an uploaded report.
type ExportResult struct {
	ID          domain.ItemID `json:"id"`
	MarkdownURL string        `json:"markdown_url"`
	HTMLURL     string        `json:"html_url"`
}

// Export renders an own item and uploads it as <owner>/<id>/report.{md,html}.
func (s *Service) Export(ctx context.Context, id domain.ItemID) (ExportResult, error) {
	item, err := s.Get(ctx, id)
	if err != nil {
		return ExportResult{}, err
	}
	if s.Artifacts == nil || s.Renderer == nil {
		return ExportResult{}, ErrExportDisabled
	}

	rep, err := s.Renderer.Render(item)
	if err != nil {
		return ExportResult{}, fmt.Errorf("render report: %w", err)
	}

	prefix := fmt.Sprintf("%s/%s/report", item.OwnerID, item.ID)
	mdURL, err := s.Artifacts.Put(ctx, prefix+".md", "text/markdown; charset=utf-8", rep.Markdown)
	if err != nil {
		return ExportResult{}, fmt.Errorf("upload markdown report: %w", err)
	}
	htmlURL, err := s.Artifacts.Put(ctx, prefix+".html", "text/html; charset=utf-8", rep.HTML)
	if err != nil {
		return ExportResult{}, fmt.Errorf("upload html report: %w", err)
	}

	s.logger().Info("analysis exported", "owner", item.OwnerID, "id", item.ID, "url", htmlURL)
	return ExportResult{ID: item.ID, MarkdownURL: mdURL, HTMLURL: htmlURL}, nil
}
