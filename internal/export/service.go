package export

import (
	"context"
	"fmt"
	"html/template"
	"path"

	"docrepo/internal/docengine"
)

// DocumentSource loads a document's content for export. *docengine.Engine
// satisfies this through its Get method.
type DocumentSource interface {
	Get(ctx context.Context, relativePath string) (docengine.DocumentContent, error)
}

// Service renders a project's document to a downloadable file.
type Service struct {
	projectID string
	source    DocumentSource
}

// NewService creates an export service scoped to one project's document source.
func NewService(projectID string, source DocumentSource) *Service {
	return &Service{projectID: projectID, source: source}
}

// Export generates an export in the requested format.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	doc, err := s.source.Get(ctx, req.RelativePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContentUnavailable, err)
	}

	contentHTML, err := RenderContentHTML(doc.Content, string(doc.FileType))
	if err != nil {
		return nil, fmt.Errorf("render document: %w", err)
	}

	data := TemplateData{
		Title:        path.Base(doc.RelativePath),
		ProjectID:    req.ProjectID,
		RelativePath: doc.RelativePath,
		ContentHTML:  template.HTML(contentHTML),
	}

	html, err := RenderDocumentHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch req.Format {
	case FormatPDF:
		return exportPDF(ctx, doc.Document, html)
	case FormatDOCX:
		return exportDOCX(doc.Document, html)
	default:
		return nil, fmt.Errorf("unsupported export format: %s", req.Format)
	}
}
