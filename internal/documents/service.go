package documents

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ecofacility/facility-erp/internal/business"
	"github.com/ecofacility/facility-erp/internal/pricing"
)

// CatalogResolver resolves the prices in force on a date.
type CatalogResolver interface {
	Resolve(ctx context.Context, date time.Time) (*pricing.Catalog, error)
}

// PDFRenderer converts HTML into PDF bytes.
type PDFRenderer interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// File is a rendered document.
type File struct {
	Name        string
	ContentType string
	Body        []byte
}

// Service builds and renders business documents.
type Service struct {
	businesses business.Repository
	catalog    CatalogResolver
	pdf        PDFRenderer
	logger     *slog.Logger
	now        func() time.Time
}

// NewService wires the document service. pdf may be nil, in which case PDF
// requests fail.
func NewService(businesses business.Repository, catalog CatalogResolver, pdf PDFRenderer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{businesses: businesses, catalog: catalog, pdf: pdf, logger: logger, now: time.Now}
}

// WithNow overrides the clock, primarily for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Build loads the business and prices its equipment as of today.
func (s *Service) Build(ctx context.Context, kind Kind, businessID string) (Document, error) {
	rec, err := s.businesses.Get(ctx, businessID)
	if err != nil {
		return Document{}, err
	}
	now := s.now()
	cat, err := s.catalog.Resolve(ctx, now)
	if err != nil {
		return Document{}, err
	}
	return Build(kind, rec, cat, now), nil
}

// Render builds the document and encodes it in the requested format.
func (s *Service) Render(ctx context.Context, kind Kind, businessID string, format Format) (File, error) {
	doc, err := s.Build(ctx, kind, businessID)
	if err != nil {
		return File{}, err
	}

	var file File
	switch format {
	case FormatPDF:
		if s.pdf == nil {
			return File{}, fmt.Errorf("documents: pdf renderer not configured")
		}
		html, err := HTML(doc)
		if err != nil {
			return File{}, fmt.Errorf("documents: render html: %w", err)
		}
		body, err := s.pdf.RenderHTML(ctx, html)
		if err != nil {
			return File{}, fmt.Errorf("documents: render pdf: %w", err)
		}
		file = File{ContentType: "application/pdf", Body: body}
	default:
		body, err := Workbook(doc)
		if err != nil {
			return File{}, err
		}
		file = File{ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", Body: body}
		format = FormatXLSX
	}
	file.Name = doc.Filename(format)

	s.logger.Info("document rendered",
		slog.String("kind", string(kind)),
		slog.String("number", doc.Number),
		slog.String("business_id", businessID),
		slog.String("format", string(format)),
		slog.Int("items", len(doc.Items)))
	return file, nil
}
