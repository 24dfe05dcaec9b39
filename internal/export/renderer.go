package export

import (
	"context"
	"fmt"
	"time"

	"github.com/procura-app/procura/internal/procurement"
	"github.com/procura-app/procura/report"
)

// PDFClient converts HTML to PDF, typically a Gotenberg report.Client.
type PDFClient interface {
	RenderHTML(ctx context.Context, html string, opts report.PageOptions) ([]byte, error)
}

// Renderer produces quote map documents from queue items.
type Renderer struct {
	pdf PDFClient
	now func() time.Time
}

// NewRenderer returns a Renderer. now defaults to time.Now.
func NewRenderer(pdf PDFClient, now func() time.Time) *Renderer {
	if now == nil {
		now = time.Now
	}
	return &Renderer{pdf: pdf, now: now}
}

// RenderPDF renders the quote map through the PDF client.
func (r *Renderer) RenderPDF(ctx context.Context, items []procurement.ProcurementQueueItem) ([]byte, error) {
	if r == nil || r.pdf == nil {
		return nil, fmt.Errorf("export: pdf client not configured")
	}
	html, err := RenderHTML(BuildQuoteMap(items, r.now()))
	if err != nil {
		return nil, fmt.Errorf("export: render html: %w", err)
	}
	pdf, err := r.pdf.RenderHTML(ctx, html, report.PageOptions{Landscape: true})
	if err != nil {
		return nil, fmt.Errorf("export: render pdf: %w", err)
	}
	return pdf, nil
}

// RenderXLSX renders the quote map workbook.
func (r *Renderer) RenderXLSX(ctx context.Context, items []procurement.ProcurementQueueItem) ([]byte, error) {
	return RenderXLSX(BuildQuoteMap(items, r.now()))
}
