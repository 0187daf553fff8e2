// Package render defines the adapter interfaces the receipt engine
// consumes for document production: a template provider for receipt
// HTML and a PDF renderer. Rendering happens outside the write
// transaction; the pipeline only ever sees finished PDF bytes.
package render

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"io"
	"net/http"

	"github.com/voltgrid/receipt-engine/common"
)

//go:embed templates/*.html
var templateFS embed.FS

// TemplateProvider resolves named HTML templates.
type TemplateProvider interface {
	Template(name string) (*template.Template, error)
}

// PDFRenderer converts rendered HTML into PDF bytes.
type PDFRenderer interface {
	Render(ctx context.Context, html []byte) ([]byte, error)
}

// EmbeddedProvider serves the templates compiled into the binary.
type EmbeddedProvider struct {
	templates *template.Template
}

// NewEmbeddedProvider parses the embedded template set.
func NewEmbeddedProvider() (*EmbeddedProvider, error) {
	templates, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse embedded templates: %w", err)
	}
	return &EmbeddedProvider{templates: templates}, nil
}

// Template returns the named template.
func (p *EmbeddedProvider) Template(name string) (*template.Template, error) {
	tmpl := p.templates.Lookup(name)
	if tmpl == nil {
		return nil, &common.NotFoundError{Key: "template:" + name}
	}
	return tmpl, nil
}

// HTTPRenderer renders PDFs through an external HTML-to-PDF service:
// POST the HTML, receive the PDF.
type HTTPRenderer struct {
	endpoint string
	client   *http.Client
}

// NewHTTPRenderer builds a renderer client for the given endpoint.
func NewHTTPRenderer(endpoint string, client *http.Client) *HTTPRenderer {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPRenderer{endpoint: endpoint, client: client}
}

// Render posts html to the render service and returns the PDF bytes.
func (r *HTTPRenderer) Render(ctx context.Context, html []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("render request: %w", err)
	}
	req.Header.Set("Content-Type", "text/html; charset=utf-8")
	req.Header.Set("Accept", "application/pdf")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("render: service returned %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// StaticRenderer returns fixed bytes; tests use it in place of a real
// renderer.
type StaticRenderer struct {
	PDF []byte
	Err error
}

// Render returns the configured bytes or error.
func (r *StaticRenderer) Render(ctx context.Context, html []byte) ([]byte, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	return r.PDF, nil
}
