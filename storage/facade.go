package storage

import (
	"context"
	"encoding/base64"
	"time"
)

// PDFStore is the read-side façade for stored receipt PDFs: full-object
// fetch, base64 fetch for JSON transports, and presigned URL issuance.
type PDFStore struct {
	store ObjectStore
}

// NewPDFStore wraps an ObjectStore.
func NewPDFStore(store ObjectStore) *PDFStore {
	return &PDFStore{store: store}
}

// GetPDF returns the PDF bytes at key. An absent object surfaces as
// *common.NotFoundError.
func (p *PDFStore) GetPDF(ctx context.Context, key string) ([]byte, error) {
	return p.store.Get(ctx, key)
}

// GetPDFBase64 returns the PDF at key as a standard base64 string.
func (p *PDFStore) GetPDFBase64(ctx context.Context, key string) (string, error) {
	body, err := p.store.Get(ctx, key)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(body), nil
}

// SignedPDFURL issues a presigned GET URL for key, valid for expires
// (default one hour). Existence is not checked; a URL over a missing
// object simply 404s when dereferenced.
func (p *PDFStore) SignedPDFURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	return p.store.PresignGet(ctx, key, expires)
}
