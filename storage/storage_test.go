package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltgrid/receipt-engine/common"
)

func TestMockStore_PutGet(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	err := m.Put(ctx, "pdfs/sess-001.pdf", []byte("%PDF-1.4"), "application/pdf")
	require.NoError(t, err)

	body, err := m.Get(ctx, "pdfs/sess-001.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4"), body)
	assert.Equal(t, "application/pdf", m.Object("pdfs/sess-001.pdf").ContentType)
}

func TestMockStore_GetMissing(t *testing.T) {
	m := NewMockStore()
	_, err := m.Get(context.Background(), "pdfs/nope.pdf")
	require.Error(t, err)
	assert.True(t, common.IsNotFound(err))
}

func TestMockStore_DeleteAbsentKeySucceeds(t *testing.T) {
	m := NewMockStore()
	assert.NoError(t, m.Delete(context.Background(), "pdfs/nope.pdf"))
}

func TestMockStore_ListByPrefix(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, "index/dt=2025-12-24/part-b.ndjson.gz", []byte("b"), "application/x-ndjson"))
	require.NoError(t, m.Put(ctx, "index/dt=2025-12-24/part-a.ndjson.gz", []byte("a"), "application/x-ndjson"))
	require.NoError(t, m.Put(ctx, "index/dt=2025-12-25/part-c.ndjson.gz", []byte("c"), "application/x-ndjson"))

	keys, err := m.List(ctx, "index/dt=2025-12-24/")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"index/dt=2025-12-24/part-a.ndjson.gz",
		"index/dt=2025-12-24/part-b.ndjson.gz",
	}, keys)
}

func TestMockStore_FailureInjectionByPrefix(t *testing.T) {
	m := NewMockStore()
	m.FailPut["index/"] = errors.New("injected")

	err := m.Put(context.Background(), "index/dt=2025-12-24/part-a.ndjson.gz", []byte("x"), "application/x-ndjson")
	require.Error(t, err)
	var se *common.StorageError
	assert.ErrorAs(t, err, &se)

	// Keys outside the failing prefix still work.
	assert.NoError(t, m.Put(context.Background(), "pdfs/s.pdf", []byte("x"), "application/pdf"))
}

func TestMockStore_SelectUnsupportedByDefault(t *testing.T) {
	m := NewMockStore()
	require.NoError(t, m.Put(context.Background(), "k", []byte("x"), ""))

	_, err := m.Select(context.Background(), "k", "SELECT * FROM s3object s")
	require.Error(t, err)
	assert.True(t, common.IsPushdown(err))
}

func TestMockStore_SelectFunc(t *testing.T) {
	m := NewMockStore()
	require.NoError(t, m.Put(context.Background(), "k", []byte("payload"), ""))
	m.SelectFunc = func(key, expression string, body []byte) ([]byte, error) {
		assert.Equal(t, "payload", string(body))
		return []byte(`{"a":1}`), nil
	}

	out, err := m.Select(context.Background(), "k", "SELECT * FROM s3object s")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(out))
}

func TestPDFStore_GetPDF(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()
	require.NoError(t, m.Put(ctx, "pdfs/sess-001.pdf", []byte("%PDF-1.4"), "application/pdf"))

	p := NewPDFStore(m)

	body, err := p.GetPDF(ctx, "pdfs/sess-001.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4"), body)

	_, err = p.GetPDF(ctx, "pdfs/missing.pdf")
	assert.True(t, common.IsNotFound(err))
}

func TestPDFStore_GetPDFBase64(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()
	require.NoError(t, m.Put(ctx, "pdfs/sess-001.pdf", []byte("%PDF-1.4"), "application/pdf"))

	p := NewPDFStore(m)
	encoded, err := p.GetPDFBase64(ctx, "pdfs/sess-001.pdf")
	require.NoError(t, err)

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4"), decoded)
}

func TestPDFStore_SignedPDFURL(t *testing.T) {
	m := NewMockStore()
	p := NewPDFStore(m)

	url, err := p.SignedPDFURL(context.Background(), "pdfs/sess-001.pdf", 0)
	require.NoError(t, err)
	assert.Contains(t, url, "pdfs/sess-001.pdf")
	assert.Contains(t, url, time.Hour.String())

	// Missing objects still sign; validity over an absent key is
	// documented behavior.
	url, err = p.SignedPDFURL(context.Background(), "pdfs/missing.pdf", time.Minute)
	require.NoError(t, err)
	assert.Contains(t, url, "pdfs/missing.pdf")
}
