// Package pipeline implements the transactional receipt write path. A
// store call persists three artifacts as one logical unit: the PDF, the
// canonical metadata JSON, and a fresh index part under the payment
// date's partition. A failure after the first PUT triggers best-effort
// compensating deletes of everything written so far; the original error
// is surfaced either way.
package pipeline

import (
	"context"
	"time"

	json "github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"github.com/voltgrid/receipt-engine/common"
	"github.com/voltgrid/receipt-engine/index"
	"github.com/voltgrid/receipt-engine/money"
	"github.com/voltgrid/receipt-engine/receipt"
	"github.com/voltgrid/receipt-engine/storage"
)

// StoreResult carries the object keys written by a committed
// transaction. IndexKey names the freshly created part file.
type StoreResult struct {
	PDFKey      string `json:"pdf_key"`
	MetadataKey string `json:"metadata_key"`
	IndexKey    string `json:"index_key"`
}

// Writer orchestrates receipt writes against one object store.
type Writer struct {
	store storage.ObjectStore
	index *index.Manager
	log   *logrus.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewWriter builds a Writer.
func NewWriter(store storage.ObjectStore, idx *index.Manager, log *logrus.Logger) *Writer {
	if log == nil {
		log = common.Logger
	}
	return &Writer{store: store, index: idx, log: log, now: time.Now}
}

// Store persists a receipt. meta must carry session_id, payment_date
// and a parseable amount; pdf_key, metadata_key, amount_pence and
// created_at are derived here and must be empty on input.
//
// Ordering: PDF first (largest, failure-likely), then the JSON sidecar,
// then the index part. The receipt is not discoverable by queries until
// the index part commits; a reader holding a key from an uncommitted
// write can only reach it through the independent PDF-fetch path, which
// is acceptable. No retries happen at this layer — a retrying caller
// must use a fresh session_id if uniqueness matters.
func (w *Writer) Store(ctx context.Context, pdf []byte, meta receipt.Metadata) (*StoreResult, error) {
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	amount, err := money.Parse(meta.Amount)
	if err != nil {
		return nil, err
	}

	meta.PDFKey = index.PDFKey(meta.SessionID)
	meta.MetadataKey = index.MetadataKey(meta.SessionID)
	meta.AmountPence = amount.Minor()
	meta.CreatedAt = w.now().UTC().Format(time.RFC3339)

	if err := w.store.Put(ctx, meta.PDFKey, pdf, "application/pdf"); err != nil {
		w.logFailure("store_pdf", meta.PDFKey, err)
		return nil, err
	}

	sidecar, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		w.rollback(ctx, err, meta.PDFKey)
		return nil, &common.StorageError{Op: "encode_metadata", Key: meta.MetadataKey, Err: err}
	}
	if err := w.store.Put(ctx, meta.MetadataKey, sidecar, "application/json"); err != nil {
		w.logFailure("store_metadata", meta.MetadataKey, err)
		w.rollback(ctx, err, meta.PDFKey)
		return nil, err
	}

	indexKey, err := w.index.WritePart(ctx, &meta, w.index.BuildPrefix(meta.PaymentDate))
	if err != nil {
		w.logFailure("store_index", meta.PaymentDate, err)
		w.rollback(ctx, err, meta.PDFKey, meta.MetadataKey)
		return nil, err
	}

	w.log.WithFields(logrus.Fields{
		"session_id": meta.SessionID,
		"index_key":  indexKey,
	}).Info("receipt stored")

	return &StoreResult{
		PDFKey:      meta.PDFKey,
		MetadataKey: meta.MetadataKey,
		IndexKey:    indexKey,
	}, nil
}

func (w *Writer) rollback(ctx context.Context, cause error, keys ...string) {
	// Rollback runs on a detached context: cancellation of the write
	// must not strand the already-written artifacts.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	index.Rollback(rctx, w.store, keys, w.log)
}

func (w *Writer) logFailure(op, key string, err error) {
	w.log.WithFields(logrus.Fields{
		"op":   op,
		"key":  key,
		"kind": common.ErrorKind(err),
	}).Error(err.Error())
}
