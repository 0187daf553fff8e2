package index

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"

	json "github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"github.com/voltgrid/receipt-engine/common"
	"github.com/voltgrid/receipt-engine/receipt"
	"github.com/voltgrid/receipt-engine/storage"
)

// ContentTypeNDJSON is the content type of index part objects.
const ContentTypeNDJSON = "application/x-ndjson"

// Manager reads and writes index part files for one bucket.
type Manager struct {
	store storage.ObjectStore
	log   *logrus.Logger
}

// NewManager builds a Manager over the given store.
func NewManager(store storage.ObjectStore, log *logrus.Logger) *Manager {
	if log == nil {
		log = common.Logger
	}
	return &Manager{store: store, log: log}
}

// BuildPrefix returns the partition prefix for a payment date.
func (m *Manager) BuildPrefix(date string) string {
	return PartitionPrefix(date)
}

// ListParts returns the part-file keys under prefix. Non-part keys that
// happen to share the prefix are skipped.
func (m *Manager) ListParts(ctx context.Context, prefix string) ([]string, error) {
	keys, err := m.store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	parts := keys[:0]
	for _, key := range keys {
		if IsPartKey(key) {
			parts = append(parts, key)
		}
	}
	return parts, nil
}

// ReadPart returns the decompressed NDJSON content of a part file. An
// absent part reads as empty; a partition can lose a part to lifecycle
// rules between LIST and GET.
func (m *Manager) ReadPart(ctx context.Context, key string) (string, error) {
	compressed, err := m.store.Get(ctx, key)
	if err != nil {
		if common.IsNotFound(err) {
			m.log.WithFields(logrus.Fields{"op": "read_part", "key": key}).Debug("part vanished, treating as empty")
			return "", nil
		}
		return "", err
	}

	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return "", &common.StorageError{Op: "read_part", Key: key, Err: fmt.Errorf("gzip: %w", err)}
	}
	defer zr.Close()

	content, err := io.ReadAll(zr)
	if err != nil {
		return "", &common.StorageError{Op: "read_part", Key: key, Err: fmt.Errorf("gzip: %w", err)}
	}
	return string(content), nil
}

// ReadPartRecords decodes every NDJSON line of a part into metadata
// records. Blank lines are skipped; a malformed line fails the read.
func (m *Manager) ReadPartRecords(ctx context.Context, key string) ([]*receipt.Metadata, error) {
	content, err := m.ReadPart(ctx, key)
	if err != nil {
		return nil, err
	}
	return DecodeNDJSON([]byte(content))
}

// WritePart serializes one record as a single NDJSON line, compresses
// it, and stores it under a fresh part key in prefix. Returns the key.
func (m *Manager) WritePart(ctx context.Context, record *receipt.Metadata, prefix string) (string, error) {
	line, err := json.Marshal(record)
	if err != nil {
		return "", &common.StorageError{Op: "write_part", Key: prefix, Err: err}
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(append(line, '\n')); err != nil {
		return "", &common.StorageError{Op: "write_part", Key: prefix, Err: err}
	}
	if err := zw.Close(); err != nil {
		return "", &common.StorageError{Op: "write_part", Key: prefix, Err: err}
	}

	key := NewPartKey(prefix)
	if err := m.store.Put(ctx, key, buf.Bytes(), ContentTypeNDJSON); err != nil {
		return "", err
	}
	return key, nil
}

// DecodeNDJSON parses newline-delimited JSON into metadata records.
func DecodeNDJSON(data []byte) ([]*receipt.Metadata, error) {
	var records []*receipt.Metadata
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var rec receipt.Metadata
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("decode index line: %w", err)
		}
		records = append(records, &rec)
	}
	return records, nil
}

// DecodeConcatenatedJSON parses a stream of JSON objects that are not
// newline-delimited, as produced by S3 Select output serialization.
func DecodeConcatenatedJSON(data []byte) ([]*receipt.Metadata, error) {
	var records []*receipt.Metadata
	dec := json.NewDecoder(bytes.NewReader(data))
	for {
		var rec receipt.Metadata
		if err := dec.Decode(&rec); err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("decode select output: %w", err)
		}
		records = append(records, &rec)
	}
	return records, nil
}
