// Package index manages the date-partitioned NDJSON index of receipt
// metadata: deterministic key derivation, part-file reads and writes,
// and compensating rollback for failed transactions.
//
// Each write produces a fresh gzip-compressed NDJSON part under the
// partition prefix for the payment date. Concurrent writers on the same
// date never collide because every part key carries a fresh UUID; there
// is no read-modify-write on a shared index object. Readers union all
// parts in a partition.
package index

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

const (
	pdfPrefix      = "pdfs/"
	metadataPrefix = "metadata/"
	indexPrefix    = "index/"
)

var partKeyPattern = regexp.MustCompile(`^index/dt=\d{4}-\d{2}-\d{2}/part-[0-9a-f-]+\.ndjson\.gz$`)

// PDFKey returns the object key of the receipt PDF for a session.
func PDFKey(sessionID string) string {
	return pdfPrefix + sessionID + ".pdf"
}

// MetadataKey returns the object key of the JSON sidecar for a session.
func MetadataKey(sessionID string) string {
	return metadataPrefix + sessionID + ".json"
}

// PartitionPrefix returns the index partition prefix for a payment date
// (YYYY-MM-DD).
func PartitionPrefix(date string) string {
	return fmt.Sprintf("%sdt=%s/", indexPrefix, date)
}

// NewPartKey returns a fresh part-file key under prefix.
func NewPartKey(prefix string) string {
	return fmt.Sprintf("%spart-%s.ndjson.gz", prefix, uuid.NewString())
}

// IsPartKey reports whether key names an index part file.
func IsPartKey(key string) bool {
	return partKeyPattern.MatchString(key)
}
