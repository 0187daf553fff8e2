// Package storage provides the object-store client used by the receipt
// engine. The ObjectStore interface abstracts the S3 API surface the
// engine needs, enabling dependency injection and testing against an
// in-memory implementation.
package storage

import (
	"context"
	"time"
)

// DefaultPresignTTL is the lifetime of presigned URLs when the caller
// passes zero.
const DefaultPresignTTL = time.Hour

// ObjectStore defines the capability set the engine requires from an
// object store: typed put/get/delete/list, server-side SQL selection,
// and presigned-URL issuance.
//
// Error contract: Get returns *common.NotFoundError for an absent key;
// Select returns *common.PushdownError when the server-side scan fails
// or is unsupported; all other I/O failures are *common.StorageError.
// Implementations must be safe for concurrent use.
type ObjectStore interface {
	// Put stores body under key with the given content type.
	Put(ctx context.Context, key string, body []byte, contentType string) error

	// Get retrieves the full object at key.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes the object at key. Deleting an absent key is not
	// an error.
	Delete(ctx context.Context, key string) error

	// List returns the keys under prefix, in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)

	// Select runs a SQL expression against the object at key via the
	// store's SQL-over-objects facility. The object is expected to be
	// gzip-compressed NDJSON; the result is the concatenated JSON
	// records matched by the expression.
	Select(ctx context.Context, key, expression string) ([]byte, error)

	// PresignGet issues a presigned GET URL for key, valid for the
	// given duration, with the response content type forced to
	// application/pdf. Existence of the object is not verified.
	PresignGet(ctx context.Context, key string, expires time.Duration) (string, error)
}
