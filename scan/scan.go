// Package scan runs a handler over a slice of items with bounded
// concurrency, preserving input order in the results. The query engine
// uses it to fan out over index part files and shard dates.
package scan

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/voltgrid/receipt-engine/common"
)

// DefaultWorkers bounds concurrency when the caller passes zero.
const DefaultWorkers = 5

// Scanner executes handlers with at most Workers running at once.
type Scanner struct {
	workers int
}

// New creates a Scanner. A zero worker count selects DefaultWorkers; a
// negative count is a configuration error.
func New(workers int) (*Scanner, error) {
	if workers == 0 {
		workers = DefaultWorkers
	}
	if workers < 0 {
		return nil, &common.ConfigError{Param: "workers", Msg: "must be positive"}
	}
	return &Scanner{workers: workers}, nil
}

// Workers returns the concurrency bound.
func (s *Scanner) Workers() int {
	return s.workers
}

// Scan runs handler over items and returns the results in input order.
// Items are dispatched FIFO; at most Workers handlers run concurrently.
// The first handler error cancels the group context, no further handlers
// start, and the error is returned after outstanding handlers finish.
func Scan[T, R any](ctx context.Context, s *Scanner, items []T, handler func(context.Context, T) (R, error)) ([]R, error) {
	results := make([]R, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := handler(gctx, item)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// ScanFlatten runs a slice-producing handler over items and concatenates
// the per-item results in input order.
func ScanFlatten[T, R any](ctx context.Context, s *Scanner, items []T, handler func(context.Context, T) ([]R, error)) ([]R, error) {
	nested, err := Scan(ctx, s, items, handler)
	if err != nil {
		return nil, err
	}
	var flat []R
	for _, chunk := range nested {
		flat = append(flat, chunk...)
	}
	return flat, nil
}
