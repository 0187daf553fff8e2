// Package query implements the receipt query engine: date-range
// expansion, the pagination cursor codec, the filter with its S3 Select
// pushdown emission and client-side twin, the per-shard result cache,
// and the engine that ties them together.
package query

import (
	"fmt"
	"time"

	"github.com/voltgrid/receipt-engine/common"
	"github.com/voltgrid/receipt-engine/receipt"
)

// MaxRangeDays caps a query's date span. A wider request is clamped by
// moving the start forward; the end is authoritative.
const MaxRangeDays = 365

// DateRange is an inclusive span of calendar days.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// NewDateRange resolves optional from/to strings (YYYY-MM-DD) against
// the reference time now. A missing end defaults to today; a missing
// start defaults to end minus 365 days; a span wider than 365 days is
// clamped.
func NewDateRange(from, to string, now time.Time) (DateRange, error) {
	end := now.UTC().Truncate(24 * time.Hour)
	if to != "" {
		parsed, err := time.Parse(receipt.DateLayout, to)
		if err != nil {
			return DateRange{}, common.NewValidationError("date_to", fmt.Sprintf("%q is not a YYYY-MM-DD date", to))
		}
		end = parsed
	}

	start := end.AddDate(0, 0, -MaxRangeDays)
	if from != "" {
		parsed, err := time.Parse(receipt.DateLayout, from)
		if err != nil {
			return DateRange{}, common.NewValidationError("date_from", fmt.Sprintf("%q is not a YYYY-MM-DD date", from))
		}
		start = parsed
	}

	if end.Before(start) {
		return DateRange{}, common.NewValidationError("date_from", "range start is after range end")
	}
	if end.Sub(start) > MaxRangeDays*24*time.Hour {
		start = end.AddDate(0, 0, -MaxRangeDays)
	}

	return DateRange{Start: start, End: end}, nil
}

// Dates returns every calendar date in the range, ascending, formatted
// YYYY-MM-DD.
func (r DateRange) Dates() []string {
	var dates []string
	for d := r.Start; !d.After(r.End); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d.Format(receipt.DateLayout))
	}
	return dates
}
