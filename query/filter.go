package query

import (
	"fmt"
	"strings"

	"github.com/voltgrid/receipt-engine/money"
	"github.com/voltgrid/receipt-engine/receipt"
)

// Request is the query surface consumed from external handlers.
// Equality keys and date bounds are strings; amount bounds are decimal
// major units.
type Request struct {
	SessionID     string   `json:"session_id,omitempty" query:"session_id"`
	ConsumerID    string   `json:"consumer_id,omitempty" query:"consumer_id"`
	CardLastFour  string   `json:"card_last_four,omitempty" query:"card_last_four"`
	ReceiptNumber string   `json:"receipt_number,omitempty" query:"receipt_number"`
	AmountMin     *float64 `json:"amount_min,omitempty" query:"amount_min"`
	AmountMax     *float64 `json:"amount_max,omitempty" query:"amount_max"`
	DateFrom      string   `json:"date_from,omitempty" query:"date_from"`
	DateTo        string   `json:"date_to,omitempty" query:"date_to"`
	Limit         int      `json:"limit,omitempty" query:"limit"`
	Cursor        string   `json:"cursor,omitempty" query:"cursor"`
}

// HasRequiredField reports whether the request carries at least one
// selective field. A query without any returns an empty page without
// scanning — an unbounded scan over a year of shards is never served.
func (r *Request) HasRequiredField() bool {
	return r.SessionID != "" ||
		r.ConsumerID != "" ||
		r.ReceiptNumber != "" ||
		r.DateFrom != "" ||
		r.CardLastFour != ""
}

// amountBounds converts the major-unit bounds to minor units. A nil
// bound stays nil.
func (r *Request) amountBounds() (min, max *int64) {
	if r.AmountMin != nil {
		v := money.FromMajor(*r.AmountMin).Minor()
		min = &v
	}
	if r.AmountMax != nil {
		v := money.FromMajor(*r.AmountMax).Minor()
		max = &v
	}
	return min, max
}

// SQL emits the pushdown predicate for one shard object: SELECT * with
// conjunctive equality conditions and amount_pence bounds. The date
// bounds are implied by shard enumeration and never appear here.
func (r *Request) SQL() string {
	var conds []string
	for _, eq := range []struct {
		column string
		value  string
	}{
		{"session_id", r.SessionID},
		{"consumer_id", r.ConsumerID},
		{"card_last_four", r.CardLastFour},
		{"receipt_number", r.ReceiptNumber},
	} {
		if eq.value != "" {
			conds = append(conds, fmt.Sprintf("s.%s = '%s'", eq.column, escapeSQL(eq.value)))
		}
	}

	min, max := r.amountBounds()
	if min != nil {
		conds = append(conds, fmt.Sprintf("s.amount_pence >= %d", *min))
	}
	if max != nil {
		conds = append(conds, fmt.Sprintf("s.amount_pence <= %d", *max))
	}

	if len(conds) == 0 {
		return "SELECT * FROM s3object s"
	}
	return "SELECT * FROM s3object s WHERE " + strings.Join(conds, " AND ")
}

// Match is the client-side twin of SQL: for every record and request,
// Match agrees with the pushdown predicate. Records written before the
// minor-unit migration lack amount_pence; their amount display string
// is parsed instead.
func (r *Request) Match(rec *receipt.Metadata) bool {
	if r.SessionID != "" && rec.SessionID != r.SessionID {
		return false
	}
	if r.ConsumerID != "" && rec.ConsumerID != r.ConsumerID {
		return false
	}
	if r.CardLastFour != "" && rec.CardLastFour != r.CardLastFour {
		return false
	}
	if r.ReceiptNumber != "" && rec.ReceiptNumber != r.ReceiptNumber {
		return false
	}

	min, max := r.amountBounds()
	if min != nil || max != nil {
		pence := rec.AmountPence
		if pence == 0 {
			parsed, err := money.Parse(rec.Amount)
			if err != nil {
				return false
			}
			pence = parsed.Minor()
		}
		if min != nil && pence < *min {
			return false
		}
		if max != nil && pence > *max {
			return false
		}
	}
	return true
}

func escapeSQL(value string) string {
	return strings.ReplaceAll(value, "'", "''")
}
