package query

import (
	"strings"
	"time"

	"github.com/voltgrid/receipt-engine/receipt"
)

// Cursor marks the position of the last returned record in the global
// descending (payment_date, session_id) order. The wire form is
// "{payment_date}:{session_id}"; session IDs may themselves contain
// colons, so decoding splits on the first colon only.
type Cursor struct {
	PaymentDate string
	SessionID   string
}

// EncodeCursor builds the wire form of a cursor.
func EncodeCursor(paymentDate, sessionID string) string {
	return paymentDate + ":" + sessionID
}

// DecodeCursor parses a wire cursor. An empty or malformed token yields
// nil, which the engine treats as "start from the beginning".
func DecodeCursor(token string) *Cursor {
	if token == "" {
		return nil
	}
	parts := strings.SplitN(token, ":", 2)
	if len(parts) != 2 || parts[1] == "" {
		return nil
	}
	if _, err := time.Parse(receipt.DateLayout, parts[0]); err != nil {
		return nil
	}
	return &Cursor{PaymentDate: parts[0], SessionID: parts[1]}
}

// String returns the wire form.
func (c *Cursor) String() string {
	return EncodeCursor(c.PaymentDate, c.SessionID)
}
