// Package receipt defines the canonical receipt metadata record and its
// validation rules. A record is created once by the write pipeline and
// never mutated; amount_pence is authoritative for numeric filtering,
// while amount carries the display form.
package receipt

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/voltgrid/receipt-engine/common"
)

// DateLayout is the calendar-date format used for payment dates and
// index partitions.
const DateLayout = "2006-01-02"

// Metadata is the canonical index record for a stored receipt.
type Metadata struct {
	// SessionID is the globally unique charging-session identifier. It
	// is the primary key and the filename root for derived artifacts.
	SessionID string `json:"session_id" validate:"required"`

	// ConsumerID identifies the account the session was billed to.
	ConsumerID string `json:"consumer_id"`

	// ReceiptNumber is the human-readable business identifier, e.g.
	// "EVC-2025-00001".
	ReceiptNumber string `json:"receipt_number"`

	// PaymentDate is the ISO calendar date (YYYY-MM-DD) of payment; it
	// determines the index partition.
	PaymentDate string `json:"payment_date" validate:"required"`

	// CardLastFour is the 4-digit card suffix with leading zeros
	// preserved.
	CardLastFour string `json:"card_last_four" validate:"omitempty,len=4,numeric"`

	// Amount is the display amount including the currency symbol.
	Amount string `json:"amount" validate:"required"`

	// AmountPence is the amount in minor units, derived from Amount on
	// write. Absent on records written before the minor-unit migration;
	// readers fall back to parsing Amount.
	AmountPence int64 `json:"amount_pence,omitempty"`

	// PDFKey and MetadataKey are the stable object keys of the stored
	// PDF and JSON sidecar.
	PDFKey      string `json:"pdf_key,omitempty"`
	MetadataKey string `json:"metadata_key,omitempty"`

	// CreatedAt is the RFC3339 write timestamp.
	CreatedAt string `json:"created_at,omitempty"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the fields a write must supply. Derived fields
// (amount_pence, keys, created_at) are not required here; the pipeline
// fills them.
func (m *Metadata) Validate() error {
	if err := validate.Struct(m); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			fe := errs[0]
			return common.NewValidationError(fieldName(fe.Field()), fmt.Sprintf("failed %q constraint", fe.Tag()))
		}
		return common.NewValidationError("", err.Error())
	}
	if _, err := time.Parse(DateLayout, m.PaymentDate); err != nil {
		return common.NewValidationError("payment_date", fmt.Sprintf("%q is not a YYYY-MM-DD date", m.PaymentDate))
	}
	return nil
}

func fieldName(structField string) string {
	switch structField {
	case "SessionID":
		return "session_id"
	case "ConsumerID":
		return "consumer_id"
	case "ReceiptNumber":
		return "receipt_number"
	case "PaymentDate":
		return "payment_date"
	case "CardLastFour":
		return "card_last_four"
	case "Amount":
		return "amount"
	default:
		return structField
	}
}

// Less reports whether m sorts before other in the engine's descending
// (payment_date, session_id) order.
func (m *Metadata) Less(other *Metadata) bool {
	if m.PaymentDate != other.PaymentDate {
		return m.PaymentDate > other.PaymentDate
	}
	return m.SessionID > other.SessionID
}
