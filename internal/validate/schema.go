// Package validate holds the stateless structural checks applied to every
// raw record before it touches storage.
package validate

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/acme/txingest/internal/models"
)

// Limits bounds what a structurally valid record may contain.
type Limits struct {
	// MaxAmount is the magnitude bound; |amount| above it fails.
	MaxAmount decimal.Decimal
	// ClockSkew is how far in the future a timestamp may sit before it is
	// considered malformed.
	ClockSkew time.Duration
	// Now is the clock, injectable for tests. Defaults to time.Now.
	Now func() time.Time
}

// Checked carries the parsed fields of a record that passed the schema
// checks, so later stages never re-parse.
type Checked struct {
	Amount     decimal.Decimal
	OccurredAt time.Time
	Status     models.TransactionStatus
}

// Violation describes a structural failure.
type Violation struct {
	Field  string
	Detail string
}

func (v *Violation) String() string { return v.Detail }

// Record validates one raw record. It is a pure function: no I/O, safe to
// call concurrently, identical result for identical input. A nil Violation
// means the record is structurally valid.
func Record(rec models.RawRecord, lim Limits) (Checked, *Violation) {
	// Required fields, checked in the order the wire format lists them.
	// The transaction id is optional; one is generated downstream.
	required := []struct {
		name  string
		value string
	}{
		{"sender_id", rec.SenderID},
		{"receiver_id", rec.ReceiverID},
		{"amount", rec.Amount},
		{"currency", rec.Currency},
		{"timestamp", rec.Timestamp},
		{"status", rec.Status},
	}
	for _, f := range required {
		if f.value == "" {
			return Checked{}, &Violation{Field: f.name, Detail: "Missing field: " + f.name}
		}
	}

	amount, err := decimal.NewFromString(rec.Amount)
	if err != nil {
		return Checked{}, &Violation{Field: "amount", Detail: fmt.Sprintf("Invalid amount: %q", rec.Amount)}
	}
	if amount.Abs().GreaterThan(lim.MaxAmount) {
		return Checked{}, &Violation{Field: "amount", Detail: fmt.Sprintf("Amount out of bounds: %s", amount)}
	}

	occurredAt, err := time.Parse(time.RFC3339, rec.Timestamp)
	if err != nil {
		return Checked{}, &Violation{Field: "timestamp", Detail: fmt.Sprintf("Invalid timestamp: %q", rec.Timestamp)}
	}
	now := time.Now
	if lim.Now != nil {
		now = lim.Now
	}
	if occurredAt.After(now().Add(lim.ClockSkew)) {
		return Checked{}, &Violation{Field: "timestamp", Detail: fmt.Sprintf("Timestamp in the future: %s", rec.Timestamp)}
	}

	if !models.ValidStatus(rec.Status) {
		return Checked{}, &Violation{Field: "status", Detail: "Invalid status: " + rec.Status}
	}

	return Checked{
		Amount:     amount,
		OccurredAt: occurredAt,
		Status:     models.TransactionStatus(rec.Status),
	}, nil
}
