package models

import "errors"

// Reason classifies why a raw record was rejected. Every rejected record
// carries exactly one reason; operational faults (store unreachable, timeout)
// are ordinary errors and never become a Reason.
type Reason string

const (
	// ReasonParseError marks input that could not even be decoded into a
	// raw record (bad JSON, wrong CSV column count).
	ReasonParseError Reason = "parse_error"
	// ReasonStructural marks missing or malformed fields.
	ReasonStructural Reason = "structural"
	// ReasonUnknownUser marks a sender or receiver absent from the
	// reference store.
	ReasonUnknownUser Reason = "unknown_user"
	// ReasonUnknownCurrency marks a currency code absent from the
	// reference store.
	ReasonUnknownCurrency Reason = "unknown_currency"
	// ReasonDuplicate marks a record matching an already accepted
	// transaction.
	ReasonDuplicate Reason = "duplicate"
	// ReasonSuspiciousAmount marks an amount above the configured
	// per-transaction threshold.
	ReasonSuspiciousAmount Reason = "suspicious_amount"
	// ReasonVelocityExceeded marks a sender exceeding the configured
	// transaction count within the trailing window.
	ReasonVelocityExceeded Reason = "velocity_exceeded"
)

// ErrDuplicate is returned by ledger stores when an insert collides with an
// existing transaction, either by id or by natural key. It is the
// authoritative duplicate guard: the read-time check in the detector is only
// a fast path.
var ErrDuplicate = errors.New("duplicate transaction")

// Outcome is the per-record terminal state consumed by source adapters to
// decide acknowledgment. A record that produced an Outcome is fully
// accounted for in exactly one ledger.
type Outcome struct {
	Accepted      bool
	Reason        Reason // set when rejected
	TransactionID string // set when accepted
}
