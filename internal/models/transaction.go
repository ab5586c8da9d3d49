package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionStatus is the lifecycle status reported by the producing system.
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
)

// ValidStatus reports whether s is one of the known transaction statuses.
func ValidStatus(s string) bool {
	switch TransactionStatus(s) {
	case StatusPending, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Transaction is a validated, accepted payment record. Immutable once written.
type Transaction struct {
	ID         string
	SenderID   string
	ReceiverID string
	Currency   string
	Amount     decimal.Decimal
	Status     TransactionStatus
	OccurredAt time.Time
	Source     string
	IngestedAt time.Time
}

// NaturalKey identifies a transaction independently of its id. Two records
// with equal keys are duplicates even when their ids differ, which makes
// duplicate detection stable across file re-imports and queue redelivery.
type NaturalKey struct {
	SenderID   string
	ReceiverID string
	Currency   string
	Amount     decimal.Decimal
	OccurredAt time.Time
}

// Key returns the transaction's natural key.
func (t Transaction) Key() NaturalKey {
	return NaturalKey{
		SenderID:   t.SenderID,
		ReceiverID: t.ReceiverID,
		Currency:   t.Currency,
		Amount:     t.Amount,
		OccurredAt: t.OccurredAt,
	}
}

// Matches reports whether k and other refer to the same payment. Amounts are
// compared by value so 250 and 250.00 collide, and timestamps by instant.
func (k NaturalKey) Matches(other NaturalKey) bool {
	return k.SenderID == other.SenderID &&
		k.ReceiverID == other.ReceiverID &&
		k.Currency == other.Currency &&
		k.Amount.Equal(other.Amount) &&
		k.OccurredAt.Equal(other.OccurredAt)
}
