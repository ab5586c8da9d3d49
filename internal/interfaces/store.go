package interfaces

import (
	"context"
	"time"

	"github.com/acme/txingest/internal/models"
)

// ReferenceStore provides read-only lookups against the reference tables
// owned by the admin subsystem. A missing or soft-deleted row is a
// not-found, not an error.
type ReferenceStore interface {
	// LookupUser reports whether the user id exists.
	LookupUser(ctx context.Context, id string) (bool, error)
	// LookupCurrency returns the currency's decimal precision and whether
	// the code exists.
	LookupCurrency(ctx context.Context, code string) (int32, bool, error)
}

// LedgerStore is the append-only persistence contract for the two ledgers
// plus the history reads the duplicate and velocity checks need.
type LedgerStore interface {
	// InsertTransaction appends to the accepted ledger. It returns an
	// error wrapping models.ErrDuplicate when the id or the natural key
	// collides with an existing row.
	InsertTransaction(ctx context.Context, tx models.Transaction) error
	// InsertRejected appends to the rejection ledger.
	InsertRejected(ctx context.Context, rec models.RejectedRecord) error
	// TransactionExists reports whether a transaction with this id has
	// already been accepted.
	TransactionExists(ctx context.Context, id string) (bool, error)
	// NaturalKeyExists reports whether an accepted transaction matches
	// the key exactly.
	NaturalKeyExists(ctx context.Context, key models.NaturalKey) (bool, error)
	// CountBySender counts accepted transactions for the sender with
	// occurred-at in (from, to].
	CountBySender(ctx context.Context, senderID string, from, to time.Time) (int, error)
}

// Store is the full storage surface the ingestion coordinator runs against.
type Store interface {
	ReferenceStore
	LedgerStore

	// Atomically runs fn inside one storage transaction. The Store passed
	// to fn sees and writes uncommitted state; returning an error rolls
	// everything back. Reference reads inside fn observe the same
	// snapshot the writes commit against.
	Atomically(ctx context.Context, fn func(Store) error) error
}
