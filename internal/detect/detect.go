// Package detect implements the stateful duplicate and anomaly checks run
// against recent accepted history.
package detect

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/acme/txingest/internal/interfaces"
	"github.com/acme/txingest/internal/models"
)

// Config holds the anomaly thresholds. Passed in at construction, never read
// from ambient state.
type Config struct {
	// SuspiciousAmount rejects any transaction strictly above this value.
	SuspiciousAmount decimal.Decimal
	// VelocityMaxCount is the number of accepted transactions a sender may
	// have inside the trailing window before further ones are rejected.
	VelocityMaxCount int
	// VelocityWindow is the length of the sliding window, anchored at the
	// candidate record's occurred-at.
	VelocityWindow time.Duration
}

// Detector decides whether a validated, resolved record is a duplicate of an
// accepted transaction or structurally suspicious.
type Detector struct {
	cfg Config
}

// New returns a Detector with the given thresholds.
func New(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

// Check returns the rejection reason for tx, or "" when the record is clean.
// The store must reflect the same transactional snapshot the caller will
// commit against. Check order is fixed: duplicate wins over velocity, so a
// record that is both reports the stable reason.
func (d *Detector) Check(ctx context.Context, store interfaces.LedgerStore, tx models.Transaction) (models.Reason, error) {
	// Id reuse from the source is a duplicate even when the payload
	// differs; re-imports of the same file hit this first.
	exists, err := store.TransactionExists(ctx, tx.ID)
	if err != nil {
		return "", err
	}
	if exists {
		return models.ReasonDuplicate, nil
	}

	exists, err = store.NaturalKeyExists(ctx, tx.Key())
	if err != nil {
		return "", err
	}
	if exists {
		return models.ReasonDuplicate, nil
	}

	if tx.Amount.GreaterThan(d.cfg.SuspiciousAmount) {
		return models.ReasonSuspiciousAmount, nil
	}

	if d.cfg.VelocityMaxCount > 0 {
		from := tx.OccurredAt.Add(-d.cfg.VelocityWindow)
		count, err := store.CountBySender(ctx, tx.SenderID, from, tx.OccurredAt)
		if err != nil {
			return "", err
		}
		if count >= d.cfg.VelocityMaxCount {
			return models.ReasonVelocityExceeded, nil
		}
	}

	return "", nil
}
