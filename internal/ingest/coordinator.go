// Package ingest orchestrates the per-record validation flow:
// received -> structurally valid -> resolved -> duplicate checked ->
// accepted or rejected. The first failing stage short-circuits to the
// rejection ledger with that stage's reason.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/acme/txingest/internal/detect"
	"github.com/acme/txingest/internal/interfaces"
	"github.com/acme/txingest/internal/metrics"
	"github.com/acme/txingest/internal/models"
	"github.com/acme/txingest/internal/validate"
)

// errRejected is the internal signal that the transactional flow ended in a
// validation failure rather than an operational fault. It never escapes
// Process.
var errRejected = errors.New("record rejected")

// Coordinator owns the atomicity contract: every record it processes lands
// in exactly one of the two ledgers, or comes back as an operational fault
// with no partial effect.
type Coordinator struct {
	store    interfaces.Store
	detector *detect.Detector
	limits   validate.Limits
	log      zerolog.Logger
	now      func() time.Time
}

// New builds a Coordinator over a storage implementation.
func New(store interfaces.Store, detector *detect.Detector, limits validate.Limits, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		store:    store,
		detector: detector,
		limits:   limits,
		log:      log,
		now:      time.Now,
	}
}

// Process runs one raw record to a terminal state. The returned Outcome is
// only meaningful when err is nil; a non-nil err is an operational fault and
// the caller must retry the record, nothing has been written for it.
func (c *Coordinator) Process(ctx context.Context, rec models.RawRecord) (models.Outcome, error) {
	start := c.now()
	defer func() {
		metrics.ProcessDuration.Observe(c.now().Sub(start).Seconds())
	}()

	checked, violation := validate.Record(rec, c.limits)
	if violation != nil {
		return c.reject(ctx, rec, models.ReasonStructural, violation.Detail)
	}

	id := rec.TransactionID
	if id == "" {
		id = uuid.NewString()
	}
	tx := models.Transaction{
		ID:         id,
		SenderID:   rec.SenderID,
		ReceiverID: rec.ReceiverID,
		Currency:   rec.Currency,
		Amount:     checked.Amount,
		Status:     checked.Status,
		OccurredAt: checked.OccurredAt,
		Source:     rec.Source,
		IngestedAt: c.now().UTC(),
	}

	// Resolve, detect and insert inside one storage transaction, so the
	// reference reads and the duplicate check see the snapshot the insert
	// commits against. The unique constraints re-check duplicates at
	// commit time and close the race between concurrent identical
	// records.
	var reason models.Reason
	var detail string
	err := c.store.Atomically(ctx, func(s interfaces.Store) error {
		found, err := s.LookupUser(ctx, tx.SenderID)
		if err != nil {
			return fmt.Errorf("lookup sender: %w", err)
		}
		if !found {
			reason, detail = models.ReasonUnknownUser, "Unknown sender: "+tx.SenderID
			return errRejected
		}
		found, err = s.LookupUser(ctx, tx.ReceiverID)
		if err != nil {
			return fmt.Errorf("lookup receiver: %w", err)
		}
		if !found {
			reason, detail = models.ReasonUnknownUser, "Unknown receiver: "+tx.ReceiverID
			return errRejected
		}
		precision, found, err := s.LookupCurrency(ctx, tx.Currency)
		if err != nil {
			return fmt.Errorf("lookup currency: %w", err)
		}
		if !found {
			reason, detail = models.ReasonUnknownCurrency, "Unknown currency: "+tx.Currency
			return errRejected
		}
		if scale := -tx.Amount.Exponent(); scale > precision {
			reason = models.ReasonStructural
			detail = fmt.Sprintf("Amount %s has more decimal places than %s allows (%d)", tx.Amount, tx.Currency, precision)
			return errRejected
		}

		r, err := c.detector.Check(ctx, s, tx)
		if err != nil {
			return fmt.Errorf("detector: %w", err)
		}
		if r != "" {
			reason = r
			detail = "Rejected by anomaly check: " + string(r)
			return errRejected
		}

		if err := s.InsertTransaction(ctx, tx); err != nil {
			if errors.Is(err, models.ErrDuplicate) {
				// Lost the commit race to an identical record.
				reason, detail = models.ReasonDuplicate, "Duplicate transaction: "+tx.ID
				return errRejected
			}
			return fmt.Errorf("insert transaction: %w", err)
		}
		return nil
	})
	if err == nil {
		c.log.Info().
			Str("transaction_id", tx.ID).
			Str("sender_id", tx.SenderID).
			Str("source", rec.Source).
			Str("amount", tx.Amount.String()).
			Msg("transaction accepted")
		metrics.RecordsTotal.WithLabelValues(rec.Source, "accepted", "").Inc()
		return models.Outcome{Accepted: true, TransactionID: tx.ID}, nil
	}
	if !errors.Is(err, errRejected) {
		if errors.Is(err, models.ErrDuplicate) {
			// The unique constraint fired at commit rather than at
			// insert (deferred constraint); same verdict either way.
			return c.reject(ctx, rec, models.ReasonDuplicate, "Duplicate transaction: "+tx.ID)
		}
		metrics.OperationalFaults.WithLabelValues(rec.Source).Inc()
		return models.Outcome{}, err
	}
	return c.reject(ctx, rec, reason, detail)
}

// RejectRaw quarantines input that could not be parsed into a RawRecord at
// all, such as undecodable JSON or a CSV row with the wrong column count.
func (c *Coordinator) RejectRaw(ctx context.Context, payload []byte, source, detail string) (models.Outcome, error) {
	return c.reject(ctx, models.RawRecord{Source: source, Payload: payload}, models.ReasonParseError, detail)
}

// reject writes the quarantine entry. The write is terminal: once it
// succeeds nothing can un-reject the record. A failed write is an
// operational fault and the record remains unaccounted, so the adapter
// retries it.
func (c *Coordinator) reject(ctx context.Context, rec models.RawRecord, reason models.Reason, detail string) (models.Outcome, error) {
	rejected := models.RejectedRecord{
		ID:         uuid.NewString(),
		Payload:    string(rec.Payload),
		Reason:     reason,
		Detail:     detail,
		Source:     rec.Source,
		RejectedAt: c.now().UTC(),
	}
	if err := c.store.InsertRejected(ctx, rejected); err != nil {
		metrics.OperationalFaults.WithLabelValues(rec.Source).Inc()
		return models.Outcome{}, fmt.Errorf("insert rejected record: %w", err)
	}
	c.log.Warn().
		Str("reason", string(reason)).
		Str("detail", detail).
		Str("source", rec.Source).
		Msg("record rejected")
	metrics.RecordsTotal.WithLabelValues(rec.Source, "rejected", string(reason)).Inc()
	return models.Outcome{Accepted: false, Reason: reason}, nil
}

var _ interfaces.Ingestor = (*Coordinator)(nil)
