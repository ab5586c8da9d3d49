// Package postgres is the production implementation of interfaces.Store on
// top of database/sql and lib/pq. Duplicate protection is enforced by the
// primary key on transactions.id and a unique index over the natural key
// (sender_id, receiver_id, currency, amount, occurred_at); a violation of
// either surfaces as models.ErrDuplicate.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/acme/txingest/internal/interfaces"
	"github.com/acme/txingest/internal/models"
)

// uniqueViolation is the postgres error code for a unique constraint hit.
const uniqueViolation = "23505"

// querier is satisfied by both *sql.DB and *sql.Tx, so the same query
// methods serve direct calls and calls inside Atomically.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store runs against a postgres database.
type Store struct {
	db *sql.DB
	q  querier
}

// Open connects to the database and verifies the connection.
func Open(databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return NewStore(db), nil
}

// NewStore wraps an existing connection pool.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, q: db}
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) LookupUser(ctx context.Context, id string) (bool, error) {
	const query = `SELECT 1 FROM users WHERE id = $1 AND deleted = FALSE`

	var one int
	err := s.q.QueryRowContext(ctx, query, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup user: %w", err)
	}
	return true, nil
}

func (s *Store) LookupCurrency(ctx context.Context, code string) (int32, bool, error) {
	const query = `SELECT precision FROM currencies WHERE code = $1 AND deleted = FALSE`

	var precision int32
	err := s.q.QueryRowContext(ctx, query, code).Scan(&precision)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("lookup currency: %w", err)
	}
	return precision, true, nil
}

func (s *Store) InsertTransaction(ctx context.Context, tx models.Transaction) error {
	const query = `INSERT INTO transactions
		(id, sender_id, receiver_id, currency, amount, status, occurred_at, source, ingested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.q.ExecContext(ctx, query,
		tx.ID, tx.SenderID, tx.ReceiverID, tx.Currency, tx.Amount,
		string(tx.Status), tx.OccurredAt, tx.Source, tx.IngestedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("transaction %s: %w", tx.ID, models.ErrDuplicate)
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (s *Store) InsertRejected(ctx context.Context, rec models.RejectedRecord) error {
	const query = `INSERT INTO rejected_records
		(id, payload, reason, detail, source, rejected_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.q.ExecContext(ctx, query,
		rec.ID, rec.Payload, string(rec.Reason), rec.Detail, rec.Source, rec.RejectedAt)
	if err != nil {
		return fmt.Errorf("insert rejected record: %w", err)
	}
	return nil
}

func (s *Store) TransactionExists(ctx context.Context, id string) (bool, error) {
	const query = `SELECT 1 FROM transactions WHERE id = $1`

	var one int
	err := s.q.QueryRowContext(ctx, query, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("transaction exists: %w", err)
	}
	return true, nil
}

func (s *Store) NaturalKeyExists(ctx context.Context, key models.NaturalKey) (bool, error) {
	const query = `SELECT 1 FROM transactions
		WHERE sender_id = $1 AND receiver_id = $2 AND currency = $3
		  AND amount = $4 AND occurred_at = $5
		LIMIT 1`

	var one int
	err := s.q.QueryRowContext(ctx, query,
		key.SenderID, key.ReceiverID, key.Currency, key.Amount, key.OccurredAt).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("natural key exists: %w", err)
	}
	return true, nil
}

func (s *Store) CountBySender(ctx context.Context, senderID string, from, to time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM transactions
		WHERE sender_id = $1 AND occurred_at > $2 AND occurred_at <= $3`

	var count int
	err := s.q.QueryRowContext(ctx, query, senderID, from, to).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count by sender: %w", err)
	}
	return count, nil
}

// Atomically runs fn inside one database transaction. A unique violation
// raised at commit is mapped to models.ErrDuplicate the same way an insert
// violation is, so the later committer of a duplicate race is redirected to
// the rejection ledger rather than surfaced as a fault.
func (s *Store) Atomically(ctx context.Context, fn func(interfaces.Store) error) error {
	if _, nested := s.q.(*sql.Tx); nested {
		return fn(s)
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	inner := &Store{db: s.db, q: dbTx}
	if err := fn(inner); err != nil {
		dbTx.Rollback()
		return err
	}
	if err := dbTx.Commit(); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("commit: %w", models.ErrDuplicate)
		}
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

var _ interfaces.Store = (*Store)(nil)
