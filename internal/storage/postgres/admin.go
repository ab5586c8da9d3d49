package postgres

import (
	"context"
	"fmt"

	"github.com/acme/txingest/internal/models"
)

// Admin operations used by the seeder and by integration setups. The
// ingestion core itself never mutates reference data; these live apart from
// the Store interface so nothing in the pipeline can reach them.

// EnsureSchema creates the ledger and reference tables when they do not
// exist yet, including the natural-key unique index that backs the
// commit-time duplicate guard.
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id      TEXT PRIMARY KEY,
			name    TEXT NOT NULL,
			deleted BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE TABLE IF NOT EXISTS currencies (
			code      TEXT PRIMARY KEY,
			name      TEXT NOT NULL,
			precision INTEGER NOT NULL,
			deleted   BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id          TEXT PRIMARY KEY,
			sender_id   TEXT NOT NULL REFERENCES users(id),
			receiver_id TEXT NOT NULL REFERENCES users(id),
			currency    TEXT NOT NULL REFERENCES currencies(code),
			amount      NUMERIC NOT NULL,
			status      TEXT NOT NULL,
			occurred_at TIMESTAMPTZ NOT NULL,
			source      TEXT NOT NULL,
			ingested_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS transactions_natural_key
			ON transactions (sender_id, receiver_id, currency, amount, occurred_at)`,
		`CREATE TABLE IF NOT EXISTS rejected_records (
			id          TEXT PRIMARY KEY,
			payload     TEXT NOT NULL,
			reason      TEXT NOT NULL,
			detail      TEXT NOT NULL DEFAULT '',
			source      TEXT NOT NULL DEFAULT 'unknown',
			rejected_at TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// UpsertUser inserts a reference user, keeping an existing row as is.
func (s *Store) UpsertUser(ctx context.Context, u models.User) error {
	const query = `INSERT INTO users (id, name, deleted) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING`

	if _, err := s.q.ExecContext(ctx, query, u.ID, u.Name, u.Deleted); err != nil {
		return fmt.Errorf("upsert user %s: %w", u.ID, err)
	}
	return nil
}

// UpsertCurrency inserts a reference currency, keeping an existing row as is.
func (s *Store) UpsertCurrency(ctx context.Context, c models.Currency) error {
	const query = `INSERT INTO currencies (code, name, precision, deleted) VALUES ($1, $2, $3, $4)
		ON CONFLICT (code) DO NOTHING`

	if _, err := s.q.ExecContext(ctx, query, c.Code, c.Name, c.Precision, c.Deleted); err != nil {
		return fmt.Errorf("upsert currency %s: %w", c.Code, err)
	}
	return nil
}
