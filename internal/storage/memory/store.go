// Package memory is the in-memory implementation of interfaces.Store. It is
// used by tests and local runs and emulates the storage-level uniqueness
// guarantees of the postgres store: inserting a transaction whose id or
// natural key already exists fails with models.ErrDuplicate.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/acme/txingest/internal/interfaces"
	"github.com/acme/txingest/internal/models"
)

// Store keeps both ledgers and the reference tables behind one mutex.
// Atomically holds the mutex for the whole callback, which gives the same
// per-record isolation a database transaction would.
type Store struct {
	mu           sync.Mutex
	users        map[string]models.User
	currencies   map[string]models.Currency
	transactions map[string]models.Transaction
	rejected     []models.RejectedRecord
}

// NewStore returns an empty in-memory store.
func NewStore() *Store {
	return &Store{
		users:        make(map[string]models.User),
		currencies:   make(map[string]models.Currency),
		transactions: make(map[string]models.Transaction),
	}
}

// AddUser seeds a reference user. Test/dev helper, not part of the store
// interface.
func (s *Store) AddUser(u models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// AddCurrency seeds a reference currency.
func (s *Store) AddCurrency(c models.Currency) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currencies[c.Code] = c
}

func (s *Store) LookupUser(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookupUser(id), nil
}

func (s *Store) LookupCurrency(ctx context.Context, code string) (int32, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookupCurrency(code)
}

func (s *Store) InsertTransaction(ctx context.Context, tx models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertTransaction(tx)
}

func (s *Store) InsertRejected(ctx context.Context, rec models.RejectedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejected = append(s.rejected, rec)
	return nil
}

func (s *Store) TransactionExists(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.transactions[id]
	return ok, nil
}

func (s *Store) NaturalKeyExists(ctx context.Context, key models.NaturalKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.naturalKeyExists(key), nil
}

func (s *Store) CountBySender(ctx context.Context, senderID string, from, to time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countBySender(senderID, from, to), nil
}

// Atomically serializes the callback against all other store access. The
// store handed to fn reuses the already-held lock. Ledger writes made inside
// fn are discarded when fn returns an error, mirroring a database rollback.
func (s *Store) Atomically(ctx context.Context, fn func(interfaces.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make(map[string]models.Transaction, len(s.transactions))
	for id, tx := range s.transactions {
		snapshot[id] = tx
	}
	rejectedLen := len(s.rejected)

	if err := fn(&lockedStore{s: s}); err != nil {
		s.transactions = snapshot
		s.rejected = s.rejected[:rejectedLen]
		return err
	}
	return nil
}

// Transactions returns a copy of the accepted ledger, for assertions.
func (s *Store) Transactions() []models.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Transaction, 0, len(s.transactions))
	for _, tx := range s.transactions {
		out = append(out, tx)
	}
	return out
}

// Rejected returns a copy of the rejection ledger, for assertions.
func (s *Store) Rejected() []models.RejectedRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.RejectedRecord, len(s.rejected))
	copy(out, s.rejected)
	return out
}

// Unlocked internals, shared by the direct methods and lockedStore. Callers
// must hold mu.

func (s *Store) lookupUser(id string) bool {
	u, ok := s.users[id]
	return ok && !u.Deleted
}

func (s *Store) lookupCurrency(code string) (int32, bool, error) {
	c, ok := s.currencies[code]
	if !ok || c.Deleted {
		return 0, false, nil
	}
	return c.Precision, true, nil
}

func (s *Store) insertTransaction(tx models.Transaction) error {
	if _, ok := s.transactions[tx.ID]; ok {
		return fmt.Errorf("transaction id %s: %w", tx.ID, models.ErrDuplicate)
	}
	if s.naturalKeyExists(tx.Key()) {
		return fmt.Errorf("natural key of %s: %w", tx.ID, models.ErrDuplicate)
	}
	s.transactions[tx.ID] = tx
	return nil
}

func (s *Store) naturalKeyExists(key models.NaturalKey) bool {
	for _, tx := range s.transactions {
		if tx.Key().Matches(key) {
			return true
		}
	}
	return false
}

func (s *Store) countBySender(senderID string, from, to time.Time) int {
	n := 0
	for _, tx := range s.transactions {
		if tx.SenderID != senderID {
			continue
		}
		if tx.OccurredAt.After(from) && !tx.OccurredAt.After(to) {
			n++
		}
	}
	return n
}

// lockedStore is the view handed to an Atomically callback. It reuses the
// outer store's lock, which the callback's caller already holds.
type lockedStore struct {
	s *Store
}

func (l *lockedStore) LookupUser(ctx context.Context, id string) (bool, error) {
	return l.s.lookupUser(id), nil
}

func (l *lockedStore) LookupCurrency(ctx context.Context, code string) (int32, bool, error) {
	return l.s.lookupCurrency(code)
}

func (l *lockedStore) InsertTransaction(ctx context.Context, tx models.Transaction) error {
	return l.s.insertTransaction(tx)
}

func (l *lockedStore) InsertRejected(ctx context.Context, rec models.RejectedRecord) error {
	l.s.rejected = append(l.s.rejected, rec)
	return nil
}

func (l *lockedStore) TransactionExists(ctx context.Context, id string) (bool, error) {
	_, ok := l.s.transactions[id]
	return ok, nil
}

func (l *lockedStore) NaturalKeyExists(ctx context.Context, key models.NaturalKey) (bool, error) {
	return l.s.naturalKeyExists(key), nil
}

func (l *lockedStore) CountBySender(ctx context.Context, senderID string, from, to time.Time) (int, error) {
	return l.s.countBySender(senderID, from, to), nil
}

func (l *lockedStore) Atomically(ctx context.Context, fn func(interfaces.Store) error) error {
	return fn(l)
}

// Compile-time checks: both views implement the full store contract.
var (
	_ interfaces.Store = (*Store)(nil)
	_ interfaces.Store = (*lockedStore)(nil)
)
