// Package memory is an in-process storage backend with the same repository
// contracts as the PostgreSQL adapter. Units of work are serialized by a
// store-wide mutex and rolled back by restoring a snapshot.
package memory

import (
	"context"
	"errors"
	"sync"

	"invoice-financing/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var errTxDone = errors.New("memory: transaction already closed")

type state struct {
	sellers      map[uuid.UUID]domain.Seller
	lenders      map[uuid.UUID]domain.Lender
	invoices     map[uuid.UUID]domain.Invoice
	bids         map[uuid.UUID]domain.Bid
	transactions map[uuid.UUID]domain.Transaction
}

func newState() state {
	return state{
		sellers:      map[uuid.UUID]domain.Seller{},
		lenders:      map[uuid.UUID]domain.Lender{},
		invoices:     map[uuid.UUID]domain.Invoice{},
		bids:         map[uuid.UUID]domain.Bid{},
		transactions: map[uuid.UUID]domain.Transaction{},
	}
}

func (s state) clone() state {
	c := newState()
	for k, v := range s.sellers {
		c.sellers[k] = v
	}
	for k, v := range s.lenders {
		c.lenders[k] = v
	}
	for k, v := range s.invoices {
		c.invoices[k] = v
	}
	for k, v := range s.bids {
		c.bids[k] = v
	}
	for k, v := range s.transactions {
		c.transactions[k] = v
	}
	return c
}

// Store holds all entities. txMu serializes units of work and writes; mu
// guards the maps for concurrent readers.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	data state

	auditMu sync.Mutex
	audit   []domain.AuditLog
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{data: newState()}
}

// Begin implements ports.DBTransactor. The returned transaction holds the
// store-wide lock until Commit or Rollback.
func (s *Store) Begin(ctx context.Context) (pgx.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.txMu.Lock()
	s.mu.RLock()
	snap := s.data.clone()
	s.mu.RUnlock()
	return &memTx{store: s, snapshot: snap}, nil
}

// Name implements ports.HealthChecker.
func (s *Store) Name() string { return "memory" }

// Ping implements ports.HealthChecker.
func (s *Store) Ping(context.Context) error { return nil }

// write runs fn under the write lock. Callers outside a transaction must also
// hold txMu so a concurrent rollback cannot discard their change.
func (s *Store) write(fn func(d *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&s.data)
}

func (s *Store) read(fn func(d *state)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(&s.data)
}

// writeOutsideTx is used by repository methods that take no pgx.Tx.
func (s *Store) writeOutsideTx(fn func(d *state) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return s.write(fn)
}

// memTx satisfies pgx.Tx. Only Commit and Rollback are meaningful; the
// repositories never issue SQL through it.
type memTx struct {
	pgx.Tx
	store    *Store
	snapshot state
	done     bool
}

func (t *memTx) Commit(context.Context) error {
	if t.done {
		return errTxDone
	}
	t.done = true
	t.store.txMu.Unlock()
	return nil
}

// Rollback restores the snapshot taken at Begin. After Commit it is a no-op.
func (t *memTx) Rollback(context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.store.mu.Lock()
	t.store.data = t.snapshot
	t.store.mu.Unlock()
	t.store.txMu.Unlock()
	return nil
}

func paginate(page, pageSize, n int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	start := (page - 1) * pageSize
	if start > n {
		start = n
	}
	end := start + pageSize
	if end > n {
		end = n
	}
	return start, end
}
