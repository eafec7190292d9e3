package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BearBump/ShipBox/internal/integrations/marketplace"
	"github.com/BearBump/ShipBox/internal/models"
	"github.com/pkg/errors"
)

// Store is an in-process marketplace for local runs and tests. Every read and write copies,
// so callers never share maps with the store.
type Store struct {
	mu  sync.Mutex
	txs map[string]*models.Transaction
	now func() time.Time
}

func New() *Store {
	return &Store{
		txs: make(map[string]*models.Transaction),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Put inserts or replaces tx as-is (version included).
func (s *Store) Put(tx *models.Transaction) {
	c := tx.Clone()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	s.mu.Lock()
	s.txs[c.ID] = c
	s.mu.Unlock()
}

func (s *Store) GetTransaction(_ context.Context, id string) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.txs[id]
	if !ok {
		return nil, errors.Wrapf(marketplace.ErrNotFound, "transaction %s", id)
	}
	return tx.Clone(), nil
}

func (s *Store) UpdateProtectedData(_ context.Context, id string, expectedVersion int64, data map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.txs[id]
	if !ok {
		return errors.Wrapf(marketplace.ErrNotFound, "transaction %s", id)
	}
	if tx.Version != expectedVersion {
		return errors.Wrapf(marketplace.ErrConflict, "transaction %s: version %d, expected %d", id, tx.Version, expectedVersion)
	}
	tx.ProtectedData = models.CloneMap(data)
	tx.Version++
	tx.UpdatedAt = s.now()
	return nil
}

func (s *Store) ListRecentTransactions(_ context.Context, limit int) ([]*models.Transaction, error) {
	s.mu.Lock()
	out := make([]*models.Transaction, 0, len(s.txs))
	for _, tx := range s.txs {
		out = append(out, tx.Clone())
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// RecordAccepted stores the transaction if unknown; an existing record keeps its protected data.
func (s *Store) RecordAccepted(_ context.Context, tx *models.Transaction) error {
	if tx == nil || tx.ID == "" {
		return errors.New("transaction id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.txs[tx.ID]; ok {
		cur.Provider = tx.Provider
		cur.Customer = tx.Customer
		if tx.BookingStart != nil {
			bs := *tx.BookingStart
			cur.BookingStart = &bs
		}
		return nil
	}
	c := tx.Clone()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	if c.ProtectedData == nil {
		c.ProtectedData = map[string]any{}
	}
	s.txs[c.ID] = c
	return nil
}
