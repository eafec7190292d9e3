package marketplace

import (
	"context"
	"testing"

	"github.com/BearBump/ShipBox/internal/models"
	"github.com/stretchr/testify/require"
)

type listStore struct {
	txs   []*models.Transaction
	limit int
}

func (s *listStore) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	return nil, ErrNotFound
}
func (s *listStore) UpdateProtectedData(ctx context.Context, id string, v int64, data map[string]any) error {
	return nil
}
func (s *listStore) ListRecentTransactions(ctx context.Context, limit int) ([]*models.Transaction, error) {
	s.limit = limit
	return s.txs, nil
}

func TestFindByTrackingNumber_ScansBothLegs(t *testing.T) {
	s := &listStore{txs: []*models.Transaction{
		{ID: "a", ProtectedData: map[string]any{"outbound": map[string]any{"trackingNumber": "X"}}},
		{ID: "b", ProtectedData: map[string]any{"return": map[string]any{"trackingNumber": "Y"}}},
	}}

	tx, err := FindByTrackingNumber(context.Background(), s, "Y", 50)
	require.NoError(t, err)
	require.Equal(t, "b", tx.ID)
	require.Equal(t, 50, s.limit)

	_, err = FindByTrackingNumber(context.Background(), s, "Z", 50)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = FindByTrackingNumber(context.Background(), s, "", 50)
	require.ErrorIs(t, err, ErrNotFound)
}
