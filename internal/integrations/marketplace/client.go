package marketplace

import (
	"context"

	"github.com/BearBump/ShipBox/internal/models"
	"github.com/pkg/errors"
)

var (
	ErrNotFound = errors.New("transaction not found")
	// ErrConflict is the optimistic-concurrency violation (HTTP 409 on the platform API).
	ErrConflict = errors.New("transaction version conflict")
)

// Store is the narrow view of the marketplace platform that owns transactions.
type Store interface {
	GetTransaction(ctx context.Context, id string) (*models.Transaction, error)
	// UpdateProtectedData replaces the protected data blob if the stored version still
	// equals expectedVersion, otherwise returns ErrConflict.
	UpdateProtectedData(ctx context.Context, id string, expectedVersion int64, data map[string]any) error
	ListRecentTransactions(ctx context.Context, limit int) ([]*models.Transaction, error)
}

// Recorder is implemented by stores that keep a local copy of accepted transactions.
type Recorder interface {
	RecordAccepted(ctx context.Context, tx *models.Transaction) error
}

// TrackingLookup is an optional fast path for FindByTrackingNumber.
type TrackingLookup interface {
	FindByTrackingNumber(ctx context.Context, trackingNumber string, scanLimit int) (*models.Transaction, error)
}

// FindByTrackingNumber scans the most recent scanLimit transactions for a tracking number on
// either leg. It assumes tracking numbers are unique and the shipment is recent.
func FindByTrackingNumber(ctx context.Context, s Store, trackingNumber string, scanLimit int) (*models.Transaction, error) {
	if trackingNumber == "" {
		return nil, ErrNotFound
	}
	if tl, ok := s.(TrackingLookup); ok {
		return tl.FindByTrackingNumber(ctx, trackingNumber, scanLimit)
	}
	txs, err := s.ListRecentTransactions(ctx, scanLimit)
	if err != nil {
		return nil, errors.Wrap(err, "list recent transactions")
	}
	for _, tx := range txs {
		if _, ok := tx.LegForTrackingNumber(trackingNumber); ok {
			return tx, nil
		}
	}
	return nil, ErrNotFound
}
