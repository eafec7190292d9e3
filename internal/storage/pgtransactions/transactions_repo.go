package pgtransactions

import (
	"context"
	"time"

	"github.com/BearBump/ShipBox/internal/integrations/marketplace"
	"github.com/BearBump/ShipBox/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const selectCols = `
  id, version, booking_start, provider, customer, protected_data, metadata, created_at, updated_at`

func scanTransaction(row pgx.Row) (*models.Transaction, error) {
	var t models.Transaction
	var bookingStart *time.Time
	if err := row.Scan(
		&t.ID, &t.Version, &bookingStart,
		&t.Provider, &t.Customer, &t.ProtectedData, &t.Metadata,
		&t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if bookingStart != nil {
		bs := bookingStart.UTC()
		t.BookingStart = &bs
	}
	if t.ProtectedData == nil {
		t.ProtectedData = map[string]any{}
	}
	return &t, nil
}

func collect(rows pgx.Rows) ([]*models.Transaction, error) {
	defer rows.Close()
	var out []*models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan transaction")
		}
		out = append(out, t)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	t, err := scanTransaction(s.db.QueryRow(ctx, `SELECT`+selectCols+` FROM transactions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(marketplace.ErrNotFound, "transaction %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "select transaction")
	}
	return t, nil
}

func (s *Storage) UpdateProtectedData(ctx context.Context, id string, expectedVersion int64, data map[string]any) error {
	if data == nil {
		data = map[string]any{}
	}
	tag, err := s.db.Exec(ctx, `
UPDATE transactions
SET protected_data = $3, version = version + 1, updated_at = now()
WHERE id = $1 AND version = $2
`, id, expectedVersion, data)
	if err != nil {
		return errors.Wrap(err, "update protected data")
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var cur int64
	err = s.db.QueryRow(ctx, `SELECT version FROM transactions WHERE id = $1`, id).Scan(&cur)
	if errors.Is(err, pgx.ErrNoRows) {
		return errors.Wrapf(marketplace.ErrNotFound, "transaction %s", id)
	}
	if err != nil {
		return errors.Wrap(err, "select version")
	}
	return errors.Wrapf(marketplace.ErrConflict, "transaction %s: version %d, expected %d", id, cur, expectedVersion)
}

func (s *Storage) ListRecentTransactions(ctx context.Context, limit int) ([]*models.Transaction, error) {
	if limit <= 0 || limit > 5000 {
		limit = 200
	}
	rows, err := s.db.Query(ctx, `SELECT`+selectCols+`
FROM transactions
ORDER BY created_at DESC, id DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select recent transactions")
	}
	return collect(rows)
}

// FindByTrackingNumber keeps the recent-window semantics of the scan fallback, only the
// filter runs in SQL.
func (s *Storage) FindByTrackingNumber(ctx context.Context, trackingNumber string, scanLimit int) (*models.Transaction, error) {
	if scanLimit <= 0 {
		scanLimit = 200
	}
	t, err := scanTransaction(s.db.QueryRow(ctx, `
WITH recent AS (
  SELECT * FROM transactions ORDER BY created_at DESC, id DESC LIMIT $2
)
SELECT`+selectCols+`
FROM recent
WHERE outbound_tracking = $1 OR return_tracking = $1
ORDER BY created_at DESC
LIMIT 1
`, trackingNumber, scanLimit))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(marketplace.ErrNotFound, "tracking number %s", trackingNumber)
	}
	if err != nil {
		return nil, errors.Wrap(err, "find by tracking number")
	}
	return t, nil
}

// ListAwaitingShipment returns transactions whose outbound label exists but has not been scanned.
func (s *Storage) ListAwaitingShipment(ctx context.Context, limit int) ([]*models.Transaction, error) {
	if limit <= 0 || limit > 5000 {
		limit = 500
	}
	rows, err := s.db.Query(ctx, `SELECT`+selectCols+`
FROM transactions
WHERE outbound_tracking IS NOT NULL
  AND COALESCE(protected_data->'outbound'->>'state', 'unshipped') = 'unshipped'
  AND protected_data->'outbound'->>'shipByDate' IS NOT NULL
ORDER BY created_at DESC, id DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select awaiting shipment")
	}
	return collect(rows)
}

// RecordAccepted inserts the transaction; an existing row keeps its protected data and version.
func (s *Storage) RecordAccepted(ctx context.Context, tx *models.Transaction) error {
	if tx == nil || tx.ID == "" {
		return errors.New("transaction id is required")
	}
	pd := tx.ProtectedData
	if pd == nil {
		pd = map[string]any{}
	}
	md := tx.Metadata
	if md == nil {
		md = map[string]any{}
	}
	createdAt := tx.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.Exec(ctx, `
INSERT INTO transactions (
  id, version, booking_start, provider, customer, protected_data, metadata, created_at, updated_at
)
VALUES ($1, 0, $2, $3, $4, $5, $6, $7, $7)
ON CONFLICT (id) DO UPDATE SET
  booking_start = COALESCE(EXCLUDED.booking_start, transactions.booking_start),
  provider = EXCLUDED.provider,
  customer = EXCLUDED.customer,
  metadata = transactions.metadata || EXCLUDED.metadata,
  updated_at = now()
`, tx.ID, tx.BookingStart, tx.Provider, tx.Customer, pd, md, createdAt.UTC())
	if err != nil {
		return errors.Wrap(err, "upsert transaction")
	}
	return nil
}
