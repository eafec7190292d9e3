package pgtransactions

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS transactions (
  id TEXT PRIMARY KEY,
  version BIGINT NOT NULL DEFAULT 0,
  booking_start TIMESTAMPTZ NULL,
  provider JSONB NOT NULL DEFAULT '{}'::jsonb,
  customer JSONB NOT NULL DEFAULT '{}'::jsonb,
  protected_data JSONB NOT NULL DEFAULT '{}'::jsonb,
  metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
  outbound_tracking TEXT GENERATED ALWAYS AS (protected_data->'outbound'->>'trackingNumber') STORED,
  return_tracking TEXT GENERATED ALWAYS AS (protected_data->'return'->>'trackingNumber') STORED,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_created_at ON transactions(created_at DESC, id DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_outbound_tracking ON transactions(outbound_tracking)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_return_tracking ON transactions(return_tracking)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
