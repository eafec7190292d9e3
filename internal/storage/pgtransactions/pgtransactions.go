package pgtransactions

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// Storage is the Postgres-backed marketplace store: a local copy of accepted transactions
// with a versioned JSONB protected_data column.
type Storage struct {
	db *pgxpool.Pool
}

type Options struct {
	// MaxConns caps the pool; 0 keeps the pgx default.
	MaxConns        int32
	ApplicationName string
	// ConnectTimeout bounds the first ping and schema bootstrap.
	ConnectTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		ApplicationName: "shipbox",
		ConnectTimeout:  5 * time.Second,
	}
}

// New connects, pings and creates the schema. A failed attempt leaves nothing open, so callers
// can retry while postgres is starting.
func New(ctx context.Context, connString string, opts Options) (*Storage, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, errors.Wrap(err, "parse pg config")
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.ApplicationName != "" {
		cfg.ConnConfig.RuntimeParams["application_name"] = opts.ApplicationName
	}
	if opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.ConnectTimeout)
		defer cancel()
	}

	db, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "connect pg")
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ping pg")
	}

	s := &Storage{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Storage) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return errors.Wrap(err, "ping pg")
	}
	return nil
}

func (s *Storage) Close() {
	if s.db != nil {
		s.db.Close()
	}
}
