package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/contact-enricher/internal/db"
	"github.com/sells-group/contact-enricher/internal/model"
)

// PostgresStore implements Ledger using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS usage (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	identity   TEXT NOT NULL,
	day        DATE NOT NULL,
	requests   INTEGER NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (identity, day)
);

CREATE TABLE IF NOT EXISTS limit_hits (
	id       TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	identity TEXT NOT NULL,
	reason   TEXT NOT NULL,
	hit_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_limit_hits_identity ON limit_hits(identity, hit_at DESC);
`

// Migrate implements Ledger.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close implements Ledger.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// RecordUsage implements Ledger.
func (s *PostgresStore) RecordUsage(ctx context.Context, identity string, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO usage (id, identity, day, requests, updated_at) VALUES ($1, $2, $3, 1, $4)
		 ON CONFLICT (identity, day) DO UPDATE SET requests = usage.requests + 1, updated_at = EXCLUDED.updated_at`,
		uuid.New().String(), identity, dayKey(at), time.Now().UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: record usage %s", identity)
	}
	return nil
}

// UsageOn implements Ledger.
func (s *PostgresStore) UsageOn(ctx context.Context, identity string, at time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT requests FROM usage WHERE identity = $1 AND day = $2`,
		identity, dayKey(at),
	).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: usage %s", identity)
	}
	return n, nil
}

// RecordLimit implements Ledger.
func (s *PostgresStore) RecordLimit(ctx context.Context, hit model.LimitHit) error {
	if hit.HitAt.IsZero() {
		hit.HitAt = time.Now()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO limit_hits (id, identity, reason, hit_at) VALUES ($1, $2, $3, $4)`,
		uuid.New().String(), hit.Identity, hit.Reason, hit.HitAt.UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: record limit %s", hit.Identity)
	}
	return nil
}

// LastLimit implements Ledger.
func (s *PostgresStore) LastLimit(ctx context.Context, identity string) (*model.LimitHit, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT identity, reason, hit_at FROM limit_hits WHERE identity = $1 ORDER BY hit_at DESC LIMIT 1`,
		identity,
	)
	hit, err := scanLimitHit(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: last limit %s", identity)
	}
	return hit, nil
}
