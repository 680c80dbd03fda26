package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/contact-enricher/internal/model"
)

// SQLiteStore implements Ledger using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS usage (
	id         TEXT PRIMARY KEY,
	identity   TEXT NOT NULL,
	day        TEXT NOT NULL,
	requests   INTEGER NOT NULL DEFAULT 0,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (identity, day)
);

CREATE TABLE IF NOT EXISTS limit_hits (
	id       TEXT PRIMARY KEY,
	identity TEXT NOT NULL,
	reason   TEXT NOT NULL,
	hit_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_limit_hits_identity ON limit_hits(identity, hit_at);
`

// Migrate implements Ledger.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close implements Ledger.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// RecordUsage implements Ledger.
func (s *SQLiteStore) RecordUsage(ctx context.Context, identity string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage (id, identity, day, requests, updated_at) VALUES (?, ?, ?, 1, ?)
		 ON CONFLICT (identity, day) DO UPDATE SET requests = requests + 1, updated_at = excluded.updated_at`,
		uuid.New().String(), identity, dayKey(at), time.Now().UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: record usage %s", identity)
	}
	return nil
}

// UsageOn implements Ledger.
func (s *SQLiteStore) UsageOn(ctx context.Context, identity string, at time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT requests FROM usage WHERE identity = ? AND day = ?`,
		identity, dayKey(at),
	).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: usage %s", identity)
	}
	return n, nil
}

// RecordLimit implements Ledger.
func (s *SQLiteStore) RecordLimit(ctx context.Context, hit model.LimitHit) error {
	if hit.HitAt.IsZero() {
		hit.HitAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO limit_hits (id, identity, reason, hit_at) VALUES (?, ?, ?, ?)`,
		uuid.New().String(), hit.Identity, hit.Reason, hit.HitAt.UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: record limit %s", hit.Identity)
	}
	return nil
}

// LastLimit implements Ledger.
func (s *SQLiteStore) LastLimit(ctx context.Context, identity string) (*model.LimitHit, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT identity, reason, hit_at FROM limit_hits WHERE identity = ? ORDER BY hit_at DESC LIMIT 1`,
		identity,
	)
	hit, err := scanLimitHit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: last limit %s", identity)
	}
	return hit, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanLimitHit(row scannable) (*model.LimitHit, error) {
	var hit model.LimitHit
	if err := row.Scan(&hit.Identity, &hit.Reason, &hit.HitAt); err != nil {
		return nil, err
	}
	return &hit, nil
}
