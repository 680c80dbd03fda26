// Package store persists the per-identity usage ledger: how many rows each
// credential processed per day and the service limits the oracle issued.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contact-enricher/internal/db"
	"github.com/sells-group/contact-enricher/internal/model"
)

// Ledger is the usage persistence interface.
type Ledger interface {
	// RecordUsage counts one processed row for identity on the day of at.
	RecordUsage(ctx context.Context, identity string, at time.Time) error
	// UsageOn returns how many rows identity processed on the day of at.
	UsageOn(ctx context.Context, identity string, at time.Time) (int, error)

	// RecordLimit stores a service limit hit.
	RecordLimit(ctx context.Context, hit model.LimitHit) error
	// LastLimit returns the most recent limit hit for identity, or nil.
	LastLimit(ctx context.Context, identity string) (*model.LimitHit, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Config selects the ledger backend.
type Config struct {
	Driver      string         `mapstructure:"driver"` // "sqlite" or "postgres"
	DatabaseURL string         `mapstructure:"database_url"`
	Pool        *db.PoolConfig `mapstructure:"pool"`
}

// Open connects the configured backend and applies migrations.
func Open(ctx context.Context, cfg Config) (Ledger, error) {
	var (
		l   Ledger
		err error
	)
	switch cfg.Driver {
	case "sqlite", "":
		l, err = NewSQLite(cfg.DatabaseURL)
	case "postgres":
		l, err = NewPostgres(ctx, cfg.DatabaseURL, cfg.Pool)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := l.Migrate(ctx); err != nil {
		_ = l.Close()
		return nil, err
	}
	return l, nil
}

// dayKey buckets usage by UTC calendar day.
func dayKey(at time.Time) string {
	return at.UTC().Format(time.DateOnly)
}
