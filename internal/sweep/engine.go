// Package sweep walks the tabular store row by row, enriching every row
// whose phone or email cell is still blank.
package sweep

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contact-enricher/internal/cooldown"
	"github.com/sells-group/contact-enricher/internal/events"
	"github.com/sells-group/contact-enricher/internal/model"
	"github.com/sells-group/contact-enricher/internal/resilience"
	"github.com/sells-group/contact-enricher/internal/sheet"
	"github.com/sells-group/contact-enricher/internal/store"
)

var (
	// ErrServiceLimit ends a sweep when the oracle blocks the credential.
	ErrServiceLimit = errors.New("sweep: oracle service limit")
	// ErrBudgetExhausted ends a sweep when the credential used its daily
	// budget.
	ErrBudgetExhausted = errors.New("sweep: daily budget exhausted")
)

// Resolver enriches one identity record.
type Resolver interface {
	Resolve(ctx context.Context, rec model.IdentityRecord) model.EnrichmentResult
}

// Columns are the 1-based store columns the sweep reads and writes.
type Columns struct {
	FullName   int `mapstructure:"fio"`
	NationalID int `mapstructure:"national_id"`
	Phone      int `mapstructure:"phone"`
	Email      int `mapstructure:"email"`
}

// DefaultColumns is the worksheet layout the enricher was built against.
func DefaultColumns() Columns {
	return Columns{FullName: 3, NationalID: 4, Phone: 6, Email: 7}
}

// Config tunes an Engine.
type Config struct {
	Columns Columns
	// FirstRow is the first data row; rows above it are headers.
	FirstRow int
	// EmailHeader is written to the email column's header cell when blank.
	EmailHeader string
	// RequestCooldown is the pause after each processed row.
	RequestCooldown cooldown.Range
	// MaxRows stops the sweep after that many processed rows; 0 means no cap.
	MaxRows int
	// DailyBudget caps processed rows per credential per day; 0 means no cap.
	// It needs a ledger.
	DailyBudget int
}

// DefaultConfig returns the production layout and cooldowns.
func DefaultConfig() Config {
	return Config{
		Columns:         DefaultColumns(),
		FirstRow:        2,
		EmailHeader:     "Email",
		RequestCooldown: cooldown.Seconds(30, 60),
	}
}

// Summary describes one sweep.
type Summary struct {
	SweepID   string `json:"sweep_id"`
	Identity  string `json:"identity"`
	Processed int    `json:"processed"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
	// Limit is the service limit reason that ended the sweep, if any.
	Limit string `json:"limit,omitempty"`
}

// Engine runs sweeps over one store.
type Engine struct {
	store  sheet.Store
	sink   events.Sink
	ledger store.Ledger
	cfg    Config
	sleep  resilience.SleepFunc
	now    func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLedger records usage and limit hits and enables DailyBudget.
func WithLedger(l store.Ledger) Option {
	return func(e *Engine) {
		e.ledger = l
	}
}

// WithSleep overrides how the engine waits between rows.
func WithSleep(fn resilience.SleepFunc) Option {
	return func(e *Engine) {
		e.sleep = fn
	}
}

// WithClock overrides the time source used for ledger days.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates an Engine.
func New(st sheet.Store, sink events.Sink, cfg Config, opts ...Option) *Engine {
	if cfg.FirstRow < 1 {
		cfg.FirstRow = 2
	}
	e := &Engine{store: st, sink: sink, cfg: cfg, sleep: resilience.Sleep, now: time.Now}
	for _, o := range opts {
		o(e)
	}
	return e
}

// WithMaxRows returns a copy of the engine that stops after n processed
// rows.
func (e *Engine) WithMaxRows(n int) *Engine {
	cp := *e
	cp.cfg.MaxRows = n
	return &cp
}

// Process sweeps the store once for identity. Complete rows are skipped;
// a failing row is marked ERROR and the sweep moves on. The sweep ends early
// with ErrServiceLimit or ErrBudgetExhausted, or with the context error.
func (e *Engine) Process(ctx context.Context, r Resolver, identity string) (Summary, error) {
	sum := Summary{SweepID: uuid.New().String(), Identity: identity}
	log := zap.L().With(zap.String("sweep_id", sum.SweepID), zap.String("session", identity))
	cols := e.cfg.Columns

	ids, err := e.store.ReadColumn(ctx, cols.NationalID)
	if err != nil {
		return sum, eris.Wrap(err, "sweep: read national id column")
	}
	names, err := e.store.ReadColumn(ctx, cols.FullName)
	if err != nil {
		return sum, eris.Wrap(err, "sweep: read name column")
	}
	phones, err := e.store.ReadColumn(ctx, cols.Phone)
	if err != nil {
		return sum, eris.Wrap(err, "sweep: read phone column")
	}
	emails, err := e.store.ReadColumn(ctx, cols.Email)
	if err != nil {
		log.Warn("sweep: email column unreadable, treating as empty", zap.Error(err))
		emails = nil
	}
	e.ensureEmailHeader(ctx, log)

	log.Info("sweep: started", zap.Int("rows", max(len(ids)-e.cfg.FirstRow+1, 0)))

	for row := e.cfg.FirstRow; row <= len(ids); row++ {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		if complete(cellAt(phones, row), cellAt(emails, row)) {
			sum.Skipped++
			continue
		}

		if err := e.checkBudget(ctx, identity); err != nil {
			log.Warn("sweep: daily budget exhausted", zap.Int("budget", e.cfg.DailyBudget))
			return sum, err
		}

		rec := model.IdentityRecord{
			FullName:   strings.TrimSpace(cellAt(names, row)),
			NationalID: strings.TrimSpace(cellAt(ids, row)),
			Row:        row,
		}
		log.Debug("sweep: row", zap.Int("row", row), zap.Int("total", len(ids)))

		res, err := e.processRow(ctx, r, rec)
		if err != nil {
			if ctx.Err() != nil {
				return sum, ctx.Err()
			}
			e.markError(ctx, log, identity, row, err)
			sum.Failed++
			continue
		}
		if res.Limited() {
			sum.Limit = res.LimitSignal
			e.recordLimit(ctx, log, identity, res.LimitSignal)
			log.Error("sweep: stopped by service limit",
				zap.String("reason", res.LimitSignal),
				zap.Int("row", row),
				zap.Int("processed", sum.Processed),
			)
			return sum, eris.Wrap(ErrServiceLimit, res.LimitSignal)
		}

		e.sink.Emit(events.Event{
			Kind:       events.KindProcessed,
			Row:        row,
			FullName:   rec.FullName,
			NationalID: rec.NationalID,
			Session:    identity,
		})
		if e.ledger != nil {
			if err := e.ledger.RecordUsage(ctx, identity, e.now()); err != nil {
				log.Warn("sweep: record usage", zap.Error(err))
			}
		}

		if err := e.sleep(ctx, e.cfg.RequestCooldown.Pick()); err != nil {
			return sum, err
		}
		sum.Processed++
		if e.cfg.MaxRows > 0 && sum.Processed >= e.cfg.MaxRows {
			break
		}
	}

	log.Info("sweep: finished",
		zap.Int("processed", sum.Processed),
		zap.Int("skipped", sum.Skipped),
		zap.Int("failed", sum.Failed),
	)
	return sum, nil
}

// processRow resolves rec and writes both cells. A limited result or a
// cancelled context returns without writing.
func (e *Engine) processRow(ctx context.Context, r Resolver, rec model.IdentityRecord) (model.EnrichmentResult, error) {
	if rec.NationalID == "" {
		return model.EnrichmentResult{}, eris.Errorf("sweep: row %d has no national id", rec.Row)
	}

	res := r.Resolve(ctx, rec)
	// An interrupted lookup comes back empty; writing it would mark the row
	// complete with placeholders.
	if err := ctx.Err(); err != nil {
		return model.EnrichmentResult{}, err
	}
	if res.Limited() {
		return res, nil
	}

	phoneCell := FormatPhones(res.Phones)
	emailCell := FormatEmails(res.Emails)
	if err := e.store.WriteCell(ctx, rec.Row, e.cfg.Columns.Phone, phoneCell); err != nil {
		return res, eris.Wrapf(err, "sweep: write phone row %d", rec.Row)
	}
	if err := e.store.WriteCell(ctx, rec.Row, e.cfg.Columns.Email, emailCell); err != nil {
		return res, eris.Wrapf(err, "sweep: write email row %d", rec.Row)
	}

	zap.L().Info("sweep: row enriched",
		zap.Int("row", rec.Row),
		zap.String("fio", rec.FullName),
		zap.String("national_id", rec.NationalID),
		zap.String("phones", phoneCell),
		zap.String("emails", emailCell),
	)
	return res, nil
}

// markError writes the ERROR marker to both cells. Write failures are
// ignored; the row stays incomplete and is retried next sweep.
func (e *Engine) markError(ctx context.Context, log *zap.Logger, identity string, row int, cause error) {
	log.Error("sweep: row failed", zap.Int("row", row), zap.Error(cause))

	_ = e.store.WriteCell(ctx, row, e.cfg.Columns.Phone, ErrorMarker)
	_ = e.store.WriteCell(ctx, row, e.cfg.Columns.Email, ErrorMarker)

	e.sink.Emit(events.Event{Kind: events.KindError, Row: row, Session: identity})
}

func (e *Engine) ensureEmailHeader(ctx context.Context, log *zap.Logger) {
	if e.cfg.EmailHeader == "" || e.cfg.FirstRow < 2 {
		return
	}
	v, err := e.store.ReadCell(ctx, 1, e.cfg.Columns.Email)
	if err != nil {
		log.Debug("sweep: read email header", zap.Error(err))
		return
	}
	if strings.TrimSpace(v) != "" {
		return
	}
	if err := e.store.WriteCell(ctx, 1, e.cfg.Columns.Email, e.cfg.EmailHeader); err != nil {
		log.Debug("sweep: write email header", zap.Error(err))
	}
}

func (e *Engine) checkBudget(ctx context.Context, identity string) error {
	if e.ledger == nil || e.cfg.DailyBudget <= 0 {
		return nil
	}
	used, err := e.ledger.UsageOn(ctx, identity, e.now())
	if err != nil {
		zap.L().Warn("sweep: read usage, budget not enforced", zap.String("session", identity), zap.Error(err))
		return nil
	}
	if used >= e.cfg.DailyBudget {
		return eris.Wrapf(ErrBudgetExhausted, "sweep: %s used %d of %d", identity, used, e.cfg.DailyBudget)
	}
	return nil
}

func (e *Engine) recordLimit(ctx context.Context, log *zap.Logger, identity, reason string) {
	if rec, ok := e.sink.(interface{ LimitHit(session, reason string) }); ok {
		rec.LimitHit(identity, reason)
	}
	if e.ledger == nil {
		return
	}
	hit := model.LimitHit{Identity: identity, Reason: reason, HitAt: e.now()}
	if err := e.ledger.RecordLimit(ctx, hit); err != nil {
		log.Warn("sweep: record limit", zap.Error(err))
	}
}

// complete reports whether both target cells hold a value.
func complete(phone, email string) bool {
	return strings.TrimSpace(phone) != "" && strings.TrimSpace(email) != ""
}

// cellAt returns the 1-based row of a column read, empty past its end.
func cellAt(col []string, row int) string {
	if row < 1 || row > len(col) {
		return ""
	}
	return col[row-1]
}
