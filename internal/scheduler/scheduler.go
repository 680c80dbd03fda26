// Package scheduler rotates oracle credentials forever: one sweep per
// credential, a pause between credentials and a long pause between cycles.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contact-enricher/internal/cooldown"
	"github.com/sells-group/contact-enricher/internal/model"
	"github.com/sells-group/contact-enricher/internal/oracle"
	"github.com/sells-group/contact-enricher/internal/resilience"
	"github.com/sells-group/contact-enricher/internal/sweep"
)

// ErrNoCredentials is returned by RunOnce when the credential file is empty.
var ErrNoCredentials = errors.New("scheduler: no credentials")

// Connector opens an oracle session for cred and runs fn inside it. The
// session is closed when fn returns.
type Connector interface {
	Connect(ctx context.Context, cred model.Credential, fn func(ctx context.Context, ch oracle.Channel) error) error
}

// CredentialSource lists credentials in rotation order.
type CredentialSource interface {
	Load() ([]model.Credential, error)
}

// Sweeper runs one sweep for a credential.
type Sweeper interface {
	Process(ctx context.Context, r sweep.Resolver, identity string) (sweep.Summary, error)
}

// ResolverFactory builds the resolver for an open session.
type ResolverFactory func(ch oracle.Channel) sweep.Resolver

// SessionHook is called after every session with its outcome.
type SessionHook func(cred model.Credential, sum sweep.Summary, err error, started time.Time)

// LimitHistory reports the last service limit a credential hit.
type LimitHistory interface {
	LastLimit(ctx context.Context, identity string) (*model.LimitHit, error)
}

// Config holds the rotation cooldowns.
type Config struct {
	// Settle is the pause after connecting, before the first query. A zero
	// range skips it.
	Settle cooldown.Range
	// Session is the pause between credentials.
	Session cooldown.Range
	// Cycle is the pause after a full rotation.
	Cycle cooldown.Range
}

// DefaultConfig returns the production cooldowns.
func DefaultConfig() Config {
	return Config{
		Settle:  cooldown.Seconds(15, 30),
		Session: cooldown.Seconds(45, 100),
		Cycle:   cooldown.Hours(14, 26),
	}
}

// Scheduler drives the rotation.
type Scheduler struct {
	creds       CredentialSource
	conn        Connector
	sweeper     Sweeper
	newResolver ResolverFactory
	cfg         Config
	sleep       resilience.SleepFunc
	after       SessionHook
	limits      LimitHistory
	now         func() time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithSleep overrides how the scheduler waits.
func WithSleep(fn resilience.SleepFunc) Option {
	return func(s *Scheduler) {
		s.sleep = fn
	}
}

// WithSessionHook registers fn to run after every session.
func WithSessionHook(fn SessionHook) Option {
	return func(s *Scheduler) {
		s.after = fn
	}
}

// WithLimitHistory makes Run skip credentials that already hit a service
// limit on the current UTC day.
func WithLimitHistory(h LimitHistory) Option {
	return func(s *Scheduler) {
		s.limits = h
	}
}

// WithClock overrides the time source used for the limit check.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// New creates a Scheduler.
func New(creds CredentialSource, conn Connector, sweeper Sweeper, newResolver ResolverFactory, cfg Config, opts ...Option) *Scheduler {
	s := &Scheduler{
		creds:       creds,
		conn:        conn,
		sweeper:     sweeper,
		newResolver: newResolver,
		cfg:         cfg,
		sleep:       resilience.Sleep,
		now:         time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run rotates credentials until ctx is done. Credentials are reloaded at
// the start of every cycle. Session failures are logged and never stop the
// loop. Run returns ctx.Err().
func (s *Scheduler) Run(ctx context.Context) error {
	for cycle := 1; ; cycle++ {
		creds, err := s.creds.Load()
		if err != nil {
			zap.L().Error("scheduler: load credentials", zap.Error(err))
			if err := s.pause(ctx, "retry credentials", s.cfg.Session); err != nil {
				return err
			}
			continue
		}
		if len(creds) == 0 {
			zap.L().Warn("scheduler: no credentials configured")
		}

		for i, cred := range creds {
			if err := ctx.Err(); err != nil {
				return err
			}
			if s.limitedToday(ctx, cred) {
				continue
			}
			zap.L().Info("scheduler: connecting",
				zap.String("session", cred.Name),
				zap.Int("index", i+1),
				zap.Int("total", len(creds)),
				zap.Int("cycle", cycle),
			)
			s.runSession(ctx, cred)

			if err := s.pause(ctx, "session cooldown", s.cfg.Session); err != nil {
				return err
			}
		}

		if err := s.pause(ctx, "cycle cooldown", s.cfg.Cycle); err != nil {
			return err
		}
	}
}

// RunOnce sweeps with the first credential only, without cooldowns between
// sessions. The sweeper decides how many rows are processed.
func (s *Scheduler) RunOnce(ctx context.Context) (sweep.Summary, error) {
	creds, err := s.creds.Load()
	if err != nil {
		return sweep.Summary{}, eris.Wrap(err, "scheduler: load credentials")
	}
	if len(creds) == 0 {
		return sweep.Summary{}, ErrNoCredentials
	}
	return s.session(ctx, creds[0], false)
}

func (s *Scheduler) runSession(ctx context.Context, cred model.Credential) {
	sum, err := s.session(ctx, cred, true)
	log := zap.L().With(zap.String("session", cred.Name))

	switch {
	case err == nil:
		log.Info("scheduler: sweep complete",
			zap.Int("processed", sum.Processed),
			zap.Int("skipped", sum.Skipped),
			zap.Int("failed", sum.Failed),
		)
	case errors.Is(err, sweep.ErrServiceLimit):
		log.Info("scheduler: session reached oracle limit",
			zap.String("reason", sum.Limit),
			zap.Int("processed", sum.Processed),
		)
	case errors.Is(err, sweep.ErrBudgetExhausted):
		log.Info("scheduler: session used its daily budget", zap.Int("processed", sum.Processed))
	case ctx.Err() != nil:
		log.Info("scheduler: session interrupted", zap.Error(err))
	default:
		log.Error("scheduler: session failed", zap.Error(err))
	}
}

func (s *Scheduler) session(ctx context.Context, cred model.Credential, settle bool) (sweep.Summary, error) {
	started := time.Now()
	var sum sweep.Summary

	err := s.conn.Connect(ctx, cred, func(ctx context.Context, ch oracle.Channel) error {
		if settle && !s.cfg.Settle.Zero() {
			if err := s.sleep(ctx, s.cfg.Settle.Pick()); err != nil {
				return err
			}
		}
		var err error
		sum, err = s.sweeper.Process(ctx, s.newResolver(ch), cred.Name)
		return err
	})

	if s.after != nil {
		s.after(cred, sum, err, started)
	}
	return sum, err
}

// limitedToday reports whether cred hit a service limit earlier on the
// current UTC day. Ledger errors never block a session.
func (s *Scheduler) limitedToday(ctx context.Context, cred model.Credential) bool {
	if s.limits == nil {
		return false
	}
	hit, err := s.limits.LastLimit(ctx, cred.Name)
	if err != nil {
		zap.L().Warn("scheduler: read last limit", zap.String("session", cred.Name), zap.Error(err))
		return false
	}
	if hit == nil {
		return false
	}
	today := s.now().UTC().Format(time.DateOnly)
	if hit.HitAt.UTC().Format(time.DateOnly) != today {
		return false
	}
	zap.L().Info("scheduler: skipping session limited today",
		zap.String("session", cred.Name),
		zap.String("reason", hit.Reason),
		zap.Time("hit_at", hit.HitAt),
	)
	return true
}

func (s *Scheduler) pause(ctx context.Context, what string, r cooldown.Range) error {
	d := r.Pick()
	zap.L().Info("scheduler: "+what, zap.Duration("wait", d))
	return s.sleep(ctx, d)
}
