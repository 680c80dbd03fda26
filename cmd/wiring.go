package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contact-enricher/internal/config"
	"github.com/sells-group/contact-enricher/internal/credentials"
	"github.com/sells-group/contact-enricher/internal/events"
	"github.com/sells-group/contact-enricher/internal/model"
	"github.com/sells-group/contact-enricher/internal/oracle"
	"github.com/sells-group/contact-enricher/internal/resolver"
	"github.com/sells-group/contact-enricher/internal/scheduler"
	"github.com/sells-group/contact-enricher/internal/sheet"
	"github.com/sells-group/contact-enricher/internal/store"
	"github.com/sells-group/contact-enricher/internal/sweep"
	"github.com/sells-group/contact-enricher/pkg/telegram"
)

// pipeline bundles everything a run needs. close releases the sheet and the
// ledger.
type pipeline struct {
	sched    *scheduler.Scheduler
	recorder *events.Recorder
	close    func()
}

// buildPipeline wires the scheduler from cfg. maxRows caps processed rows
// per sweep; 0 means no cap.
func buildPipeline(ctx context.Context, c *config.Config, maxRows int) (*pipeline, error) {
	st, err := sheet.Open(ctx, c.SheetStore())
	if err != nil {
		return nil, eris.Wrap(err, "open sheet")
	}

	ledger, err := store.Open(ctx, c.Ledger())
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "open ledger")
	}

	recorder := events.NewRecorder(zap.L())
	engine := sweep.New(st, recorder, c.Sweep(), sweep.WithLedger(ledger))
	if maxRows > 0 {
		engine = engine.WithMaxRows(maxRows)
	}

	opts := []scheduler.Option{scheduler.WithSessionHook(sessionHook(recorder, c.Metrics.Textfile))}
	if c.Oracle.SkipLimitedToday {
		opts = append(opts, scheduler.WithLimitHistory(ledger))
	}
	sched := scheduler.New(
		credentials.NewFile(c.Credentials.Path),
		telegram.NewConnector(c.Telegram()),
		engine,
		newResolverFactory(c.OracleClient(), c.Oracle.IDCommand),
		c.Scheduler(),
		opts...,
	)

	return &pipeline{
		sched:    sched,
		recorder: recorder,
		close: func() {
			if err := st.Close(); err != nil {
				zap.L().Warn("close sheet", zap.Error(err))
			}
			if err := ledger.Close(); err != nil {
				zap.L().Warn("close ledger", zap.Error(err))
			}
		},
	}, nil
}

func newResolverFactory(oc oracle.Config, idCommand string) scheduler.ResolverFactory {
	return func(ch oracle.Channel) sweep.Resolver {
		return resolver.New(oracle.NewClient(ch, oc), resolver.WithIDCommand(idCommand))
	}
}

// sessionHook records sweep duration and refreshes the textfile export, if
// one is configured, after every credential.
func sessionHook(rec *events.Recorder, textfile string) scheduler.SessionHook {
	return func(cred model.Credential, sum sweep.Summary, err error, started time.Time) {
		rec.ObserveSweep(started)
		if textfile == "" {
			return
		}
		if werr := rec.WriteTextfile(textfile); werr != nil {
			zap.L().Warn("write metrics textfile",
				zap.String("session", cred.Name),
				zap.String("path", textfile),
				zap.Error(werr),
			)
		}
	}
}
