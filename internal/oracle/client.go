package oracle

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contact-enricher/internal/cooldown"
	"github.com/sells-group/contact-enricher/internal/extract"
	"github.com/sells-group/contact-enricher/internal/model"
	"github.com/sells-group/contact-enricher/internal/resilience"
)

// Config tunes a Client.
type Config struct {
	// History is how many latest messages are read back after a query.
	History int
	// NotFoundMarker is the reply fragment meaning "no data".
	NotFoundMarker string
	// DocumentExt is the extension of attachments worth parsing.
	DocumentExt string
	// FloodPadding is added to every flood-control wait.
	FloodPadding time.Duration
	// MaxFloodRetries caps flood-control retries; 0 never gives up.
	MaxFloodRetries int
	// Cooldown is the pause between sending a query and reading replies.
	Cooldown cooldown.Range
	// DownloadDir is the parent of the scoped per-document temp dirs.
	// Empty means os.TempDir().
	DownloadDir string
}

// DefaultConfig mirrors the bot's observed behavior.
func DefaultConfig() Config {
	return Config{
		History:        2,
		NotFoundMarker: "ничего не найдено",
		DocumentExt:    ".html",
		FloodPadding:   10 * time.Second,
		Cooldown:       cooldown.Seconds(30, 60),
	}
}

// Client performs rate-limited queries against one oracle chat.
type Client struct {
	ch    Channel
	cfg   Config
	sleep resilience.SleepFunc
}

// Option configures the client.
type Option func(*Client)

// WithSleep overrides how the client waits. Tests use it to skip real
// cooldowns.
func WithSleep(fn resilience.SleepFunc) Option {
	return func(c *Client) {
		c.sleep = fn
	}
}

// NewClient creates a query client bound to ch.
func NewClient(ch Channel, cfg Config, opts ...Option) *Client {
	if cfg.History <= 0 {
		cfg.History = 2
	}
	c := &Client{ch: ch, cfg: cfg, sleep: resilience.Sleep}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Query sends text and classifies the oracle's reply. target is the person
// name used to pick matching cards from attached reports.
//
// Flood-control waits are absorbed by retrying the whole exchange. Any other
// failure is logged and reported as OutcomeTransient with empty data so a
// single bad exchange never stops a sweep.
func (c *Client) Query(ctx context.Context, text, target string) model.QueryResult {
	maxAttempts := resilience.Unbounded
	if c.cfg.MaxFloodRetries > 0 {
		maxAttempts = c.cfg.MaxFloodRetries + 1
	}

	var waited time.Duration
	res, err := resilience.DoVal(ctx, resilience.RetryConfig{
		MaxAttempts: maxAttempts,
		ShouldRetry: resilience.IsRetryAfter,
		Delay: func(err error) (time.Duration, bool) {
			wait, ok := resilience.RetryAfter(err)
			return wait + c.cfg.FloodPadding, ok
		},
		OnRetry: func(attempt int, wait time.Duration, err error) {
			waited += wait
			zap.L().Warn("oracle: flood wait",
				zap.String("query", text),
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.Duration("waited_total", waited),
				zap.Error(err),
			)
		},
		Sleep: c.sleep,
	}, func(ctx context.Context) (model.QueryResult, error) {
		return c.exchange(ctx, text, target)
	})
	if err != nil && ctx.Err() != nil {
		zap.L().Debug("oracle: query interrupted", zap.String("query", text), zap.Error(err))
		return model.QueryResult{Outcome: model.OutcomeTransient, Err: err}
	}
	if err != nil {
		zap.L().Error("oracle: query failed",
			zap.String("query", text),
			zap.Error(err),
		)
		return model.QueryResult{Outcome: model.OutcomeTransient, Err: err}
	}
	return res
}

// exchange is one send/wait/read round. Transport errors are returned
// unwrapped so flood waits stay visible to the retry loop.
func (c *Client) exchange(ctx context.Context, text, target string) (model.QueryResult, error) {
	zap.L().Debug("oracle: query", zap.String("query", text))

	if err := c.ch.Send(ctx, text); err != nil {
		return model.QueryResult{}, err
	}
	if err := c.sleep(ctx, c.cfg.Cooldown.Pick()); err != nil {
		return model.QueryResult{}, eris.Wrap(err, "oracle: cooldown")
	}

	msgs, err := c.ch.Recent(ctx, c.cfg.History)
	if err != nil {
		return model.QueryResult{}, err
	}

	if reason, ok := ClassifyLimit(msgs); ok {
		return model.QueryResult{Outcome: model.OutcomeServiceLimit, Limit: reason}, nil
	}

	if c.notFound(msgs) {
		return model.QueryResult{Outcome: model.OutcomeNotFound}, nil
	}

	var data model.ContactData
	for _, m := range msgs {
		data.Merge(extract.FromText(m.Text))

		if m.Document.HasExt(c.cfg.DocumentExt) {
			docData, err := c.fromDocument(ctx, m.Document, target)
			if err != nil {
				return model.QueryResult{}, err
			}
			data.Merge(docData)
		}
	}

	data.Phones = extract.Unique(data.Phones)
	data.Emails = extract.Unique(data.Emails)

	zap.L().Debug("oracle: reply parsed",
		zap.Strings("phones", data.Phones),
		zap.Strings("emails", data.Emails),
		zap.String("birthday", data.Birthday),
	)

	if data.Empty() {
		return model.QueryResult{Outcome: model.OutcomeNotFound}, nil
	}
	return model.QueryResult{Outcome: model.OutcomeFound, Data: data}, nil
}

func (c *Client) notFound(msgs []Message) bool {
	if c.cfg.NotFoundMarker == "" {
		return false
	}
	for _, m := range msgs {
		if strings.Contains(m.Text, c.cfg.NotFoundMarker) {
			return true
		}
	}
	return false
}

// fromDocument downloads doc into a scoped temp dir, parses it and removes
// the dir on every path.
func (c *Client) fromDocument(ctx context.Context, doc *Document, target string) (model.ContactData, error) {
	dir, err := os.MkdirTemp(c.cfg.DownloadDir, "oracle-doc-*")
	if err != nil {
		return model.ContactData{}, eris.Wrap(err, "oracle: create download dir")
	}
	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			zap.L().Warn("oracle: remove download dir", zap.String("dir", dir), zap.Error(rmErr))
		}
	}()

	path, err := c.ch.Download(ctx, doc, dir)
	if err != nil {
		return model.ContactData{}, err
	}
	defer os.Remove(path) //nolint:errcheck

	zap.L().Debug("oracle: parsing attached report", zap.String("file", doc.FileName))
	return extract.FromFile(target, path), nil
}
