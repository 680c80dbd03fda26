// Package telegram connects to the oracle bot over MTProto with gotd/td.
package telegram

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/downloader"
	"github.com/gotd/td/telegram/message"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/contact-enricher/internal/model"
	"github.com/sells-group/contact-enricher/internal/oracle"
)

// ErrNotAuthorized means the session file holds no logged-in account. Run
// "session add" for the credential first.
var ErrNotAuthorized = errors.New("telegram: session not authorized")

// Config describes how sessions are opened.
type Config struct {
	BotUsername   string `mapstructure:"bot_username"`
	SystemVersion string `mapstructure:"system_version"`
	SessionsDir   string `mapstructure:"sessions_dir"`
}

// Connector opens one MTProto session per credential.
type Connector struct {
	cfg Config
	log *zap.Logger
}

// NewConnector creates a Connector.
func NewConnector(cfg Config) *Connector {
	return &Connector{
		cfg: cfg,
		log: zap.L().Named("telegram").WithOptions(zap.IncreaseLevel(zapcore.InfoLevel)),
	}
}

// SessionPath is where the session for name is stored.
func (c *Connector) SessionPath(name string) string {
	return filepath.Join(c.cfg.SessionsDir, name+".session.json")
}

func (c *Connector) newClient(cred model.Credential) (*telegram.Client, error) {
	if c.cfg.SessionsDir != "" {
		if err := os.MkdirAll(c.cfg.SessionsDir, 0o700); err != nil {
			return nil, eris.Wrapf(err, "telegram: create sessions dir %s", c.cfg.SessionsDir)
		}
	}
	return telegram.NewClient(cred.APIID, cred.APIHash, telegram.Options{
		SessionStorage: &session.FileStorage{Path: c.SessionPath(cred.Name)},
		Logger:         c.log.With(zap.String("session", cred.Name)),
		Device: telegram.DeviceConfig{
			SystemVersion: c.cfg.SystemVersion,
		},
	}), nil
}

// Connect logs in with cred's stored session, resolves the bot chat and
// runs fn with a channel to it. The connection closes when fn returns.
func (c *Connector) Connect(ctx context.Context, cred model.Credential, fn func(ctx context.Context, ch oracle.Channel) error) error {
	client, err := c.newClient(cred)
	if err != nil {
		return err
	}

	return client.Run(ctx, func(ctx context.Context) error {
		status, err := client.Auth().Status(ctx)
		if err != nil {
			return eris.Wrapf(err, "telegram: auth status %s", cred.Name)
		}
		if !status.Authorized {
			return eris.Wrapf(ErrNotAuthorized, "telegram: %s", cred.Name)
		}

		api := client.API()
		sender := message.NewSender(api)
		peer, err := sender.ResolveDomain(strings.TrimPrefix(c.cfg.BotUsername, "@")).AsInputPeer(ctx)
		if err != nil {
			return eris.Wrapf(err, "telegram: resolve %s", c.cfg.BotUsername)
		}

		zap.L().Info("telegram: connected",
			zap.String("session", cred.Name),
			zap.String("bot", c.cfg.BotUsername),
		)
		return fn(ctx, &botChannel{
			api:    api,
			sender: sender,
			peer:   peer,
			dl:     downloader.NewDownloader(),
		})
	})
}
