package telegram

import (
	"context"
	"path/filepath"

	"github.com/gotd/td/telegram/downloader"
	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"github.com/rotisserie/eris"

	"github.com/sells-group/contact-enricher/internal/oracle"
	"github.com/sells-group/contact-enricher/internal/resilience"
)

// botChannel is the oracle.Channel for one resolved bot chat.
type botChannel struct {
	api    *tg.Client
	sender *message.Sender
	peer   tg.InputPeerClass
	dl     *downloader.Downloader
}

// Send implements oracle.Channel.
func (b *botChannel) Send(ctx context.Context, text string) error {
	if _, err := b.sender.To(b.peer).Text(ctx, text); err != nil {
		return wrapRPC(err, "telegram: send message")
	}
	return nil
}

// Recent implements oracle.Channel.
func (b *botChannel) Recent(ctx context.Context, n int) ([]oracle.Message, error) {
	res, err := b.api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
		Peer:  b.peer,
		Limit: n,
	})
	if err != nil {
		return nil, wrapRPC(err, "telegram: get history")
	}
	return convertHistory(res), nil
}

// Download implements oracle.Channel.
func (b *botChannel) Download(ctx context.Context, doc *oracle.Document, dir string) (string, error) {
	d, ok := doc.Ref.(*tg.Document)
	if !ok || d == nil {
		return "", eris.Errorf("telegram: document %q has no file reference", doc.FileName)
	}

	path := filepath.Join(dir, safeName(doc.FileName))
	if _, err := b.dl.Download(b.api, d.AsInputDocumentFileLocation()).ToPath(ctx, path); err != nil {
		return "", wrapRPC(err, "telegram: download "+doc.FileName)
	}
	return path, nil
}

// wrapRPC turns FLOOD_WAIT errors into resilience.RetryAfterError so the
// query client can wait them out.
func wrapRPC(err error, msg string) error {
	if wait, ok := tgerr.AsFloodWait(err); ok {
		return resilience.NewRetryAfterError(eris.Wrap(err, msg), wait)
	}
	return eris.Wrap(err, msg)
}

func safeName(name string) string {
	base := filepath.Base(name)
	if base == "." || base == "/" || base == "" {
		return "document"
	}
	return base
}
