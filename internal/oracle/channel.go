// Package oracle drives query/response exchanges with the chat bot that
// serves enrichment data.
package oracle

import (
	"context"
	"path/filepath"
	"strings"
)

// Message is one chat message as seen by the client.
type Message struct {
	ID       int
	Text     string
	Document *Document
}

// Document is a file attached to a message. Ref is the transport handle
// needed to download it.
type Document struct {
	FileName string
	Ref      any
}

// HasExt reports whether the document's file name ends in ext,
// case-insensitively.
func (d *Document) HasExt(ext string) bool {
	if d == nil || ext == "" {
		return false
	}
	return strings.EqualFold(filepath.Ext(d.FileName), ext)
}

// Channel is the chat capability the client needs. Transports report
// flood-control waits as *resilience.RetryAfterError.
type Channel interface {
	// Send posts text to the oracle chat.
	Send(ctx context.Context, text string) error
	// Recent returns up to n latest messages, most recent first.
	Recent(ctx context.Context, n int) ([]Message, error)
	// Download stores doc inside dir and returns the file path.
	Download(ctx context.Context, doc *Document, dir string) (string, error)
}
