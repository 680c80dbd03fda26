package telegram

import (
	"github.com/gotd/td/tg"

	"github.com/sells-group/contact-enricher/internal/oracle"
)

// convertHistory flattens a history response, most recent first as the API
// returns it. Service messages are skipped.
func convertHistory(res tg.MessagesMessagesClass) []oracle.Message {
	var raw []tg.MessageClass
	switch r := res.(type) {
	case *tg.MessagesMessages:
		raw = r.Messages
	case *tg.MessagesMessagesSlice:
		raw = r.Messages
	case *tg.MessagesChannelMessages:
		raw = r.Messages
	}

	out := make([]oracle.Message, 0, len(raw))
	for _, m := range raw {
		msg, ok := m.(*tg.Message)
		if !ok {
			continue
		}
		out = append(out, oracle.Message{
			ID:       msg.ID,
			Text:     msg.Message,
			Document: documentFrom(msg.Media),
		})
	}
	return out
}

func documentFrom(media tg.MessageMediaClass) *oracle.Document {
	md, ok := media.(*tg.MessageMediaDocument)
	if !ok || md.Document == nil {
		return nil
	}
	doc, ok := md.Document.(*tg.Document)
	if !ok {
		return nil
	}

	name := ""
	for _, attr := range doc.Attributes {
		if fn, ok := attr.(*tg.DocumentAttributeFilename); ok {
			name = fn.FileName
			break
		}
	}
	return &oracle.Document{FileName: name, Ref: doc}
}
