package model

import (
	"strings"
	"time"
)

// Message is a row in the source archive. The ingester owns this table;
// telequery only ever reads it.
type Message struct {
	MessageID        string
	ChatID           string
	UserID           string
	SenderName       string
	Text             string
	Timestamp        time.Time
	ReplyToMessageID string
}

// HasText reports whether the message carries any non-whitespace text.
// Whitespace-only messages are never expanded or indexed.
func (m *Message) HasText() bool {
	return m != nil && strings.TrimSpace(m.Text) != ""
}
