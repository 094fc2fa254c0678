package model

import "time"

// MessageExpansion is the LLM-rewritten, self-contained version of a message.
// One row per message, written once, removed only by an explicit reset.
type MessageExpansion struct {
	MessageID    string
	ExpandedText string
	ModelUsed    string
	CreatedAt    time.Time
}
