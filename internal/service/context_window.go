package service

import (
	"context"
	"sort"

	appErr "github.com/funtusov/telequery/internal/pkg/errors"

	"github.com/funtusov/telequery/internal/model"
)

const DefaultWindowSize = 5

// ContextWindowBuilder assembles the prior-conversation context for one
// message: the replied-to message (if it still exists) plus the most recent
// same-chat messages before the target, deduplicated and in chronological
// order. Pure reads, deterministic for a fixed store snapshot.
type ContextWindowBuilder struct {
	messages MessageStore
}

func NewContextWindowBuilder(messages MessageStore) *ContextWindowBuilder {
	return &ContextWindowBuilder{messages: messages}
}

func (b *ContextWindowBuilder) Build(ctx context.Context, target *model.Message, windowSize int) ([]model.Message, error) {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	seen := map[string]bool{target.MessageID: true}
	var window []model.Message

	if target.ReplyToMessageID != "" {
		replied, err := b.messages.GetByID(ctx, target.ReplyToMessageID)
		if err != nil && !appErr.IsNotFound(err) {
			return nil, err
		}
		// A dangling reply id is silently omitted.
		if err == nil && !seen[replied.MessageID] {
			seen[replied.MessageID] = true
			window = append(window, *replied)
		}
	}

	recent, err := b.messages.ListChatBefore(ctx, target.ChatID, target.Timestamp, windowSize)
	if err != nil {
		return nil, err
	}
	for _, msg := range recent {
		if seen[msg.MessageID] {
			continue
		}
		seen[msg.MessageID] = true
		window = append(window, msg)
	}

	sort.Slice(window, func(i, j int) bool {
		if !window[i].Timestamp.Equal(window[j].Timestamp) {
			return window[i].Timestamp.Before(window[j].Timestamp)
		}
		return window[i].MessageID < window[j].MessageID
	})
	return window, nil
}
