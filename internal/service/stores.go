package service

import (
	"context"
	"time"

	"github.com/funtusov/telequery/internal/model"
)

// MessageStore is read-only access to the source archive.
type MessageStore interface {
	GetByID(ctx context.Context, messageID string) (*model.Message, error)
	GetByIDs(ctx context.Context, messageIDs []string) ([]model.Message, error)
	ListChatBefore(ctx context.Context, chatID string, before time.Time, limit int) ([]model.Message, error)
	ListUnexpanded(ctx context.Context, limit int) ([]model.Message, error)
	ListWithText(ctx context.Context) ([]model.Message, error)
	CountWithText(ctx context.Context) (int64, error)
}

// ExpansionStore is the durable cache of message expansions. Insert must
// reject a second row for the same message id with errors.ErrConflict.
type ExpansionStore interface {
	Insert(ctx context.Context, exp *model.MessageExpansion) error
	GetByMessageID(ctx context.Context, messageID string) (*model.MessageExpansion, error)
	GetByMessageIDs(ctx context.Context, messageIDs []string) (map[string]model.MessageExpansion, error)
	Count(ctx context.Context) (int64, error)
	DeleteAll(ctx context.Context) (int64, error)
}

// VectorStore holds at most one live entry per message id.
type VectorStore interface {
	Upsert(ctx context.Context, entry *model.VectorEntry) error
	Query(ctx context.Context, embedding []float32, topN int) ([]model.VectorHit, error)
	ReplaceAll(ctx context.Context, entries []model.VectorEntry) error
}
