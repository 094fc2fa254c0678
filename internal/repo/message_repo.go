package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/didi/gendry/builder"

	"github.com/funtusov/telequery/internal/model"
	"github.com/funtusov/telequery/internal/pkg/dbutil"
	appErr "github.com/funtusov/telequery/internal/pkg/errors"
)

var messageFields = []string{"message_id", "chat_id", "user_id", "sender_name", "text", "ts", "reply_to_message_id"}

// MessageRepo reads the source archive. The ingestion client owns the table;
// nothing here ever writes to it.
type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

func (r *MessageRepo) GetByID(ctx context.Context, messageID string) (*model.Message, error) {
	where := map[string]interface{}{
		"message_id": messageID,
	}
	sqlStr, args, err := builder.BuildSelect("messages", where, messageFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, appErr.ErrNotFound
	}
	msg, err := scanMessage(rows)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *MessageRepo) GetByIDs(ctx context.Context, messageIDs []string) ([]model.Message, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}
	where := map[string]interface{}{
		"message_id in": messageIDs,
	}
	sqlStr, args, err := builder.BuildSelect("messages", where, messageFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	return r.queryMessages(ctx, sqlStr, args...)
}

// ListChatBefore returns the most recent messages of a chat strictly earlier
// than the given time, newest first.
func (r *MessageRepo) ListChatBefore(ctx context.Context, chatID string, before time.Time, limit int) ([]model.Message, error) {
	const query = `
		SELECT message_id, chat_id, user_id, sender_name, text, ts, reply_to_message_id
		FROM messages
		WHERE chat_id = $1 AND ts < $2
		ORDER BY ts DESC, message_id DESC
		LIMIT $3
	`
	return r.queryMessages(ctx, query, chatID, before, limit)
}

// ListUnexpanded returns the oldest messages with real text that have no
// expansion row yet. Whitespace-only text is filtered out here so such
// messages are never reselected run after run.
func (r *MessageRepo) ListUnexpanded(ctx context.Context, limit int) ([]model.Message, error) {
	const query = `
		SELECT m.message_id, m.chat_id, m.user_id, m.sender_name, m.text, m.ts, m.reply_to_message_id
		FROM messages m
		LEFT JOIN message_expansions e ON m.message_id = e.message_id
		WHERE e.message_id IS NULL AND m.text IS NOT NULL AND btrim(m.text) <> ''
		ORDER BY m.ts ASC, m.message_id ASC
		LIMIT $1
	`
	return r.queryMessages(ctx, query, limit)
}

// ListWithText returns every message with real text, oldest first. Used by the
// full index rebuild.
func (r *MessageRepo) ListWithText(ctx context.Context) ([]model.Message, error) {
	const query = `
		SELECT message_id, chat_id, user_id, sender_name, text, ts, reply_to_message_id
		FROM messages
		WHERE text IS NOT NULL AND btrim(text) <> ''
		ORDER BY ts ASC, message_id ASC
	`
	return r.queryMessages(ctx, query)
}

func (r *MessageRepo) CountWithText(ctx context.Context) (int64, error) {
	const query = `SELECT COUNT(*) FROM messages WHERE text IS NOT NULL AND btrim(text) <> ''`
	var count int64
	if err := r.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *MessageRepo) queryMessages(ctx context.Context, query string, args ...interface{}) ([]model.Message, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var results []model.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, msg)
	}
	return results, rows.Err()
}

func scanMessage(rows *sql.Rows) (model.Message, error) {
	var msg model.Message
	var text, replyTo sql.NullString
	if err := rows.Scan(&msg.MessageID, &msg.ChatID, &msg.UserID, &msg.SenderName, &text, &msg.Timestamp, &replyTo); err != nil {
		return model.Message{}, err
	}
	msg.Text = text.String
	msg.ReplyToMessageID = replyTo.String
	return msg, nil
}
