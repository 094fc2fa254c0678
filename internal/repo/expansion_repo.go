package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/funtusov/telequery/internal/model"
	"github.com/funtusov/telequery/internal/pkg/dbutil"
	appErr "github.com/funtusov/telequery/internal/pkg/errors"
)

var expansionFields = []string{"message_id", "expanded_text", "model_used", "created_at"}

type ExpansionRepo struct {
	db *sql.DB
}

func NewExpansionRepo(db *sql.DB) *ExpansionRepo {
	return &ExpansionRepo{db: db}
}

// Insert writes one expansion row. A second insert for the same message id
// returns ErrConflict; concurrent orchestrators treat that as a benign skip.
func (r *ExpansionRepo) Insert(ctx context.Context, exp *model.MessageExpansion) error {
	data := map[string]interface{}{
		"message_id":    exp.MessageID,
		"expanded_text": exp.ExpandedText,
		"model_used":    exp.ModelUsed,
		"created_at":    exp.CreatedAt,
	}
	sqlStr, args, err := builder.BuildInsert("message_expansions", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

func (r *ExpansionRepo) GetByMessageID(ctx context.Context, messageID string) (*model.MessageExpansion, error) {
	where := map[string]interface{}{
		"message_id": messageID,
	}
	sqlStr, args, err := builder.BuildSelect("message_expansions", where, expansionFields)
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
	var exp model.MessageExpansion
	if err := rows.Scan(&exp.MessageID, &exp.ExpandedText, &exp.ModelUsed, &exp.CreatedAt); err != nil {
		return nil, err
	}
	return &exp, nil
}

func (r *ExpansionRepo) GetByMessageIDs(ctx context.Context, messageIDs []string) (map[string]model.MessageExpansion, error) {
	results := make(map[string]model.MessageExpansion, len(messageIDs))
	if len(messageIDs) == 0 {
		return results, nil
	}
	where := map[string]interface{}{
		"message_id in": messageIDs,
	}
	sqlStr, args, err := builder.BuildSelect("message_expansions", where, expansionFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var exp model.MessageExpansion
		if err := rows.Scan(&exp.MessageID, &exp.ExpandedText, &exp.ModelUsed, &exp.CreatedAt); err != nil {
			return nil, err
		}
		results[exp.MessageID] = exp
	}
	return results, rows.Err()
}

func (r *ExpansionRepo) Count(ctx context.Context) (int64, error) {
	const query = `SELECT COUNT(*) FROM message_expansions`
	var count int64
	if err := r.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// DeleteAll wipes the expansion store. Only the explicit reset command calls
// this; expansions are otherwise immutable.
func (r *ExpansionRepo) DeleteAll(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM message_expansions`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
