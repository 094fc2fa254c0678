package repo

import (
	"context"
	"database/sql"

	"github.com/pgvector/pgvector-go"

	"github.com/funtusov/telequery/internal/model"
)

// rebuildLockID guards full index rebuilds; two rebuilds must never interleave.
const rebuildLockID = 7352001

type VectorRepo struct {
	db *sql.DB
}

func NewVectorRepo(db *sql.DB) *VectorRepo {
	return &VectorRepo{db: db}
}

// Upsert inserts or replaces the single live entry for a message.
func (r *VectorRepo) Upsert(ctx context.Context, entry *model.VectorEntry) error {
	const query = `
		INSERT INTO message_vectors (message_id, document, chat_id, user_id, sender_name, ts, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (message_id) DO UPDATE SET
			document = EXCLUDED.document,
			chat_id = EXCLUDED.chat_id,
			user_id = EXCLUDED.user_id,
			sender_name = EXCLUDED.sender_name,
			ts = EXCLUDED.ts,
			embedding = EXCLUDED.embedding
	`
	_, err := r.db.ExecContext(ctx, query,
		entry.MessageID,
		entry.Document,
		entry.ChatID,
		entry.UserID,
		entry.SenderName,
		entry.Timestamp,
		pgvector.NewVector(entry.Embedding),
	)
	return err
}

// Query runs cosine similarity search and returns the topN closest entries,
// highest score first. Score is 1 - cosine distance.
func (r *VectorRepo) Query(ctx context.Context, embedding []float32, topN int) ([]model.VectorHit, error) {
	const query = `
		SELECT message_id, chat_id, user_id, sender_name, ts, 1 - (embedding <=> $1) AS score
		FROM message_vectors
		ORDER BY embedding <=> $1, ts DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, pgvector.NewVector(embedding), topN)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var hits []model.VectorHit
	for rows.Next() {
		var hit model.VectorHit
		if err := rows.Scan(&hit.MessageID, &hit.ChatID, &hit.UserID, &hit.SenderName, &hit.Timestamp, &hit.Score); err != nil {
			return nil, err
		}
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// ReplaceAll swaps the whole index for the given entries in one transaction.
// Readers observe either the previous contents or the new ones, never a
// partially rebuilt index; the advisory lock serializes concurrent rebuilds.
func (r *VectorRepo) ReplaceAll(ctx context.Context, entries []model.VectorEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, rebuildLockID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM message_vectors`); err != nil {
		return err
	}
	const insert = `
		INSERT INTO message_vectors (message_id, document, chat_id, user_id, sender_name, ts, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i := range entries {
		entry := &entries[i]
		if _, err := stmt.ExecContext(ctx,
			entry.MessageID,
			entry.Document,
			entry.ChatID,
			entry.UserID,
			entry.SenderName,
			entry.Timestamp,
			pgvector.NewVector(entry.Embedding),
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *VectorRepo) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM message_vectors`).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
