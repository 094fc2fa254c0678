package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/funtusov/telequery/internal/ai"
	"github.com/funtusov/telequery/internal/model"
	appErr "github.com/funtusov/telequery/internal/pkg/errors"
)

const (
	TaskTypeDocument = "RETRIEVAL_DOCUMENT"
	TaskTypeQuery    = "RETRIEVAL_QUERY"
)

// expansionFetchChunk bounds the IN clause when joining expansions.
const expansionFetchChunk = 500

// ResolveSearchableText is the single point of truth for which text
// represents a message in the index: the expansion when one exists and is
// non-empty, the raw text otherwise.
func ResolveSearchableText(msg *model.Message, exp *model.MessageExpansion) string {
	if exp != nil && strings.TrimSpace(exp.ExpandedText) != "" {
		return exp.ExpandedText
	}
	return msg.Text
}

type IndexConfig struct {
	Workers int
	Timeout time.Duration
}

// IndexService maintains the vector index: full atomic rebuilds and
// incremental per-message upserts.
type IndexService struct {
	messages   MessageStore
	expansions ExpansionStore
	vectors    VectorStore
	embedder   ai.IEmbedder
	cfg        IndexConfig
}

func NewIndexService(messages MessageStore, expansions ExpansionStore, vectors VectorStore, embedder ai.IEmbedder, cfg IndexConfig) *IndexService {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &IndexService{
		messages:   messages,
		expansions: expansions,
		vectors:    vectors,
		embedder:   embedder,
		cfg:        cfg,
	}
}

// RebuildAll re-derives the entire index and swaps it in atomically. Any
// embedding failure aborts the rebuild and leaves the previous index
// untouched. Returns the number of entries indexed.
func (s *IndexService) RebuildAll(ctx context.Context) (int, error) {
	logger := logutil.GetLogger(ctx)
	msgs, err := s.messages.ListWithText(ctx)
	if err != nil {
		return 0, fmt.Errorf("list messages: %w", err)
	}
	exps, err := s.fetchExpansions(ctx, msgs)
	if err != nil {
		return 0, fmt.Errorf("fetch expansions: %w", err)
	}

	type candidate struct {
		msg model.Message
		doc string
	}
	candidates := make([]candidate, 0, len(msgs))
	for _, msg := range msgs {
		var exp *model.MessageExpansion
		if e, ok := exps[msg.MessageID]; ok {
			exp = &e
		}
		doc := ResolveSearchableText(&msg, exp)
		if strings.TrimSpace(doc) == "" {
			continue
		}
		candidates = append(candidates, candidate{msg: msg, doc: doc})
	}

	entries := make([]model.VectorEntry, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i := range candidates {
		i := i
		g.Go(func() error {
			cand := candidates[i]
			embedding, err := s.embed(gctx, cand.doc)
			if err != nil {
				return fmt.Errorf("embed message %s: %w", cand.msg.MessageID, err)
			}
			entries[i] = model.VectorEntry{
				MessageID:  cand.msg.MessageID,
				Document:   cand.doc,
				ChatID:     cand.msg.ChatID,
				UserID:     cand.msg.UserID,
				SenderName: cand.msg.SenderName,
				Timestamp:  cand.msg.Timestamp,
				Embedding:  embedding,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	if err := s.vectors.ReplaceAll(ctx, entries); err != nil {
		return 0, fmt.Errorf("replace index: %w", err)
	}
	logger.Info("vector index rebuilt", zap.Int("entries", len(entries)), zap.Int("messages", len(msgs)))
	return len(entries), nil
}

// UpsertMessage refreshes the single index entry for one message, e.g. right
// after its expansion was written. Messages with no searchable text are
// ignored.
func (s *IndexService) UpsertMessage(ctx context.Context, messageID string) error {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	exp, err := s.expansions.GetByMessageID(ctx, messageID)
	if err != nil && !appErr.IsNotFound(err) {
		return err
	}
	doc := ResolveSearchableText(msg, exp)
	if strings.TrimSpace(doc) == "" {
		return nil
	}
	embedding, err := s.embed(ctx, doc)
	if err != nil {
		return fmt.Errorf("embed message %s: %w", messageID, err)
	}
	return s.vectors.Upsert(ctx, &model.VectorEntry{
		MessageID:  msg.MessageID,
		Document:   doc,
		ChatID:     msg.ChatID,
		UserID:     msg.UserID,
		SenderName: msg.SenderName,
		Timestamp:  msg.Timestamp,
		Embedding:  embedding,
	})
}

func (s *IndexService) embed(ctx context.Context, text string) ([]float32, error) {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	return s.embedder.Embed(ctx, text, TaskTypeDocument)
}

func (s *IndexService) fetchExpansions(ctx context.Context, msgs []model.Message) (map[string]model.MessageExpansion, error) {
	ids := make([]string, len(msgs))
	for i, msg := range msgs {
		ids[i] = msg.MessageID
	}
	all := make(map[string]model.MessageExpansion, len(ids))
	for start := 0; start < len(ids); start += expansionFetchChunk {
		end := start + expansionFetchChunk
		if end > len(ids) {
			end = len(ids)
		}
		chunk, err := s.expansions.GetByMessageIDs(ctx, ids[start:end])
		if err != nil {
			return nil, err
		}
		for id, exp := range chunk {
			all[id] = exp
		}
	}
	return all, nil
}
