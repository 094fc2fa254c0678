package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/funtusov/telequery/internal/ai"
	"github.com/funtusov/telequery/internal/model"
	appErr "github.com/funtusov/telequery/internal/pkg/errors"
)

type SearchInput struct {
	QueryText string
	ChatID    string
	UserID    string
	StartTime *time.Time
	EndTime   *time.Time
	TopK      int
}

type SearchConfig struct {
	TopK            int
	OverfetchFactor int
	Timeout         time.Duration
}

// SearchService joins vector similarity hits back to full message rows with
// relational filters. An empty result is a valid outcome, not an error.
type SearchService struct {
	messages   MessageStore
	expansions ExpansionStore
	vectors    VectorStore
	embedder   ai.IEmbedder
	cfg        SearchConfig
}

func NewSearchService(messages MessageStore, expansions ExpansionStore, vectors VectorStore, embedder ai.IEmbedder, cfg SearchConfig) *SearchService {
	if cfg.TopK <= 0 {
		cfg.TopK = 8
	}
	if cfg.OverfetchFactor <= 0 {
		cfg.OverfetchFactor = 4
	}
	return &SearchService{
		messages:   messages,
		expansions: expansions,
		vectors:    vectors,
		embedder:   embedder,
		cfg:        cfg,
	}
}

func (s *SearchService) SearchRelevantMessages(ctx context.Context, input SearchInput) ([]model.RetrievalResult, error) {
	if strings.TrimSpace(input.QueryText) == "" {
		return nil, fmt.Errorf("%w: query text is required", appErr.ErrInvalid)
	}
	topK := input.TopK
	if topK <= 0 {
		topK = s.cfg.TopK
	}
	logger := logutil.GetLogger(ctx).With(zap.String("chat_id", input.ChatID))

	embedCtx := ctx
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		embedCtx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	queryEmb, err := s.embedder.Embed(embedCtx, input.QueryText, TaskTypeQuery)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	// Over-fetch so metadata filtering and orphan removal still leave topK.
	hits, err := s.vectors.Query(ctx, queryEmb, topK*s.cfg.OverfetchFactor)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}
	hits = filterHits(hits, input)
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]string, len(hits))
	for i, hit := range hits {
		ids[i] = hit.MessageID
	}
	msgs, err := s.messages.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	byID := make(map[string]model.Message, len(msgs))
	for _, msg := range msgs {
		byID[msg.MessageID] = msg
	}

	// Hits whose message vanished from the source store are orphans; drop
	// them here, the next full rebuild removes them for good.
	kept := hits[:0]
	for _, hit := range hits {
		if _, ok := byID[hit.MessageID]; ok {
			kept = append(kept, hit)
		} else {
			logger.Debug("dropping orphaned vector entry", zap.String("message_id", hit.MessageID))
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Score != kept[j].Score {
			return kept[i].Score > kept[j].Score
		}
		return kept[i].Timestamp.After(kept[j].Timestamp)
	})
	if len(kept) > topK {
		kept = kept[:topK]
	}

	finalIDs := make([]string, len(kept))
	for i, hit := range kept {
		finalIDs[i] = hit.MessageID
	}
	exps, err := s.expansions.GetByMessageIDs(ctx, finalIDs)
	if err != nil {
		return nil, fmt.Errorf("load expansions: %w", err)
	}

	results := make([]model.RetrievalResult, 0, len(kept))
	for _, hit := range kept {
		result := model.RetrievalResult{
			Message: byID[hit.MessageID],
			Score:   hit.Score,
		}
		if exp, ok := exps[hit.MessageID]; ok {
			result.ExpandedText = exp.ExpandedText
		}
		results = append(results, result)
	}
	logger.Debug("retrieval finished", zap.Int("hits", len(hits)), zap.Int("results", len(results)))
	return results, nil
}

func filterHits(hits []model.VectorHit, input SearchInput) []model.VectorHit {
	kept := hits[:0]
	for _, hit := range hits {
		if input.ChatID != "" && hit.ChatID != input.ChatID {
			continue
		}
		if input.UserID != "" && hit.UserID != input.UserID {
			continue
		}
		if input.StartTime != nil && hit.Timestamp.Before(*input.StartTime) {
			continue
		}
		if input.EndTime != nil && hit.Timestamp.After(*input.EndTime) {
			continue
		}
		kept = append(kept, hit)
	}
	return kept
}
