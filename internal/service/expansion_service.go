package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/funtusov/telequery/internal/ai"
	"github.com/funtusov/telequery/internal/model"
	appErr "github.com/funtusov/telequery/internal/pkg/errors"
)

// expansionTemperature keeps rewrites near-deterministic.
const expansionTemperature = 0.1

const expansionSystemPrompt = "You are an assistant that rewrites Telegram messages to include their conversational context, making each message standalone and searchable."

type ExpansionConfig struct {
	WindowSize int
	BatchSize  int
	Workers    int
	Timeout    time.Duration
}

// ExpansionService turns terse, context-dependent messages into
// self-contained searchable text and persists the result. The only durable
// effect of a successful Expand is one expansion row.
type ExpansionService struct {
	messages   MessageStore
	expansions ExpansionStore
	window     *ContextWindowBuilder
	generator  ai.IGenerator
	cfg        ExpansionConfig
}

func NewExpansionService(messages MessageStore, expansions ExpansionStore, generator ai.IGenerator, cfg ExpansionConfig) *ExpansionService {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultWindowSize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &ExpansionService{
		messages:   messages,
		expansions: expansions,
		window:     NewContextWindowBuilder(messages),
		generator:  generator,
		cfg:        cfg,
	}
}

// BatchReport summarizes one orchestrator run.
type BatchReport struct {
	Attempted    int
	Succeeded    int
	Failed       int
	SkippedEmpty int
	SucceededIDs []string
}

// Expand rewrites one message. Messages without non-whitespace text are
// skipped without a provider call or a write; skipped=true, no error.
func (s *ExpansionService) Expand(ctx context.Context, msg *model.Message) (exp *model.MessageExpansion, skipped bool, err error) {
	if !msg.HasText() {
		return nil, true, nil
	}
	window, err := s.window.Build(ctx, msg, s.cfg.WindowSize)
	if err != nil {
		return nil, false, fmt.Errorf("build context window: %w", err)
	}
	userPrompt := buildExpansionPrompt(msg, window)

	callCtx := ctx
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	text, err := s.generator.Generate(callCtx, expansionSystemPrompt, userPrompt, expansionTemperature)
	if err != nil {
		return nil, false, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, false, &ai.ProviderError{Provider: s.generator.ModelName(), Message: "empty expansion"}
	}

	exp = &model.MessageExpansion{
		MessageID:    msg.MessageID,
		ExpandedText: text,
		ModelUsed:    s.generator.ModelName(),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.expansions.Insert(ctx, exp); err != nil {
		if appErr.IsConflict(err) {
			// Another writer got here first; the row exists, which is all
			// that matters.
			logutil.GetLogger(ctx).Debug("expansion already present", zap.String("message_id", msg.MessageID))
			return exp, false, nil
		}
		return nil, false, fmt.Errorf("persist expansion: %w", err)
	}
	return exp, false, nil
}

// RunBatch expands the oldest unexpanded messages, up to the batch size.
// Failures are logged and counted; the batch never aborts on a single
// message. Re-running recomputes the backlog from the expansion store, so a
// crash mid-batch loses nothing and repeats nothing.
func (s *ExpansionService) RunBatch(ctx context.Context) (*BatchReport, error) {
	logger := logutil.GetLogger(ctx)
	backlog, err := s.messages.ListUnexpanded(ctx, s.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("list unexpanded: %w", err)
	}
	report := &BatchReport{Attempted: len(backlog)}
	if len(backlog) == 0 {
		logger.Info("no messages pending expansion")
		return report, nil
	}
	logger.Info("expanding messages", zap.Int("count", len(backlog)), zap.Int("workers", s.cfg.Workers))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i := range backlog {
		msg := backlog[i]
		g.Go(func() error {
			_, skippedMsg, err := s.Expand(gctx, &msg)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				report.Failed++
				logger.Error("expand message failed", zap.String("message_id", msg.MessageID), zap.Error(err))
			case skippedMsg:
				report.SkippedEmpty++
			default:
				report.Succeeded++
				report.SucceededIDs = append(report.SucceededIDs, msg.MessageID)
			}
			return nil
		})
	}
	_ = g.Wait()

	logger.Info("expansion batch finished",
		zap.Int("attempted", report.Attempted),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Int("skipped_empty", report.SkippedEmpty),
	)
	return report, nil
}

// Stats reports backlog progress over the whole archive.
func (s *ExpansionService) Stats(ctx context.Context) (*model.ExpansionStats, error) {
	total, err := s.messages.CountWithText(ctx)
	if err != nil {
		return nil, err
	}
	expanded, err := s.expansions.Count(ctx)
	if err != nil {
		return nil, err
	}
	stats := &model.ExpansionStats{
		TotalMessages:    total,
		ExpandedMessages: expanded,
		PendingMessages:  total - expanded,
	}
	if total > 0 {
		stats.CompletionPct = float64(expanded) / float64(total) * 100
	}
	return stats, nil
}

// Reset deletes every expansion row. Only the explicit reset command uses it.
func (s *ExpansionService) Reset(ctx context.Context) (int64, error) {
	return s.expansions.DeleteAll(ctx)
}

func buildExpansionPrompt(target *model.Message, window []model.Message) string {
	var sb strings.Builder
	sb.WriteString("Here is a Telegram conversation in chronological order:\n\n")
	if len(window) == 0 {
		sb.WriteString("(no earlier messages)\n")
	}
	for _, msg := range window {
		fmt.Fprintf(&sb, "%s (%s): %s\n", msg.SenderName, msg.Timestamp.Format("2006-01-02 15:04"), msg.Text)
	}
	fmt.Fprintf(&sb, "\nTarget message from %s at %s:\n%s\n\n",
		target.SenderName, target.Timestamp.Format("2006-01-02 15:04"), target.Text)
	sb.WriteString(`Rewrite the target message so it can be understood standalone.

Rules:
1. Only use information from the provided conversation.
2. Do not add new information or make assumptions.
3. Keep the original message's intent and tone.
4. Make it a complete, searchable sentence or paragraph.
5. If the message is already self-contained, keep it mostly unchanged.

Return only the rewritten text.`)
	return sb.String()
}
