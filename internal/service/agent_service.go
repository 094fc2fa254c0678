package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/funtusov/telequery/internal/ai"
	"github.com/funtusov/telequery/internal/model"
)

// groundingTemperature leaves a little room for phrasing while staying
// faithful to the retrieved text.
const groundingTemperature = 0.3

const groundingSystemPrompt = "You are a helpful assistant that answers questions about a personal Telegram message archive. " +
	"Answer ONLY from the messages provided to you. " +
	"If the messages do not contain enough information to answer, reply with exactly: NO_ANSWER. " +
	"Never invent facts, names, dates or events that are not in the messages."

// noAnswerMarker is what the model is instructed to emit when the retrieved
// messages cannot support an answer.
const noAnswerMarker = "NO_ANSWER"

const defaultNoAnswerText = "I couldn't find anything in the message history that answers that."

const defaultErrorText = "Something went wrong while answering your question. Please try again."

// Retriever is the slice of SearchService the agent needs.
type Retriever interface {
	SearchRelevantMessages(ctx context.Context, input SearchInput) ([]model.RetrievalResult, error)
}

type AgentConfig struct {
	RelevanceFloor    float64
	MaxSourceMessages int
	Timeout           time.Duration
}

// AgentService answers a natural-language question over the archive. The
// contract is strict: generation only ever runs against retrieved messages,
// and the cited sources are exactly the messages the model saw.
type AgentService struct {
	retriever Retriever
	generator ai.IGenerator
	cfg       AgentConfig
}

func NewAgentService(retriever Retriever, generator ai.IGenerator, cfg AgentConfig) *AgentService {
	if cfg.MaxSourceMessages <= 0 {
		cfg.MaxSourceMessages = 20
	}
	return &AgentService{
		retriever: retriever,
		generator: generator,
		cfg:       cfg,
	}
}

// ProcessQuery never returns an error; failures surface as a response with
// StatusError so the transport layer can stay dumb.
func (s *AgentService) ProcessQuery(ctx context.Context, req *model.QueryRequest) *model.QueryResponse {
	logger := logutil.GetLogger(ctx).With(
		zap.String("chat_id", req.TelegramChatID),
		zap.String("user_id", req.TelegramUserID),
	)
	if strings.TrimSpace(req.UserQuestion) == "" {
		return &model.QueryResponse{
			AnswerText:     "Please provide a question.",
			SourceMessages: []model.SourceMessage{},
			Status:         model.StatusError,
		}
	}
	if strings.TrimSpace(req.TelegramUserID) == "" {
		return &model.QueryResponse{
			AnswerText:     "Please provide a telegram_user_id.",
			SourceMessages: []model.SourceMessage{},
			Status:         model.StatusError,
		}
	}

	// The asker's id identifies who is asking, not whose messages to search:
	// the answer may live in any participant's messages in the chat.
	results, err := s.retriever.SearchRelevantMessages(ctx, SearchInput{
		QueryText: req.UserQuestion,
		ChatID:    req.TelegramChatID,
	})
	if err != nil {
		logger.Error("retrieval failed", zap.Error(err))
		return s.errorResponse()
	}
	results = s.aboveFloor(results)
	if len(results) == 0 {
		// Nothing relevant was retrieved, so there is nothing to ground an
		// answer in. No generation call happens on this path.
		logger.Info("no relevant messages for question")
		return &model.QueryResponse{
			AnswerText:     defaultNoAnswerText,
			SourceMessages: []model.SourceMessage{},
			Status:         model.StatusNoAnswer,
		}
	}
	if len(results) > s.cfg.MaxSourceMessages {
		results = results[:s.cfg.MaxSourceMessages]
	}

	callCtx := ctx
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	answer, err := s.generator.Generate(callCtx, groundingSystemPrompt, buildGroundingPrompt(req.UserQuestion, results), groundingTemperature)
	if err != nil {
		logger.Error("answer generation failed", zap.Error(err))
		return s.errorResponse()
	}
	answer = strings.TrimSpace(answer)

	sources := make([]model.SourceMessage, 0, len(results))
	for _, r := range results {
		sources = append(sources, model.SourceMessage{
			MessageID: r.Message.MessageID,
			Sender:    r.Message.SenderName,
			Timestamp: r.Message.Timestamp,
			Text:      r.Message.Text,
		})
	}

	if answer == "" || strings.Contains(answer, noAnswerMarker) {
		return &model.QueryResponse{
			AnswerText:     defaultNoAnswerText,
			SourceMessages: sources,
			Status:         model.StatusNoAnswer,
		}
	}
	logger.Info("question answered", zap.Int("sources", len(sources)))
	return &model.QueryResponse{
		AnswerText:     answer,
		SourceMessages: sources,
		Status:         model.StatusSuccess,
	}
}

func (s *AgentService) aboveFloor(results []model.RetrievalResult) []model.RetrievalResult {
	if s.cfg.RelevanceFloor <= 0 {
		return results
	}
	kept := results[:0]
	for _, r := range results {
		if r.Score >= s.cfg.RelevanceFloor {
			kept = append(kept, r)
		}
	}
	return kept
}

func (s *AgentService) errorResponse() *model.QueryResponse {
	return &model.QueryResponse{
		AnswerText:     defaultErrorText,
		SourceMessages: []model.SourceMessage{},
		Status:         model.StatusError,
	}
}

func buildGroundingPrompt(question string, results []model.RetrievalResult) string {
	var sb strings.Builder
	sb.WriteString("Messages from the archive, most relevant first:\n\n")
	for i, r := range results {
		text := r.Message.Text
		if strings.TrimSpace(r.ExpandedText) != "" {
			text = r.ExpandedText
		}
		fmt.Fprintf(&sb, "[%d] id=%s from %s at %s:\n%s\n\n",
			i+1, r.Message.MessageID, r.Message.SenderName,
			r.Message.Timestamp.Format("2006-01-02 15:04"), text)
	}
	fmt.Fprintf(&sb, "Question: %s\n", question)
	return sb.String()
}
