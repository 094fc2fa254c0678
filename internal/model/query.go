package model

import "time"

// RetrievalResult is one retrieved message with its similarity score and, if
// present, the expansion used as its searchable text.
type RetrievalResult struct {
	Message      Message
	Score        float64
	ExpandedText string
}

const (
	StatusSuccess  = "success"
	StatusNoAnswer = "no_answer"
	StatusError    = "error"
)

type QueryRequest struct {
	UserQuestion   string `json:"user_question"`
	TelegramUserID string `json:"telegram_user_id"`
	TelegramChatID string `json:"telegram_chat_id,omitempty"`
}

type SourceMessage struct {
	MessageID string    `json:"message_id"`
	Sender    string    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
}

type QueryResponse struct {
	AnswerText     string          `json:"answer_text"`
	SourceMessages []SourceMessage `json:"source_messages"`
	Status         string          `json:"status"`
}

// ExpansionStats reports backlog progress for the contextualization pipeline.
type ExpansionStats struct {
	TotalMessages    int64   `json:"total_messages"`
	ExpandedMessages int64   `json:"expanded_messages"`
	PendingMessages  int64   `json:"pending_messages"`
	CompletionPct    float64 `json:"completion_percentage"`
}
