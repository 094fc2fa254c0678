package model

import "time"

// VectorEntry is the indexed representation of one message: the searchable
// text plus the metadata needed for relational filtering at query time.
type VectorEntry struct {
	MessageID  string
	Document   string
	ChatID     string
	UserID     string
	SenderName string
	Timestamp  time.Time
	Embedding  []float32
}

// VectorHit is a similarity-search result before it is joined back to the
// source store. The backing message may no longer exist.
type VectorHit struct {
	MessageID  string
	Score      float64
	ChatID     string
	UserID     string
	SenderName string
	Timestamp  time.Time
}

type EmbeddingCache struct {
	ModelName   string
	TaskType    string
	ContentHash string
	Embedding   []float32
	Ctime       int64
}
