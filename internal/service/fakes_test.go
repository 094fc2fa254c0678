package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/funtusov/telequery/internal/model"
	appErr "github.com/funtusov/telequery/internal/pkg/errors"
)

type fakeMessageStore struct {
	mu   sync.Mutex
	msgs map[string]model.Message
}

func newFakeMessageStore(msgs ...model.Message) *fakeMessageStore {
	s := &fakeMessageStore{msgs: make(map[string]model.Message)}
	for _, m := range msgs {
		s.msgs[m.MessageID] = m
	}
	return s
}

func (s *fakeMessageStore) GetByID(ctx context.Context, messageID string) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.msgs[messageID]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return &msg, nil
}

func (s *fakeMessageStore) GetByIDs(ctx context.Context, messageIDs []string) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Message
	for _, id := range messageIDs {
		if msg, ok := s.msgs[id]; ok {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (s *fakeMessageStore) ListChatBefore(ctx context.Context, chatID string, before time.Time, limit int) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Message
	for _, msg := range s.msgs {
		if msg.ChatID == chatID && msg.Timestamp.Before(before) {
			out = append(out, msg)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].MessageID > out[j].MessageID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeMessageStore) listSorted() []model.Message {
	var out []model.Message
	for _, msg := range s.msgs {
		out = append(out, msg)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].MessageID < out[j].MessageID
	})
	return out
}

func (s *fakeMessageStore) ListWithText(ctx context.Context) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Message
	for _, msg := range s.listSorted() {
		if strings.TrimSpace(msg.Text) != "" {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (s *fakeMessageStore) CountWithText(ctx context.Context) (int64, error) {
	msgs, _ := s.ListWithText(ctx)
	return int64(len(msgs)), nil
}

type fakeExpansionStore struct {
	mu   sync.Mutex
	exps map[string]model.MessageExpansion
}

func newFakeExpansionStore() *fakeExpansionStore {
	return &fakeExpansionStore{exps: make(map[string]model.MessageExpansion)}
}

func (s *fakeExpansionStore) Insert(ctx context.Context, exp *model.MessageExpansion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.exps[exp.MessageID]; ok {
		return appErr.ErrConflict
	}
	s.exps[exp.MessageID] = *exp
	return nil
}

func (s *fakeExpansionStore) GetByMessageID(ctx context.Context, messageID string) (*model.MessageExpansion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.exps[messageID]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return &exp, nil
}

func (s *fakeExpansionStore) GetByMessageIDs(ctx context.Context, messageIDs []string) (map[string]model.MessageExpansion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]model.MessageExpansion)
	for _, id := range messageIDs {
		if exp, ok := s.exps[id]; ok {
			out[id] = exp
		}
	}
	return out, nil
}

func (s *fakeExpansionStore) Count(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.exps)), nil
}

func (s *fakeExpansionStore) DeleteAll(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.exps))
	s.exps = make(map[string]model.MessageExpansion)
	return n, nil
}

// backlogStore glues the message and expansion fakes so ListUnexpanded sees
// expansion writes, mirroring the LEFT JOIN the real store runs.
type backlogStore struct {
	*fakeMessageStore
	exps *fakeExpansionStore
}

func (s *backlogStore) ListUnexpanded(ctx context.Context, limit int) ([]model.Message, error) {
	s.mu.Lock()
	msgs := s.listSorted()
	s.mu.Unlock()
	var out []model.Message
	for _, msg := range msgs {
		if strings.TrimSpace(msg.Text) == "" {
			continue
		}
		if _, err := s.exps.GetByMessageID(ctx, msg.MessageID); err == nil {
			continue
		}
		out = append(out, msg)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *fakeMessageStore) ListUnexpanded(ctx context.Context, limit int) ([]model.Message, error) {
	return nil, nil
}

type fakeVectorStore struct {
	mu      sync.Mutex
	entries map[string]model.VectorEntry
	hits    []model.VectorHit
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{entries: make(map[string]model.VectorEntry)}
}

func (s *fakeVectorStore) Upsert(ctx context.Context, entry *model.VectorEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.MessageID] = *entry
	return nil
}

func (s *fakeVectorStore) Query(ctx context.Context, embedding []float32, topN int) ([]model.VectorHit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hits := append([]model.VectorHit(nil), s.hits...)
	if len(hits) > topN {
		hits = hits[:topN]
	}
	return hits, nil
}

func (s *fakeVectorStore) ReplaceAll(ctx context.Context, entries []model.VectorEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]model.VectorEntry, len(entries))
	for _, e := range entries {
		s.entries[e.MessageID] = e
	}
	return nil
}

// fakeGenerator records calls and answers from a canned script.
type fakeGenerator struct {
	mu      sync.Mutex
	calls   int
	prompts []string
	reply   string
	err     error
	replyFn func(userPrompt string) (string, error)
}

func (g *fakeGenerator) Generate(ctx context.Context, systemPrompt string, userPrompt string, temperature float64) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.prompts = append(g.prompts, userPrompt)
	if g.replyFn != nil {
		return g.replyFn(userPrompt)
	}
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}

func (g *fakeGenerator) ModelName() string { return "fake-model" }

func (g *fakeGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (e *fakeEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	// Deterministic tiny embedding derived from the text length.
	return []float32{float32(len(text)), 1}, nil
}

func (e *fakeEmbedder) ModelName() string { return "fake-embed" }

func msgAt(id, chatID, sender, text string, minuteOffset int) model.Message {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return model.Message{
		MessageID:  id,
		ChatID:     chatID,
		UserID:     "u-" + sender,
		SenderName: sender,
		Text:       text,
		Timestamp:  base.Add(time.Duration(minuteOffset) * time.Minute),
	}
}
