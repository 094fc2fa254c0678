package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/funtusov/telequery/internal/model"
)

// Exercises the full path: expand the backlog, rebuild the index from the
// expansions, retrieve, and answer.
func TestPipeline_ExpandIndexQuery(t *testing.T) {
	ctx := context.Background()
	messages := &backlogStore{
		fakeMessageStore: newFakeMessageStore(
			msgAt("m1", "c1", "alice", "selling my tent, blue, barely used", 0),
			msgAt("m2", "c1", "carol", "how much?", 1),
			msgAt("m3", "c1", "alice", "50 euro", 2),
		),
		exps: newFakeExpansionStore(),
	}
	vectors := newFakeVectorStore()

	expandGen := &fakeGenerator{replyFn: func(userPrompt string) (string, error) {
		// Stand-in for the contextualizing model: echo the target line.
		lines := strings.Split(userPrompt, "\n")
		for i, line := range lines {
			if strings.HasPrefix(line, "Target message") && i+1 < len(lines) {
				return "In the tent sale thread: " + lines[i+1], nil
			}
		}
		return "rewritten", nil
	}}
	expansion := NewExpansionService(messages, messages.exps, expandGen, ExpansionConfig{WindowSize: 2, BatchSize: 10, Workers: 2})
	index := NewIndexService(messages, messages.exps, vectors, &fakeEmbedder{}, IndexConfig{Workers: 2})

	report, err := expansion.RunBatch(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, report.Succeeded)

	n, err := index.RebuildAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Contains(t, vectors.entries["m2"].Document, "how much?")
	require.Contains(t, vectors.entries["m2"].Document, "tent sale thread")

	// Simulate similarity ranking over the rebuilt index.
	for _, id := range []string{"m1", "m3", "m2"} {
		e := vectors.entries[id]
		vectors.hits = append(vectors.hits, model.VectorHit{
			MessageID: e.MessageID, Score: 0.9 - float64(len(vectors.hits))*0.1,
			ChatID: e.ChatID, UserID: e.UserID, SenderName: e.SenderName, Timestamp: e.Timestamp,
		})
	}
	search := NewSearchService(messages, messages.exps, vectors, &fakeEmbedder{}, SearchConfig{TopK: 3})
	answerGen := &fakeGenerator{reply: "Alice sold a blue tent for 50 euro."}
	agent := NewAgentService(search, answerGen, AgentConfig{})

	resp := agent.ProcessQuery(ctx, &model.QueryRequest{
		UserQuestion:   "what did alice sell and for how much?",
		TelegramUserID: "u-dave",
		TelegramChatID: "c1",
	})
	require.Equal(t, model.StatusSuccess, resp.Status)
	require.Len(t, resp.SourceMessages, 3)
	// The grounding prompt carried the contextualized text.
	require.Contains(t, answerGen.prompts[0], "tent sale thread")
}

// A terse reply ("Yes, I agree.") becomes answerable only through its
// expansion, which must carry the referent from the replied-to message.
func TestPipeline_ReplyExpansionCarriesReferent(t *testing.T) {
	ctx := context.Background()
	m1 := msgAt("m1", "c1", "alice", "Should we use the blue tent or the green one?", 0)
	m2 := msgAt("m2", "c1", "bob", "Yes, I agree.", 1)
	m2.ReplyToMessageID = "m1"
	messages := &backlogStore{
		fakeMessageStore: newFakeMessageStore(m1, m2),
		exps:             newFakeExpansionStore(),
	}
	vectors := newFakeVectorStore()

	expandGen := &fakeGenerator{replyFn: func(userPrompt string) (string, error) {
		// The rewrite may only use what the prompt supplies; the blue tent
		// question must be present for the reply to be expandable.
		if strings.Contains(userPrompt, "Yes, I agree.") {
			if !strings.Contains(userPrompt, "blue tent") {
				return "", errors.New("context window missing the replied-to message")
			}
			return "Bob agrees to use the blue tent.", nil
		}
		return "Alice asks whether to use the blue tent or the green one.", nil
	}}
	expansion := NewExpansionService(messages, messages.exps, expandGen, ExpansionConfig{WindowSize: 5, BatchSize: 10, Workers: 1})
	index := NewIndexService(messages, messages.exps, vectors, &fakeEmbedder{}, IndexConfig{Workers: 1})

	report, err := expansion.RunBatch(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, report.Succeeded)

	exp, err := messages.exps.GetByMessageID(ctx, "m2")
	require.NoError(t, err)
	require.Contains(t, exp.ExpandedText, "blue tent")

	_, err = index.RebuildAll(ctx)
	require.NoError(t, err)
	vectors.hits = []model.VectorHit{{
		MessageID: "m2", Score: 0.92, ChatID: "c1", UserID: m2.UserID,
		SenderName: "bob", Timestamp: m2.Timestamp,
	}}

	search := NewSearchService(messages, messages.exps, vectors, &fakeEmbedder{}, SearchConfig{TopK: 3})
	answerGen := &fakeGenerator{reply: "You picked the blue tent."}
	agent := NewAgentService(search, answerGen, AgentConfig{})

	resp := agent.ProcessQuery(ctx, &model.QueryRequest{
		UserQuestion:   "which tent did we pick?",
		TelegramUserID: "u-carol",
		TelegramChatID: "c1",
	})
	require.Equal(t, model.StatusSuccess, resp.Status)
	require.Len(t, resp.SourceMessages, 1)
	require.Equal(t, "m2", resp.SourceMessages[0].MessageID)
}
