package ai

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type scriptedGenerator struct {
	mu    sync.Mutex
	calls int
	errs  []error
	reply string
}

func (g *scriptedGenerator) Generate(ctx context.Context, systemPrompt string, userPrompt string, temperature float64) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	idx := g.calls
	g.calls++
	if idx < len(g.errs) && g.errs[idx] != nil {
		return "", g.errs[idx]
	}
	return g.reply, nil
}

func (g *scriptedGenerator) ModelName() string { return "scripted" }

func TestRetryGenerator_RetriesTransient(t *testing.T) {
	inner := &scriptedGenerator{
		errs:  []error{&ProviderError{Provider: "p", StatusCode: 429, Message: "slow down"}},
		reply: "ok",
	}
	g := WrapRetryGenerator(inner, RetryConfig{MaxTries: 3, InitialInterval: time.Millisecond})

	out, err := g.Generate(context.Background(), "sys", "user", 0.1)
	require.NoError(t, err)
	require.Equal(t, "ok", out)
	require.Equal(t, 2, inner.calls)
}

func TestRetryGenerator_PermanentFailsFast(t *testing.T) {
	inner := &scriptedGenerator{
		errs: []error{
			&ProviderError{Provider: "p", StatusCode: 401, Message: "bad key"},
			nil,
		},
		reply: "should not be reached",
	}
	g := WrapRetryGenerator(inner, RetryConfig{MaxTries: 5, InitialInterval: time.Millisecond})

	_, err := g.Generate(context.Background(), "sys", "user", 0.1)
	require.Error(t, err)
	require.Equal(t, 1, inner.calls)
}

func TestRetryGenerator_ExhaustsTries(t *testing.T) {
	inner := &scriptedGenerator{
		errs: []error{
			&ProviderError{StatusCode: 500},
			&ProviderError{StatusCode: 500},
			&ProviderError{StatusCode: 500},
			&ProviderError{StatusCode: 500},
		},
	}
	g := WrapRetryGenerator(inner, RetryConfig{MaxTries: 3, InitialInterval: time.Millisecond})

	_, err := g.Generate(context.Background(), "sys", "user", 0.1)
	require.Error(t, err)
	require.Equal(t, 3, inner.calls)
}

type scriptedEmbedder struct {
	calls int
	errs  []error
}

func (e *scriptedEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	idx := e.calls
	e.calls++
	if idx < len(e.errs) && e.errs[idx] != nil {
		return nil, e.errs[idx]
	}
	return []float32{1, 2}, nil
}

func (e *scriptedEmbedder) ModelName() string { return "scripted-embed" }

func TestRetryEmbedder_RetriesTransient(t *testing.T) {
	inner := &scriptedEmbedder{errs: []error{&ProviderError{StatusCode: 503}}}
	e := WrapRetryEmbedder(inner, RetryConfig{MaxTries: 3, InitialInterval: time.Millisecond})

	out, err := e.Embed(context.Background(), "text", "RETRIEVAL_DOCUMENT")
	require.NoError(t, err)
	require.Equal(t, []float32{1, 2}, out)
	require.Equal(t, 2, inner.calls)
}
