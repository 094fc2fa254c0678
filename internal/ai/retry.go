package ai

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryConfig bounds how hard we lean on a flaky provider. Only transient
// failures (rate limit, 5xx, timeout) are retried; permanent ones surface on
// the first attempt.
type RetryConfig struct {
	MaxTries        uint
	InitialInterval time.Duration
}

func (c RetryConfig) options() []backoff.RetryOption {
	bo := backoff.NewExponentialBackOff()
	if c.InitialInterval > 0 {
		bo.InitialInterval = c.InitialInterval
	}
	maxTries := c.MaxTries
	if maxTries == 0 {
		maxTries = 3
	}
	return []backoff.RetryOption{
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(maxTries),
	}
}

func WrapRetryGenerator(next IGenerator, cfg RetryConfig) IGenerator {
	if next == nil {
		return nil
	}
	return &retryGenerator{next: next, cfg: cfg}
}

type retryGenerator struct {
	next IGenerator
	cfg  RetryConfig
}

func (r *retryGenerator) Generate(ctx context.Context, systemPrompt string, userPrompt string, temperature float64) (string, error) {
	return backoff.Retry(ctx, func() (string, error) {
		out, err := r.next.Generate(ctx, systemPrompt, userPrompt, temperature)
		if err != nil && !IsTransient(err) {
			return "", backoff.Permanent(err)
		}
		return out, err
	}, r.cfg.options()...)
}

func (r *retryGenerator) ModelName() string {
	return r.next.ModelName()
}

func WrapRetryEmbedder(next IEmbedder, cfg RetryConfig) IEmbedder {
	if next == nil {
		return nil
	}
	return &retryEmbedder{next: next, cfg: cfg}
}

type retryEmbedder struct {
	next IEmbedder
	cfg  RetryConfig
}

func (r *retryEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	return backoff.Retry(ctx, func() ([]float32, error) {
		out, err := r.next.Embed(ctx, text, taskType)
		if err != nil && !IsTransient(err) {
			return nil, backoff.Permanent(err)
		}
		return out, err
	}, r.cfg.options()...)
}

func (r *retryEmbedder) ModelName() string {
	return r.next.ModelName()
}
