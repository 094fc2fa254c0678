package ai

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProviderErrorTransient(t *testing.T) {
	cases := []struct {
		status    int
		transient bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusRequestTimeout, true},
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
		{http.StatusNotFound, false},
	}
	for _, tc := range cases {
		err := &ProviderError{Provider: "test", StatusCode: tc.status, Message: "x"}
		require.Equal(t, tc.transient, err.Transient(), "status %d", tc.status)
	}
}

func TestIsTransient(t *testing.T) {
	require.True(t, IsTransient(&ProviderError{StatusCode: 503}))
	require.True(t, IsTransient(context.DeadlineExceeded))
	require.False(t, IsTransient(&ProviderError{StatusCode: 400}))
	require.False(t, IsTransient(errors.New("some other error")))
}

func TestNewProvider_KnownNames(t *testing.T) {
	for _, name := range []string{"openai", "anthropic", "gemini", "openrouter", "OpenAI", " openai "} {
		_, err := NewProvider(name, map[string]interface{}{"api_key": "k"})
		// The factory may still reject the config, but the name must resolve.
		if err != nil {
			require.NotContains(t, err.Error(), "unsupported", "name %q", name)
		}
	}
}

func TestNewProvider_Unknown(t *testing.T) {
	_, err := NewProvider("does-not-exist", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported")

	_, err = NewProvider("", nil)
	require.Error(t, err)
}

func TestNewEmbedProvider_Unknown(t *testing.T) {
	_, err := NewEmbedProvider("anthropic", nil)
	// Anthropic has no embedding API; only generate is registered.
	require.Error(t, err)
}
