package resilience

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestDoRetriesTransientErrors(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastRetry(3), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(eris.New("flaky"), http.StatusServiceUnavailable)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnNonTransient(t *testing.T) {
	calls := 0
	sentinel := NewProviderError("gemini", http.StatusUnauthorized, eris.New("bad key"))
	err := Do(context.Background(), fastRetry(5), func(ctx context.Context) error {
		calls++
		return sentinel
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoValReturnsValueFromLateSuccess(t *testing.T) {
	calls := 0
	got, err := DoVal(context.Background(), fastRetry(3), func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", NewTransientError(eris.New("flaky"), 0)
		}
		return "done", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "done", got)
}

func TestDoHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, fastRetry(10), func(ctx context.Context) error {
		calls++
		cancel()
		return NewTransientError(eris.New("flaky"), 0)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestProviderRetryConfigHonorsMaxRetries(t *testing.T) {
	cfg := ProviderRetryConfig(5, "gemini", "generate")
	assert.Equal(t, 5, cfg.MaxAttempts)

	cfg = ProviderRetryConfig(0, "gemini", "generate")
	assert.Equal(t, 3, cfg.MaxAttempts)
}

func TestIsTransientTaxonomy(t *testing.T) {
	assert.True(t, IsTransient(NewTransientError(eris.New("x"), 500)))
	assert.False(t, IsTransient(NewConfigurationError(eris.New("bad format"))))
	assert.False(t, IsTransient(NewProviderError("openai", 401, eris.New("denied"))))
	assert.False(t, IsTransient(nil))
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 400, 401, 403, 404, 422} {
		assert.False(t, IsTransientHTTPStatus(code), "status %d", code)
	}
}

func TestErrorTypePredicates(t *testing.T) {
	cfgErr := NewConfigurationError(eris.New("unknown format"))
	assert.True(t, IsConfiguration(cfgErr))
	assert.False(t, IsConfiguration(eris.New("plain")))

	provErr := NewProviderError("gemini", 403, eris.New("denied"))
	assert.True(t, IsProviderRejection(provErr))
	assert.False(t, IsProviderRejection(cfgErr))

	// Wrapped errors keep their classification.
	wrapped := eris.Wrap(provErr, "attempt 2")
	assert.True(t, IsProviderRejection(wrapped))
}
