// Package provider implements the wire-format clients for the supported AI
// services. The format registry is closed: a config naming an unknown format
// is a configuration error, never a guess.
package provider

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/airqa/inspect-cli/internal/model"
	"github.com/airqa/inspect-cli/internal/resilience"
)

// Request carries one generation call. ImageData is optional; when present it
// is attached in the format's native image encoding.
type Request struct {
	Prompt      string
	ImageData   []byte
	ImageMIME   string
	MaxTokens   int
	Temperature *float64
}

// Response is the normalized result of a generation call.
type Response struct {
	Text string
	// Confidence is the format-level baseline confidence assigned to text
	// produced by this provider family.
	Confidence float64
}

// Client is a configured connection to one AI service.
type Client interface {
	// Generate runs one text or vision generation call. Transient failures
	// are retried up to the config's retry budget before the error surfaces.
	Generate(ctx context.Context, req Request) (*Response, error)
	// Probe performs a minimal connectivity check using the config's own
	// timeout. It never retries.
	Probe(ctx context.Context) error
	Config() model.ServiceConfig
}

// Option configures client construction.
type Option func(*options)

type options struct {
	httpClient *http.Client
}

// WithHTTPClient overrides the default http.Client. Tests use this to point
// clients at local servers.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// New builds a client for the config's wire format.
func New(cfg model.ServiceConfig, opts ...Option) (Client, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	switch cfg.Format {
	case model.FormatGemini:
		return newGeminiClient(cfg, o.httpClient), nil
	case model.FormatOpenAI:
		return newOpenAIClient(cfg, o.httpClient), nil
	case model.FormatAnthropic:
		return newAnthropicClient(cfg, o.httpClient), nil
	default:
		return nil, resilience.NewConfigurationError(
			eris.Errorf("provider: unsupported api format %q for config %s", cfg.Format, cfg.Name))
	}
}

// ProbeConfig builds a throwaway client for cfg and probes it. Failover uses
// this to test candidates without touching any client cache.
func ProbeConfig(ctx context.Context, cfg model.ServiceConfig) error {
	client, err := New(cfg)
	if err != nil {
		return err
	}
	return client.Probe(ctx)
}

// probeContext applies the config's own timeout when one is set. A config
// saved without a timeout probes under the caller's deadline alone.
func probeContext(ctx context.Context, cfg model.ServiceConfig) (context.Context, context.CancelFunc) {
	if cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, cfg.Timeout)
}

// statusError maps a non-2xx provider response onto the retry taxonomy:
// transient statuses are retried, everything else fails over immediately.
func statusError(provider string, status int, body []byte) error {
	err := eris.Errorf("%s: unexpected status %d: %s", provider, status, truncate(body, 512))
	if resilience.IsTransientHTTPStatus(status) {
		return resilience.NewTransientError(err, status)
	}
	return resilience.NewProviderError(provider, status, err)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
