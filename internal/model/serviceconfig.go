// Package model defines the domain types shared across the orchestration engine.
package model

import "time"

// WireFormat identifies the request/response protocol a provider speaks.
// It is distinct from the provider brand: a self-hosted gateway may expose
// an OpenAI-compatible surface under any provider name.
type WireFormat string

const (
	FormatGemini    WireFormat = "gemini"
	FormatOpenAI    WireFormat = "openai"
	FormatAnthropic WireFormat = "anthropic"
)

// ServiceConfig describes one configured AI service endpoint.
type ServiceConfig struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Provider string     `json:"provider"`
	Format   WireFormat `json:"api_format"`
	BaseURL  string     `json:"api_base_url"`
	APIKey   string     `json:"-"`
	Model    string     `json:"model_name"`

	Timeout    time.Duration `json:"timeout"`
	MaxRetries int           `json:"max_retries"`

	// Priority orders failover candidates; lower is tried first. The static
	// environment fallback uses 999 so it always loses to configured entries.
	Priority int  `json:"priority"`
	Active   bool `json:"is_active"`
	Default  bool `json:"is_default"`

	SuccessCount   int64      `json:"success_count"`
	FailureCount   int64      `json:"failure_count"`
	LastUsedAt     *time.Time `json:"last_used_at,omitempty"`
	LastTestAt     *time.Time `json:"last_test_at,omitempty"`
	LastTestResult string     `json:"last_test_result,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// SuccessRate returns the fraction of successful calls, or 0 with no history.
func (c ServiceConfig) SuccessRate() float64 {
	total := c.SuccessCount + c.FailureCount
	if total == 0 {
		return 0
	}
	return float64(c.SuccessCount) / float64(total)
}

// CallKind labels what a provider call was doing, for audit and health stats.
type CallKind string

const (
	CallOCR    CallKind = "ocr"
	CallText   CallKind = "text"
	CallProbe  CallKind = "probe"
	CallSwitch CallKind = "switch"
)

// UsageLogEntry is an immutable audit record of one provider call.
type UsageLogEntry struct {
	ID         string   `json:"id"`
	ConfigID   string   `json:"config_id,omitempty"`
	ConfigName string   `json:"config_name"`
	Kind       CallKind `json:"kind"`
	Success    bool     `json:"success"`
	LatencyMS  int64    `json:"latency_ms"`
	Error      string   `json:"error,omitempty"`
	// Detail annotates non-error events, such as the reason for a switch.
	Detail    string    `json:"detail,omitempty"`
	User      string    `json:"user,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
