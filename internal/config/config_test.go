package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airqa/inspect-cli/internal/model"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir()) // no config file present

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 3, cfg.OCR.Attempts)
	assert.Equal(t, 2, cfg.OCR.MinAttempts)
	assert.Equal(t, 5, cfg.OCR.MaxAttempts)
	assert.InDelta(t, 0.080, cfg.OCR.Threshold, 1e-9)
	assert.Equal(t, time.Hour, cfg.Health.Window())
	assert.Equal(t, 5, cfg.Health.ErrorThreshold)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "https://generativelanguage.googleapis.com", cfg.Providers.Fallback.GeminiBaseURL)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("INSPECT_OCR_ATTEMPTS", "4")
	t.Setenv("INSPECT_PROVIDERS_FALLBACK_GEMINI_API_KEY", "env-key")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.OCR.Attempts)
	assert.Equal(t, "env-key", cfg.Providers.Fallback.GeminiAPIKey)
}

func TestProviderEntryDefaults(t *testing.T) {
	e := ProviderEntry{Name: "x", Provider: "gemini", Format: "gemini"}
	sc := e.ServiceConfig()

	assert.Equal(t, 30*time.Second, sc.Timeout)
	assert.Equal(t, 3, sc.MaxRetries)
	assert.Equal(t, 100, sc.Priority)
	assert.True(t, sc.Active)
	assert.False(t, sc.Default)
}

func TestProviderEntryExplicitInactive(t *testing.T) {
	inactive := false
	e := ProviderEntry{Name: "x", Active: &inactive}
	assert.False(t, e.ServiceConfig().Active)
}

func TestFallbackPrefersGeminiByDefault(t *testing.T) {
	f := FallbackConfig{
		GeminiAPIKey: "gk", GeminiBaseURL: "gu", GeminiModel: "gm",
		OpenAIAPIKey: "ok", OpenAIBaseURL: "ou", OpenAIModel: "om",
	}
	sc := f.ServiceConfig()
	require.NotNil(t, sc)
	assert.Equal(t, model.FormatGemini, sc.Format)
	assert.Equal(t, FallbackPriority, sc.Priority)

	f.PreferOpenAI = true
	sc = f.ServiceConfig()
	require.NotNil(t, sc)
	assert.Equal(t, model.FormatOpenAI, sc.Format)
}

func TestFallbackOpenAIOnlyWhenNoGeminiKey(t *testing.T) {
	f := FallbackConfig{OpenAIAPIKey: "ok", OpenAIBaseURL: "ou", OpenAIModel: "om"}
	sc := f.ServiceConfig()
	require.NotNil(t, sc)
	assert.Equal(t, model.FormatOpenAI, sc.Format)
}

func TestFallbackNilWithoutKeys(t *testing.T) {
	assert.Nil(t, FallbackConfig{}.ServiceConfig())
}

func TestFileDefaultLookup(t *testing.T) {
	cfg := &Config{}
	cfg.Providers.Default = "a"
	cfg.Providers.Entries = []ProviderEntry{
		{Name: "a", Provider: "gemini", Format: "gemini"},
		{Name: "b", Provider: "openai", Format: "openai"},
	}

	def := cfg.FileDefault()
	require.NotNil(t, def)
	assert.Equal(t, "a", def.Name)

	assert.Nil(t, cfg.FileEntry("missing"))

	cfg.Providers.Default = ""
	assert.Nil(t, cfg.FileDefault())
}
