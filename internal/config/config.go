package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/airqa/inspect-cli/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	OCR       OCRConfig       `yaml:"ocr" mapstructure:"ocr"`
	Health    HealthConfig    `yaml:"health" mapstructure:"health"`
	Providers ProvidersConfig `yaml:"providers" mapstructure:"providers"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the registry/learning database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// OCRConfig configures multi-attempt recognition.
type OCRConfig struct {
	Attempts        int     `yaml:"attempts" mapstructure:"attempts"`
	MinAttempts     int     `yaml:"min_attempts" mapstructure:"min_attempts"`
	MaxAttempts     int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	AttemptDelaySec float64 `yaml:"attempt_delay_secs" mapstructure:"attempt_delay_secs"`
	PromptPoints    int     `yaml:"prompt_points" mapstructure:"prompt_points"`
	Threshold       float64 `yaml:"check_type_threshold" mapstructure:"check_type_threshold"`
}

// HealthConfig configures the provider health monitor.
type HealthConfig struct {
	WindowSecs     int `yaml:"window_secs" mapstructure:"window_secs"`
	ErrorThreshold int `yaml:"error_threshold" mapstructure:"error_threshold"`
}

// Window returns the rolling error window as a duration.
func (h HealthConfig) Window() time.Duration {
	return time.Duration(h.WindowSecs) * time.Second
}

// ProvidersConfig holds file-level provider entries plus the static
// environment fallback credentials.
type ProvidersConfig struct {
	// Default names the file-level default entry, used when the registry has
	// no default row.
	Default  string          `yaml:"default" mapstructure:"default"`
	Entries  []ProviderEntry `yaml:"entries" mapstructure:"entries"`
	Fallback FallbackConfig  `yaml:"fallback" mapstructure:"fallback"`
}

// ProviderEntry is one provider configuration defined in the config file.
type ProviderEntry struct {
	Name        string `yaml:"name" mapstructure:"name"`
	Provider    string `yaml:"provider" mapstructure:"provider"`
	Format      string `yaml:"api_format" mapstructure:"api_format"`
	BaseURL     string `yaml:"api_base_url" mapstructure:"api_base_url"`
	APIKey      string `yaml:"api_key" mapstructure:"api_key"`
	Model       string `yaml:"model_name" mapstructure:"model_name"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries" mapstructure:"max_retries"`
	Priority    int    `yaml:"priority" mapstructure:"priority"`
	Active      *bool  `yaml:"is_active" mapstructure:"is_active"`
}

// ServiceConfig converts a file entry into the domain type.
func (e ProviderEntry) ServiceConfig() model.ServiceConfig {
	timeout := 30 * time.Second
	if e.TimeoutSecs > 0 {
		timeout = time.Duration(e.TimeoutSecs) * time.Second
	}
	retries := e.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	priority := e.Priority
	if priority <= 0 {
		priority = 100
	}
	active := true
	if e.Active != nil {
		active = *e.Active
	}
	return model.ServiceConfig{
		Name:       e.Name,
		Provider:   e.Provider,
		Format:     model.WireFormat(e.Format),
		BaseURL:    e.BaseURL,
		APIKey:     e.APIKey,
		Model:      e.Model,
		Timeout:    timeout,
		MaxRetries: retries,
		Priority:   priority,
		Active:     active,
	}
}

// FallbackConfig holds the environment-derived last-resort credentials.
type FallbackConfig struct {
	PreferOpenAI bool `yaml:"prefer_openai" mapstructure:"prefer_openai"`

	GeminiAPIKey  string `yaml:"gemini_api_key" mapstructure:"gemini_api_key"`
	GeminiBaseURL string `yaml:"gemini_base_url" mapstructure:"gemini_base_url"`
	GeminiModel   string `yaml:"gemini_model" mapstructure:"gemini_model"`

	OpenAIAPIKey  string `yaml:"openai_api_key" mapstructure:"openai_api_key"`
	OpenAIBaseURL string `yaml:"openai_base_url" mapstructure:"openai_base_url"`
	OpenAIModel   string `yaml:"openai_model" mapstructure:"openai_model"`

	TimeoutSecs int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// FallbackPriority is the priority assigned to synthesized fallback configs
// so they always lose to anything the registry or config file defines.
const FallbackPriority = 999

// ServiceConfig synthesizes the static fallback ServiceConfig, or nil when no
// fallback credentials are configured.
func (f FallbackConfig) ServiceConfig() *model.ServiceConfig {
	timeout := 30 * time.Second
	if f.TimeoutSecs > 0 {
		timeout = time.Duration(f.TimeoutSecs) * time.Second
	}

	if f.PreferOpenAI && f.OpenAIAPIKey != "" {
		return &model.ServiceConfig{
			Name:       "openai-env-fallback",
			Provider:   "openai",
			Format:     model.FormatOpenAI,
			BaseURL:    f.OpenAIBaseURL,
			APIKey:     f.OpenAIAPIKey,
			Model:      f.OpenAIModel,
			Timeout:    timeout,
			MaxRetries: 3,
			Priority:   FallbackPriority,
			Active:     true,
		}
	}
	if f.GeminiAPIKey != "" {
		return &model.ServiceConfig{
			Name:       "gemini-env-fallback",
			Provider:   "gemini",
			Format:     model.FormatGemini,
			BaseURL:    f.GeminiBaseURL,
			APIKey:     f.GeminiAPIKey,
			Model:      f.GeminiModel,
			Timeout:    timeout,
			MaxRetries: 3,
			Priority:   FallbackPriority,
			Active:     true,
		}
	}
	if f.OpenAIAPIKey != "" {
		return &model.ServiceConfig{
			Name:       "openai-env-fallback",
			Provider:   "openai",
			Format:     model.FormatOpenAI,
			BaseURL:    f.OpenAIBaseURL,
			APIKey:     f.OpenAIAPIKey,
			Model:      f.OpenAIModel,
			Timeout:    timeout,
			MaxRetries: 3,
			Priority:   FallbackPriority,
			Active:     true,
		}
	}
	return nil
}

// ServerConfig configures the glue HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("INSPECT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "inspect.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("ocr.attempts", 3)
	v.SetDefault("ocr.min_attempts", 2)
	v.SetDefault("ocr.max_attempts", 5)
	v.SetDefault("ocr.attempt_delay_secs", 1.0)
	v.SetDefault("ocr.prompt_points", 20)
	v.SetDefault("ocr.check_type_threshold", 0.080)
	v.SetDefault("health.window_secs", 3600)
	v.SetDefault("health.error_threshold", 5)
	// Empty defaults so AutomaticEnv can bind the key-only settings.
	v.SetDefault("providers.fallback.gemini_api_key", "")
	v.SetDefault("providers.fallback.openai_api_key", "")
	v.SetDefault("providers.fallback.prefer_openai", false)
	v.SetDefault("providers.fallback.gemini_base_url", "https://generativelanguage.googleapis.com")
	v.SetDefault("providers.fallback.gemini_model", "gemini-2.0-flash-exp")
	v.SetDefault("providers.fallback.openai_base_url", "https://api.openai.com/v1")
	v.SetDefault("providers.fallback.openai_model", "gpt-4o-mini")
	v.SetDefault("providers.fallback.timeout_secs", 30)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// FileEntry returns the config-file provider entry with the given name, or
// nil when absent.
func (c *Config) FileEntry(name string) *model.ServiceConfig {
	for _, e := range c.Providers.Entries {
		if e.Name == name {
			sc := e.ServiceConfig()
			return &sc
		}
	}
	return nil
}

// FileDefault returns the file-level default entry, or nil when none is named.
func (c *Config) FileDefault() *model.ServiceConfig {
	if c.Providers.Default == "" {
		return nil
	}
	return c.FileEntry(c.Providers.Default)
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
