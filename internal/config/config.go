package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Debug    bool   `envconfig:"DEBUG" default:"false"`

	// LLM provider
	LLM LLMConfig

	// Page snapshots
	Snapshot SnapshotConfig

	// Plan execution
	Executor ExecutorConfig

	// Interactive calibration sessions
	Session SessionConfig

	// Calibration HTTP server
	Server ServerConfig
}

// LLMConfig holds OpenAI-compatible chat completion settings.
type LLMConfig struct {
	APIKey       string        `envconfig:"OPENAI_API_KEY" default:""`
	BaseURL      string        `envconfig:"OPENAI_BASE_URL" default:""`
	Model        string        `envconfig:"OPENAI_MODEL" default:""`
	Timeout      time.Duration `envconfig:"LLM_TIMEOUT" default:"60s"`
	RateLimitRPM int           `envconfig:"LLM_RATE_LIMIT_RPM" default:"50"`
	CacheTTL     time.Duration `envconfig:"LLM_CACHE_TTL" default:"24h"`
	MaxTokens    int           `envconfig:"LLM_MAX_TOKENS" default:"8192"`
}

// SnapshotConfig holds page capture settings.
type SnapshotConfig struct {
	Root       string        `envconfig:"SNAPSHOT_ROOT" default:"snapshots"`
	MaxDepth   int           `envconfig:"SNAPSHOT_MAX_DEPTH" default:"8"`
	MaxNodes   int           `envconfig:"SNAPSHOT_MAX_NODES" default:"1000"`
	Timeout    time.Duration `envconfig:"SNAPSHOT_TIMEOUT" default:"30s"`
	MaxAge     time.Duration `envconfig:"SNAPSHOT_MAX_AGE" default:"168h"`
	Headless   bool          `envconfig:"SNAPSHOT_HEADLESS" default:"true"`
	Screenshot bool          `envconfig:"SNAPSHOT_SCREENSHOT" default:"false"`
	WaitFor    string        `envconfig:"SNAPSHOT_WAIT_FOR" default:""`
}

// ExecutorConfig holds browser execution settings.
type ExecutorConfig struct {
	OutputRoot      string        `envconfig:"EXECUTOR_OUTPUT_ROOT" default:"results"`
	Headless        bool          `envconfig:"EXECUTOR_HEADLESS" default:"true"`
	DefaultTimeout  time.Duration `envconfig:"EXECUTOR_DEFAULT_TIMEOUT" default:"10s"`
	Screenshots     string        `envconfig:"EXECUTOR_SCREENSHOTS" default:"on-failure"`
	ViewportWidth   int           `envconfig:"EXECUTOR_VIEWPORT_WIDTH" default:"1920"`
	ViewportHeight  int           `envconfig:"EXECUTOR_VIEWPORT_HEIGHT" default:"1080"`
	GenerateReport  bool          `envconfig:"EXECUTOR_GENERATE_REPORT" default:"true"`
	ClickRetryDelay time.Duration `envconfig:"EXECUTOR_CLICK_RETRY_DELAY" default:"500ms"`
	PostClickSettle time.Duration `envconfig:"EXECUTOR_POST_CLICK_SETTLE" default:"200ms"`
}

// SessionConfig holds interactive calibration session settings.
type SessionConfig struct {
	MaxSessions    int           `envconfig:"SESSION_MAX" default:"3"`
	IdleTimeout    time.Duration `envconfig:"SESSION_IDLE_TIMEOUT" default:"15m"`
	ViewportWidth  int           `envconfig:"SESSION_VIEWPORT_WIDTH" default:"1280"`
	ViewportHeight int           `envconfig:"SESSION_VIEWPORT_HEIGHT" default:"720"`
}

// ServerConfig holds the calibration HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"127.0.0.1"`
	Port            int           `envconfig:"SERVER_PORT" default:"8787"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"15s"`
}

// Addr returns the server listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("processing config: %w", err)
	}

	cfg.applyFallbacks()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// LoadWithDefaults loads config without failing validation, for CLI tools
// that may not need the LLM at all.
func LoadWithDefaults() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("processing config: %w", err)
	}
	cfg.applyFallbacks()
	return &cfg, nil
}

// applyFallbacks honors the short env var aliases used by older deployments.
func (c *Config) applyFallbacks() {
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = os.Getenv("API_KEY")
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = os.Getenv("BASE_URL")
	}
	if c.LLM.Model == "" {
		c.LLM.Model = os.Getenv("MODEL_STD")
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	if c.LLM.APIKey == "" {
		errs = append(errs, "OPENAI_API_KEY (or API_KEY) is required")
	}
	if c.LLM.Model == "" {
		errs = append(errs, "OPENAI_MODEL (or MODEL_STD) is required")
	}
	switch c.Executor.Screenshots {
	case "none", "on-failure", "all":
	default:
		errs = append(errs, fmt.Sprintf("EXECUTOR_SCREENSHOTS must be none, on-failure or all (got %q)", c.Executor.Screenshots))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetLogLevel returns the appropriate zap log level.
func (c *Config) GetLogLevel() string {
	if c.Debug {
		return "debug"
	}
	return c.LogLevel
}
