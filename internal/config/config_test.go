package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := LoadWithDefaults()
	require.NoError(t, err)

	assert.Equal(t, "snapshots", cfg.Snapshot.Root)
	assert.Equal(t, 8, cfg.Snapshot.MaxDepth)
	assert.Equal(t, 1000, cfg.Snapshot.MaxNodes)
	assert.Equal(t, "on-failure", cfg.Executor.Screenshots)
	assert.True(t, cfg.Executor.Headless)
}

func TestEnvAliasFallbacks(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("API_KEY", "alias-key")
	t.Setenv("OPENAI_MODEL", "")
	t.Setenv("MODEL_STD", "alias-model")
	t.Setenv("BASE_URL", "https://llm.internal/v1")

	cfg, err := LoadWithDefaults()
	require.NoError(t, err)

	assert.Equal(t, "alias-key", cfg.LLM.APIKey)
	assert.Equal(t, "alias-model", cfg.LLM.Model)
	assert.Equal(t, "https://llm.internal/v1", cfg.LLM.BaseURL)
}

func TestValidateScreenshotPolicy(t *testing.T) {
	cfg, err := LoadWithDefaults()
	require.NoError(t, err)

	cfg.LLM.APIKey = "k"
	cfg.LLM.Model = "m"
	cfg.Executor.Screenshots = "sometimes"

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EXECUTOR_SCREENSHOTS")
}

func TestValidateRequiresKeyAndModel(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("API_KEY", "")
	t.Setenv("OPENAI_MODEL", "")
	t.Setenv("MODEL_STD", "")

	cfg, err := LoadWithDefaults()
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
	assert.Contains(t, err.Error(), "OPENAI_MODEL")
}

func TestGetLogLevel(t *testing.T) {
	cfg := &Config{LogLevel: "info"}
	assert.Equal(t, "info", cfg.GetLogLevel())

	cfg.Debug = true
	assert.Equal(t, "debug", cfg.GetLogLevel())
}
