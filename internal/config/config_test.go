package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentoven/agentoven/chat-gateway/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CHAT_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))

	cfg := config.Load()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 20, cfg.Quota.PerIPMinute)
	assert.Equal(t, 200, cfg.Quota.PerIPDay)
	assert.Equal(t, 2000, cfg.Quota.GlobalDay)
	assert.Equal(t, "fail-closed", cfg.Quota.FailurePolicy)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 1000, cfg.Guard.MaxChars)
	assert.Equal(t, 350, cfg.Guard.MaxTokens)
	assert.Equal(t, "gpt-4o-mini", cfg.Completion.Model)
	assert.Equal(t, 500, cfg.Completion.MaxTokens)
	assert.InDelta(t, 0.3, cfg.Completion.Temperature, 1e-9)
	assert.Equal(t, 3, cfg.Retrieval.TopK)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CHAT_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("QUOTA_IP_MINUTE", "5")
	t.Setenv("QUOTA_FAILURE_POLICY", "fail-open")
	t.Setenv("CACHE_TTL", "120")
	t.Setenv("COMPLETION_TIMEOUT", "90s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg := config.Load()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 5, cfg.Quota.PerIPMinute)
	assert.Equal(t, "fail-open", cfg.Quota.FailurePolicy)
	assert.Equal(t, 2*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 90*time.Second, cfg.Completion.Timeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
}

func TestLoad_DotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("QUOTA_GLOBAL_DAY=42\n"), 0o600))
	t.Setenv("CHAT_ENV_FILE", path)
	t.Setenv("QUOTA_GLOBAL_DAY", "")
	os.Unsetenv("QUOTA_GLOBAL_DAY")
	t.Cleanup(func() { os.Unsetenv("QUOTA_GLOBAL_DAY") })

	cfg := config.Load()
	assert.Equal(t, 42, cfg.Quota.GlobalDay)
}

func TestValidate_RejectsBadPolicy(t *testing.T) {
	t.Setenv("CHAT_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("QUOTA_FAILURE_POLICY", "maybe")

	cfg := config.Load()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "QUOTA_FAILURE_POLICY")
}

func TestValidate_RejectsNegativeLimits(t *testing.T) {
	t.Setenv("CHAT_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("QUOTA_IP_DAY", "-1")

	cfg := config.Load()
	assert.Error(t, cfg.Validate())
}
