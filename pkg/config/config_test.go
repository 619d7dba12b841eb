package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64p(v int64) *int64 { return &v }

func TestReliabilityDefaults(t *testing.T) {
	var cfg ReliabilityConfig
	cfg.SetDefaults()

	assert.Equal(t, 2, cfg.Retry.MaxRetries)
	assert.Equal(t, 200*time.Millisecond, cfg.Retry.BaseDelay)
	assert.Equal(t, 5*time.Second, cfg.Retry.MaxDelay)
	assert.Equal(t, 2.0, cfg.Retry.ExponentialBase)
	assert.Equal(t, 5, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 30*time.Second, cfg.Breaker.ResetTimeout)
}

func TestReliabilityDefaultsKeepExplicitValues(t *testing.T) {
	cfg := ReliabilityConfig{
		Retry: RetryConfig{MaxRetries: 7, BaseDelay: time.Second},
	}
	cfg.SetDefaults()
	assert.Equal(t, 7, cfg.Retry.MaxRetries)
	assert.Equal(t, time.Second, cfg.Retry.BaseDelay)
	assert.Equal(t, 2.0, cfg.Retry.ExponentialBase)
}

func TestQueueDefaults(t *testing.T) {
	var cfg QueueConfig
	cfg.SetDefaults()

	assert.Equal(t, "sql", cfg.Backend)
	assert.Equal(t, 100*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, "sqlite3", cfg.SQL.Driver)
	assert.Equal(t, ":memory:", cfg.SQL.DSN)
}

func TestRateLimitValidate(t *testing.T) {
	valid := RateLimitConfig{Rules: []RateLimitRule{
		{Name: "r", MaxCalls: int64p(10), WindowSeconds: 60, Scope: "model"},
	}}
	assert.NoError(t, valid.Validate())

	cases := []struct {
		name string
		rule RateLimitRule
	}{
		{"missing name", RateLimitRule{MaxCalls: int64p(1), WindowSeconds: 60, Scope: "model"}},
		{"bad scope", RateLimitRule{Name: "r", MaxCalls: int64p(1), WindowSeconds: 60, Scope: "planet"}},
		{"no window", RateLimitRule{Name: "r", MaxCalls: int64p(1), Scope: "model"}},
		{"no limits", RateLimitRule{Name: "r", WindowSeconds: 60, Scope: "model"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := RateLimitConfig{Rules: []RateLimitRule{tc.rule}}
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadAppliesDefaultsAndValidates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agentsdk.yaml")

	doc := `
logging:
  level: debug
queue:
  backend: redis
  redis:
    addr: localhost:6379
rate_limit:
  enabled: true
  rules:
    - name: calls
      max_calls: 10
      window_seconds: 60
      scope: global
policies:
  acme:
    tools:
      deny: [shell.exec]
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "redis", cfg.Queue.Backend)
	assert.Equal(t, "localhost:6379", cfg.Queue.Redis.Addr)
	assert.Equal(t, 100*time.Millisecond, cfg.Queue.PollInterval)
	assert.Equal(t, 2, cfg.Reliability.Retry.MaxRetries)
	require.Len(t, cfg.RateLimit.Rules, 1)
	require.NotNil(t, cfg.RateLimit.Rules[0].MaxCalls)
	assert.Equal(t, int64(10), *cfg.RateLimit.Rules[0].MaxCalls)
	assert.Equal(t, []string{"shell.exec"}, cfg.Policies["acme"].Tools.Deny)
}

func TestLoadRejectsInvalidRules(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	doc := `
rate_limit:
  rules:
    - name: broken
      window_seconds: 60
      scope: global
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/agentsdk.yaml")
	assert.Error(t, err)
}
