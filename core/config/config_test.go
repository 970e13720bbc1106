package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("CI", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, 50, cfg.Scheduler.BatchSize)
	assert.Equal(t, 3, cfg.Scheduler.MaxRetries)
	assert.Equal(t, "local", cfg.RateLimit.Backend)
	assert.Zero(t, cfg.RateLimit.Platforms["linkedin"].RequestsPerMinute)
	assert.Same(t, cfg, Global)
}

func TestSchedulerDisabledInTestAndCI(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	cfg, _ := LoadConfig()
	assert.False(t, cfg.Scheduler.Enabled)

	t.Setenv("APP_ENV", "production")
	t.Setenv("CI", "true")
	cfg, _ = LoadConfig()
	assert.False(t, cfg.Scheduler.Enabled)

	t.Setenv("SCHEDULER_ENABLED", "true")
	cfg, _ = LoadConfig()
	assert.True(t, cfg.Scheduler.Enabled)
}

func TestRateLimitOverridesFromEnv(t *testing.T) {
	t.Setenv("RATE_LIMIT_X_RPM", "120")
	t.Setenv("RATE_LIMIT_X_BURST", "3")
	t.Setenv("RATE_LIMIT_X_BASE_DELAY", "500ms")
	t.Setenv("SCHEDULER_INTERVAL", "30")
	t.Setenv("EVENTS_WEBHOOK_URLS", "https://a.test/hook, https://b.test/hook")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	x := cfg.RateLimit.Platforms["x"]
	assert.Equal(t, float64(120), x.RequestsPerMinute)
	assert.Equal(t, 3, x.Burst)
	assert.Equal(t, 500*time.Millisecond, x.BaseDelay)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.Interval)
	assert.Equal(t, []string{"https://a.test/hook", "https://b.test/hook"}, cfg.Events.WebhookURLs)
}
