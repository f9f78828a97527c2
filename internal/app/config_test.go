package app

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("PG_DSN", "postgres://localhost/approvals")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, 5*time.Minute, cfg.ApprovalConfigCacheTTL)
	require.True(t, cfg.ApprovalRequireExplicitConfig)
	require.Equal(t, 100, cfg.ApprovalPendingMaxLimit)
	require.Equal(t, "@every 1m", cfg.PendingSnapshotCron)
	require.Equal(t, "@hourly", cfg.IdempotencyPurgeCron)
	require.Equal(t, 24*time.Hour, cfg.IdempotencyKeyTTL)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("APPROVAL_REQUIRE_EXPLICIT_CONFIG", "false")
	t.Setenv("APPROVAL_PENDING_MAX_LIMIT", "25")
	t.Setenv("WORKER_CONCURRENCY", "2")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.True(t, cfg.IsProduction())
	require.False(t, cfg.ApprovalRequireExplicitConfig)
	require.Equal(t, 25, cfg.ApprovalPendingMaxLimit)
	require.Equal(t, 2, cfg.WorkerConcurrency)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	t.Setenv("APPROVAL_PENDING_MAX_LIMIT", "0")
	_, err := LoadConfig()
	require.Error(t, err)

	t.Setenv("APPROVAL_PENDING_MAX_LIMIT", "10")
	t.Setenv("IDEMPOTENCY_KEY_TTL", "0s")
	_, err = LoadConfig()
	require.Error(t, err)

	t.Setenv("IDEMPOTENCY_KEY_TTL", "1h")
	t.Setenv("WORKER_CONCURRENCY", "abc")
	_, err = LoadConfig()
	require.Error(t, err)
}

func TestLoggerHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&Config{LogFormat: "json", LogLevel: "warn"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown")
	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), `"msg":"shown"`)
	require.False(t, logger.Enabled(context.Background(), slog.LevelDebug))
	require.Equal(t, slog.LevelDebug, parseLevel(&Config{LogLevel: "DEBUG"}))
	require.Equal(t, slog.LevelInfo, parseLevel(nil))
}

func TestInTestMode(t *testing.T) {
	t.Setenv(TestModeEnv, "")
	require.False(t, InTestMode())
	t.Setenv(TestModeEnv, "1")
	require.True(t, InTestMode())
	t.Setenv(TestModeEnv, "true")
	require.True(t, InTestMode())
	t.Setenv(TestModeEnv, "yes")
	require.False(t, InTestMode())
}
