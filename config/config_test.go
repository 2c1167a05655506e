package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg := LoadConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, "8080", cfg.AppPort)
	assert.Equal(t, DefaultSyncConfig(), cfg.Sync)
	assert.Equal(t, 20, cfg.Sync.WindowPageSize)
	assert.Equal(t, int64(10*1024*1024), cfg.Sync.MaxUploadBytes)
	assert.Equal(t, "chat-attachments", cfg.S3Bucket)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("APP_PORT", "9090")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("SYNC_WINDOW_PAGE_SIZE", "30")
	t.Setenv("SYNC_TYPING_IDLE", "1500ms")
	t.Setenv("SYNC_RETRY_MAX_INTERVAL", "1m")

	cfg := LoadConfig()

	assert.Equal(t, "9090", cfg.AppPort)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, 30, cfg.Sync.WindowPageSize)
	assert.Equal(t, 1500*time.Millisecond, cfg.Sync.TypingIdle)
	assert.Equal(t, time.Minute, cfg.Sync.RetryMaxInterval)
}

func TestGetEnvHelpersFallBackOnGarbage(t *testing.T) {
	t.Setenv("HOLA_TEST_INT", "not-a-number")
	t.Setenv("HOLA_TEST_DURATION", "soon")

	assert.Equal(t, 7, getEnvAsInt("HOLA_TEST_INT", 7))
	assert.Equal(t, time.Second, getEnvAsDuration("HOLA_TEST_DURATION", time.Second))
	assert.Equal(t, "fallback", getEnv("HOLA_TEST_UNSET", "fallback"))
}
