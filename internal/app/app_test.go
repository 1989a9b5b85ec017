package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/ideaforge-backend/internal/platform/dbctx"
	"github.com/yungbote/ideaforge-backend/internal/platform/logger"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := LoadConfig(logger.Nop())
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 500*time.Millisecond, cfg.StreamPollInterval)
	assert.Equal(t, 0.85, cfg.DuplicateThreshold)
	assert.Equal(t, 10, cfg.MaxSlots)
	assert.Equal(t, 0, cfg.OpenAIMaxRetries)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("MAX_SLOTS", "42")
	t.Setenv("STREAM_POLL_INTERVAL", "250ms")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com ,")
	t.Setenv("AUTH_DISABLED", "true")

	cfg := LoadConfig(logger.Nop())
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, 10, cfg.MaxSlots)
	assert.Equal(t, 250*time.Millisecond, cfg.StreamPollInterval)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSOrigins)
	assert.True(t, cfg.AuthDisabled)
}

func TestApp_NewAndRun(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DATABASE_URL", "file:app_new_and_run?mode=memory&cache=shared")
	t.Setenv("PROFILES_DIR", "../../configs/profiles")
	t.Setenv("PROFILES_WATCH", "false")
	t.Setenv("AUTH_DISABLED", "true")
	t.Setenv("MAX_SLOTS", "4")
	t.Setenv("PORT", "0")
	t.Setenv("SCHEDULER_TICK", "20ms")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a, err := New(ctx, logger.Nop())
	require.NoError(t, err)
	defer a.Close()

	slots, err := a.Services.Slots.List(dbctx.New(ctx))
	require.NoError(t, err)
	assert.Len(t, slots, 4)
	assert.NotEmpty(t, a.Services.Profiles.List())

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}
}
