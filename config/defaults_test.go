package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_ContainsAllSubConfigs(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.NotEqual(t, ServerConfig{}, cfg.Server)
	assert.NotEqual(t, WorkerConfig{}, cfg.Worker)
	assert.NotEqual(t, RealtimeConfig{}, cfg.Realtime)
	assert.NotEqual(t, SupabaseConfig{}, cfg.Supabase)
	assert.NotEqual(t, PresenterConfig{}, cfg.Presenter)
	assert.NotEqual(t, RedisConfig{}, cfg.Redis)
	assert.NotEqual(t, DatabaseConfig{}, cfg.Database)
	assert.NotEqual(t, LogConfig{}, cfg.Log)
	assert.NotEqual(t, TelemetryConfig{}, cfg.Telemetry)
}

func TestDefaultPresenterConfig(t *testing.T) {
	cfg := DefaultPresenterConfig()
	assert.Equal(t, "full", cfg.ContextMode)
	assert.Equal(t, 2500*time.Millisecond, cfg.MetadataInitialDelay)
	assert.Equal(t, 500*time.Millisecond, cfg.MetadataPollInterval)
	assert.Equal(t, 3, cfg.SpeechMaxAttempts)
	assert.Equal(t, time.Second, cfg.SpeechRetryDelay)
	assert.Equal(t, 25*time.Second, cfg.SpeechTimeout)
	assert.Equal(t, 2*time.Second, cfg.SlidePause)
	assert.Equal(t, time.Minute, cfg.KeepAliveInterval)
}

func TestDefaultWorkerConfig(t *testing.T) {
	cfg := DefaultWorkerConfig()
	assert.Equal(t, 30*time.Minute, cfg.DrainTimeout)
	assert.Positive(t, cfg.MaxSessions)
	assert.NotEmpty(t, cfg.AgentIdentity)
}

func TestDefaultRealtimeAndAvatar(t *testing.T) {
	rt := DefaultRealtimeConfig()
	assert.Equal(t, "openai", rt.Provider)
	assert.Equal(t, "alloy", rt.Voice)

	av := DefaultAvatarConfig()
	assert.Equal(t, "simli", av.Provider)
	assert.NotEmpty(t, av.Simli.BaseURL)
	assert.NotEmpty(t, av.Anam.BaseURL)
}

func TestDevOverrides(t *testing.T) {
	cfg := DefaultConfig()
	DevOverrides(cfg)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Less(t, cfg.Worker.DrainTimeout, DefaultWorkerConfig().DrainTimeout)
	assert.NoError(t, cfg.Validate())
}
