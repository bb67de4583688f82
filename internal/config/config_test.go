package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "http://127.0.0.1:8000", cfg.Backend.URL)
	assert.Equal(t, 60*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, "ws://127.0.0.1:8765/ws", cfg.Capture.URL)
	assert.Equal(t, 640, cfg.Image.MaxWidth)
	assert.Equal(t, 4, cfg.Capture.MaxClients)
	assert.Empty(t, cfg.Capture.AllowedOrigins)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("INSIGHT_BACKEND", "http://backend:9000")
	t.Setenv("INSIGHT_CAPTURE_TIMEOUT", "3s")
	t.Setenv("INSIGHT_IMAGE_MAX_WIDTH", "320")
	t.Setenv("INSIGHT_LOG_LEVEL", "debug")
	t.Setenv("INSIGHT_CAPTURE_MAX_CLIENTS", "2")
	t.Setenv("INSIGHT_CAPTURE_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://backend:9000", cfg.Backend.URL)
	assert.Equal(t, 3*time.Second, cfg.Capture.Timeout)
	assert.Equal(t, 320, cfg.Image.MaxWidth)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 2, cfg.Capture.MaxClients)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Capture.AllowedOrigins)
}

func TestLoadWithOverrides(t *testing.T) {
	cfg, err := LoadWithDefaults(map[string]interface{}{
		"image":   map[string]interface{}{"max_width": 800},
		"capture": map[string]interface{}{"token": "secret"},
	})
	require.NoError(t, err)

	assert.Equal(t, 800, cfg.Image.MaxWidth)
	assert.Equal(t, "secret", cfg.Capture.Token)
	assert.Equal(t, "http://127.0.0.1:8000", cfg.Backend.URL)
}

func TestFromViperConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend:\n  url: http://file:1\n  timeout: 5s\ncapture:\n  queue: 9\nimage:\n  max_width: 0\n"), 0o600))

	v := viper.New()
	Bind(v)
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := FromViper(v)
	require.NoError(t, err)

	assert.Equal(t, "http://file:1", cfg.Backend.URL)
	assert.Equal(t, 5*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, 9, cfg.Capture.Queue)
	assert.Equal(t, 640, cfg.Image.MaxWidth)
}

func TestEnvBeatsConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: warn\n"), 0o600))
	t.Setenv("INSIGHT_LOG_LEVEL", "debug")

	v := viper.New()
	Bind(v)
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := FromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
}
