// Package config holds the settings shared by the insight client and the
// capture agent.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the insight client and capture agent.
type Config struct {
	Backend     BackendConfig     `mapstructure:"backend" json:"backend"`
	Capture     CaptureConfig     `mapstructure:"capture" json:"capture"`
	Image       ImageConfig       `mapstructure:"image" json:"image"`
	Audio       AudioConfig       `mapstructure:"audio" json:"audio"`
	Preferences PreferencesConfig `mapstructure:"preferences" json:"preferences"`
	Session     SessionConfig     `mapstructure:"session" json:"session"`
	Logging     LoggingConfig     `mapstructure:"logging" json:"logging"`
}

// BackendConfig holds assistant backend settings.
type BackendConfig struct {
	URL            string        `mapstructure:"url" json:"url"`
	Timeout        time.Duration `mapstructure:"timeout" json:"timeout"`
	MaxConnections int           `mapstructure:"max_connections" json:"max_connections"`
}

// CaptureConfig holds settings shared by the capture bridge and the capture agent.
// AllowedOrigins lists the browser origins that may open the capture channel;
// requests without an Origin header come from native clients.
type CaptureConfig struct {
	URL            string        `mapstructure:"url" json:"url"`
	Timeout        time.Duration `mapstructure:"timeout" json:"timeout"`
	Listen         string        `mapstructure:"listen" json:"listen"`
	Command        string        `mapstructure:"command" json:"command"`
	Queue          int           `mapstructure:"queue" json:"queue"`
	MaxClients     int           `mapstructure:"max_clients" json:"max_clients"`
	Token          string        `mapstructure:"token" json:"token"`
	AllowedOrigins []string      `mapstructure:"allowed_origins" json:"allowed_origins"`
}

// ImageConfig holds screenshot reduction settings.
type ImageConfig struct {
	MaxWidth int `mapstructure:"max_width" json:"max_width"`
}

// AudioConfig holds playback settings.
type AudioConfig struct {
	Player       string        `mapstructure:"player" json:"player"`
	NotifyWindow time.Duration `mapstructure:"notify_window" json:"notify_window"`
}

// PreferencesConfig points at the user preference file.
type PreferencesConfig struct {
	Path string `mapstructure:"path" json:"path"`
}

// SessionConfig points at the stored access token.
type SessionConfig struct {
	TokenFile string `mapstructure:"token_file" json:"token_file"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level" json:"level"`
	Format string `mapstructure:"format" json:"format"`
}

// Default returns a Config with default values.
func Default() *Config {
	dir := DefaultDir()
	return &Config{
		Backend: BackendConfig{
			URL:            "http://127.0.0.1:8000",
			Timeout:        60 * time.Second,
			MaxConnections: 16,
		},
		Capture: CaptureConfig{
			URL:        "ws://127.0.0.1:8765/ws",
			Timeout:    10 * time.Second,
			Listen:     "127.0.0.1:8765",
			Queue:      4,
			MaxClients: 4,
		},
		Image: ImageConfig{
			MaxWidth: 640,
		},
		Audio: AudioConfig{
			NotifyWindow: 5 * time.Second,
		},
		Preferences: PreferencesConfig{
			Path: filepath.Join(dir, "preferences.yaml"),
		},
		Session: SessionConfig{
			TokenFile: filepath.Join(dir, "token"),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultDir returns the per-user configuration directory.
func DefaultDir() string {
	base, err := os.UserConfigDir()
	if err != nil || base == "" {
		base = "."
	}
	return filepath.Join(base, "insight")
}

// Load returns a Config populated with defaults and INSIGHT_* environment overrides.
func Load() (*Config, error) {
	return LoadWithDefaults(nil)
}

// LoadWithDefaults loads configuration using defaults, environment and an
// optional overrides map (for tests).
func LoadWithDefaults(overrides map[string]interface{}) (*Config, error) {
	v := viper.New()
	Bind(v)

	cfg, err := FromViper(v)
	if err != nil {
		return nil, err
	}

	if overrides != nil {
		raw, err := json.Marshal(overrides)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// envKeys maps configuration keys to their environment variables.
var envKeys = map[string]string{
	"backend.url":             "INSIGHT_BACKEND",
	"backend.timeout":         "INSIGHT_BACKEND_TIMEOUT",
	"backend.max_connections": "INSIGHT_BACKEND_MAX_CONNECTIONS",
	"capture.url":             "INSIGHT_CAPTURE_URL",
	"capture.timeout":         "INSIGHT_CAPTURE_TIMEOUT",
	"capture.listen":          "INSIGHT_CAPTURE_LISTEN",
	"capture.command":         "INSIGHT_CAPTURE_COMMAND",
	"capture.queue":           "INSIGHT_CAPTURE_QUEUE",
	"capture.max_clients":     "INSIGHT_CAPTURE_MAX_CLIENTS",
	"capture.token":           "INSIGHT_CAPTURE_TOKEN",
	"capture.allowed_origins": "INSIGHT_CAPTURE_ALLOWED_ORIGINS",
	"image.max_width":         "INSIGHT_IMAGE_MAX_WIDTH",
	"audio.player":            "INSIGHT_AUDIO_PLAYER",
	"audio.notify_window":     "INSIGHT_AUDIO_NOTIFY_WINDOW",
	"preferences.path":        "INSIGHT_PREFERENCES",
	"session.token_file":      "INSIGHT_TOKEN_FILE",
	"logging.level":           "INSIGHT_LOG_LEVEL",
	"logging.format":          "INSIGHT_LOG_FORMAT",
}

// Bind registers every key's default value and environment variable on v.
func Bind(v *viper.Viper) {
	d := Default()

	v.SetDefault("backend.url", d.Backend.URL)
	v.SetDefault("backend.timeout", d.Backend.Timeout)
	v.SetDefault("backend.max_connections", d.Backend.MaxConnections)
	v.SetDefault("capture.url", d.Capture.URL)
	v.SetDefault("capture.timeout", d.Capture.Timeout)
	v.SetDefault("capture.listen", d.Capture.Listen)
	v.SetDefault("capture.command", d.Capture.Command)
	v.SetDefault("capture.queue", d.Capture.Queue)
	v.SetDefault("capture.max_clients", d.Capture.MaxClients)
	v.SetDefault("capture.token", d.Capture.Token)
	v.SetDefault("capture.allowed_origins", []string{})
	v.SetDefault("image.max_width", d.Image.MaxWidth)
	v.SetDefault("audio.player", d.Audio.Player)
	v.SetDefault("audio.notify_window", d.Audio.NotifyWindow)
	v.SetDefault("preferences.path", d.Preferences.Path)
	v.SetDefault("session.token_file", d.Session.TokenFile)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)

	for key, env := range envKeys {
		_ = v.BindEnv(key, env)
	}
}

// FromViper decodes v into a Config. Keys left empty or zero keep their defaults.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	d := Default()
	if cfg.Backend.URL == "" {
		cfg.Backend.URL = d.Backend.URL
	}
	if cfg.Backend.Timeout <= 0 {
		cfg.Backend.Timeout = d.Backend.Timeout
	}
	if cfg.Capture.URL == "" {
		cfg.Capture.URL = d.Capture.URL
	}
	if cfg.Capture.Timeout <= 0 {
		cfg.Capture.Timeout = d.Capture.Timeout
	}
	if cfg.Capture.MaxClients <= 0 {
		cfg.Capture.MaxClients = d.Capture.MaxClients
	}
	if cfg.Image.MaxWidth <= 0 {
		cfg.Image.MaxWidth = d.Image.MaxWidth
	}
	if cfg.Preferences.Path == "" {
		cfg.Preferences.Path = d.Preferences.Path
	}
	if cfg.Session.TokenFile == "" {
		cfg.Session.TokenFile = d.Session.TokenFile
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = d.Logging.Level
	}

	return cfg, nil
}
