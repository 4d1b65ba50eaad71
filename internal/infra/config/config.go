// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Admin     AdminConfig     `yaml:"admin"`
	Authority AuthorityConfig `yaml:"authority"`
	Playback  PlaybackConfig  `yaml:"playback"`
	Selector  SelectorConfig  `yaml:"selector"`
	Scene     SceneConfig     `yaml:"scene"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Spotify   SpotifyConfig   `yaml:"spotify"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr  string      `yaml:"addr" default:":8080"`
	Hooks HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// LogConfig represents logging configuration. Command-line flags win over it.
type LogConfig struct {
	Level string `yaml:"level" default:"info" validate:"oneof=debug info warn warning error"`
	File  string `yaml:"file"`
}

// AdminConfig represents admin-related configuration.
type AdminConfig struct {
	Token string `yaml:"token" validate:"required"`
}

// AuthorityConfig decides whether this instance reconciles playback.
type AuthorityConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	UserID  string `yaml:"user_id" validate:"required_without=OwnsAll"`
	OwnsAll bool   `yaml:"owns_all"` // Game master: every token counts as owned
}

// PlaybackConfig represents playback control configuration.
type PlaybackConfig struct {
	TickMs    int `yaml:"tick_ms" default:"100" validate:"gte=10,lte=5000"`
	QueueSize int `yaml:"queue_size" default:"64" validate:"gte=1"`
}

// SelectorConfig represents track selection configuration.
type SelectorConfig struct {
	Seed int64 `yaml:"seed"` // 0 seeds from the clock
}

// SceneConfig represents the scene file configuration.
type SceneConfig struct {
	File  string `yaml:"file"`
	Watch bool   `yaml:"watch" default:"true"`
}

// CatalogConfig lists external playlists imported at startup.
type CatalogConfig struct {
	SpotifyPlaylists []string `yaml:"spotify_playlists" validate:"dive,required"`
}

// SpotifyConfig represents Spotify API configuration.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Market       string `yaml:"market" validate:"omitempty,len=2" default:"JP"`
}

// MetricsConfig represents Prometheus endpoint configuration.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Path    string `yaml:"path" default:"/metrics" validate:"startswith=/"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse parses configuration from YAML.
func Parse(data []byte) (*Config, error) {
	var cfg Config

	// Defaults go first so that explicit false and zero values in the file survive.
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	cfg.overrideFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("ADMIN_TOKEN"); v != "" {
		c.Admin.Token = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	// Spotify credentials are only needed to import playlists.
	if len(c.Catalog.SpotifyPlaylists) > 0 {
		var missing []string
		if c.Spotify.ClientID == "" {
			missing = append(missing, "client_id")
		}
		if c.Spotify.ClientSecret == "" {
			missing = append(missing, "client_secret")
		}
		if len(missing) > 0 {
			return errors.Newf("spotify %s required when catalog.spotify_playlists is set", strings.Join(missing, ", "))
		}
	}

	return nil
}

// TickInterval returns the resolution of playback timers.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Playback.TickMs) * time.Millisecond
}
