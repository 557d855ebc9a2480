// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server   ServerConfig            `yaml:"server"`
	Log      LogConfig               `yaml:"log"`
	Redis    RedisConfig             `yaml:"redis"`
	Admin    AdminConfig             `yaml:"admin"`
	Queue    QueueConfig             `yaml:"queue"`
	Auth     AuthConfig              `yaml:"auth"`
	Filters  map[string]FilterConfig `yaml:"filters"`
	Messages MessagesConfig          `yaml:"messages"`
	Spotify  SpotifyConfig           `yaml:"spotify"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr string `yaml:"addr" default:":8080"`
	// AllowedOrigins restricts websocket origins. Empty allows any origin.
	AllowedOrigins  []string    `yaml:"allowed_origins"`
	ShutdownTimeout int         `yaml:"shutdown_timeout_sec" default:"10" validate:"gte=1,lte=120"`
	Hooks           HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// LogConfig represents logging configuration. Command-line flags override it.
type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn warning error"`
	Output string `yaml:"output" default:"stdout"`
	Format string `yaml:"format" validate:"omitempty,oneof=console json"`
}

// RedisConfig represents the record store connection.
type RedisConfig struct {
	Addr     string `yaml:"addr" default:"localhost:6379" validate:"required"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"gte=0,lte=15"`
}

// AdminConfig represents admin-related configuration.
// The admin API is disabled when the token is empty.
type AdminConfig struct {
	Token string `yaml:"token"`
}

// QueueConfig represents queue mutation settings.
type QueueConfig struct {
	SerializeRooms   *bool `yaml:"serialize_rooms" default:"true"`
	ExportTimeoutSec int   `yaml:"export_timeout_sec" default:"10" validate:"gte=1,lte=120"`
}

// AuthConfig represents the PKCE verifier store and token cookie settings.
type AuthConfig struct {
	VerifierTTLSec   int  `yaml:"verifier_ttl_sec" default:"600" validate:"gte=60"`
	SweepIntervalSec int  `yaml:"sweep_interval_sec" default:"60" validate:"gte=1"`
	CookieSecure     bool `yaml:"cookie_secure"`
}

// FilterConfig represents a filter's configuration.
type FilterConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// MessagesConfig represents user-facing messages.
type MessagesConfig struct {
	DefaultError          string `yaml:"default_error" default:"Something went wrong"`
	NotJoined             string `yaml:"not_joined" default:"Join the room first"`
	UserPending           string `yaml:"user_pending" default:"You already have the maximum number of tracks waiting"`
	DuplicateTrack        string `yaml:"duplicate_track" default:"This track is already in the queue"`
	DurationLimitExceeded string `yaml:"duration_limit_exceeded" default:"This track is too long"`
}

// SpotifyConfig represents Spotify API configuration.
// Without client credentials token exchange is unavailable; playlist export
// only needs the users' own tokens.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	// APIURL and TokenURL override the public endpoints.
	APIURL       string `yaml:"api_url" validate:"omitempty,url"`
	TokenURL     string `yaml:"token_url" validate:"omitempty,url"`
	Export       *bool  `yaml:"export" default:"true"`
	MaxRetries   int    `yaml:"max_retries" default:"3" validate:"gte=1,lte=10"`
	RetryDelayMs int    `yaml:"retry_delay_ms" default:"1000" validate:"gte=0,lte=60000"`
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

// Parse parses YAML configuration data.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
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

// GetMessage returns the message for the given code.
func (c *Config) GetMessage(code string) string {
	switch code {
	case "not_joined":
		return c.Messages.NotJoined
	case "user_pending":
		return c.Messages.UserPending
	case "duplicate_track":
		return c.Messages.DuplicateTrack
	case "duration_limit_exceeded":
		return c.Messages.DurationLimitExceeded
	default:
		return c.Messages.DefaultError
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	if (c.Spotify.ClientID == "") != (c.Spotify.ClientSecret == "") {
		return errors.New("spotify client_id and client_secret must be set together")
	}
	return nil
}

// EnabledFilters returns the settings of every enabled filter keyed by name.
func (c *Config) EnabledFilters() map[string]map[string]any {
	out := make(map[string]map[string]any)
	for name, f := range c.Filters {
		if !f.Enabled {
			continue
		}
		settings := f.Settings
		if settings == nil {
			settings = map[string]any{}
		}
		out[name] = settings
	}
	return out
}

// SerializeRooms reports whether room mutations are serialized in-process.
func (c *Config) SerializeRooms() bool {
	return c.Queue.SerializeRooms == nil || *c.Queue.SerializeRooms
}

// ExportEnabled reports whether queues are mirrored to Spotify playlists.
func (c *Config) ExportEnabled() bool {
	return c.Spotify.Export == nil || *c.Spotify.Export
}

// HasSpotifyCredentials reports whether token exchange is configured.
func (c *Config) HasSpotifyCredentials() bool {
	return c.Spotify.ClientID != "" && c.Spotify.ClientSecret != ""
}

// ExportTimeout returns the bound for playlist calls of one mutation.
func (c *Config) ExportTimeout() time.Duration {
	return time.Duration(c.Queue.ExportTimeoutSec) * time.Second
}

// VerifierTTL returns how long a stored PKCE verifier stays valid.
func (c *Config) VerifierTTL() time.Duration {
	return time.Duration(c.Auth.VerifierTTLSec) * time.Second
}

// SweepInterval returns the verifier sweep period.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Auth.SweepIntervalSec) * time.Second
}

// RetryDelay returns the base delay between Spotify API retries.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Spotify.RetryDelayMs) * time.Millisecond
}

// ShutdownTimeout returns the graceful shutdown bound.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeout) * time.Second
}
