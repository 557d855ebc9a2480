package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("{}"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.SerializeRooms())
	assert.True(t, cfg.ExportEnabled())
	assert.False(t, cfg.HasSpotifyCredentials())
	assert.Equal(t, 10*time.Second, cfg.ExportTimeout())
	assert.Equal(t, 10*time.Minute, cfg.VerifierTTL())
	assert.Equal(t, time.Minute, cfg.SweepInterval())
	assert.Equal(t, time.Second, cfg.RetryDelay())
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout())
	assert.Equal(t, 3, cfg.Spotify.MaxRetries)
	assert.Empty(t, cfg.EnabledFilters())
}

func TestParse_Values(t *testing.T) {
	data := []byte(`
server:
  addr: ":9090"
  allowed_origins: ["http://localhost:5173"]
  hooks:
    on_started: ["echo started"]
redis:
  addr: "redis:6379"
  db: 2
queue:
  serialize_rooms: false
  export_timeout_sec: 5
spotify:
  client_id: id
  client_secret: secret
  export: false
filters:
  user_pending_filter:
    enabled: true
    settings:
      max_pending: 2
  duplicate_track_filter:
    enabled: true
  duration_limit_filter:
    enabled: false
messages:
  user_pending: "Wait for your tracks to play"
`)
	cfg, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, []string{"echo started"}, cfg.Server.Hooks.OnStarted)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.False(t, cfg.SerializeRooms())
	assert.False(t, cfg.ExportEnabled())
	assert.True(t, cfg.HasSpotifyCredentials())
	assert.Equal(t, 5*time.Second, cfg.ExportTimeout())

	assert.Equal(t, map[string]map[string]any{
		"user_pending_filter":    {"max_pending": 2},
		"duplicate_track_filter": {},
	}, cfg.EnabledFilters())

	assert.Equal(t, "Wait for your tracks to play", cfg.GetMessage("user_pending"))
	assert.Equal(t, "This track is already in the queue", cfg.GetMessage("duplicate_track"))
	assert.Equal(t, "Something went wrong", cfg.GetMessage("internal"))
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "malformed yaml", data: "server: ["},
		{name: "bad log level", data: "log:\n  level: loud\n"},
		{name: "bad redis db", data: "redis:\n  db: 99\n"},
		{name: "retries out of range", data: "spotify:\n  max_retries: 50\n"},
		{name: "client id without secret", data: "spotify:\n  client_id: id\n"},
		{name: "bad api url", data: "spotify:\n  api_url: not a url\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte("redis:\n  addr: file:6379\nadmin:\n  token: from-file\n"), 0o600))

	t.Setenv("REDIS_ADDR", "env:6379")
	t.Setenv("REDIS_PASSWORD", "pw")
	t.Setenv("SPOTIFY_CLIENT_ID", "env-id")
	t.Setenv("SPOTIFY_CLIENT_SECRET", "env-secret")
	t.Setenv("ADMIN_TOKEN", "env-token")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env:6379", cfg.Redis.Addr)
	assert.Equal(t, "pw", cfg.Redis.Password)
	assert.Equal(t, "env-id", cfg.Spotify.ClientID)
	assert.Equal(t, "env-secret", cfg.Spotify.ClientSecret)
	assert.Equal(t, "env-token", cfg.Admin.Token)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_ShippedConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "..", "config", "server.yaml"))
	require.NoError(t, err)

	// filters are opt-in
	assert.Empty(t, cfg.EnabledFilters())
	require.Contains(t, cfg.Filters, "duplicate_track_filter")
	assert.False(t, cfg.Filters["duplicate_track_filter"].Enabled)
}
