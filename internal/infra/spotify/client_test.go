package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI emulates the playlist endpoints of the Web API.
type fakeAPI struct {
	mu       sync.Mutex
	auth     []string
	created  []map[string]any
	replaced [][]string
	added    [][]string
	failures int
}

func (f *fakeAPI) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.auth = append(f.auth, r.Header.Get("Authorization"))

		if f.failures > 0 {
			f.failures--
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = io.WriteString(w, `{"error":{"status":503,"message":"unavailable"}}`)
			return
		}

		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/me":
			_, _ = io.WriteString(w, `{"id":"user1","display_name":"User"}`)
		case r.Method == http.MethodPost && r.URL.Path == "/users/user1/playlists":
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			f.created = append(f.created, body)
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `{"id":"pl1","name":"x","external_urls":{"spotify":"https://open.spotify.com/playlist/pl1"}}`)
		case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/playlists/pl1/"):
			f.replaced = append(f.replaced, requestURIs(r))
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `{"snapshot_id":"s"}`)
		case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/playlists/pl1/"):
			f.added = append(f.added, requestURIs(r))
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `{"snapshot_id":"s"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"error":{"status":404,"message":"not found"}}`)
		}
	})
}

// requestURIs reads track URIs from either the query or a JSON body.
func requestURIs(r *http.Request) []string {
	if q := r.URL.Query().Get("uris"); q != "" {
		return strings.Split(q, ",")
	}
	var body struct {
		URIs []string `json:"uris"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body.URIs == nil {
		return []string{}
	}
	return body.URIs
}

func newTestExporter(t *testing.T, api *fakeAPI) *Exporter {
	t.Helper()
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)
	return NewExporter(ExporterConfig{
		APIURL:     srv.URL + "/",
		RetryDelay: time.Millisecond,
	})
}

func TestExporter_CreatePlaylist(t *testing.T) {
	api := &fakeAPI{}
	e := newTestExporter(t, api)

	p, err := e.CreatePlaylist(context.Background(), "tok", "Friday")
	require.NoError(t, err)
	assert.Equal(t, "pl1", p.ID)
	assert.Equal(t, "https://open.spotify.com/playlist/pl1", p.URL)

	require.Len(t, api.created, 1)
	assert.Equal(t, "Wejay - Friday", api.created[0]["name"])
	assert.Equal(t, false, api.created[0]["public"])
	for _, h := range api.auth {
		assert.Equal(t, "Bearer tok", h)
	}
}

func TestExporter_CreatePlaylistRequiresToken(t *testing.T) {
	e := newTestExporter(t, &fakeAPI{})
	_, err := e.CreatePlaylist(context.Background(), "", "Friday")
	assert.Error(t, err)
}

func TestExporter_SyncTracksChunks(t *testing.T) {
	api := &fakeAPI{}
	e := newTestExporter(t, api)

	ids := make([]string, 250)
	for i := range ids {
		ids[i] = fmt.Sprintf("t%03d", i)
	}

	require.NoError(t, e.SyncTracks(context.Background(), "tok", "pl1", ids))

	require.Len(t, api.replaced, 1)
	assert.Len(t, api.replaced[0], 100)
	assert.Equal(t, "spotify:track:t000", api.replaced[0][0])

	require.Len(t, api.added, 2)
	assert.Len(t, api.added[0], 100)
	assert.Len(t, api.added[1], 50)
	assert.Equal(t, "spotify:track:t249", api.added[1][49])
}

func TestExporter_SyncTracksRetriesServerErrors(t *testing.T) {
	api := &fakeAPI{failures: 1}
	e := newTestExporter(t, api)

	require.NoError(t, e.SyncTracks(context.Background(), "tok", "https://open.spotify.com/playlist/pl1", []string{"spotify:track:a"}))
	require.Len(t, api.replaced, 1)
	assert.Equal(t, []string{"spotify:track:a"}, api.replaced[0])
}

func TestExporter_SyncTracksNotFound(t *testing.T) {
	e := newTestExporter(t, &fakeAPI{})
	err := e.SyncTracks(context.Background(), "tok", "missing", []string{"a"})
	assert.Error(t, err)
}

func TestExtractTrackID(t *testing.T) {
	assert.Equal(t, "abc", extractTrackID("spotify:track:abc"))
	assert.Equal(t, "abc", extractTrackID("https://open.spotify.com/intl-ja/track/abc?si=1"))
	assert.Equal(t, "abc", extractTrackID(" abc "))
}

func TestExtractPlaylistID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Spotify URI format",
			input:    "spotify:playlist:37i9dQZF1DXcBWIGoYBM5M",
			expected: "37i9dQZF1DXcBWIGoYBM5M",
		},
		{
			name:     "Spotify URL format",
			input:    "https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M",
			expected: "37i9dQZF1DXcBWIGoYBM5M",
		},
		{
			name:     "Spotify URL with query params",
			input:    "https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M?si=abc123",
			expected: "37i9dQZF1DXcBWIGoYBM5M",
		},
		{
			name:     "Plain playlist ID",
			input:    "37i9dQZF1DXcBWIGoYBM5M",
			expected: "37i9dQZF1DXcBWIGoYBM5M",
		},
		{
			name:     "Empty string",
			input:    "",
			expected: "",
		},
		{
			name:     "HTTP URL (not HTTPS)",
			input:    "http://open.spotify.com/playlist/testID",
			expected: "testID",
		},
		{
			name:     "URL with multiple query params",
			input:    "https://open.spotify.com/playlist/abc123?si=xyz&utm_source=copy",
			expected: "abc123",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := extractPlaylistID(tt.input)
			assert.Equal(t, tt.expected, result,
				"extractPlaylistID(%s) should return %s", tt.input, tt.expected)
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
		{
			name:     "rate limit error with 429",
			err:      errors.New("Error 429: rate limit exceeded"),
			expected: true,
		},
		{
			name:     "rate limit text",
			err:      errors.New("rate limit exceeded"),
			expected: true,
		},
		{
			name:     "server error 500",
			err:      errors.New("Error 500: internal server error"),
			expected: true,
		},
		{
			name:     "server error 502",
			err:      errors.New("502 Bad Gateway"),
			expected: true,
		},
		{
			name:     "server error 503",
			err:      errors.New("503 Service Unavailable"),
			expected: true,
		},
		{
			name:     "server error 504",
			err:      errors.New("504 Gateway Timeout"),
			expected: true,
		},
		{
			name:     "client error 400",
			err:      errors.New("400 Bad Request"),
			expected: false,
		},
		{
			name:     "not found error",
			err:      errors.New("404 not found"),
			expected: false,
		},
		{
			name:     "generic error",
			err:      errors.New("something went wrong"),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := isRetryable(tt.err)
			assert.Equal(t, tt.expected, result)
		})
	}
}
