// Package spotify exports room queues to Spotify playlists and exchanges
// authorization codes for user tokens.
package spotify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"
)

// maxTracksPerRequest is the Web API limit for playlist item writes.
const maxTracksPerRequest = 100

// Playlist is an exported playlist.
type Playlist struct {
	ID  string
	URL string
}

// ExporterConfig represents playlist exporter configuration.
type ExporterConfig struct {
	// APIURL overrides the Web API base URL. Must end with "/".
	APIURL     string
	MaxRetries int
	RetryDelay time.Duration
	HTTPClient *http.Client
}

// Exporter writes playlists on behalf of the user whose access token is
// passed to each call. Tokens are never stored.
type Exporter struct {
	apiURL     string
	maxRetries int
	retryDelay time.Duration
	httpClient *http.Client
}

// NewExporter creates a new playlist exporter.
func NewExporter(cfg ExporterConfig) *Exporter {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	return &Exporter{
		apiURL:     cfg.APIURL,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		httpClient: cfg.HTTPClient,
	}
}

func (e *Exporter) client(ctx context.Context, accessToken string) *spotify.Client {
	if e.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, e.httpClient)
	}
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))

	var opts []spotify.ClientOption
	if e.apiURL != "" {
		opts = append(opts, spotify.WithBaseURL(e.apiURL))
	}
	return spotify.New(httpClient, opts...)
}

// CreatePlaylist creates a private playlist for the room.
func (e *Exporter) CreatePlaylist(ctx context.Context, accessToken, roomName string) (*Playlist, error) {
	if accessToken == "" {
		return nil, errors.New("access token is required")
	}
	client := e.client(ctx, accessToken)

	var user *spotify.PrivateUser
	err := e.retry(func() error {
		u, err := client.CurrentUser(ctx)
		if err != nil {
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get current user")
	}

	name := fmt.Sprintf("Wejay - %s", roomName)
	description := fmt.Sprintf("Collaborative queue from the %s room", roomName)

	var playlist *spotify.FullPlaylist
	err = e.retry(func() error {
		p, err := client.CreatePlaylistForUser(ctx, user.ID, name, description, false, false)
		if err != nil {
			return err
		}
		playlist = p
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create playlist")
	}

	url := playlist.ExternalURLs["spotify"]
	if url == "" {
		url = PlaylistURL(string(playlist.ID))
	}
	return &Playlist{ID: string(playlist.ID), URL: url}, nil
}

// SyncTracks makes the playlist contain exactly the given tracks in order.
// trackIDs can be Spotify IDs, URLs, or URIs.
func (e *Exporter) SyncTracks(ctx context.Context, accessToken, playlistID string, trackIDs []string) error {
	if accessToken == "" {
		return errors.New("access token is required")
	}
	client := e.client(ctx, accessToken)
	pid := spotify.ID(extractPlaylistID(playlistID))

	ids := make([]spotify.ID, len(trackIDs))
	for i, trackID := range trackIDs {
		ids[i] = spotify.ID(extractTrackID(trackID))
	}

	first := ids
	if len(first) > maxTracksPerRequest {
		first = ids[:maxTracksPerRequest]
	}
	err := e.retry(func() error {
		return client.ReplacePlaylistTracks(ctx, pid, first...)
	})
	if err != nil {
		return errors.Wrap(err, "failed to replace playlist tracks")
	}

	for i := maxTracksPerRequest; i < len(ids); i += maxTracksPerRequest {
		end := i + maxTracksPerRequest
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[i:end]

		err := e.retry(func() error {
			_, err := client.AddTracksToPlaylist(ctx, pid, batch...)
			return err
		})
		if err != nil {
			return errors.Wrap(err, "failed to add tracks to playlist")
		}
	}
	return nil
}

// PlaylistURL returns the Spotify URL for a playlist.
func PlaylistURL(playlistID string) string {
	return fmt.Sprintf("https://open.spotify.com/playlist/%s", playlistID)
}

// retry retries an operation with linear backoff.
func (e *Exporter) retry(fn func() error) error {
	var lastErr error
	for i := 0; i < e.maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if i < e.maxRetries-1 {
			time.Sleep(e.retryDelay * time.Duration(i+1))
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr spotify.Error
	if errors.As(err, &apiErr) && apiErr.Status != 0 {
		return apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= http.StatusInternalServerError
	}
	// Rate limit errors and server errors are retryable
	errStr := err.Error()
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504")
}

// extractPlaylistID extracts the playlist ID from a Spotify playlist URL or URI.
func extractPlaylistID(input string) string {
	return extractID(input, "playlist")
}

// extractTrackID extracts the track ID from a Spotify track URL or URI.
func extractTrackID(input string) string {
	return extractID(input, "track")
}

func extractID(input, kind string) string {
	input = strings.TrimSpace(input)
	// spotify:<kind>:ID
	if prefix := "spotify:" + kind + ":"; strings.HasPrefix(input, prefix) {
		return strings.TrimPrefix(input, prefix)
	}

	// https://open.spotify.com/<kind>/ID or https://open.spotify.com/intl-XX/<kind>/ID
	sep := "/" + kind + "/"
	if strings.Contains(input, "open.spotify.com") && strings.Contains(input, sep) {
		parts := strings.Split(input, sep)
		id := strings.Split(parts[len(parts)-1], "?")[0]
		return strings.TrimRight(id, "/")
	}

	// Assume it's already an ID
	return input
}
