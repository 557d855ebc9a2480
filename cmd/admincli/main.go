// Package main provides the admin CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"

	"github.com/osa030/wejay/internal/api/rest"
)

var (
	app     = kingpin.New("wejay-admincli", "wejay admin client")
	server  = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token   = app.Flag("token", "Admin token (or set ADMIN_TOKEN env)").Envar("ADMIN_TOKEN").String()
	timeout = app.Flag("timeout", "Request timeout").Default("10s").Duration()

	// list command
	listCmd = app.Command("list-rooms", "List all rooms").Alias("list")

	// status command
	statusCmd    = app.Command("status", "Get room status")
	statusRoomID = statusCmd.Arg("room-id", "Room ID").Required().String()

	// skip command
	skipCmd    = app.Command("skip", "Skip the current track of a room")
	skipRoomID = skipCmd.Arg("room-id", "Room ID").Required().String()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	// Check admin token
	if *token == "" {
		fmt.Println("Error: admin token is required (use --token or ADMIN_TOKEN env)")
		os.Exit(1)
	}

	client := &adminClient{
		http:    &http.Client{Timeout: *timeout},
		baseURL: strings.TrimRight(*server, "/"),
		token:   *token,
	}
	ctx := context.Background()

	var err error
	switch command {
	case listCmd.FullCommand():
		err = listRooms(ctx, client)
	case statusCmd.FullCommand():
		err = status(ctx, client, *statusRoomID)
	case skipCmd.FullCommand():
		err = skip(ctx, client, *skipRoomID)
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

type adminClient struct {
	http    *http.Client
	baseURL string
	token   string
}

func (c *adminClient) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return errors.Wrap(err, "failed to build request")
	}
	req.Header.Set(rest.AdminTokenHeader, c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s failed", method, path)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response")
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return errors.Newf("%s (status %d)", apiErr.Error, resp.StatusCode)
		}
		return errors.Newf("unexpected status %d", resp.StatusCode)
	}
	return errors.Wrap(json.Unmarshal(body, out), "failed to decode response")
}

func listRooms(ctx context.Context, client *adminClient) error {
	var rooms []rest.RoomStatus
	if err := client.do(ctx, http.MethodGet, "/api/admin/rooms", &rooms); err != nil {
		return err
	}

	fmt.Printf("\n=== ROOMS (%d) ===\n", len(rooms))
	if len(rooms) == 0 {
		fmt.Println("No rooms.")
		return nil
	}
	fmt.Printf("%-24s %-8s %-6s %-6s %-6s %s\n", "ID", "ACTIVE", "USERS", "QUEUE", "CONNS", "NOW PLAYING")
	for _, s := range rooms {
		nowPlaying := "-"
		if s.NowPlaying != nil {
			nowPlaying = fmt.Sprintf("%s - %s", s.NowPlaying.Name, s.NowPlaying.Artist)
		}
		fmt.Printf("%-24s %-8v %-6d %-6d %-6d %s\n",
			s.Room.ID, s.Room.IsActive, len(s.Room.Users), s.QueueLength, s.Connections, nowPlaying)
	}
	return nil
}

func status(ctx context.Context, client *adminClient, roomID string) error {
	var s rest.RoomStatus
	if err := client.do(ctx, http.MethodGet, "/api/admin/rooms/"+url.PathEscape(roomID), &s); err != nil {
		return err
	}
	fmt.Println("\n=== ROOM STATUS ===")
	printStatus(&s)
	return nil
}

func skip(ctx context.Context, client *adminClient, roomID string) error {
	var s rest.RoomStatus
	if err := client.do(ctx, http.MethodPost, "/api/admin/rooms/"+url.PathEscape(roomID)+"/skip", &s); err != nil {
		return err
	}
	fmt.Println("Track skipped.")
	printStatus(&s)
	return nil
}

func printStatus(s *rest.RoomStatus) {
	fmt.Printf("Room: %s (%s)\n", s.Room.Name, s.Room.ID)
	fmt.Printf("  Created By: %s at %s\n", s.Room.CreatedBy, s.Room.CreatedAt.Format(time.RFC3339))
	fmt.Printf("  Active: %v\n", s.Room.IsActive)
	fmt.Printf("  Users: %s\n", strings.Join(s.Room.Users, ", "))
	if s.Room.SpotifyPlaylistURL != "" {
		fmt.Printf("  Playlist URL: %s\n", s.Room.SpotifyPlaylistURL)
	}
	fmt.Printf("  Queue Length: %d\n", s.QueueLength)
	fmt.Printf("  Connections: %d\n", s.Connections)

	if s.NowPlaying != nil {
		fmt.Printf("\nCurrently Playing:\n")
		fmt.Printf("  Track ID: %s\n", s.NowPlaying.SpotifyID)
		fmt.Printf("  Name: %s\n", s.NowPlaying.Name)
		fmt.Printf("  Artists: %s\n", s.NowPlaying.Artist)
		fmt.Printf("  Added by: %s\n", s.NowPlaying.AddedBy)
	}
	if s.Playback != nil {
		state := "Idle"
		switch {
		case s.Playback.IsIdle():
		case s.Playback.IsPlaying:
			state = "Playing"
		default:
			state = "Paused"
		}
		fmt.Printf("  Playback: %s at %s\n", state, s.Playback.Elapsed(time.Now()).Round(time.Second))
	}
}
