// Package main provides the user CLI entry point for testing.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"

	"github.com/osa030/wejay/internal/app/protocol"
	"github.com/osa030/wejay/internal/domain/playback"
	"github.com/osa030/wejay/internal/domain/track"
)

var (
	app    = kingpin.New("wejay-usercli", "wejay room client for testing")
	server = app.Flag("server", "Websocket endpoint").Default("ws://localhost:8080/ws").String()
	token  = app.Flag("token", "Spotify access token used for playlist export").Envar("SPOTIFY_ACCESS_TOKEN").String()
	wait   = app.Flag("wait", "How long to wait for the server reply").Default("5s").Duration()
	roomID = app.Flag("room", "Room ID").Short('r').Required().String()
	userID = app.Flag("user", "User ID").Short('u').Required().String()

	// listen command
	listenCmd = app.Command("listen", "Join the room and print events")

	// add command
	addCmd      = app.Command("add", "Add a track to the queue")
	addTrackID  = addCmd.Arg("spotify-id", "Spotify track ID").Required().String()
	addName     = addCmd.Flag("name", "Track name").String()
	addArtist   = addCmd.Flag("artist", "Artist names").String()
	addDuration = addCmd.Flag("duration", "Track duration").Default("3m").Duration()

	// remove command
	removeCmd = app.Command("remove", "Remove one of your tracks")
	removeID  = removeCmd.Arg("track-id", "Contribution ID").Required().String()

	// move command
	moveCmd       = app.Command("move", "Move one of your tracks by one slot")
	moveID        = moveCmd.Arg("track-id", "Contribution ID").Required().String()
	moveDirection = moveCmd.Arg("direction", "up or down").Required().Enum(protocol.DirectionUp, protocol.DirectionDown)

	// ended command
	endedCmd = app.Command("ended", "Report the current track as finished")
	endedID  = endedCmd.Arg("track-id", "Contribution ID of the finished track (optional)").String()

	// playlist command
	playlistCmd = app.Command("playlist", "Create the room playlist")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	conn, err := dial(*server)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	if err := send(conn, protocol.JoinRoom{RoomID: *roomID, UserID: *userID}); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	var intent protocol.Intent
	switch command {
	case listenCmd.FullCommand():
		listen(conn)
		return
	case addCmd.FullCommand():
		name := *addName
		if name == "" {
			name = *addTrackID
		}
		intent = protocol.AddTrack{
			RoomID: *roomID,
			Track: track.Track{
				SpotifyID:   *addTrackID,
				Name:        name,
				Artist:      *addArtist,
				DurationSec: int64(addDuration.Seconds()),
			},
			AccessToken: *token,
		}
	case removeCmd.FullCommand():
		intent = protocol.RemoveTrack{RoomID: *roomID, TrackID: *removeID, AccessToken: *token}
	case moveCmd.FullCommand():
		intent = protocol.MoveTrack{
			RoomID:      *roomID,
			TrackID:     *moveID,
			UserID:      *userID,
			Direction:   *moveDirection,
			AccessToken: *token,
		}
	case endedCmd.FullCommand():
		intent = protocol.TrackEnded{RoomID: *roomID, TrackID: *endedID, AccessToken: *token}
	case playlistCmd.FullCommand():
		if *token == "" {
			fmt.Println("Error: --token (or SPOTIFY_ACCESS_TOKEN) is required")
			os.Exit(1)
		}
		intent = protocol.CreatePlaylist{RoomID: *roomID, AccessToken: *token}
	}

	// The join snapshot arrives first, so the intent is sent after it.
	if _, err := awaitEvent(conn, protocol.TypeQueueState); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	if err := send(conn, intent); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	if _, err := awaitEvent(conn, protocol.TypeQueueUpdated, protocol.TypePlaylistCreated); err != nil {
		fmt.Printf("No confirmation: %v\n", err)
		os.Exit(1)
	}
}

func dial(url string) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Origin", "http://localhost")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to %s", url)
	}
	return conn, nil
}

func send(conn *websocket.Conn, intent protocol.Intent) error {
	data, err := protocol.EncodeIntent(intent)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// awaitEvent prints events until one of the given types arrives.
// Error events end the wait.
func awaitEvent(conn *websocket.Conn, types ...string) (protocol.Event, error) {
	deadline := time.Now().Add(*wait)
	for {
		_ = conn.SetReadDeadline(deadline)
		_, data, err := conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		e, err := protocol.DecodeEvent(data)
		if err != nil {
			fmt.Printf("Skipping frame: %v\n", err)
			continue
		}
		printEvent(e)
		if ev, ok := e.(protocol.Error); ok {
			return nil, errors.Newf("rejected [%s]: %s", ev.Code, ev.Message)
		}
		for _, t := range types {
			if e.Type() == t {
				return e, nil
			}
		}
	}
}

func listen(conn *websocket.Conn) {
	fmt.Printf("Joined %s as %s. Press Ctrl+C to exit.\n", *roomID, *userID)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nLeaving...")
		_ = send(conn, protocol.LeaveRoom{RoomID: *roomID, UserID: *userID})
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		os.Exit(0)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			fmt.Printf("Connection closed: %v\n", err)
			return
		}
		e, err := protocol.DecodeEvent(data)
		if err != nil {
			fmt.Printf("Skipping frame: %v\n", err)
			continue
		}
		printEvent(e)
	}
}

func printEvent(e protocol.Event) {
	fmt.Printf("\n[%s] ", time.Now().Format(time.TimeOnly))

	switch ev := e.(type) {
	case protocol.QueueState:
		fmt.Println("=== QUEUE STATE ===")
		printQueue(ev.Tracks)
		if ev.PlaybackState != nil {
			printPlayback(*ev.PlaybackState)
		}
	case protocol.QueueUpdated:
		fmt.Println("=== QUEUE UPDATED ===")
		printQueue(ev.Tracks)
	case protocol.PlaybackSync:
		fmt.Println("=== PLAYBACK ===")
		printPlayback(ev.PlaybackState)
	case protocol.UserJoined:
		fmt.Printf("=== USER JOINED === %s\n", ev.UserID)
	case protocol.UserLeft:
		fmt.Printf("=== USER LEFT === %s\n", ev.UserID)
	case protocol.PlaylistCreated:
		fmt.Println("=== PLAYLIST CREATED ===")
		fmt.Printf("  Playlist ID: %s\n", ev.PlaylistID)
		fmt.Printf("  URL: %s\n", ev.PlaylistURL)
	case protocol.Error:
		fmt.Printf("=== ERROR === [%s] %s\n", ev.Code, ev.Message)
	default:
		fmt.Printf("=== UNKNOWN EVENT (%s) ===\n", e.Type())
	}
}

func printQueue(entries []track.Entry) {
	if len(entries) == 0 {
		fmt.Println("  (empty)")
		return
	}
	for _, e := range entries {
		fmt.Printf("  %2d. %s - %s (%s) by %s [%s]\n",
			e.Position, e.Name, e.Artist, e.Duration().Round(time.Second), e.AddedBy, e.ID)
	}
}

func printPlayback(s playback.State) {
	if s.IsIdle() {
		fmt.Println("  Idle")
		return
	}
	state := "Paused"
	if s.IsPlaying {
		state = "Playing"
	}
	fmt.Printf("  %s %s at %s\n", state, s.Current(), s.Elapsed(time.Now()).Round(time.Second))
}
