// Package main provides the Spotify login tool. It runs the same PKCE
// flow as the web client against a wejay server and prints the resulting
// access token for the user CLI.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
)

var (
	app      = kingpin.New("wejay-auth", "Spotify login tool for wejay")
	server   = app.Flag("server", "wejay server address").Default("http://localhost:8080").String()
	clientID = app.Flag("client-id", "Spotify Client ID").Envar("SPOTIFY_CLIENT_ID").Required().String()
	port     = app.Flag("port", "Callback server port").Default("8888").Int()
	wait     = app.Flag("wait", "How long to wait for authorization").Default("5m").Duration()
)

type callbackResult struct {
	code  string
	state string
	err   error
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	kingpin.MustParse(app.Parse(os.Args[1:]))

	redirectURI := fmt.Sprintf("http://127.0.0.1:%d/callback", *port)
	baseURL := strings.TrimRight(*server, "/")

	verifier := oauth2.GenerateVerifier()
	state := newState()

	ctx, cancel := context.WithTimeout(context.Background(), *wait)
	defer cancel()

	if err := postJSON(ctx, baseURL+"/api/auth/store-verifier", map[string]string{
		"verifier": verifier,
		"state":    state,
	}, nil); err != nil {
		fail(err)
	}

	auth := spotifyauth.New(
		spotifyauth.WithRedirectURL(redirectURI),
		spotifyauth.WithClientID(*clientID),
		spotifyauth.WithScopes(
			spotifyauth.ScopePlaylistModifyPublic,
			spotifyauth.ScopePlaylistModifyPrivate,
			spotifyauth.ScopePlaylistReadPrivate,
		),
	)

	resultCh := make(chan callbackResult, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if e := q.Get("error"); e != "" {
			http.Error(w, "Authorization denied", http.StatusForbidden)
			resultCh <- callbackResult{err: errors.Newf("authorization denied: %s", e)}
			return
		}
		fmt.Fprint(w, completePage)
		resultCh <- callbackResult{code: q.Get("code"), state: q.Get("state")}
	})

	callbackServer := &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", *port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := callbackServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			resultCh <- callbackResult{err: errors.Wrap(err, "failed to start callback server")}
		}
	}()

	fmt.Println("Please visit the following URL to authorize wejay:")
	fmt.Println("")
	fmt.Println(auth.AuthURL(state, oauth2.S256ChallengeOption(verifier)))
	fmt.Println("")
	fmt.Println("Waiting for authorization...")

	var res callbackResult
	select {
	case res = <-resultCh:
	case <-ctx.Done():
		res.err = errors.New("timed out waiting for authorization")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = callbackServer.Shutdown(shutdownCtx)

	if res.err != nil {
		fail(res.err)
	}
	if res.state != state {
		fail(errors.Newf("state mismatch: %s != %s", res.state, state))
	}

	var token struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := postJSON(ctx, baseURL+"/api/auth/exchange-token", map[string]string{
		"code":         res.code,
		"redirect_uri": redirectURI,
		"state":        state,
	}, &token); err != nil {
		fail(err)
	}

	fmt.Println("")
	fmt.Println("=== Authorization Successful ===")
	fmt.Println("")
	fmt.Printf("Access Token (expires in %s):\n", time.Duration(token.ExpiresIn)*time.Second)
	fmt.Println(token.AccessToken)
	fmt.Println("")
	fmt.Println("Set it for the user CLI:")
	fmt.Printf("export SPOTIFY_ACCESS_TOKEN=\"%s\"\n", token.AccessToken)
}

// newState returns a 64 character random state.
func newState() string {
	return strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
}

func postJSON(ctx context.Context, url string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "failed to encode request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "POST %s failed", url)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response")
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Newf("POST %s: status %d: %s", url, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	if out == nil {
		return nil
	}
	return errors.Wrap(json.Unmarshal(respBody, out), "failed to decode response")
}

func fail(err error) {
	fmt.Printf("Error: %v\n", err)
	os.Exit(1)
}

const completePage = `<!DOCTYPE html>
<html>
<head>
    <title>wejay - Authorization Complete</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            display: flex;
            justify-content: center;
            align-items: center;
            height: 100vh;
            margin: 0;
            background: #191414;
            color: white;
        }
        .container { text-align: center; padding: 40px; }
    </style>
</head>
<body>
    <div class="container">
        <h1>Authorization Complete</h1>
        <p>You can close this window and return to the terminal.</p>
    </div>
</body>
</html>
`
