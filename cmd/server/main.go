// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/osa030/wejay/internal/api/rest"
	"github.com/osa030/wejay/internal/api/ws"
	"github.com/osa030/wejay/internal/app/filter"
	"github.com/osa030/wejay/internal/app/notification"
	appplayback "github.com/osa030/wejay/internal/app/playback"
	"github.com/osa030/wejay/internal/app/queue"
	"github.com/osa030/wejay/internal/app/session"
	"github.com/osa030/wejay/internal/app/verifier"
	"github.com/osa030/wejay/internal/infra/config"
	"github.com/osa030/wejay/internal/infra/logger"
	"github.com/osa030/wejay/internal/infra/spotify"
	"github.com/osa030/wejay/internal/infra/store"
)

const wsPath = "/ws"

var (
	app        = kingpin.New("wejay-server", "wejay collaborative queue server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: from config)").String()

	// list-filters command
	listFiltersCmd = app.Command("list-filters", "List available filters and exit")
)

func init() {
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == listFiltersCmd.FullCommand() {
		printFilters()
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config from %s: %v\n", *configPath, err)
		os.Exit(1)
	}

	loggerConfig := logger.Config{
		Output: cfg.Log.Output,
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	closer, err := logger.Init(loggerConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	zlog.Info().Msgf("config loaded: path=%s", *configPath)

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		_ = closer.Close()
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	filters, err := filter.Build(cfg.EnabledFilters())
	if err != nil {
		return errors.Wrap(err, "invalid filter config")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	records := store.NewRedisStore(rdb)
	if err := pingStore(ctx, records); err != nil {
		return errors.Wrapf(err, "redis unavailable: addr=%s", cfg.Redis.Addr)
	}
	zlog.Info().Msgf("redis connected: addr=%s db=%d", cfg.Redis.Addr, cfg.Redis.DB)

	notif := notification.NewManager()
	defer notif.Close()
	pb := appplayback.NewSync(records, notif)

	var queueOpts []queue.Option
	if cfg.ExportEnabled() {
		queueOpts = append(queueOpts, queue.WithExporter(spotify.NewExporter(spotify.ExporterConfig{
			APIURL:     cfg.Spotify.APIURL,
			MaxRetries: cfg.Spotify.MaxRetries,
			RetryDelay: cfg.RetryDelay(),
		})))
	} else {
		zlog.Info().Msg("playlist export disabled")
	}
	queueSvc := queue.NewService(records, filters, pb, notif, queue.Config{
		SerializeRooms: cfg.SerializeRooms(),
		ExportTimeout:  cfg.ExportTimeout(),
	}, queueOpts...)

	sessions := session.NewManager(notif, queueSvc, pb, records, session.WithMessages(cfg.GetMessage))

	verifiers := verifier.NewStore(verifier.WithTTL(cfg.VerifierTTL()))
	go verifiers.Run(ctx, cfg.SweepInterval())

	if !cfg.HasSpotifyCredentials() {
		zlog.Warn().Msg("spotify credentials not configured, token exchange will fail")
	}
	auth := spotify.NewAuthenticator(spotify.AuthConfig{
		ClientID:     cfg.Spotify.ClientID,
		ClientSecret: cfg.Spotify.ClientSecret,
		TokenURL:     cfg.Spotify.TokenURL,
	})

	api := rest.NewServer(records, queueSvc, verifiers, auth, notif, rest.Config{
		AdminToken:   cfg.Admin.Token,
		CookieSecure: cfg.Auth.CookieSecure,
	})
	if cfg.Admin.Token == "" {
		zlog.Info().Msg("admin token not configured, admin API disabled")
	}

	router := api.Router(middleware.RequestID, middleware.RealIP, middleware.Recoverer, rest.RequestLogger)
	wsHandler := ws.NewHandler(sessions, cfg.Server.AllowedOrigins)
	router.Handle(wsPath, wsHandler)

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h2c.NewHandler(router, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s ws=%s", cfg.Server.Addr, wsPath)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	// Give the listener a moment before running hooks
	time.Sleep(100 * time.Millisecond)
	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		return errors.Wrap(err, "server error")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer shutdownCancel()

	// websocket connections are hijacked and not tracked by Shutdown
	wsHandler.Close()
	cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")

	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")

	return nil
}

func pingStore(ctx context.Context, s *store.RedisStore) error {
	const attempts = 5
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			delay := time.Second * time.Duration(1<<uint(i-1))
			zlog.Warn().Msgf("redis ping failed (attempt %d/%d), retrying in %v: %v", i, attempts, delay, err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		if err = s.Ping(ctx); err == nil {
			return nil
		}
	}
	return err
}

// printFilters prints available filters.
func printFilters() {
	registered := filter.GetRegistered()
	names := make([]string, 0, len(registered))
	for name := range registered {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("Available Filters:")
	for _, name := range names {
		f := registered[name]()
		codes := strings.Join(f.ReturnCodes(), ", ")
		fmt.Printf("  %-30s - %s [codes: %s]\n", name, f.Description(), codes)
	}
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		// Use sh -c to allow shell features like redirection or pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
