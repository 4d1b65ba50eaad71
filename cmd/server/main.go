// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	apiconnect "github.com/osa030/zonebox/internal/api/connect"
	"github.com/osa030/zonebox/internal/app/authority"
	"github.com/osa030/zonebox/internal/app/dispatch"
	"github.com/osa030/zonebox/internal/app/notification"
	"github.com/osa030/zonebox/internal/app/playback"
	"github.com/osa030/zonebox/internal/app/reconcile"
	"github.com/osa030/zonebox/internal/app/selector"
	"github.com/osa030/zonebox/internal/domain/scene"
	"github.com/osa030/zonebox/internal/infra/config"
	"github.com/osa030/zonebox/internal/infra/logger"
	"github.com/osa030/zonebox/internal/infra/metrics"
	"github.com/osa030/zonebox/internal/infra/scenefile"
	"github.com/osa030/zonebox/internal/infra/spotify"
	"github.com/osa030/zonebox/internal/infra/store"
)

var (
	app        = kingpin.New("zonebox-server", "zonebox proximity playlist server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	checkConfigCmd = app.Command("check-config", "Validate the config and scene file, then exit")
)

func init() {
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	// Logging starts with flag values; the config file can only refine it
	// once it has been loaded.
	bootCloser, err := logger.Init(loggerConfig("", ""))
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	closer, err := logger.Init(loggerConfig(cfg.Log.Level, cfg.Log.File))
	if err != nil {
		zlog.Fatal().Msgf("Failed to initialize logger: %v", err)
	}
	_ = bootCloser.Close()
	defer closer.Close()

	if command == checkConfigCmd.FullCommand() {
		if err := checkConfig(cfg); err != nil {
			zlog.Error().Msgf("Config check failed: %v", err)
			os.Exit(1)
		}
		zlog.Info().Msg("Config OK")
		return
	}

	// Run server (defer ensures shutdown hook is called)
	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

// loggerConfig merges config file values with command-line flags. Flags win.
func loggerConfig(level, file string) logger.Config {
	c := logger.Config{Output: "stdout", Level: "info"}
	if level != "" {
		c.Level = level
	}
	if file != "" {
		c.Output = "file"
		c.File = file
	}
	if *verbose {
		c.Level = "debug"
	}
	if *logfile != "" {
		c.Output = "file"
		c.File = *logfile
	}
	return c
}

// checkConfig validates the parts of the setup that config.Load cannot.
func checkConfig(cfg *config.Config) error {
	if cfg.Scene.File == "" {
		return nil
	}
	doc, err := scenefile.Load(cfg.Scene.File)
	if err != nil {
		return err
	}
	zlog.Info().Msgf("Scene file OK: scene_id=%s emitters=%d tokens=%d playlists=%d",
		doc.Scene.ID, len(doc.Scene.Emitters), len(doc.Scene.Tokens), len(doc.Playlists))
	return nil
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := store.New()

	// Scene file
	if cfg.Scene.File != "" {
		doc, err := scenefile.Load(cfg.Scene.File)
		if err != nil {
			return fmt.Errorf("failed to load scene file: %w", err)
		}
		if err := doc.Apply(st); err != nil {
			return fmt.Errorf("failed to apply scene file: %w", err)
		}
		zlog.Info().Msgf("Scene loaded: scene_id=%s emitters=%d tokens=%d playlists=%d",
			doc.Scene.ID, len(doc.Scene.Emitters), len(doc.Scene.Tokens), len(doc.Playlists))
	}

	// Spotify catalog
	if len(cfg.Catalog.SpotifyPlaylists) > 0 {
		if err := importCatalog(ctx, cfg, st); err != nil {
			return fmt.Errorf("failed to import catalog: %w", err)
		}
	}

	gate := authority.Static{
		Enabled: cfg.Authority.Enabled,
		UserID:  cfg.Authority.UserID,
		OwnsAll: cfg.Authority.OwnsAll,
	}

	controller := playback.NewController(st, playback.Config{TickInterval: cfg.TickInterval()})
	defer controller.Close()

	met := metrics.New()
	reconciler := reconcile.New(reconcile.Deps{
		Gate:      gate,
		Selector:  selector.New(cfg.Selector.Seed),
		Playlists: st,
		Playback:  controller,
		Recorder:  met,
	})

	dispatcher := dispatch.New(gate, st, reconciler, dispatch.Config{QueueSize: cfg.Playback.QueueSize})
	go dispatcher.Run(ctx)

	// Playback events go to subscribers. A track end is followed by a sweep
	// so that playlists which did not advance on their own pick again.
	notifications := notification.NewManager()
	defer notifications.Close()
	go notifications.Forward(ctx, controller.Events(), func(e playback.Event) {
		if e.Type != playback.EventTrackEnded {
			return
		}
		if err := dispatcher.Publish(dispatch.Event{Type: dispatch.EventEmitterChanged}); err != nil {
			zlog.Debug().Msgf("Failed to publish track end: %v", err)
		}
	})

	if cfg.Scene.File != "" && cfg.Scene.Watch {
		if err := watchScene(ctx, cfg.Scene.File, st, dispatcher); err != nil {
			return fmt.Errorf("failed to watch scene file: %w", err)
		}
	}

	// Create RPC service
	sceneService := apiconnect.NewSceneService(apiconnect.SceneServiceDeps{
		Store:        st,
		Events:       dispatcher,
		Gate:         gate,
		Notification: notifications,
		Done:         ctx.Done(),
	})
	servicePath, serviceHandler := apiconnect.NewSceneServiceHandler(
		sceneService,
		connect.WithInterceptors(apiconnect.NewAdminAuthInterceptor(cfg.Admin.Token)),
	)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(logger.RequestLogger())
	r.Use(metrics.RequestMiddleware(met))
	if cfg.Metrics.Enabled {
		r.Method(http.MethodGet, cfg.Metrics.Path, met.Handler(func() {
			met.SetActivePlaylists(len(controller.ActivePlaylists()))
		}))
	}
	r.Mount(servicePath, serviceHandler)

	serverAddr := cfg.Server.Addr
	// Create server with h2c (HTTP/2 cleartext) support
	server := &http.Server{
		Addr:    serverAddr,
		Handler: h2c.NewHandler(r, &http2.Server{}),
	}

	// Channel to capture server startup errors
	serverErrCh := make(chan error, 1)
	serverStartedCh := make(chan struct{})

	go func() {
		zlog.Info().Msgf("Starting server: addr=%s authority=%v", serverAddr, gate.IsAuthority())
		close(serverStartedCh)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	<-serverStartedCh
	// Give the server a moment to fully initialize
	time.Sleep(100 * time.Millisecond)

	// Initial sweep for whatever scene the file made active.
	if id := st.ActiveSceneID(); id != "" {
		if err := dispatcher.Publish(dispatch.Event{Type: dispatch.EventSceneActivated, SceneID: id}); err != nil {
			zlog.Error().Msgf("Failed to publish initial scene: %v", err)
		}
	}

	// Execute startup hook if configured (after server is running)
	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		return fmt.Errorf("server error: %w", err)
	}

	// Stop the event loop and end open streams before the HTTP server.
	cancel()
	<-dispatcher.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")

	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")

	return nil
}

// importCatalog loads the configured Spotify playlists into the store.
// Playlists that fail to import are skipped.
func importCatalog(ctx context.Context, cfg *config.Config, st *store.Store) error {
	client, err := spotify.New(ctx, spotify.Config{
		ClientID:     cfg.Spotify.ClientID,
		ClientSecret: cfg.Spotify.ClientSecret,
		Market:       cfg.Spotify.Market,
	})
	if err != nil {
		return err
	}

	playlists, err := client.Import(ctx, cfg.Catalog.SpotifyPlaylists)
	if err != nil {
		zlog.Warn().Msgf("Some playlists could not be imported: %v", err)
	}
	for _, p := range playlists {
		if err := st.UpsertPlaylist(p); err != nil {
			return err
		}
	}
	zlog.Info().Msgf("Catalog imported: playlists=%d/%d", len(playlists), len(cfg.Catalog.SpotifyPlaylists))
	return nil
}

// watchScene reloads the scene file on change and sweeps the result.
// Emitters dropped from the file are released first.
func watchScene(ctx context.Context, path string, st *store.Store, dispatcher *dispatch.Dispatcher) error {
	watcher, err := scenefile.NewWatcher(path)
	if err != nil {
		return err
	}

	go func() {
		err := watcher.Run(ctx, func(doc *scenefile.Document) {
			prev, _ := st.Scene(doc.Scene.ID)
			if err := doc.Apply(st); err != nil {
				zlog.Error().Msgf("Failed to apply reloaded scene: %v", err)
				return
			}
			for _, e := range scene.RemovedEmitters(prev, &doc.Scene) {
				if err := dispatcher.Publish(dispatch.Event{Type: dispatch.EventEmitterDeleted, SceneID: e.SceneID, Emitter: &e}); err != nil {
					zlog.Error().Msgf("Failed to publish emitter removal: %v", err)
				}
			}
			if err := dispatcher.Publish(dispatch.Event{Type: dispatch.EventEmitterChanged, SceneID: doc.Scene.ID}); err != nil {
				zlog.Error().Msgf("Failed to publish scene reload: %v", err)
			}
		})
		if err != nil {
			zlog.Error().Msgf("Scene watcher stopped: %v", err)
		}
	}()
	return nil
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
