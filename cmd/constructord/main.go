// Package main runs the building constructor service: the editing session,
// the live appeal list and the local HTTP/WebSocket API in front of the
// backend
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/Spatial-NVR/constructor/internal/api"
	"github.com/Spatial-NVR/constructor/internal/backend"
	"github.com/Spatial-NVR/constructor/internal/config"
	"github.com/Spatial-NVR/constructor/internal/database"
	"github.com/Spatial-NVR/constructor/internal/editor"
	"github.com/Spatial-NVR/constructor/internal/eventbus"
	"github.com/Spatial-NVR/constructor/internal/geometry"
	"github.com/Spatial-NVR/constructor/internal/live"
	"github.com/Spatial-NVR/constructor/internal/logging"
	"github.com/Spatial-NVR/constructor/internal/store"
)

const (
	defaultDataPath = "./data"
	journalSize     = 1000
)

func main() {
	level := new(slog.LevelVar)
	if os.Getenv("LOG_LEVEL") == "debug" {
		level.Set(slog.LevelDebug)
	}

	dataPath := getEnv("DATA_PATH", defaultDataPath)
	configPath := findConfigFile(dataPath)

	cfg, err := loadConfig(configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", configPath, "error", err)
		os.Exit(1)
	}
	if os.Getenv("LOG_LEVEL") == "" {
		level.Set(logging.ParseLevel(cfg.Logging.Level))
	}
	journal := logging.NewJournal(journalSize)
	logger := newLogger(cfg.Logging.Format, level, journal)
	slog.SetDefault(logger)

	slog.Info("Starting building constructor",
		"config_path", configPath,
		"backend", cfg.Backend.URL,
		"addr", cfg.Server.Addr,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Open database
	dbConfig := database.DefaultConfig(cfg.Storage.DataPath)
	dbConfig.Path = cfg.DatabasePath()
	db, err := database.Open(dbConfig)
	if err != nil {
		slog.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.NewMigrator(db).Run(ctx); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	var bus *eventbus.EventBus
	if cfg.EventBus.Enabled {
		bus, err = eventbus.New(eventbus.Config{Host: cfg.EventBus.Host, Port: cfg.EventBus.Port}, logger)
		if err != nil {
			slog.Error("Failed to create event bus", "error", err)
			os.Exit(1)
		}
		defer bus.Stop()
	}

	if err := cfg.Watch(); err != nil {
		slog.Warn("Config file watching disabled", "error", err)
	}
	cfg.OnChange(func(c *config.Config) {
		if os.Getenv("LOG_LEVEL") == "" {
			level.Set(logging.ParseLevel(c.Logging.Level))
		}
		if bus != nil {
			if err := bus.Publish(eventbus.SubjectConfigChanged, map[string]string{"path": c.Path()}); err != nil {
				slog.Warn("Failed to publish config change", "error", err)
			}
		}
	})

	policies, err := backend.ParsePolicies(cfg.Backend.Policies)
	if err != nil {
		slog.Error("Invalid failure policy", "error", err)
		os.Exit(1)
	}

	tokens := store.NewTokenStore(db, cfg.Sealer())
	client := backend.New(backend.Options{
		BaseURL: cfg.Backend.URL,
		Timeout: cfg.Backend.Timeout,
		Tokens:  tokens,
		Logger:  logger,
	})
	signIn(ctx, cfg, client, tokens)

	session := editor.NewSession(editor.Options{
		Backend:      client,
		UploadsBase:  cfg.UploadsBase(),
		Canvas:       geometry.Size{Width: cfg.Editor.CanvasWidth, Height: cfg.Editor.CanvasHeight},
		HardwarePage: cfg.Editor.HardwarePage,
		Logger:       logger,
	})
	defer session.Close()

	go func() {
		if _, err := session.RefreshHardware(ctx); err != nil {
			slog.Warn("Hardware list unavailable", "error", err)
		}
	}()

	hub := api.NewHub(cfg.Server.CORSOrigins)
	go hub.Run(ctx)

	var feed *live.Feed
	if cfg.Live.Enabled {
		feed, err = startFeed(ctx, cfg, client, bus, hub, logger)
		if err != nil {
			slog.Error("Failed to start appeal feed", "error", err)
			os.Exit(1)
		}
		defer feed.Close()
	}

	router, err := api.NewRouter(api.Deps{
		Session:     session,
		Backend:     client,
		Feed:        feed,
		Hub:         hub,
		Bus:         bus,
		DB:          db,
		Drafts:      store.NewDraftStore(db),
		History:     store.NewPublishLog(db),
		Credentials: tokens,
		Policies:    policies,
		Journal:     journal,
		CORSOrigins: cfg.Server.CORSOrigins,
		RateLimit:   cfg.Server.RateLimit,
		Logger:      logger,
	})
	if err != nil {
		slog.Error("Failed to build router", "error", err)
		os.Exit(1)
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("Server starting", "address", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server error", "error", err)
			cancel()
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
	case <-ctx.Done():
	}

	slog.Info("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown error", "error", err)
	}
	if err := db.Checkpoint(shutdownCtx); err != nil {
		slog.Warn("WAL checkpoint failed", "error", err)
	}

	slog.Info("Server stopped")
}

// loadConfig reads the file when present and falls back to defaults,
// writing them out so the file can be edited and watched
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); err == nil {
		return config.Load(path)
	}
	cfg := config.Default()
	cfg.SetPath(path)
	if err := cfg.Save(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// signIn restores the stored token, or logs in with configured
// credentials when there is none. Failures leave the client anonymous.
func signIn(ctx context.Context, cfg *config.Config, client *backend.Client, tokens *store.TokenStore) {
	cred, err := tokens.Load(ctx, client.BaseURL())
	if err == nil {
		slog.Info("Restored backend session", "username", cred.Username)
		return
	}
	if !errors.Is(err, store.ErrNotFound) {
		slog.Warn("Failed to restore backend session", "error", err)
	}
	if cfg.Backend.Username == "" || cfg.Backend.Password == "" {
		return
	}

	tok, err := client.Login(ctx, cfg.Backend.Username, cfg.Backend.Password)
	if err != nil {
		slog.Warn("Backend login failed", "username", cfg.Backend.Username, "error", err)
		return
	}
	if err := tokens.Save(ctx, client.BaseURL(), cfg.Backend.Username, tok.AccessToken); err != nil {
		slog.Warn("Failed to store backend token", "error", err)
	}
}

// startFeed loads the first page of appeals and follows the channel in the
// background. Applied events go to the bus when it runs, straight to the
// hub otherwise.
func startFeed(ctx context.Context, cfg *config.Config, client *backend.Client, bus *eventbus.EventBus, hub *api.Hub, logger *slog.Logger) (*live.Feed, error) {
	wsURL, err := client.WebSocketURL(cfg.Live.Path)
	if err != nil {
		return nil, err
	}

	var pub live.Publisher = hub
	if bus != nil {
		pub = bus
	}
	feed := live.NewFeed(live.Options{
		URL:       wsURL,
		Header:    client.AuthHeader(),
		Fetcher:   client,
		Publisher: pub,
		PageSize:  cfg.Live.PageSize,
		Reconnect: cfg.Live.Reconnect,
		Logger:    logger,
	})
	if err := feed.Load(ctx); err != nil {
		slog.Warn("Initial appeal load failed", "error", err)
	}

	go func() {
		if err := feed.Run(ctx); err != nil {
			slog.Error("Appeal channel stopped", "error", err)
		}
	}()
	return feed, nil
}

// newLogger writes to stdout in the configured format and keeps recent
// records in the journal for /api/logs
func newLogger(format string, level *slog.LevelVar, journal *logging.Journal) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if strings.EqualFold(format, "text") {
		h = slog.NewTextHandler(os.Stdout, opts)
	} else {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(logging.NewHandler(journal, h))
}

func findConfigFile(dataPath string) string {
	// Check environment variable first
	if configPath := os.Getenv("CONFIG_PATH"); configPath != "" {
		return configPath
	}

	locations := []string{
		filepath.Join(dataPath, "config.yaml"),
		"./config/config.yaml",
		"/etc/constructor/config.yaml",
	}
	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return filepath.Join(dataPath, "config.yaml")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
