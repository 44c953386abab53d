// Package main is the command-line companion of constructord: it moves
// layout documents between files and the backend, renders floors, and
// manages the backend login and hardware registry without a browser.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Spatial-NVR/constructor/internal/backend"
	"github.com/Spatial-NVR/constructor/internal/config"
	"github.com/Spatial-NVR/constructor/internal/database"
	"github.com/Spatial-NVR/constructor/internal/store"
)

// env is what every subcommand shares. The database and client are opened
// on first use.
type env struct {
	configPath string
	backendURL string
	verbose    bool

	cfg    *config.Config
	db     *database.DB
	tokens *store.TokenStore
	client *backend.Client
}

func (e *env) settings() (*config.Config, error) {
	if e.cfg != nil {
		return e.cfg, nil
	}
	if _, err := os.Stat(e.configPath); err == nil {
		cfg, err := config.Load(e.configPath)
		if err != nil {
			return nil, err
		}
		e.cfg = cfg
	} else {
		e.cfg = config.Default()
		e.cfg.SetPath(e.configPath)
	}
	if e.backendURL != "" {
		e.cfg.Backend.URL = e.backendURL
	}
	return e.cfg, nil
}

func (e *env) openDB(ctx context.Context) (*database.DB, error) {
	if e.db != nil {
		return e.db, nil
	}
	cfg, err := e.settings()
	if err != nil {
		return nil, err
	}
	dbConfig := database.DefaultConfig(cfg.Storage.DataPath)
	dbConfig.Path = cfg.DatabasePath()
	db, err := database.Open(dbConfig)
	if err != nil {
		return nil, err
	}
	if err := database.NewMigrator(db).Run(ctx); err != nil {
		db.Close()
		return nil, err
	}
	e.db = db
	return db, nil
}

// connect returns a client carrying the stored token, if any
func (e *env) connect(ctx context.Context) (*backend.Client, *store.TokenStore, error) {
	if e.client != nil {
		return e.client, e.tokens, nil
	}
	cfg, err := e.settings()
	if err != nil {
		return nil, nil, err
	}
	db, err := e.openDB(ctx)
	if err != nil {
		return nil, nil, err
	}
	e.tokens = store.NewTokenStore(db, cfg.Sealer())
	e.client = backend.New(backend.Options{
		BaseURL: cfg.Backend.URL,
		Timeout: cfg.Backend.Timeout,
		Tokens:  e.tokens,
	})
	if _, err := e.tokens.Load(ctx, e.client.BaseURL()); err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, nil, err
	}
	return e.client, e.tokens, nil
}

func (e *env) close() {
	if e.db != nil {
		_ = e.db.Close()
	}
}

// output opens path for writing, "-" or empty meaning stdout
func output(path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopCloser{os.Stdout}, nil
	}
	return os.Create(path)
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func writeOutput(path string, data []byte) error {
	w, err := output(path)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func newMigrationsCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrations",
		Short: "Show the local database schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := e.openDB(cmd.Context())
			if err != nil {
				return err
			}
			status, err := database.NewMigrator(db).Status(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "DATABASE\t%s\n", db.Path())
			fmt.Fprintln(tw, "VERSION\tNAME\tAPPLIED")
			for _, m := range status {
				applied := "pending"
				if !m.Pending() {
					applied = m.AppliedAt.Format(time.DateTime)
				}
				fmt.Fprintf(tw, "%03d\t%s\t%s\n", m.Version, m.Name, applied)
			}
			return tw.Flush()
		},
	}
}

func defaultConfigPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	dataPath := os.Getenv("DATA_PATH")
	if dataPath == "" {
		dataPath = "./data"
	}
	return filepath.Join(dataPath, "config.yaml")
}

func newRootCmd() *cobra.Command {
	e := &env{}

	root := &cobra.Command{
		Use:           "constructorctl",
		Short:         "Manage building layouts, hardware and appeals from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if e.verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			e.close()
		},
	}

	root.PersistentFlags().StringVarP(&e.configPath, "config", "c", defaultConfigPath(), "Path to configuration")
	root.PersistentFlags().StringVar(&e.backendURL, "backend", "", "Backend URL, overrides the configuration")
	root.PersistentFlags().BoolVarP(&e.verbose, "verbose", "v", false, "Log debug output to stderr")

	root.AddCommand(
		newExportCmd(e),
		newPublishCmd(e),
		newRenderCmd(e),
		newLoginCmd(e),
		newLogoutCmd(e),
		newHardwareCmd(e),
		newAppealsCmd(e),
		newDraftsCmd(e),
		newMigrationsCmd(e),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
