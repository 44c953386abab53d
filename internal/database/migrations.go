package database

import (
	"cmp"
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationsDir = "migrations"

// Migration is one numbered schema change, read from a file named like
// 003_publish_log.sql. AppliedAt is zero while pending.
type Migration struct {
	Version   int
	Name      string
	SQL       string
	AppliedAt time.Time
}

func (m Migration) Pending() bool { return m.AppliedAt.IsZero() }

// Migrator applies the embedded migrations in version order, each in its
// own transaction
type Migrator struct {
	db     *DB
	source fs.FS
	logger *slog.Logger
}

func NewMigrator(db *DB) *Migrator {
	return &Migrator{
		db:     db,
		source: migrationsFS,
		logger: slog.Default().With("component", "migrator"),
	}
}

// Run applies every pending migration and stops at the first failure
func (m *Migrator) Run(ctx context.Context) error {
	plan, err := m.Status(ctx)
	if err != nil {
		return err
	}
	for _, mig := range plan {
		if !mig.Pending() {
			continue
		}
		if err := m.apply(ctx, mig); err != nil {
			return fmt.Errorf("migration %03d_%s: %w", mig.Version, mig.Name, err)
		}
		m.logger.Info("Applied migration", "version", mig.Version, "name", mig.Name)
	}
	return nil
}

// Status lists every known migration in order with its applied time
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	if _, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at INTEGER NOT NULL DEFAULT (unixepoch())
		) STRICT
	`); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}
	plan, err := m.load()
	if err != nil {
		return nil, err
	}
	for i := range plan {
		plan[i].AppliedAt = applied[plan[i].Version]
	}
	return plan, nil
}

func (m *Migrator) applied(ctx context.Context) (map[int]time.Time, error) {
	rows, err := m.db.QueryContext(ctx, "SELECT version, applied_at FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var (
			version int
			at      int64
		)
		if err := rows.Scan(&version, &at); err != nil {
			return nil, err
		}
		applied[version] = time.Unix(at, 0)
	}
	return applied, rows.Err()
}

// parseMigrationName splits 003_publish_log.sql into 3 and publish_log
func parseMigrationName(file string) (int, string, bool) {
	base, ok := strings.CutSuffix(file, ".sql")
	if !ok {
		return 0, "", false
	}
	prefix, name, ok := strings.Cut(base, "_")
	if !ok {
		return 0, "", false
	}
	version, err := strconv.Atoi(prefix)
	if err != nil || version < 1 {
		return 0, "", false
	}
	return version, name, true
}

func (m *Migrator) load() ([]Migration, error) {
	entries, err := fs.ReadDir(m.source, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	var plan []Migration
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version, name, ok := parseMigrationName(entry.Name())
		if !ok {
			if strings.HasSuffix(entry.Name(), ".sql") {
				m.logger.Warn("Skipping badly named migration", "file", entry.Name())
			}
			continue
		}
		body, err := fs.ReadFile(m.source, path.Join(migrationsDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		plan = append(plan, Migration{Version: version, Name: name, SQL: string(body)})
	}

	slices.SortFunc(plan, func(a, b Migration) int { return cmp.Compare(a.Version, b.Version) })
	return plan, nil
}

func (m *Migrator) apply(ctx context.Context, mig Migration) error {
	return m.db.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, mig.SQL); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, name) VALUES (?, ?)",
			mig.Version, mig.Name)
		return err
	})
}
