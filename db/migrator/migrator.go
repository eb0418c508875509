// Package migrator applies SQL migrations in filename order and records a checksum for
// each one, refusing to run if an applied migration has since been edited.
package migrator

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createMigrationsTable = `
	CREATE TABLE IF NOT EXISTS migrations (
		filename   TEXT PRIMARY KEY,
		checksum   TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`

// Migrator applies the .sql files found in a filesystem.
type Migrator struct {
	pool   *pgxpool.Pool
	fsys   fs.FS
	logger *slog.Logger
}

// New creates a migrator for the .sql files at the root of fsys. Use fs.Sub to point
// it at a subdirectory of an embedded filesystem, or os.DirFS for a directory on disk.
func New(pool *pgxpool.Pool, fsys fs.FS, logger *slog.Logger) *Migrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Migrator{
		pool:   pool,
		fsys:   fsys,
		logger: logger.With("component", "migrator"),
	}
}

// ApplyAll applies every pending migration, each in its own transaction.
func (m *Migrator) ApplyAll(ctx context.Context) error {
	if _, err := m.pool.Exec(ctx, createMigrationsTable); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	applied, err := m.appliedChecksums(ctx)
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	files, err := m.migrationFiles()
	if err != nil {
		return fmt.Errorf("failed to get migration files: %w", err)
	}

	for _, filename := range files {
		content, err := fs.ReadFile(m.fsys, filename)
		if err != nil {
			return fmt.Errorf("reading %s: %w", filename, err)
		}
		checksum := fmt.Sprintf("%x", sha256.Sum256(content))

		if stored, ok := applied[filename]; ok {
			if stored != checksum {
				return fmt.Errorf("migration %s has been modified (expected checksum %s, got %s)",
					filename, stored, checksum)
			}
			continue
		}

		if err := m.apply(ctx, filename, string(content), checksum); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", filename, err)
		}
	}

	return nil
}

func (m *Migrator) appliedChecksums(ctx context.Context) (map[string]string, error) {
	rows, err := m.pool.Query(ctx, "SELECT filename, checksum FROM migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]string)
	for rows.Next() {
		var filename, checksum string
		if err := rows.Scan(&filename, &checksum); err != nil {
			return nil, err
		}
		applied[filename] = checksum
	}
	return applied, rows.Err()
}

func (m *Migrator) migrationFiles() ([]string, error) {
	entries, err := fs.ReadDir(m.fsys, ".")
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)
	return files, nil
}

func (m *Migrator) apply(ctx context.Context, filename, content, checksum string) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			m.logger.Warn("failed to rollback transaction", "error", err)
		}
	}()

	if _, err := tx.Exec(ctx, content); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	if _, err := tx.Exec(ctx,
		"INSERT INTO migrations (filename, checksum) VALUES ($1, $2)",
		filename, checksum); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	m.logger.Info("applied migration", "file", filename, "checksum", checksum[:8])
	return nil
}

// ListApplied returns applied migrations in the order they ran.
func (m *Migrator) ListApplied(ctx context.Context) ([]string, error) {
	rows, err := m.pool.Query(ctx,
		"SELECT filename FROM migrations ORDER BY applied_at ASC, filename ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var migrations []string
	for rows.Next() {
		var filename string
		if err := rows.Scan(&filename); err != nil {
			return nil, err
		}
		migrations = append(migrations, filename)
	}
	return migrations, rows.Err()
}
