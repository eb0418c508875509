// Command migrate applies the price store migrations to DATABASE_URL.
package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/archon-research/spotrate/db"
	"github.com/archon-research/spotrate/db/migrator"
	"github.com/archon-research/spotrate/internal/adapters/outbound/postgres"
	"github.com/archon-research/spotrate/internal/config"
	"github.com/archon-research/spotrate/internal/pkg/env"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("migrate", flag.ContinueOnError)
	dir := flags.String("dir", "", "Read migrations from this directory instead of the embedded set")
	list := flags.Bool("list", false, "List applied migrations after applying")
	if err := flags.Parse(args); err != nil {
		return err
	}

	config.LoadDotEnv()
	logger := env.NewLogger("migrate")

	dsn, err := env.Require("DATABASE_URL")
	if err != nil {
		return err
	}

	fsys, err := migrationsFS(*dir)
	if err != nil {
		return err
	}

	pool, err := postgres.OpenPool(ctx, postgres.DefaultDBConfig(dsn))
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	m := migrator.New(pool, fsys, logger)
	if err := m.ApplyAll(ctx); err != nil {
		return err
	}
	logger.Info("all migrations up to date")

	if *list {
		applied, err := m.ListApplied(ctx)
		if err != nil {
			return fmt.Errorf("listing migrations: %w", err)
		}
		for _, name := range applied {
			fmt.Println(name)
		}
	}
	return nil
}

func migrationsFS(dir string) (fs.FS, error) {
	if dir != "" {
		return os.DirFS(dir), nil
	}
	sub, err := fs.Sub(db.Migrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("opening embedded migrations: %w", err)
	}
	return sub, nil
}
