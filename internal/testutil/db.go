// Package testutil holds helpers shared by integration tests.
package testutil

import (
	"context"
	"io/fs"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/archon-research/spotrate/db"
	"github.com/archon-research/spotrate/db/migrator"
)

// StartPostgres starts a PostgreSQL container and returns its DSN. The container is
// terminated when the test finishes.
func StartPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("spotrate_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}
	return dsn
}

// ConnectPool creates a pgxpool.Pool for the given DSN, retrying until the database
// accepts connections. The pool is closed when the test finishes.
func ConnectPool(t *testing.T, dsn string) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	for i := 0; i < 30; i++ {
		if pool.Ping(ctx) == nil {
			return pool
		}
		time.Sleep(100 * time.Millisecond)
	}

	t.Fatal("timed out waiting for database connection")
	return nil
}

// RunMigrations applies the embedded migrations.
func RunMigrations(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	migrations, err := fs.Sub(db.Migrations, "migrations")
	if err != nil {
		t.Fatalf("migrations fs: %v", err)
	}
	if err := migrator.New(pool, migrations, nil).ApplyAll(context.Background()); err != nil {
		t.Fatalf("migrations: %v", err)
	}
}

// SetupPostgres is the composed helper: container + pool + migrations.
func SetupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	pool := ConnectPool(t, StartPostgres(t))
	RunMigrations(t, pool)
	return pool
}
