// Package testutil provides shared test infrastructure: a PostgreSQL
// container for store integration tests and an in-memory store with failure
// injection for service and HTTP tests.
//
// Usage in TestMain:
//
//	func TestMain(m *testing.M) {
//	    tc, err := testutil.StartPostgres()
//	    if err == nil {
//	        defer tc.Terminate()
//	        testDB, _ = tc.NewTestDB(context.Background(), logger)
//	    }
//	    os.Exit(m.Run())
//	}
package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ashita-ai/menusync/internal/storage"
	"github.com/ashita-ai/menusync/migrations"
)

// TestContainer wraps a testcontainers container with a DSN for connecting.
type TestContainer struct {
	Container testcontainers.Container
	DSN       string
}

// StartPostgres starts a PostgreSQL container. It returns an error when no
// container runtime is available so callers can skip instead of failing.
func StartPostgres() (tc *TestContainer, err error) {
	ctx := context.Background()

	// GenericContainer panics when the Docker provider cannot be created.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("testutil: container runtime unavailable: %v", r)
		}
	}()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:17-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "menusync",
			"POSTGRES_PASSWORD": "menusync",
			"POSTGRES_DB":       "menusync",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("testutil: start container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("testutil: container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("testutil: container port: %w", err)
	}

	dsn := fmt.Sprintf("postgres://menusync:menusync@%s:%s/menusync?sslmode=disable", host, port.Port())
	return &TestContainer{Container: container, DSN: dsn}, nil
}

// NewTestDB creates a storage.DB connected to this container, with a
// dedicated notification connection, and runs all migrations.
func (tc *TestContainer) NewTestDB(ctx context.Context, logger *slog.Logger) (*storage.DB, error) {
	db, err := storage.New(ctx, tc.DSN, tc.DSN, logger)
	if err != nil {
		return nil, fmt.Errorf("testutil: create DB: %w", err)
	}
	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		return nil, fmt.Errorf("testutil: run migrations: %w", err)
	}
	return db, nil
}

// Terminate stops and removes the container.
func (tc *TestContainer) Terminate() {
	_ = tc.Container.Terminate(context.Background())
}

// TestLogger returns a logger configured for test output (warns only).
func TestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}
