// Package testutil provides test helpers for PostgreSQL-backed repositories.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/cory-johannsen/dungeonclicker/internal/config"
	"github.com/cory-johannsen/dungeonclicker/internal/storage/postgres"
)

// PostgresContainer wraps a testcontainers PostgreSQL instance.
type PostgresContainer struct {
	container testcontainers.Container
	Pool      *postgres.Pool
	RawPool   *pgxpool.Pool
	Config    config.DatabaseConfig
}

// StartPostgres starts a PostgreSQL container and connects a Pool. It is
// meant for TestMain, where no *testing.T is available; call Terminate when done.
//
// Precondition: Docker must be available.
// Postcondition: Returns a running container with a connected pool, or an error.
func StartPostgres(ctx context.Context) (*PostgresContainer, error) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(30 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("starting postgres container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("getting container host: %w", err)
	}
	mappedPort, err := container.MappedPort(ctx, "5432")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("getting mapped port: %w", err)
	}

	dbCfg := config.DatabaseConfig{
		Host:            host,
		Port:            mappedPort.Int(),
		User:            "test",
		Password:        "test",
		Name:            "test",
		SSLMode:         "disable",
		MaxConns:        5,
		MinConns:        1,
		MaxConnLifetime: 5 * time.Minute,
	}

	pool, err := postgres.NewPool(ctx, dbCfg)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("connecting to test postgres: %w", err)
	}

	return &PostgresContainer{
		container: container,
		Pool:      pool,
		RawPool:   pool.DB(),
		Config:    dbCfg,
	}, nil
}

// NewPostgresContainer starts a PostgreSQL test container with the schema
// applied. The test is skipped under -short.
//
// Precondition: Docker must be available.
// Postcondition: Returns a running container with a connected pool,
// or fails the test.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}
	ctx := context.Background()
	start := time.Now()

	pc, err := StartPostgres(ctx)
	if err != nil {
		t.Fatalf("%v [%s]", err, time.Since(start))
	}
	t.Cleanup(pc.Terminate)

	if err := pc.Migrate(); err != nil {
		t.Fatalf("applying migrations: %v", err)
	}
	t.Logf("postgres container started [%s]", time.Since(start))
	return pc
}

// Migrate applies every up migration in the repository's migrations directory.
//
// Precondition: Pool must be connected.
// Postcondition: The dungeon and player tables exist in the test database.
func (pc *PostgresContainer) Migrate() error {
	m, err := migrate.New("file://"+MigrationsDir(), pc.DSN())
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrating up: %w", err)
	}
	return nil
}

// Truncate empties every application table between tests.
func (pc *PostgresContainer) Truncate(ctx context.Context) error {
	_, err := pc.RawPool.Exec(ctx,
		`TRUNCATE player_items, items, players, bosses, dungeons RESTART IDENTITY CASCADE`)
	return err
}

// Terminate closes the pool and stops the container.
func (pc *PostgresContainer) Terminate() {
	pc.Pool.Close()
	_ = pc.container.Terminate(context.Background())
}

// DSN returns the connection string for the test database.
func (pc *PostgresContainer) DSN() string {
	return pc.Config.DSN()
}

// MigrationsDir returns the absolute path of the migrations directory.
func MigrationsDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "migrations")
}
