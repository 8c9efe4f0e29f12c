package integration

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/aliuyar1234/traineeportal/internal/db"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	postgresContainer testcontainers.Container
	postgresHost      string
	postgresPort      string
	postgresAdminPool *pgxpool.Pool

	postgresUnavailableErr error
)

func TestMain(m *testing.M) {
	if _, err := exec.LookPath("docker"); err != nil {
		postgresUnavailableErr = err
		os.Exit(m.Run())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := startPostgres(ctx); err != nil {
		postgresUnavailableErr = err
		os.Exit(m.Run())
	}

	code := m.Run()

	postgresAdminPool.Close()
	_ = postgresContainer.Terminate(context.Background())
	os.Exit(code)
}

func startPostgres(ctx context.Context) error {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16.4-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_PASSWORD": "postgres",
				"POSTGRES_USER":     "postgres",
				"POSTGRES_DB":       "postgres",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return fmt.Errorf("failed to start postgres container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(context.Background())
		return err
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		_ = container.Terminate(context.Background())
		return err
	}

	postgresContainer = container
	postgresHost = host
	postgresPort = port.Port()

	pool, err := pgxpool.New(ctx, dsnFor("postgres"))
	if err != nil {
		_ = container.Terminate(context.Background())
		return err
	}
	if err := waitForPostgres(ctx, pool); err != nil {
		pool.Close()
		_ = container.Terminate(context.Background())
		return err
	}

	postgresAdminPool = pool
	return nil
}

func dsnFor(database string) string {
	return fmt.Sprintf("postgres://postgres:postgres@%s:%s/%s?sslmode=disable", postgresHost, postgresPort, database)
}

func requirePostgres(t *testing.T) {
	t.Helper()
	if postgresAdminPool == nil || postgresUnavailableErr != nil {
		if postgresUnavailableErr == nil {
			postgresUnavailableErr = errors.New("postgres test container unavailable")
		}
		t.Skipf("skipping integration tests: %v", postgresUnavailableErr)
	}
}

func waitForPostgres(ctx context.Context, pool *pgxpool.Pool) error {
	deadline := time.Now().Add(45 * time.Second)
	var lastErr error

	for time.Now().Before(deadline) {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := pool.Ping(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		time.Sleep(500 * time.Millisecond)
	}

	return fmt.Errorf("postgres not ready: %w", lastErr)
}

// newTestDB creates a fresh, migrated database and returns a pool on it.
func newTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	t.Helper()
	pool, cleanup := newEmptyDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.RunMigrations(ctx, pool); err != nil {
		cleanup()
		t.Fatalf("failed to run migrations: %v", err)
	}
	return pool, cleanup
}

func newEmptyDB(t *testing.T) (*pgxpool.Pool, func()) {
	t.Helper()
	requirePostgres(t)

	dbName := "traineeportal_test_" + randomHex(t, 8)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := postgresAdminPool.Exec(ctx, fmt.Sprintf("CREATE DATABASE %s", dbName))
	if err != nil {
		t.Fatalf("failed to create database %q: %v", dbName, err)
	}

	pool, err := db.Connect(ctx, dsnFor(dbName), db.PoolOptions{MaxConns: 16})
	if err != nil {
		_, _ = postgresAdminPool.Exec(ctx, fmt.Sprintf("DROP DATABASE IF EXISTS %s", dbName))
		t.Fatalf("failed to connect to database %q: %v", dbName, err)
	}

	cleanup := func() {
		pool.Close()

		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		_, _ = postgresAdminPool.Exec(cleanupCtx, `
			SELECT pg_terminate_backend(pid)
			FROM pg_stat_activity
			WHERE datname = $1 AND pid <> pg_backend_pid()
		`, dbName)
		_, _ = postgresAdminPool.Exec(cleanupCtx, fmt.Sprintf("DROP DATABASE IF EXISTS %s", dbName))
	}

	return pool, cleanup
}

func randomHex(t *testing.T, bytes int) string {
	t.Helper()
	b := make([]byte, bytes)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("failed to generate random bytes: %v", err)
	}
	return hex.EncodeToString(b)
}
