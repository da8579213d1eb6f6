package database

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/oscillometry-report-server/internal/domain"
)

func TestConfigFromDomain(t *testing.T) {
	cfg := ConfigFromDomain(domain.DatabaseConfig{
		Host:            "db",
		Port:            5433,
		Database:        "reports",
		Username:        "ios",
		Password:        "pw",
		SSLMode:         "disable",
		MaxOpenConns:    3,
		MaxIdleConns:    8,
		ConnMaxLifetime: time.Minute,
	})

	if cfg.MaxConns != 3 {
		t.Errorf("MaxConns = %d, want 3", cfg.MaxConns)
	}
	if cfg.MinConns != 3 {
		t.Errorf("MinConns = %d, want it capped at MaxConns", cfg.MinConns)
	}
	want := "host=db port=5433 dbname=reports user=ios password=pw sslmode=disable"
	if cfg.DSN() != want {
		t.Errorf("DSN() = %q, want %q", cfg.DSN(), want)
	}

	if got := ConfigFromDomain(domain.DatabaseConfig{}).MaxConns; got != 4 {
		t.Errorf("default MaxConns = %d, want 4", got)
	}
}

func TestDatabaseConnectionAndMigrations(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate PostgreSQL container: %v", err)
		}
	}()

	host, err := pgContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := pgContainer.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	runner, err := NewMigrationRunner(
		fmt.Sprintf("postgres://testuser:testpass@%s:%d/testdb?sslmode=disable", host, port.Int()), logger)
	if err != nil {
		t.Fatalf("Failed to create migration runner: %v", err)
	}
	defer runner.Close()

	if err := runner.Up(ctx); err != nil {
		t.Fatalf("Migrations failed: %v", err)
	}
	if err := runner.Up(ctx); err != nil {
		t.Fatalf("Second migration run should be a no-op: %v", err)
	}
	version, dirty, err := runner.Version()
	if err != nil || dirty || version != 1 {
		t.Fatalf("Version() = %d, %v, %v; want 1, false, nil", version, dirty, err)
	}

	db, err := NewConnection(ctx, Config{
		Host:        host,
		Port:        port.Int(),
		Database:    "testdb",
		Username:    "testuser",
		Password:    "testpass",
		MaxConns:    4,
		MinConns:    1,
		MaxConnLife: time.Hour,
		MaxConnIdle: 30 * time.Minute,
		SSLMode:     "disable",
	}, logger)
	if err != nil {
		t.Fatalf("Failed to create database connection: %v", err)
	}
	defer db.Close()

	if err := db.Health(ctx); err != nil {
		t.Fatalf("Database health check failed: %v", err)
	}

	var exists bool
	if err := db.Pool.QueryRow(ctx, "SELECT to_regclass('public.patients') IS NOT NULL").Scan(&exists); err != nil || !exists {
		t.Fatalf("patients table missing after migrations (err=%v)", err)
	}

	if err := runner.Down(ctx); err != nil {
		t.Fatalf("Down migration failed: %v", err)
	}
}
