//go:build integration

package store

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// SetupTestDB creates a connection to the test database and runs
// migrations. The test database (lnledger_test) must already exist on
// localhost:5432.
func SetupTestDB(t *testing.T) *DB {
	t.Helper()

	cfg := Config{
		Host:            "localhost",
		Port:            "5432",
		User:            "postgres",
		Password:        "postgres",
		DB:              "lnledger_test",
		SslMode:         "disable",
		MaxConns:        5,
		MinConns:        1,
		MaxConnLifetime: 5,
		MaxConnIdleTime: 1,
	}

	db, err := NewDB(cfg)
	require.NoError(t, err, "failed to connect to test database")

	_, filename, _, _ := runtime.Caller(0)
	dir := filepath.Dir(filename)
	projectRoot := filepath.Join(dir, "../..")
	migrationsPath := filepath.Join(projectRoot, "migrations")
	db.SetMigrationPath("file://" + migrationsPath)

	err = db.RunMigrations()
	require.NoError(t, err, "failed to run migrations on test database")

	return db
}

// CleanupTestDB truncates all tables to ensure clean state between tests.
func CleanupTestDB(t *testing.T, db *DB) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tables := []string{
		"invoices", "payments", "withdrawals", "deposits",
		"deposit_addresses", "tx_outs", "balance_reservations",
		"auth_tokens", "users",
	}
	for _, table := range tables {
		query := fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)
		_, err := db.Pool.Exec(ctx, query)
		require.NoError(t, err, "failed to truncate table %s", table)
	}
}
