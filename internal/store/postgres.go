// Package store is the persistence layer: a pgx connection pool,
// golang-migrate-driven schema migrations, and one repository per
// ledger entity. It is the only package that knows SQL.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"lnledger/pkg/logger"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Config holds the connection parameters for the ledger database.
type Config struct {
	Host            string
	Port            string
	User            string
	Password        string
	DB              string
	SslMode         string
	MaxConns        int
	MinConns        int
	MaxConnLifetime int
	MaxConnIdleTime int
}

// DB wraps a pgx pool plus the migration source path.
type DB struct {
	Pool          *pgxpool.Pool
	migrationPath string
}

// NewDB opens a connection pool, verifies connectivity with a ping, and
// returns the DB ready for migrations.
func NewDB(cfg Config) (*DB, error) {
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DB, cfg.SslMode)
	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		logger.Error("failed to parse connection config", zap.Error(err))
		return nil, err
	}

	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConnLifetime = time.Duration(cfg.MaxConnLifetime) * time.Minute
	poolCfg.MaxConnIdleTime = time.Duration(cfg.MaxConnIdleTime) * time.Minute

	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		logger.Error("failed to create db connection pool", zap.Error(err))
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		logger.Error("database ping failed", zap.Error(err))
		return nil, err
	}

	logger.Info("database connection pool created successfully")

	return &DB{Pool: pool, migrationPath: "file://migrations"}, nil
}

// Ping checks the pool is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// RunMigrations applies all pending migrations under db.migrationPath.
func (db *DB) RunMigrations() error {
	connStr := db.Pool.Config().ConnString()
	sqlDB, err := sql.Open("postgres", connStr)
	if err != nil {
		logger.Error("failed to open sql.DB for migrations", zap.Error(err))
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer sqlDB.Close()

	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{})
	if err != nil {
		logger.Error("failed to create postgres driver", zap.Error(err))
		return fmt.Errorf("failed to create postgres driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(db.migrationPath, "postgres", driver)
	if err != nil {
		logger.Error("failed to create migrate instance", zap.Error(err))
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	logger.Info("running database migrations...")
	if err := m.Up(); err != nil {
		if err == migrate.ErrNoChange {
			logger.Info("no new migrations to apply")
			return nil
		}
		logger.Error("migration failed", zap.Error(err))
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		logger.Error("failed to get migration version", zap.Error(err))
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	if dirty {
		logger.Error("database is in dirty state", zap.Uint("version", version))
		return fmt.Errorf("database is in dirty state at version %d", version)
	}

	logger.Info("migrations completed successfully", zap.Uint("version", version))
	return nil
}

// Close shuts down the connection pool.
func (db *DB) Close() {
	if db.Pool != nil {
		logger.Info("closing database connection pool")
		db.Pool.Close()
	}
}

// SetMigrationPath overrides the default "file://migrations" source,
// used by tests to point at the repo-root migrations directory.
func (db *DB) SetMigrationPath(path string) {
	db.migrationPath = path
}
