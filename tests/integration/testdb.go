//go:build integration

// Package integration runs the ledger against real PostgreSQL and Redis
// containers started with testcontainers.
package integration

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/erp/stockledger/internal/infrastructure/config"
	"github.com/erp/stockledger/internal/infrastructure/logger"
	"github.com/erp/stockledger/internal/infrastructure/migration"
	"github.com/erp/stockledger/internal/infrastructure/persistence"
	"github.com/erp/stockledger/migrations"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"
	gormlogger "gorm.io/gorm/logger"

	_ "github.com/lib/pq"
)

const (
	pgImage    = "postgres:16-alpine"
	pgDatabase = "stockledger_test"
	pgUser     = "ledger"
	pgPassword = "ledger"
)

// TestDB is a migrated PostgreSQL database in its own container, opened the
// same way the server opens its pool.
type TestDB struct {
	*persistence.Database
	Config config.DatabaseConfig
}

// NewTestDB starts a PostgreSQL container, applies the embedded migrations
// and registers cleanup on t.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, pgImage,
		tcpostgres.WithDatabase(pgDatabase),
		tcpostgres.WithUsername(pgUser),
		tcpostgres.WithPassword(pgPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute)),
	)
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	cfg := config.DatabaseConfig{
		Host:            host,
		Port:            port.Int(),
		User:            pgUser,
		Password:        pgPassword,
		DBName:          pgDatabase,
		SSLMode:         "disable",
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5,
		ConnMaxIdleTime: 1,
	}
	migrate(t, cfg)

	db, err := persistence.NewDatabase(&cfg, persistence.WithGormLogger(
		logger.NewGormLogger(zaptest.NewLogger(t), gormlogger.Warn),
	))
	require.NoError(t, err, "open database")
	t.Cleanup(func() { _ = db.Close() })

	return &TestDB{Database: db, Config: cfg}
}

// migrate runs on its own pool because closing the migrator closes the pool
func migrate(t *testing.T, cfg config.DatabaseConfig) {
	t.Helper()
	sqlDB, err := sql.Open("postgres", cfg.DSN())
	require.NoError(t, err)

	m, err := migration.NewFromFS(sqlDB, migrations.FS, zaptest.NewLogger(t))
	require.NoError(t, err, "create migrator")
	defer func() { _ = m.Close() }()
	require.NoError(t, m.Up(), "apply migrations")

	latest, err := migration.LatestVersion(migrations.FS)
	require.NoError(t, err)
	status, err := m.Status(latest)
	require.NoError(t, err)
	require.False(t, status.Dirty, "schema left dirty")
	require.False(t, status.Pending, "migrations pending after up")
}
