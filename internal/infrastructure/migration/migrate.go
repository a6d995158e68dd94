// Package migration wraps golang-migrate for the ledger schema and manages
// the numbered migration files.
package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

const migrationsTable = "schema_migrations"

type Migrator struct {
	m   *migrate.Migrate
	log *zap.Logger
}

// Status is a snapshot of the applied schema version. The server refuses to
// start while Dirty or Pending is set.
type Status struct {
	Version uint `json:"version"`
	Dirty   bool `json:"dirty"`
	Pending bool `json:"pending"`
}

// New reads migrations from a directory on disk.
func New(db *sql.DB, dir string, logger *zap.Logger) (*Migrator, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("migrations directory: %w", err)
	}
	return NewFromFS(db, os.DirFS(dir), logger)
}

// NewFromFS reads migrations from fsys, usually the embedded migrations.FS.
func NewFromFS(db *sql.DB, fsys fs.FS, logger *zap.Logger) (*Migrator, error) {
	src, err := iofs.New(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("open migration source: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: migrationsTable})
	if err != nil {
		return nil, fmt.Errorf("postgres migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("init migrate: %w", err)
	}
	return &Migrator{m: m, log: logger}, nil
}

// apply runs one golang-migrate operation. ErrNoChange is success.
func (mg *Migrator) apply(op string, run func() error, fields ...zap.Field) error {
	mg.log.Info("Migration "+op+" starting", fields...)
	err := run()
	if errors.Is(err, migrate.ErrNoChange) {
		mg.log.Info("Migration "+op+": nothing to do", fields...)
		return nil
	}
	if err != nil {
		return fmt.Errorf("migration %s: %w", op, err)
	}
	version, dirty, err := mg.Version()
	if err != nil {
		return err
	}
	mg.log.Info("Migration "+op+" finished", append(fields, zap.Uint("version", version), zap.Bool("dirty", dirty))...)
	return nil
}

func (mg *Migrator) Up() error { return mg.apply("up", mg.m.Up) }

func (mg *Migrator) Down() error { return mg.apply("down", mg.m.Down) }

// Steps applies n migrations, rolling back when n is negative.
func (mg *Migrator) Steps(n int) error {
	return mg.apply("steps", func() error { return mg.m.Steps(n) }, zap.Int("steps", n))
}

func (mg *Migrator) GoTo(version uint) error {
	return mg.apply("goto", func() error { return mg.m.Migrate(version) }, zap.Uint("target_version", version))
}

// Version returns the applied version, zero when nothing has run yet.
func (mg *Migrator) Version() (uint, bool, error) {
	version, dirty, err := mg.m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		return 0, false, nil
	case err != nil:
		return 0, false, fmt.Errorf("read migration version: %w", err)
	}
	return version, dirty, nil
}

func (mg *Migrator) Status(latest uint) (Status, error) {
	version, dirty, err := mg.Version()
	if err != nil {
		return Status{}, err
	}
	return Status{Version: version, Dirty: dirty, Pending: version < latest}, nil
}

// Force records version as applied without running anything. It exists to
// clear the dirty flag after a failed migration was fixed by hand.
func (mg *Migrator) Force(version int) error {
	mg.log.Warn("Forcing migration version", zap.Int("version", version))
	if err := mg.m.Force(version); err != nil {
		return fmt.Errorf("force version %d: %w", version, err)
	}
	return nil
}

// Drop removes every object in the database, ledger history included.
func (mg *Migrator) Drop() error {
	mg.log.Warn("Dropping every database object")
	if err := mg.m.Drop(); err != nil {
		return fmt.Errorf("drop database: %w", err)
	}
	return nil
}

func (mg *Migrator) Close() error {
	srcErr, dbErr := mg.m.Close()
	return errors.Join(srcErr, dbErr)
}
