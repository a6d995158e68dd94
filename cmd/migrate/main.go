// Command migrate manages the stock ledger schema with golang-migrate.
package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/erp/stockledger/internal/infrastructure/config"
	"github.com/erp/stockledger/internal/infrastructure/logger"
	"github.com/erp/stockledger/internal/infrastructure/migration"
	"github.com/erp/stockledger/migrations"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

const usage = `Stock ledger schema migrations

Usage:
  migrate [flags] <command> [arguments]

Commands:
  up                    Apply all pending migrations
  down                  Roll back all migrations
  step <n>              Apply n migrations (positive=up, negative=down)
  goto <version>        Migrate to a specific version
  status                Show applied and latest versions
  force <version>       Force set migration version (repairs a dirty schema)
  drop -confirm         Drop all database objects
  create <name> [desc]  Create the next migration file pair (needs -path)
  list                  List available migrations

Flags:
  -path string          Migrations directory (default: embedded schema)
  -config string        Config file (default: ./config.toml)
  -log-level string     Log level: debug, info, warn, error (default: info)

Environment Variables:
  STOCK_DATABASE_HOST, STOCK_DATABASE_PORT, STOCK_DATABASE_USER,
  STOCK_DATABASE_PASSWORD, STOCK_DATABASE_DBNAME, STOCK_DATABASE_SSLMODE`

var errUsage = errors.New("usage")

// session is what every command runs against. migrator is nil for commands
// that only touch files.
type session struct {
	dir      string
	source   fs.FS
	args     []string
	log      *zap.Logger
	migrator *migration.Migrator
}

type command struct {
	needsDB bool
	run     func(s *session) error
}

var commands = map[string]command{
	"create": {run: runCreate},
	"list":   {run: runList},
	"up":     {needsDB: true, run: func(s *session) error { return s.migrator.Up() }},
	"down":   {needsDB: true, run: func(s *session) error { return s.migrator.Down() }},
	"step":   {needsDB: true, run: runStep},
	"goto":   {needsDB: true, run: runGoto},
	"status": {needsDB: true, run: runStatus},
	"force":  {needsDB: true, run: runForce},
	"drop":   {needsDB: true, run: runDrop},
}

func init() {
	commands["version"] = commands["status"]
}

func main() {
	dir := flag.String("path", "", "Path to a migrations directory (default: embedded schema)")
	configPath := flag.String("config", "", "Path to config.toml (default: ./config.toml, /etc/stockledger/config.toml)")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Println(usage)
		os.Exit(1)
	}

	log, err := logger.New(&logger.Config{Level: *logLevel, Format: "console", TimeFormat: "2006-01-02 15:04:05"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	err = run(log, *dir, *configPath, flag.Args())
	_ = logger.Sync(log)
	switch {
	case errors.Is(err, errUsage):
		fmt.Println(usage)
		os.Exit(2)
	case err != nil:
		log.Error("Migration command failed", zap.String("command", flag.Arg(0)), zap.Error(err))
		os.Exit(1)
	}
}

func run(log *zap.Logger, dir, configPath string, args []string) error {
	cmd, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}

	s := &session{source: migrations.FS, args: args[1:], log: log}
	if dir != "" {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", dir, err)
		}
		s.dir, s.source = abs, os.DirFS(abs)
	}
	log.Info("Migration CLI started", zap.String("command", args[0]), zap.String("migrations_path", s.sourceName()))

	if !cmd.needsDB {
		return cmd.run(s)
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	if s.dir != "" {
		s.migrator, err = migration.New(db, s.dir, log)
	} else {
		s.migrator, err = migration.NewFromFS(db, s.source, log)
	}
	if err != nil {
		return err
	}
	defer s.migrator.Close()
	return cmd.run(s)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func (s *session) sourceName() string {
	if s.dir == "" {
		return "embedded"
	}
	return s.dir
}

func (s *session) arg(i int, what string) (string, error) {
	if len(s.args) <= i {
		return "", fmt.Errorf("%w: %s required", errUsage, what)
	}
	return s.args[i], nil
}

func runCreate(s *session) error {
	if s.dir == "" {
		return fmt.Errorf("%w: create writes files and needs -path", errUsage)
	}
	name, err := s.arg(0, "migration name")
	if err != nil {
		return err
	}
	description, _ := s.arg(1, "description")
	mf, err := migration.CreateMigration(s.dir, name, description)
	if err != nil {
		return err
	}
	s.log.Info("Migration created",
		zap.String("version", mf.Version),
		zap.String("up_file", mf.UpPath),
		zap.String("down_file", mf.DownPath),
	)
	return nil
}

func runList(s *session) error {
	names, err := migration.ListMigrations(s.source)
	if err != nil {
		return err
	}
	s.log.Info("Available migrations", zap.Int("count", len(names)))
	for _, name := range names {
		fmt.Println("  -", name)
	}
	return nil
}

func runStep(s *session) error {
	raw, err := s.arg(0, "step count")
	if err != nil {
		return err
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("%w: invalid step count %q", errUsage, raw)
	}
	return s.migrator.Steps(n)
}

func runGoto(s *session) error {
	raw, err := s.arg(0, "version")
	if err != nil {
		return err
	}
	version, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return fmt.Errorf("%w: invalid version %q", errUsage, raw)
	}
	return s.migrator.GoTo(uint(version))
}

func runStatus(s *session) error {
	latest, err := migration.LatestVersion(s.source)
	if err != nil {
		return err
	}
	status, err := s.migrator.Status(latest)
	if err != nil {
		return err
	}
	s.log.Info("Schema status",
		zap.Uint("version", status.Version),
		zap.Uint("latest", latest),
		zap.Bool("dirty", status.Dirty),
		zap.Bool("pending", status.Pending),
	)
	return nil
}

func runForce(s *session) error {
	raw, err := s.arg(0, "version")
	if err != nil {
		return err
	}
	version, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("%w: invalid version %q", errUsage, raw)
	}
	return s.migrator.Force(version)
}

func runDrop(s *session) error {
	if !slices.Contains(s.args, "-confirm") && !slices.Contains(s.args, "--confirm") {
		return fmt.Errorf("%w: drop needs -confirm", errUsage)
	}
	return s.migrator.Drop()
}
