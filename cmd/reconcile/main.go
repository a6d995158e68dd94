// Command reconcile runs one marketplace reconciliation batch and prints the
// summary as JSON. With -feed it reconciles a feed snapshot from disk instead
// of fetching from the configured marketplace.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	inventoryapp "github.com/erp/stockledger/internal/application/inventory"
	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/reconciliation"
	"github.com/erp/stockledger/internal/infrastructure/cache"
	"github.com/erp/stockledger/internal/infrastructure/config"
	"github.com/erp/stockledger/internal/infrastructure/ecommerce"
	"github.com/erp/stockledger/internal/infrastructure/event"
	"github.com/erp/stockledger/internal/infrastructure/logger"
	"github.com/erp/stockledger/internal/infrastructure/persistence"
	"github.com/erp/stockledger/internal/infrastructure/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type options struct {
	configPath string
	feedPath   string
	logLevel   string
	company    string
	actor      string
	location   string
	dryRun     bool
	items      bool

	companyID  uuid.UUID
	actorID    uuid.UUID
	locationID *uuid.UUID
}

func parseFlags(args []string) (*options, error) {
	fs := flag.NewFlagSet("reconcile", flag.ContinueOnError)
	var opts options
	fs.StringVar(&opts.configPath, "config", "", "Path to config.toml")
	fs.StringVar(&opts.feedPath, "feed", "", "Reconcile a JSON feed file instead of fetching from the marketplace")
	fs.StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	fs.StringVar(&opts.company, "company", "", "Company ID (default: reconcile.company_id)")
	fs.StringVar(&opts.actor, "actor", "", "Actor ID recorded on corrections (default: reconcile.actor_id)")
	fs.StringVar(&opts.location, "location", "", "Target location ID (default: reconcile.target_location_id)")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "Plan corrections without writing movements")
	fs.BoolVar(&opts.items, "items", false, "Include per-variant items in the output")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return &opts, nil
}

// resolve parses the ID flags, falling back to the configured defaults
func (o *options) resolve(defaults config.ReconcileConfig) error {
	var err error
	if o.companyID, err = uuidOr(o.company, defaults.CompanyID); err != nil {
		return fmt.Errorf("invalid -company: %w", err)
	}
	if o.companyID == uuid.Nil {
		return errors.New("a company is required: pass -company or set reconcile.company_id")
	}
	if o.actorID, err = uuidOr(o.actor, defaults.ActorID); err != nil {
		return fmt.Errorf("invalid -actor: %w", err)
	}
	if o.location != "" {
		id, err := uuid.Parse(o.location)
		if err != nil {
			return fmt.Errorf("invalid -location: %w", err)
		}
		o.locationID = &id
	}
	return nil
}

func uuidOr(s string, fallback uuid.UUID) (uuid.UUID, error) {
	if s == "" {
		return fallback, nil
	}
	return uuid.Parse(s)
}

func readFeed(r io.Reader) (*reconciliation.Feed, error) {
	var feed reconciliation.Feed
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&feed); err != nil {
		return nil, fmt.Errorf("failed to decode feed: %w", err)
	}
	return &feed, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	var cfg *config.Config
	if opts.configPath != "" {
		cfg, err = config.LoadFile(opts.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := opts.resolve(cfg.Reconcile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log, err := logger.New(&logger.Config{
		Level:      opts.logLevel,
		Format:     "console",
		Output:     "stderr",
		TimeFormat: "2006-01-02 15:04:05",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts, os.Stdout, log); err != nil {
		log.Error("Reconciliation failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, opts *options, out io.Writer, log *zap.Logger) error {
	req := inventoryapp.ReconcileRequest{LocationID: opts.locationID, DryRun: opts.dryRun}
	if opts.feedPath != "" {
		f, err := os.Open(opts.feedPath)
		if err != nil {
			return err
		}
		defer f.Close()
		if req.Feed, err = readFeed(f); err != nil {
			return err
		}
	}

	db, err := persistence.NewDatabase(&cfg.Database,
		persistence.WithGormLogger(logger.NewGormLogger(log, logger.MapGormLogLevel(opts.logLevel))),
	)
	if err != nil {
		return err
	}
	defer db.Close()

	backends, err := cache.NewBackends(ctx, cfg.Redis, cache.WithLogger(log))
	if err != nil {
		return err
	}
	defer backends.Close()

	txScope := persistence.NewGormTransactionScope(db.DB, event.NewOutboxPublisher(event.NewRegisteredSerializer()))
	repos := persistence.NewRepositories(db.DB)
	method := inventory.CostMethod(cfg.Valuation.DefaultMethod)
	ledger := inventoryapp.NewStockLedger(repos, txScope, method, log).
		WithNotifier(backends.Notifier).
		WithAuditSink(inventoryapp.NewZapAuditSink(log))

	svc := inventoryapp.NewReconcileService(repos, txScope, ledger, inventoryapp.ReconcileConfig{
		TargetLocationID: cfg.Reconcile.TargetLocationID,
		IdempotencyTTL:   cfg.Reconcile.IdempotencyTTL,
		ProgressEvery:    cfg.Reconcile.BatchSize,
		ArchiveEnabled:   cfg.Reconcile.ArchiveEnabled && cfg.Storage.Enabled(),
	}, log).WithIdempotencyStore(backends.Idempotency)

	if req.Feed == nil {
		source, err := ecommerce.NewWooCommerceFeedSource(ecommerce.WooCommerceConfig{
			BaseURL:        cfg.Marketplace.BaseURL,
			ConsumerKey:    cfg.Marketplace.ConsumerKey,
			ConsumerSecret: cfg.Marketplace.ConsumerSecret,
			Timeout:        cfg.Marketplace.Timeout,
			PerPage:        cfg.Marketplace.PerPage,
			MaxRetries:     cfg.Marketplace.MaxRetries,
		}, log)
		if err != nil {
			return fmt.Errorf("marketplace not configured and no -feed given: %w", err)
		}
		svc.WithFeedSource(source)
	}
	if cfg.Storage.Enabled() {
		archive, err := storage.NewS3ReportArchive(&cfg.Storage, storage.WithLogger(log))
		if err != nil {
			return err
		}
		svc.WithArchive(archive)
	}

	summary, err := svc.Reconcile(ctx, opts.companyID, opts.actorID, req)
	if err != nil {
		return err
	}
	log.Info("Reconciliation finished",
		zap.String("run_id", summary.RunID.String()),
		zap.Bool("dry_run", summary.DryRun),
		zap.Int("processed", summary.Processed),
		zap.Int("writes", summary.Writes),
		zap.Int("creates", summary.Creates),
		zap.Int("errors", summary.Errors),
	)
	return writeSummary(out, summary, opts.items)
}

func writeSummary(w io.Writer, summary *inventoryapp.ReconcileSummary, withItems bool) error {
	if !withItems {
		s := *summary
		s.Items = nil
		summary = &s
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}
