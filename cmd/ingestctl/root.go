package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/FACorreiaa/nuam-ingest/internal/domain/auth"
	"github.com/FACorreiaa/nuam-ingest/internal/domain/ingest/extractor"
	"github.com/FACorreiaa/nuam-ingest/internal/domain/ingest/mapper"
	"github.com/FACorreiaa/nuam-ingest/internal/domain/ingest/parser"
	"github.com/FACorreiaa/nuam-ingest/internal/domain/ingest/repository"
	"github.com/FACorreiaa/nuam-ingest/internal/domain/ingest/service"
	"github.com/FACorreiaa/nuam-ingest/pkg/config"
	"github.com/FACorreiaa/nuam-ingest/pkg/db"
	"github.com/FACorreiaa/nuam-ingest/pkg/lock"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	userID   string
	role     string
	brokerID string
	dryRun   bool
	verbose  bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "ingestctl",
		Short: "Run brokerage ingestion batches from files",
		Long: `ingestctl loads factor, amount and qualification files and PDF statements
through the ingestion service.

Example Usage:
  ingestctl csv --kind amounts --user <uuid> --dry-run montos.csv
  ingestctl pdf --user <uuid> --confirm-all cartola.pdf
  ingestctl token --user <uuid> --role broker`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&opts.userID, "user", "", "uploading user id (uuid)")
	root.PersistentFlags().StringVar(&opts.role, "role", string(auth.RoleBroker), "uploading user role (admin|broker)")
	root.PersistentFlags().StringVar(&opts.brokerID, "broker", "", "broker bound to the user in --dry-run mode (default: a new id)")
	root.PersistentFlags().BoolVar(&opts.dryRun, "dry-run", false, "process in memory without touching the database")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log at debug level to stderr")

	root.AddCommand(newCSVCmd(opts), newPDFCmd(opts), newTokenCmd(opts))
	return root
}

func (o *globalOptions) principal() (auth.Principal, error) {
	id, err := uuid.Parse(o.userID)
	if err != nil {
		return auth.Principal{}, fmt.Errorf("--user must be a uuid: %w", err)
	}
	role, err := auth.ParseRole(o.role)
	if err != nil {
		return auth.Principal{}, err
	}
	return auth.Principal{ID: id, Role: role}, nil
}

func (o *globalOptions) logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// runtime is a service wired either to Postgres or to memory.
type runtime struct {
	svc     *service.IngestService
	p       auth.Principal
	cleanup func()
}

func (o *globalOptions) open(ctx context.Context, stderr io.Writer) (*runtime, error) {
	p, err := o.principal()
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger := o.logger(stderr)

	rt := &runtime{p: p, cleanup: func() {}}
	var repo repository.IngestRepository
	if o.dryRun {
		mem := repository.NewMemoryRepository()
		brokerID := uuid.New()
		if o.brokerID != "" {
			if brokerID, err = uuid.Parse(o.brokerID); err != nil {
				return nil, fmt.Errorf("--broker must be a uuid: %w", err)
			}
		}
		mem.AddBroker(p.ID, brokerID)
		repo = mem
	} else {
		database, err := db.New(ctx, db.Config{DSN: cfg.Database.DSN(), MaxConns: 4}, logger)
		if err != nil {
			return nil, err
		}
		rt.cleanup = database.Close
		repo = repository.NewPostgresIngestRepository(database.Pool)
	}

	profiles, err := mapper.LoadProfiles(cfg.Ingest.ProfilesPath)
	if err != nil {
		rt.cleanup()
		return nil, fmt.Errorf("failed to load header profiles: %w", err)
	}

	rt.svc = service.NewIngestService(
		repo,
		mapper.New(profiles, mapper.Options{EnforceYearMatch: cfg.Ingest.EnforceYearMatch}),
		extractor.New(extractor.Options{MinProximityAmount: decimal.NewFromInt(int64(cfg.Ingest.MinProximityAmount))}),
		parser.NewPDFReader(cfg.Ingest.MinPageText),
		logger,
	).WithLocker(lock.NewMemoryLocker(cfg.Lock.TTL))
	return rt, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), 10*time.Minute)
}
