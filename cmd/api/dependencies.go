package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/nuam-ingest/internal/domain/auth"
	"github.com/FACorreiaa/nuam-ingest/internal/domain/ingest/extractor"
	"github.com/FACorreiaa/nuam-ingest/internal/domain/ingest/handler"
	"github.com/FACorreiaa/nuam-ingest/internal/domain/ingest/mapper"
	"github.com/FACorreiaa/nuam-ingest/internal/domain/ingest/parser"
	"github.com/FACorreiaa/nuam-ingest/internal/domain/ingest/report"
	"github.com/FACorreiaa/nuam-ingest/internal/domain/ingest/repository"
	"github.com/FACorreiaa/nuam-ingest/internal/domain/ingest/service"
	"github.com/FACorreiaa/nuam-ingest/pkg/config"
	"github.com/FACorreiaa/nuam-ingest/pkg/cron"
	"github.com/FACorreiaa/nuam-ingest/pkg/db"
	"github.com/FACorreiaa/nuam-ingest/pkg/lock"
	"github.com/FACorreiaa/nuam-ingest/pkg/metrics"
	"github.com/FACorreiaa/nuam-ingest/pkg/storage"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config  *config.Config
	DB      *db.DB
	Redis   *redis.Client
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// Repositories
	IngestRepo repository.IngestRepository

	// Services
	Tokens        *auth.TokenManager
	Sessions      *auth.SessionStore
	FileStorage   storage.Storage
	Locker        service.Locker
	IngestService *service.IngestService
	Scheduler     *cron.Scheduler

	// Handlers
	IngestHandler *handler.IngestHandler
	RateLimiter   *handler.RateLimiter
}

// InitDependencies initializes all application dependencies
func InitDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}
	if cfg.Observability.MetricsEnabled {
		deps.Metrics = metrics.New()
	}

	if err := deps.initDatabase(ctx); err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}

	if err := deps.initRepositories(); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init repositories: %w", err)
	}

	if err := deps.initServices(ctx); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init services: %w", err)
	}

	if err := deps.initHandlers(); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init handlers: %w", err)
	}

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initDatabase initializes the database connection and runs migrations
func (d *Dependencies) initDatabase(ctx context.Context) error {
	database, err := db.New(ctx, db.Config{
		DSN:             d.Config.Database.DSN(),
		MaxConns:        25,
		MinConns:        5,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
	}, d.Logger)
	if err != nil {
		return err
	}
	d.DB = database

	if d.Config.Database.MigrateOnStart {
		if err := d.DB.RunMigrations(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}
	return nil
}

func (d *Dependencies) initRepositories() error {
	d.IngestRepo = repository.NewPostgresIngestRepository(d.DB.Pool)

	d.Logger.Info("repositories initialized")
	return nil
}

func (d *Dependencies) initServices(ctx context.Context) error {
	d.Tokens = auth.NewTokenManager(d.Config.Auth.JWTSecret, d.Config.Auth.TokenTTL)
	if d.Config.Auth.SessionKey != "" {
		d.Sessions = auth.NewSessionStore(
			auth.NewCookieStore(d.Config.Auth.SessionKey, d.Config.Auth.SecureCookies),
			"nuam_session",
		)
	}

	fileStorage, err := storage.New(ctx, &storage.Config{
		Type:              storage.StorageType(d.Config.Storage.Type),
		LocalPath:         d.Config.Storage.LocalPath,
		S3Endpoint:        d.Config.Storage.S3Endpoint,
		S3Bucket:          d.Config.Storage.S3Bucket,
		S3Region:          d.Config.Storage.S3Region,
		S3AccessKeyID:     d.Config.Storage.S3AccessKeyID,
		S3SecretAccessKey: d.Config.Storage.S3SecretAccessKey,
		S3UseSSL:          d.Config.Storage.S3UseSSL,
	})
	if err != nil {
		return fmt.Errorf("failed to init file storage: %w", err)
	}
	d.FileStorage = fileStorage

	switch d.Config.Lock.Backend {
	case "redis":
		client, err := lock.NewRedisClient(ctx, d.Config.Lock.RedisAddr, d.Config.Lock.RedisPassword, d.Config.Lock.RedisDB)
		if err != nil {
			return err
		}
		d.Redis = client
		d.Locker = lock.NewRedisLocker(client, d.Config.Lock.TTL)
	default:
		d.Locker = lock.NewMemoryLocker(d.Config.Lock.TTL)
	}

	profiles, err := mapper.LoadProfiles(d.Config.Ingest.ProfilesPath)
	if err != nil {
		return fmt.Errorf("failed to load header profiles: %w", err)
	}

	d.IngestService = service.NewIngestService(
		d.IngestRepo,
		mapper.New(profiles, mapper.Options{EnforceYearMatch: d.Config.Ingest.EnforceYearMatch}),
		extractor.New(extractor.Options{MinProximityAmount: decimal.NewFromInt(int64(d.Config.Ingest.MinProximityAmount))}),
		parser.NewPDFReader(d.Config.Ingest.MinPageText),
		d.Logger,
	).
		WithPreviewStore(service.NewPreviewStore(d.Config.Ingest.PreviewTTL)).
		WithLocker(d.Locker).
		WithArchive(d.FileStorage).
		WithMetrics(d.Metrics)

	d.Scheduler = cron.NewScheduler(d.IngestService, d.Config.Cron.StaleSchedule, d.Config.Cron.StaleAfter, d.Logger)

	d.Logger.Info("services initialized",
		slog.String("storage", d.Config.Storage.Type),
		slog.String("lock", d.Config.Lock.Backend),
	)
	return nil
}

func (d *Dependencies) initHandlers() error {
	d.IngestHandler = handler.NewIngestHandler(d.IngestService, report.NewExporter(d.Config.Ingest.Currency), d.Logger).
		WithMaxUpload(d.Config.Ingest.MaxUploadBytes)
	d.RateLimiter = handler.NewRateLimiter(
		float64(d.Config.Server.RateLimitPerSecond),
		d.Config.Server.RateLimitBurst,
		d.Logger,
	)

	d.Logger.Info("handlers initialized")
	return nil
}

// Cleanup closes all resources
func (d *Dependencies) Cleanup() {
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Warn("failed to close redis client", slog.Any("error", err))
		}
	}
	if d.DB != nil {
		d.DB.Close()
	}
	d.Logger.Info("cleanup completed")
}
