package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Env           string
	LogLevel      string
	Server        ServerConfig
	Database      DatabaseConfig
	Auth          AuthConfig
	Ingest        IngestConfig
	Storage       StorageConfig
	Lock          LockConfig
	Observability ObservabilityConfig
	Cron          CronConfig
}

type ServerConfig struct {
	Host               string
	Port               int
	RateLimitPerSecond int
	RateLimitBurst     int
	CORSOrigins        []string
	ShutdownTimeout    time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	// MigrateOnStart applies pending migrations before serving.
	MigrateOnStart bool
}

type AuthConfig struct {
	JWTSecret     string
	TokenTTL      time.Duration
	SessionKey    string
	SecureCookies bool
}

type IngestConfig struct {
	MinProximityAmount int
	MinPageText        int
	MaxUploadBytes     int64
	PreviewTTL         time.Duration
	EnforceYearMatch   bool
	Currency           string
	ProfilesPath       string
}

type StorageConfig struct {
	Type              string // "local" or "s3"
	LocalPath         string
	S3Endpoint        string
	S3Bucket          string
	S3Region          string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3UseSSL          bool
}

type LockConfig struct {
	Backend       string // "memory" or "redis"
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TTL           time.Duration
}

type ObservabilityConfig struct {
	MetricsEnabled bool
}

type CronConfig struct {
	Enabled       bool
	StaleSchedule string
	StaleAfter    time.Duration
}

// Load reads configuration from environment variables. A .env file in the
// working directory is applied first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Server: ServerConfig{
			Host:               getEnv("SERVER_HOST", "localhost"),
			Port:               getEnvAsInt("SERVER_PORT", 8080),
			RateLimitPerSecond: getEnvAsInt("SERVER_RATE_LIMIT_PER_SECOND", 10),
			RateLimitBurst:     getEnvAsInt("SERVER_RATE_LIMIT_BURST", 20),
			CORSOrigins:        getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			ShutdownTimeout:    getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			Host:           getEnv("POSTGRES_HOST", "localhost"),
			Port:           getEnvAsInt("POSTGRES_PORT", 5432),
			User:           getEnv("POSTGRES_USER", "postgres"),
			Password:       getEnv("POSTGRES_PASSWORD", "postgres"),
			Database:       getEnv("POSTGRES_DB", "nuam-dev"),
			SSLMode:        getEnv("POSTGRES_SSLMODE", "disable"),
			MigrateOnStart: getEnvAsBool("POSTGRES_MIGRATE", true),
		},
		Auth: AuthConfig{
			JWTSecret:     getEnv("JWT_SECRET", ""),
			TokenTTL:      getEnvAsDuration("JWT_TTL", 8*time.Hour),
			SessionKey:    getEnv("SESSION_KEY", ""),
			SecureCookies: getEnvAsBool("SESSION_SECURE", false),
		},
		Ingest: IngestConfig{
			MinProximityAmount: getEnvAsInt("INGEST_MIN_PROXIMITY_AMOUNT", 100),
			MinPageText:        getEnvAsInt("INGEST_MIN_PAGE_TEXT", 20),
			MaxUploadBytes:     int64(getEnvAsInt("INGEST_MAX_UPLOAD_BYTES", 10<<20)),
			PreviewTTL:         getEnvAsDuration("INGEST_PREVIEW_TTL", 30*time.Minute),
			EnforceYearMatch:   getEnvAsBool("INGEST_ENFORCE_YEAR_MATCH", true),
			Currency:           getEnv("INGEST_CURRENCY", "CLP"),
			ProfilesPath:       getEnv("INGEST_PROFILES_PATH", ""),
		},
		Storage: StorageConfig{
			Type:              getEnv("STORAGE_TYPE", "local"),
			LocalPath:         getEnv("STORAGE_LOCAL_PATH", "./data/uploads"),
			S3Endpoint:        getEnv("S3_ENDPOINT", "localhost:9000"),
			S3Bucket:          getEnv("S3_BUCKET", "nuam-uploads"),
			S3Region:          getEnv("S3_REGION", "us-east-1"),
			S3AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
			S3SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
			S3UseSSL:          getEnvAsBool("S3_USE_SSL", false),
		},
		Lock: LockConfig{
			Backend:       getEnv("LOCK_BACKEND", "memory"),
			RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvAsInt("REDIS_DB", 0),
			TTL:           getEnvAsDuration("LOCK_TTL", 10*time.Minute),
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
		Cron: CronConfig{
			Enabled:       getEnvAsBool("CRON_ENABLED", true),
			StaleSchedule: getEnv("CRON_STALE_SCHEDULE", "*/10 * * * *"),
			StaleAfter:    getEnvAsDuration("CRON_STALE_AFTER", time.Hour),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that have no safe default.
func (c *Config) Validate() error {
	var errs []error
	if c.Auth.JWTSecret == "" {
		if c.Env != "development" {
			errs = append(errs, errors.New("JWT_SECRET is required"))
		} else {
			c.Auth.JWTSecret = "dev-only-secret"
		}
	}
	if c.Ingest.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("INGEST_MAX_UPLOAD_BYTES must be positive"))
	}
	switch c.Storage.Type {
	case "local", "s3":
	default:
		errs = append(errs, fmt.Errorf("unsupported STORAGE_TYPE %q", c.Storage.Type))
	}
	switch c.Lock.Backend {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("unsupported LOCK_BACKEND %q", c.Lock.Backend))
	}
	return errors.Join(errs...)
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
