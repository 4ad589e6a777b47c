package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr                 string
	Environment          string
	LogLevel             string
	DatabaseURL          string
	JWTSecret            string
	JWTTTL               time.Duration
	DataEncryptionKey    string
	OperatorEmail        string
	OperatorPasswordHash string
	OperatorTenantID     string
	RunMigrations        bool
	RunSeed              bool
	SeedTenantID         string
	SeedSnapshotFile     string
	MaxBodyBytes         int64
	RateLimitPerMinute   int
	CORSAllowedOrigins   []string
	MetricsEnabled       bool
	PayrollWorkers       int
	StrictTaxOverlap     bool
	JobQueueSize         int
	StorageBackend       string
	StorageDir           string
	S3Bucket             string
	S3Region             string
	S3Endpoint           string
	S3AccessKey          string
	S3SecretKey          string
}

// Load reads configuration from the environment after applying any .env
// file in the working directory. Variables already set win over the file.
func Load() Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("could not read .env file", "err", err)
	}
	return Config{
		Addr:                 getEnv("APP_ADDR", ":8080"),
		Environment:          getEnv("APP_ENV", "development"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		JWTSecret:            getEnv("JWT_SECRET", ""),
		JWTTTL:               getEnvDuration("JWT_TTL", 15*time.Minute),
		DataEncryptionKey:    getEnv("DATA_ENCRYPTION_KEY", ""),
		OperatorEmail:        getEnv("OPERATOR_EMAIL", ""),
		OperatorPasswordHash: getEnv("OPERATOR_PASSWORD_HASH", ""),
		OperatorTenantID:     getEnv("OPERATOR_TENANT_ID", "default"),
		RunMigrations:        getEnvBool("RUN_MIGRATIONS", true),
		RunSeed:              getEnvBool("RUN_SEED", false),
		SeedTenantID:         getEnv("SEED_TENANT_ID", "default"),
		SeedSnapshotFile:     getEnv("SEED_SNAPSHOT_FILE", "config/snapshot.example.yaml"),
		MaxBodyBytes:         int64(getEnvInt("MAX_BODY_BYTES", 1048576)),
		RateLimitPerMinute:   getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		CORSAllowedOrigins:   getEnvList("CORS_ALLOWED_ORIGINS"),
		MetricsEnabled:       getEnvBool("METRICS_ENABLED", true),
		PayrollWorkers:       getEnvInt("PAYROLL_WORKERS", 0),
		StrictTaxOverlap:     getEnvBool("PAYROLL_STRICT_TAX_OVERLAP", false),
		JobQueueSize:         getEnvInt("JOB_QUEUE_SIZE", 128),
		StorageBackend:       getEnv("STORAGE_BACKEND", "local"),
		StorageDir:           getEnv("STORAGE_DIR", "storage"),
		S3Bucket:             getEnv("S3_BUCKET", ""),
		S3Region:             getEnv("S3_REGION", ""),
		S3Endpoint:           getEnv("S3_ENDPOINT", ""),
		S3AccessKey:          getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:          getEnv("S3_SECRET_KEY", ""),
	}
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// SlogLevel maps LOG_LEVEL onto a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.IsProduction() {
		if len(strings.TrimSpace(c.JWTSecret)) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
		}
		if strings.TrimSpace(c.DataEncryptionKey) == "" {
			return fmt.Errorf("DATA_ENCRYPTION_KEY must be set in production for encryption at rest")
		}
	}
	if c.OperatorEmail != "" && c.OperatorPasswordHash == "" {
		return fmt.Errorf("OPERATOR_PASSWORD_HASH must be set when OPERATOR_EMAIL is set")
	}
	if c.JWTTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be positive")
	}
	if c.MaxBodyBytes < 1024 {
		return fmt.Errorf("MAX_BODY_BYTES must be at least 1024")
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive")
	}
	if c.PayrollWorkers < 0 {
		return fmt.Errorf("PAYROLL_WORKERS must not be negative")
	}
	if c.JobQueueSize <= 0 {
		return fmt.Errorf("JOB_QUEUE_SIZE must be positive")
	}
	switch c.StorageBackend {
	case "local":
	case "s3":
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET must be set when STORAGE_BACKEND is s3")
		}
	default:
		return fmt.Errorf("STORAGE_BACKEND must be local or s3")
	}
	return nil
}
