// Package config loads PageFinder settings from the environment, with an
// optional .env file in the working directory.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds process-wide settings. CLI flags override these values.
type Config struct {
	// Storage
	DBPath       string
	TablesConfig string

	// Server
	GRPCPort    int
	HTTPPort    int
	GinMode     string
	CORSOrigins []string

	// Logging
	LogLevel  string
	LogPretty bool

	// Search
	MinConfidence float64
	SearchWorkers int
	WindowMargin  int
	MaxHypotheses int

	// Ingestion
	Workers             int
	FileTimeout         time.Duration
	EnableDigital       bool
	EnableOCR           bool
	SkipExisting        bool
	EnableCaching       bool
	EnableCheckpointing bool
	HashCacheFile       string
	CheckpointFile      string
	OCRRequestsPerSec   float64
	IngestInterval      time.Duration
	IngestLocation      string
}

// LoadConfig reads .env when present, then the environment.
func LoadConfig() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	cfg := &Config{
		DBPath:       getEnv("PAGEFINDER_DB", "./data/pages.db"),
		TablesConfig: getEnv("PAGEFINDER_TABLES", "./table_config.json"),

		GRPCPort:    getEnvInt("PAGEFINDER_GRPC_PORT", 50051),
		HTTPPort:    getEnvInt("PAGEFINDER_HTTP_PORT", 9090),
		GinMode:     getEnv("GIN_MODE", "release"),
		CORSOrigins: strings.Split(getEnv("PAGEFINDER_CORS_ORIGINS", "http://localhost:3000"), ","),

		LogLevel:  getEnv("PAGEFINDER_LOG_LEVEL", "info"),
		LogPretty: getEnvBool("PAGEFINDER_LOG_PRETTY", false),

		MinConfidence: getEnvFloat("PAGEFINDER_MIN_CONFIDENCE", 0.0),
		SearchWorkers: getEnvInt("PAGEFINDER_SEARCH_WORKERS", 0),
		WindowMargin:  getEnvInt("PAGEFINDER_WINDOW_MARGIN", 11),
		MaxHypotheses: getEnvInt("PAGEFINDER_MAX_HYPOTHESES", 3),

		Workers:             getEnvInt("PAGEFINDER_WORKERS", 4),
		FileTimeout:         getEnvDuration("PAGEFINDER_FILE_TIMEOUT", 30*time.Second),
		EnableDigital:       getEnvBool("PAGEFINDER_ENABLE_DIGITAL", true),
		EnableOCR:           getEnvBool("PAGEFINDER_ENABLE_OCR", false),
		SkipExisting:        getEnvBool("PAGEFINDER_SKIP_EXISTING", true),
		EnableCaching:       getEnvBool("PAGEFINDER_ENABLE_CACHING", true),
		EnableCheckpointing: getEnvBool("PAGEFINDER_ENABLE_CHECKPOINTING", true),
		HashCacheFile:       getEnv("PAGEFINDER_HASH_CACHE", ".file_hashes.json"),
		CheckpointFile:      getEnv("PAGEFINDER_CHECKPOINT", ".processing_checkpoint.journal"),
		OCRRequestsPerSec:   getEnvFloat("PAGEFINDER_OCR_RPS", 2),
		IngestInterval:      getEnvDuration("PAGEFINDER_INGEST_INTERVAL", 0),
		IngestLocation:      getEnv("PAGEFINDER_INGEST_LOCATION", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate range-checks the settings.
func (c *Config) Validate() error {
	var errs []error
	if c.DBPath == "" {
		errs = append(errs, errors.New("PAGEFINDER_DB is required"))
	}
	if c.Workers < 1 || c.Workers > 32 {
		errs = append(errs, fmt.Errorf("workers must be between 1 and 32, got %d", c.Workers))
	}
	if c.SearchWorkers < 0 {
		errs = append(errs, fmt.Errorf("search workers must not be negative, got %d", c.SearchWorkers))
	}
	if c.FileTimeout < 5*time.Second || c.FileTimeout > 300*time.Second {
		errs = append(errs, fmt.Errorf("file timeout must be between 5s and 300s, got %s", c.FileTimeout))
	}
	if !(c.MinConfidence >= 0 && c.MinConfidence <= 1) {
		errs = append(errs, fmt.Errorf("min confidence must be in [0, 1], got %v", c.MinConfidence))
	}
	if c.WindowMargin < 0 {
		errs = append(errs, fmt.Errorf("window margin must not be negative, got %d", c.WindowMargin))
	}
	if c.MaxHypotheses < 1 {
		errs = append(errs, fmt.Errorf("max hypotheses must be at least 1, got %d", c.MaxHypotheses))
	}
	if c.GRPCPort <= 0 || c.GRPCPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid gRPC port %d", c.GRPCPort))
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP port %d", c.HTTPPort))
	}
	if !(c.OCRRequestsPerSec > 0) {
		errs = append(errs, fmt.Errorf("OCR rate must be positive, got %v", c.OCRRequestsPerSec))
	}
	return errors.Join(errs...)
}
