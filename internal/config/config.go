// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aristath/allocator/internal/modules/marketdata"
	"github.com/aristath/allocator/internal/modules/optimization"
	"github.com/joho/godotenv"
)

// DefaultPriceSyncSchedule refreshes price history after the US close on
// weekdays (cron with seconds).
const DefaultPriceSyncSchedule = "0 0 22 * * MON-FRI"

// DefaultMaintenanceSchedule runs history database maintenance nightly.
const DefaultMaintenanceSchedule = "0 30 3 * * *"

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for the history database (always absolute)
	LogLevel string
	Port     int
	DevMode  bool

	YahooBaseURL string
	HistoryRange string // Yahoo chart range used for price history downloads
	// PriceSyncSchedule is a six-field cron expression; empty disables the job
	PriceSyncSchedule   string
	MaintenanceSchedule string // empty disables the job
	DefaultLambda       float64
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	absDataDir, err := filepath.Abs(getEnv("ALLOCATOR_DATA_DIR", "./data"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:             absDataDir,
		Port:                getEnvAsInt("GO_PORT", 8001),
		DevMode:             getEnvAsBool("DEV_MODE", false),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		YahooBaseURL:        getEnv("YAHOO_BASE_URL", marketdata.DefaultYahooBaseURL),
		HistoryRange:        getEnv("HISTORY_RANGE", "1y"),
		PriceSyncSchedule:   strings.TrimSpace(getEnvAllowEmpty("PRICE_SYNC_SCHEDULE", DefaultPriceSyncSchedule)),
		MaintenanceSchedule: strings.TrimSpace(getEnvAllowEmpty("MAINTENANCE_SCHEDULE", DefaultMaintenanceSchedule)),
		DefaultLambda:       getEnvAsFloat("DEFAULT_LAMBDA", optimization.DefaultLambda),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be in 1..65535", c.Port)
	}
	if !(c.DefaultLambda >= 0) {
		return fmt.Errorf("invalid default lambda %g: must be >= 0", c.DefaultLambda)
	}
	if c.HistoryRange == "" {
		return fmt.Errorf("history range must not be empty")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAllowEmpty returns defaultValue only when key is unset, so an
// explicitly empty value is kept.
func getEnvAllowEmpty(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
