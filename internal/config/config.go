// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir            string // Base directory for databases (always absolute)
	LogLevel           string
	Port               int
	DevMode            bool
	TradingDaysPerYear int // Annualization factor for daily return series
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := os.Getenv("OPTIMIZER_DATA_DIR")
	if dataDir == "" {
		dataDir = "./data"
	}
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory to absolute: %w", err)
	}

	port := 8080
	if portStr := os.Getenv("OPTIMIZER_PORT"); portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid OPTIMIZER_PORT %q: %w", portStr, err)
		}
		port = p
	}

	tradingDays := 252
	if daysStr := os.Getenv("OPTIMIZER_TRADING_DAYS"); daysStr != "" {
		d, err := strconv.Atoi(daysStr)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid OPTIMIZER_TRADING_DAYS %q", daysStr)
		}
		tradingDays = d
	}

	logLevel := os.Getenv("OPTIMIZER_LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	return &Config{
		DataDir:            absDataDir,
		LogLevel:           logLevel,
		Port:               port,
		DevMode:            os.Getenv("OPTIMIZER_DEV_MODE") == "true",
		TradingDaysPerYear: tradingDays,
	}, nil
}

// HistoryDBPath returns the path of the price history database.
func (c *Config) HistoryDBPath() string {
	return filepath.Join(c.DataDir, "history.db")
}

// CacheDBPath returns the path of the calculations cache database.
func (c *Config) CacheDBPath() string {
	return filepath.Join(c.DataDir, "cache.db")
}
