package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Rhymond/go-money"

	"ledgerwidget/internal/ledger"
	"ledgerwidget/internal/log"
)

// DefaultCategories are offered by the UI when LEDGER_CATEGORIES is unset.
var DefaultCategories = []string{"Food", "Transport", "Shopping", "Bills", "Entertainment", "Health", "Salary", "Other"}

type Config struct {
	// HTTP Server
	Port            string
	ShutdownTimeout time.Duration

	// Storage
	DataBackend   string
	SQLiteDBPath  string
	StateFilePath string

	// AMQP (optional event publishing)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Ledger
	Currency       string
	Timezone       string
	Categories     []string
	RolloverPolicy string
	TotalsCacheTTL time.Duration

	// Logging
	LogLevel string
}

// DefaultBackend is used by long-running processes when DATA_BACKEND is unset.
const DefaultBackend = "memory"

func Load() *Config {
	return LoadWithBackend(DefaultBackend)
}

// LoadWithBackend is Load with a different fallback for DATA_BACKEND. The
// CLI starts a new process per command and needs a backend that persists.
func LoadWithBackend(defaultBackend string) *Config {
	cfg := &Config{
		Port:            getEnv("PORT", "8081"),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		DataBackend:   getEnv("DATA_BACKEND", defaultBackend),
		SQLiteDBPath:  getEnv("SQLITE_DB_PATH", "./data/ledger.db"),
		StateFilePath: getEnv("STATE_FILE_PATH", "./data/ledger.json"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "ledger"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "ledger_events"),

		Currency:       strings.ToUpper(getEnv("LEDGER_CURRENCY", "INR")),
		Timezone:       getEnv("LEDGER_TIMEZONE", ""),
		Categories:     getEnvList("LEDGER_CATEGORIES", DefaultCategories),
		RolloverPolicy: getEnv("LEDGER_ROLLOVER_POLICY", string(ledger.RolloverSingleStep)),
		TotalsCacheTTL: getEnvDuration("TOTALS_CACHE_TTL", time.Minute),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	// Validate data backend
	validBackends := []string{"memory", "file", "sqlite"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	switch c.DataBackend {
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else if err := ensureDir(c.SQLiteDBPath); err != nil {
			errors = append(errors, fmt.Sprintf("cannot create SQLite database directory: %v", err))
		}
	case "file":
		if c.StateFilePath == "" {
			errors = append(errors, "state file path cannot be empty when using file backend")
		} else if err := ensureDir(c.StateFilePath); err != nil {
			errors = append(errors, fmt.Sprintf("cannot create state file directory: %v", err))
		}
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if money.GetCurrency(c.Currency) == nil {
		errors = append(errors, fmt.Sprintf("unknown currency '%s'", c.Currency))
	}

	if _, err := c.Location(); err != nil {
		errors = append(errors, fmt.Sprintf("invalid timezone '%s': %v", c.Timezone, err))
	}

	if len(c.Categories) == 0 {
		errors = append(errors, "at least one category must be configured")
	}

	if _, err := ledger.ParseRolloverPolicy(c.RolloverPolicy); err != nil {
		errors = append(errors, err.Error())
	}

	if c.TotalsCacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid totals cache TTL %v: must not be negative", c.TotalsCacheTTL))
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errors = append(errors, err.Error())
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// Location resolves Timezone; empty means the process local zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated value, dropping blanks and duplicates.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return append([]string(nil), defaultValue...)
	}
	seen := map[string]struct{}{}
	var out []string
	for _, v := range strings.Split(value, ",") {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
