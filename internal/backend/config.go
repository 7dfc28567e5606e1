package backend

import (
	"errors"
	"fmt"
	"strings"

	"ledgerwidget/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	return Config{
		Type:          backendType,
		SQLiteDBPath:  appConfig.SQLiteDBPath,
		StateFilePath: appConfig.StateFilePath,
		AMQPURL:       appConfig.AMQPURL,
		AMQPExchange:  appConfig.AMQPExchange,
		AMQPQueue:     appConfig.AMQPQueue,
	}, nil
}

// Validate reports every missing setting for the selected backend at once.
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type %q (want one of %s)", c.Type, strings.Join(GetBackendTypeStrings(), ", "))
	}

	var errs []error
	switch c.Type {
	case SQLiteBackend:
		if strings.TrimSpace(c.SQLiteDBPath) == "" {
			errs = append(errs, errors.New("SQLite database path is required for sqlite backend"))
		}
	case FileBackend:
		if strings.TrimSpace(c.StateFilePath) == "" {
			errs = append(errs, errors.New("state file path is required for file backend"))
		}
	}

	if c.AMQPURL != "" {
		if c.AMQPExchange == "" {
			errs = append(errs, errors.New("AMQP exchange is required when AMQP URL is set"))
		}
		if c.AMQPQueue == "" {
			errs = append(errs, errors.New("AMQP queue is required when AMQP URL is set"))
		}
	}

	return errors.Join(errs...)
}

// EventsEnabled reports whether ledger events should be published.
func (c Config) EventsEnabled() bool {
	return c.AMQPURL != ""
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{MemoryBackend, FileBackend, SQLiteBackend}
}

// GetBackendTypeStrings returns all valid backend type strings
func GetBackendTypeStrings() []string {
	types := GetBackendTypes()
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = t.String()
	}
	return out
}
