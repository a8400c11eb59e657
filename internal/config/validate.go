package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if err := c.Database.validate("database"); err != nil {
		return err
	}

	if c.Store.Schema == "" {
		return errors.New("store.schema is required")
	}
	if c.Store.Table == "" {
		return errors.New("store.table is required")
	}
	if c.Store.TimeColumn == "" {
		return errors.New("store.time_column is required")
	}
	if len(c.Store.NumericColumns) == 0 {
		return errors.New("store.numeric_columns must not be empty")
	}
	seen := make(map[string]bool, len(c.Store.NumericColumns)+2)
	seen[strings.ToLower(c.Store.TimeColumn)] = true
	seen[strings.ToLower(c.Store.SymbolColumn)] = true
	for _, col := range c.Store.NumericColumns {
		key := strings.ToLower(strings.TrimSpace(col))
		if key == "" {
			return errors.New("store.numeric_columns contains an empty name")
		}
		if seen[key] {
			return fmt.Errorf("store.numeric_columns: duplicate column %q", col)
		}
		seen[key] = true
	}

	if c.Source.MaxRejects < 0 {
		return errors.New("source.max_rejects must be >= 0")
	}

	if c.Ingest.QueryTimeout <= 0 {
		return errors.New("ingest.query_timeout must be > 0")
	}
	if c.Ingest.WriteTimeout <= 0 {
		return errors.New("ingest.write_timeout must be > 0")
	}

	if c.Writer.BatchSize < 1 {
		return errors.New("writer.batch_size must be >= 1")
	}

	if c.Scheduler.Concurrency < 1 {
		return errors.New("scheduler.concurrency must be >= 1")
	}
	if c.Scheduler.Interval <= 0 {
		return errors.New("scheduler.interval must be > 0")
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
