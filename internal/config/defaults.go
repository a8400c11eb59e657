package config

import (
	"time"

	"github.com/rickgao/tsingest/internal/model"
)

// Default values for optional configuration fields.
const (
	DefaultDBPort           = 5432
	DefaultDBSSLMode        = "prefer"
	DefaultMaxConns         = 10
	DefaultMinConns         = 2
	DefaultConnectTimeout   = 10 * time.Second
	DefaultSchema           = "timeseries"
	DefaultTable            = "observations"
	DefaultTimeColumn       = "timestamp"
	DefaultSymbolColumn     = "symbol"
	DefaultTimeLayout       = model.TimeLayout
	DefaultQueryTimeout     = 30 * time.Second
	DefaultWriteTimeout     = 5 * time.Minute
	DefaultBatchSize        = 1000
	DefaultScheduleInterval = 1 * time.Hour
	DefaultConcurrency      = 2
	DefaultMetricsPort      = 9090
	DefaultMetricsPath      = "/metrics"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
)

// DefaultNumericColumns are the numeric columns ingested when none are configured.
var DefaultNumericColumns = []string{"low", "close", "volume"}

// ApplyDefaults fills unset optional fields.
func (c *Config) ApplyDefaults() {
	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}
	if c.Database.ConnectTimeout == 0 {
		c.Database.ConnectTimeout = DefaultConnectTimeout
	}

	// Store defaults
	if c.Store.Schema == "" {
		c.Store.Schema = DefaultSchema
	}
	if c.Store.Table == "" {
		c.Store.Table = DefaultTable
	}
	if c.Store.TimeColumn == "" {
		c.Store.TimeColumn = DefaultTimeColumn
	}
	if c.Store.SymbolColumn == "" {
		c.Store.SymbolColumn = DefaultSymbolColumn
	}
	if len(c.Store.NumericColumns) == 0 {
		c.Store.NumericColumns = append([]string(nil), DefaultNumericColumns...)
	}

	// Source defaults
	if c.Source.TimeLayout == "" {
		c.Source.TimeLayout = DefaultTimeLayout
	}

	// Ingest defaults
	if c.Ingest.QueryTimeout == 0 {
		c.Ingest.QueryTimeout = DefaultQueryTimeout
	}
	if c.Ingest.WriteTimeout == 0 {
		c.Ingest.WriteTimeout = DefaultWriteTimeout
	}

	// Writer defaults
	if c.Writer.BatchSize == 0 {
		c.Writer.BatchSize = DefaultBatchSize
	}

	// Scheduler defaults
	if c.Scheduler.Interval == 0 {
		c.Scheduler.Interval = DefaultScheduleInterval
	}
	if c.Scheduler.Concurrency == 0 {
		c.Scheduler.Concurrency = DefaultConcurrency
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}
