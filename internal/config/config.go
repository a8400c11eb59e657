package config

import "time"

// Config is the root configuration for the ingester and the query tools.
type Config struct {
	Database  DBConfig        `yaml:"database"`
	Store     StoreConfig     `yaml:"store"`
	Source    SourceConfig    `yaml:"source"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Writer    WriterConfig    `yaml:"writer"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DBConfig holds the TimescaleDB connection.
type DBConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	Name           string        `yaml:"name"`
	User           string        `yaml:"user"`
	Password       string        `yaml:"password"`
	SSLMode        string        `yaml:"ssl_mode"`
	MaxConns       int           `yaml:"max_conns"`
	MinConns       int           `yaml:"min_conns"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// StoreConfig describes the observations table.
type StoreConfig struct {
	Schema         string   `yaml:"schema"`
	Table          string   `yaml:"table"`
	TimeColumn     string   `yaml:"time_column"`
	SymbolColumn   string   `yaml:"symbol_column"`
	NumericColumns []string `yaml:"numeric_columns"`
	CreateSchema   bool     `yaml:"create_schema"`
	Hypertable     bool     `yaml:"hypertable"`
}

// SourceConfig holds flat-file parsing settings.
type SourceConfig struct {
	TimeLayout    string   `yaml:"time_layout"`
	RequireSymbol bool     `yaml:"require_symbol"`
	MaxRejects    int      `yaml:"max_rejects"` // 0 = unlimited
	Files         []string `yaml:"files"`       // Sources for the scheduler
}

// IngestConfig holds pipeline settings.
type IngestConfig struct {
	ForceFullReload bool          `yaml:"force_full_reload"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
}

// WriterConfig holds batch writer settings.
type WriterConfig struct {
	BatchSize int `yaml:"batch_size"`
}

// SchedulerConfig holds periodic re-ingestion settings.
type SchedulerConfig struct {
	Interval    time.Duration `yaml:"interval"`
	Concurrency int           `yaml:"concurrency"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}
