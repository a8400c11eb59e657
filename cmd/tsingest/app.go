package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/tsingest/internal/analytics"
	"github.com/rickgao/tsingest/internal/config"
	"github.com/rickgao/tsingest/internal/database"
	"github.com/rickgao/tsingest/internal/ingest"
	"github.com/rickgao/tsingest/internal/parser"
	"github.com/rickgao/tsingest/internal/version"
)

// app holds what every database-backed command needs.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	pool   *pgxpool.Pool
}

// openApp loads the config, sets up logging and connects to the database.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(os.Stderr, cfg.Logging)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	logger.Debug("configuration loaded",
		"version", version.Version,
		"config", *configPath,
	)

	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	return &app{cfg: cfg, logger: logger, pool: pool}, nil
}

// Close releases the connection pool.
func (a *app) Close() {
	a.pool.Close()
}

func (a *app) store() *database.ObservationStore {
	return database.NewObservationStore(a.pool, a.cfg.Store, a.cfg.Writer.BatchSize, a.logger)
}

func (a *app) pipeline(opts ...ingest.Option) *ingest.Pipeline {
	p := parser.New(parserConfig(a.cfg), a.logger)
	cfg := ingest.Config{
		ForceFullReload: a.cfg.Ingest.ForceFullReload,
		EnsureSchema:    a.cfg.Store.CreateSchema,
		QueryTimeout:    a.cfg.Ingest.QueryTimeout,
		WriteTimeout:    a.cfg.Ingest.WriteTimeout,
	}
	opts = append([]ingest.Option{ingest.WithLogger(a.logger)}, opts...)
	return ingest.NewPipeline(cfg, p, a.store(), opts...)
}

func (a *app) reader() *analytics.Reader {
	return analytics.NewReader(a.pool, a.cfg.Store, a.cfg.Ingest.QueryTimeout, a.logger)
}

func parserConfig(cfg *config.Config) parser.Config {
	return parser.Config{
		TimeColumn:     cfg.Store.TimeColumn,
		TimeLayout:     cfg.Source.TimeLayout,
		SymbolColumn:   cfg.Store.SymbolColumn,
		RequireSymbol:  cfg.Source.RequireSymbol,
		NumericColumns: cfg.Store.NumericColumns,
		MaxRejects:     cfg.Source.MaxRejects,
	}
}

// newLogger builds the slog handler selected by cfg.
func newLogger(w io.Writer, cfg config.LoggingConfig) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("logging.level: %w", err)
	}

	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(cfg.Format) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("logging.format must be text or json, got %q", cfg.Format)
	}
}

// withSignals returns a context canceled on SIGINT or SIGTERM.
func withSignals(ctx context.Context, logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}
