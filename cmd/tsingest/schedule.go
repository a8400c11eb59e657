package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/subcommands"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/rickgao/tsingest/internal/ingest"
	"github.com/rickgao/tsingest/internal/metrics"
	"github.com/rickgao/tsingest/internal/render"
	"github.com/rickgao/tsingest/internal/scheduler"
)

// scheduleCmd re-ingests the configured sources until interrupted.
type scheduleCmd struct {
	once bool
}

func (*scheduleCmd) Name() string     { return "schedule" }
func (*scheduleCmd) Synopsis() string { return "periodically ingest the configured sources" }
func (*scheduleCmd) Usage() string {
	return `tsingest [-config <file>] schedule [-once]

  Ingests every file in source.files each scheduler.interval, serving
  /health and Prometheus metrics on metrics.port.
`
}

func (c *scheduleCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.once, "once", false, "Run a single cycle and exit.")
}

func (c *scheduleCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := openApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	if len(a.cfg.Source.Files) == 0 {
		fmt.Fprintln(os.Stderr, "Error: source.files is empty")
		return subcommands.ExitUsageError
	}

	ctx, cancel := withSignals(ctx, a.logger)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.New(reg)
	collector.WatchPool(func() metrics.PoolStats { return a.pool.Stat() })

	sched := scheduler.New(scheduler.Config{
		Interval:    a.cfg.Scheduler.Interval,
		Concurrency: a.cfg.Scheduler.Concurrency,
		Sources:     a.cfg.Source.Files,
	}, a.pipeline(ingest.WithRecorder(collector)), a.logger)

	if c.once {
		failed := sched.RunOnce(ctx)
		render.Statuses(os.Stdout, sched.Statuses())
		if failed > 0 {
			return subcommands.ExitFailure
		}
		return subcommands.ExitSuccess
	}

	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.cfg.Metrics.Port),
		Handler: createHealthHandler(a.pool, sched, reg, a.cfg.Metrics.Path),
	}

	go func() {
		a.logger.Info("starting health server", "port", a.cfg.Metrics.Port)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			a.logger.Error("health server error", "error", err)
		}
	}()

	if err := sched.Start(ctx); err != nil {
		a.logger.Error("failed to start scheduler", "error", err)
		return subcommands.ExitFailure
	}

	a.logger.Info("scheduler running",
		"health_url", fmt.Sprintf("http://localhost:%d/health", a.cfg.Metrics.Port),
	)

	// Wait for shutdown
	<-ctx.Done()

	a.logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := sched.Stop(shutdownCtx); err != nil {
		a.logger.Warn("scheduler stop timed out", "error", err)
	}
	healthServer.Shutdown(shutdownCtx)

	render.Statuses(os.Stdout, sched.Statuses())
	return subcommands.ExitSuccess
}

// pinger is satisfied by *pgxpool.Pool.
type pinger interface {
	Ping(ctx context.Context) error
}

var _ pinger = (*pgxpool.Pool)(nil)

// statusSource is satisfied by *scheduler.Scheduler.
type statusSource interface {
	Statuses() []scheduler.Status
}

// createHealthHandler creates the HTTP handler for health checks and metrics.
func createHealthHandler(db pinger, sched statusSource, gatherer prometheus.Gatherer, metricsPath string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		// Check database
		if err := db.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["timescaledb"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["timescaledb"] = "connected"
		}

		// Check sources
		sources := make(map[string]any)
		for _, st := range sched.Statuses() {
			entry := map[string]any{"runs": st.Runs, "failures": st.Failures}
			if st.Last != nil {
				entry["watermark"] = st.Last.WatermarkAfter.String()
			}
			if st.LastErr != nil {
				entry["error"] = st.LastErr.Error()
				if health.Status == "healthy" {
					health.Status = "degraded"
				}
			}
			sources[st.Source] = entry
		}
		health.Components["sources"] = sources

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(health); err != nil {
			slog.Default().Warn("write health response", "error", err)
		}
	})

	mux.Handle(metricsPath, metrics.Handler(gatherer))
	return mux
}
