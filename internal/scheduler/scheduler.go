package scheduler

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/tsingest/internal/ingest"
)

// Runner performs one ingestion run.
type Runner interface {
	Run(ctx context.Context, req ingest.Request) (*ingest.Summary, error)
}

// RunnerFunc is a function adapter for Runner.
type RunnerFunc func(context.Context, ingest.Request) (*ingest.Summary, error)

func (f RunnerFunc) Run(ctx context.Context, req ingest.Request) (*ingest.Summary, error) {
	return f(ctx, req)
}

// Config holds scheduler configuration.
type Config struct {
	Interval    time.Duration // Cycle interval (default: 1h)
	Concurrency int           // Max concurrent runs (default: 2)
	Sources     []string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:    time.Hour,
		Concurrency: 2,
	}
}

// Status is the latest known state of one source.
type Status struct {
	Source   string
	Runs     int
	Failures int
	LastRun  time.Time
	Last     *ingest.Summary
	LastErr  error
}

// Scheduler periodically ingests sources.
type Scheduler struct {
	cfg    Config
	runner Runner
	logger *slog.Logger

	mu       sync.Mutex
	statuses map[string]*Status

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Scheduler.
func New(cfg Config, runner Runner, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConfig().Concurrency
	}

	statuses := make(map[string]*Status, len(cfg.Sources))
	for _, src := range cfg.Sources {
		statuses[src] = &Status{Source: src}
	}

	return &Scheduler{
		cfg:      cfg,
		runner:   runner,
		logger:   logger,
		statuses: statuses,
	}
}

// Start begins the scheduling loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.run()

	s.logger.Info("ingest scheduler started",
		"interval", s.cfg.Interval,
		"concurrency", s.cfg.Concurrency,
		"sources", len(s.cfg.Sources),
	)

	return nil
}

// Stop cancels in-flight runs and waits for the loop to exit.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("ingest scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the main scheduling loop.
func (s *Scheduler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	// Ingest immediately on start.
	s.RunOnce(s.ctx)

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(s.ctx)
		}
	}
}

// RunOnce ingests every source once and returns the number of failed runs.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	start := time.Now()

	if len(s.cfg.Sources) == 0 {
		s.logger.Debug("no sources to ingest")
		return 0
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)

	var committed, failed atomic.Int64
	for _, src := range s.cfg.Sources {
		if gctx.Err() != nil {
			break
		}
		src := src
		g.Go(func() error {
			summary, err := s.runner.Run(gctx, ingest.Request{Source: src})
			s.record(src, summary, err)
			if err != nil {
				s.logger.Warn("scheduled ingest failed",
					"source", src,
					"kind", ingest.KindOf(err).String(),
					"err", err,
				)
				failed.Add(1)
				return nil
			}
			committed.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info("ingest cycle complete",
		"sources", len(s.cfg.Sources),
		"committed", committed.Load(),
		"failed", failed.Load(),
		"duration", time.Since(start),
	)
	return int(failed.Load())
}

func (s *Scheduler) record(src string, summary *ingest.Summary, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.statuses[src]
	if !ok {
		st = &Status{Source: src}
		s.statuses[src] = st
	}
	st.Runs++
	st.LastRun = time.Now()
	st.Last = summary
	st.LastErr = err
	if err != nil {
		st.Failures++
	}
}

// Statuses returns a snapshot of every source's status, ordered by source.
func (s *Scheduler) Statuses() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Status, 0, len(s.statuses))
	for _, st := range s.statuses {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}
