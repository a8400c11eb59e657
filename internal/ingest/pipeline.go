package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/tsingest/internal/model"
	"github.com/rickgao/tsingest/internal/parser"
)

// SourceParser reads a source into observations.
type SourceParser interface {
	ParseFile(ctx context.Context, path string) (*parser.Result, error)
}

// Recorder receives run telemetry.
type Recorder interface {
	ObserveStage(stage State, d time.Duration)
	ObserveRun(s *Summary)
}

// Config holds pipeline settings.
type Config struct {
	// ForceFullReload ignores the watermark unless a Request overrides it.
	ForceFullReload bool

	// EnsureSchema provisions the table before resolving the watermark.
	EnsureSchema bool

	QueryTimeout time.Duration // Bound on watermark and schema queries
	WriteTimeout time.Duration // Bound on the write transaction
}

// Request asks for one ingestion run.
type Request struct {
	Source          string
	ForceFullReload *bool // nil uses Config.ForceFullReload
}

// Summary reports the outcome of a run.
type Summary struct {
	RunID       string
	Source      string
	State       State // Committed or Failed once the run returns
	FullReload  bool
	NothingToDo bool

	RowsTotal      int
	RowsParsed     int
	RowsRejected   int
	RowsFiltered   int // Parsed rows not newer than the watermark
	RowsWritten    int
	RowsConflicted int

	WatermarkBefore model.Watermark
	WatermarkAfter  model.Watermark

	StartedAt time.Time
	Duration  time.Duration
}

// Pipeline composes parser, resolver, filter and writer into ingest runs.
// It is safe for concurrent use; each Run has its own state.
type Pipeline struct {
	cfg      Config
	parser   SourceParser
	store    Store
	resolver *Resolver
	writer   *Writer
	recorder Recorder
	logger   *slog.Logger

	schemaMu    sync.Mutex
	schemaReady bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithRecorder sets the telemetry recorder.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) {
		p.recorder = r
	}
}

// NewPipeline creates a Pipeline.
func NewPipeline(cfg Config, sp SourceParser, store Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:    cfg,
		parser: sp,
		store:  store,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(p)
	}

	p.resolver = NewResolver(store, cfg.QueryTimeout, p.logger)
	p.writer = NewWriter(store, cfg.WriteTimeout, p.logger)
	return p
}

// WriterStats returns cumulative writer metrics.
func (p *Pipeline) WriterStats() WriterMetrics {
	return p.writer.Stats()
}

// Run performs one ingestion of req.Source.
//
// The returned Summary is never nil. On failure the error is an *Error and
// the store holds exactly what it held before the run.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Summary, error) {
	full := p.cfg.ForceFullReload
	if req.ForceFullReload != nil {
		full = *req.ForceFullReload
	}

	r := &run{
		p: p,
		summary: &Summary{
			RunID:      uuid.NewString(),
			Source:     req.Source,
			State:      StateIdle,
			FullReload: full,
			StartedAt:  time.Now(),
		},
		entered: time.Now(),
	}
	r.logger = p.logger.With("run_id", r.summary.RunID, "source", req.Source)

	err := r.execute(ctx)
	r.summary.Duration = time.Since(r.summary.StartedAt)

	if p.recorder != nil {
		p.recorder.ObserveRun(r.summary)
	}

	s := r.summary
	if err != nil {
		r.logger.Error("ingest run failed",
			"kind", KindOf(err).String(),
			"error", err,
			"duration", s.Duration,
		)
		return s, err
	}

	r.logger.Info("ingest run committed",
		"parsed", s.RowsParsed,
		"rejected", s.RowsRejected,
		"filtered", s.RowsFiltered,
		"written", s.RowsWritten,
		"conflicted", s.RowsConflicted,
		"watermark", s.WatermarkAfter.String(),
		"nothing_to_do", s.NothingToDo,
		"duration", s.Duration,
	)
	return s, nil
}

// run is the state of a single Pipeline.Run call.
type run struct {
	p       *Pipeline
	summary *Summary
	logger  *slog.Logger
	entered time.Time
}

func (r *run) execute(ctx context.Context) error {
	p, s := r.p, r.summary

	r.enter(StateParsing)
	res, err := p.parser.ParseFile(ctx, s.Source)
	if err != nil {
		return r.fail(parseErrKind(err), err)
	}
	s.RowsTotal = res.Total
	s.RowsParsed = res.Parsed()
	s.RowsRejected = len(res.Rejected)

	if s.RowsParsed == 0 {
		s.NothingToDo = true
		r.enter(StateCommitted)
		return nil
	}

	r.enter(StateResolving)
	if p.cfg.EnsureSchema {
		if err := r.ensureSchema(ctx); err != nil {
			return r.fail(KindStoreUnavailable, err)
		}
	}
	wm, err := p.resolver.Resolve(ctx)
	if err != nil {
		return r.fail(KindStoreUnavailable, err)
	}
	s.WatermarkBefore = wm
	s.WatermarkAfter = wm

	r.enter(StateFiltering)
	batch := NewBatch(Filter(res.Observations, wm, s.FullReload))
	s.RowsFiltered = s.RowsParsed - batch.Len()

	r.enter(StateWriting)
	if batch.Len() == 0 {
		s.NothingToDo = true
		r.enter(StateCommitted)
		return nil
	}

	wr, err := p.writer.Write(ctx, batch, wm)
	if err != nil {
		return r.fail(KindWriteFailure, err)
	}
	s.RowsWritten = wr.Written
	s.RowsConflicted = len(wr.Conflicts)
	s.WatermarkAfter = wr.Watermark

	r.enter(StateCommitted)
	return nil
}

// ensureSchema provisions the store once per Pipeline. Concurrent runs wait
// for the first provisioning; a failed attempt is retried by the next run.
func (r *run) ensureSchema(ctx context.Context) error {
	p := r.p
	p.schemaMu.Lock()
	defer p.schemaMu.Unlock()
	if p.schemaReady {
		return nil
	}

	if p.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.QueryTimeout)
		defer cancel()
	}
	if err := p.store.CreateSchemaIfAbsent(ctx); err != nil {
		return err
	}
	p.schemaReady = true
	return nil
}

// enter moves the run to next and records how long the previous state took.
func (r *run) enter(next State) {
	prev := r.summary.State
	if !CanTransition(prev, next) {
		r.logger.Error("invalid state transition", "from", prev.String(), "to", next.String())
	}

	now := time.Now()
	if r.p.recorder != nil && prev != StateIdle {
		r.p.recorder.ObserveStage(prev, now.Sub(r.entered))
	}
	r.entered = now
	r.summary.State = next

	r.logger.Debug("state transition", "from", prev.String(), "to", next.String())
}

// fail moves the run to Failed and returns the run-level error.
// Errors already classified by a component keep their kind and stage.
func (r *run) fail(kind Kind, err error) error {
	var ie *Error
	if !errors.As(err, &ie) {
		ie = newError(kind, r.summary.State, err)
	}
	ie.Source = r.summary.Source
	ie.RunID = r.summary.RunID

	r.enter(StateFailed)
	return ie
}

func parseErrKind(err error) Kind {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.Is(err, parser.ErrSourceFormat):
		return KindSourceFormat
	default:
		return KindSourceRead
	}
}
