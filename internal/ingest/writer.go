package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/tsingest/internal/model"
)

var errBatchConsumed = errors.New("batch already written")

// Batch is the set of observations selected for one write.
// A Batch can be written once.
type Batch struct {
	rows     []model.Observation
	consumed bool
}

// NewBatch wraps rows in a Batch.
func NewBatch(rows []model.Observation) *Batch {
	return &Batch{rows: rows}
}

// Len returns the number of rows in the batch.
func (b *Batch) Len() int {
	return len(b.rows)
}

// Rows returns the batch rows.
func (b *Batch) Rows() []model.Observation {
	return b.rows
}

// WriteResult is the outcome of a committed write.
type WriteResult struct {
	Written   int
	Conflicts []model.Key
	Watermark model.Watermark // Latest timestamp present after the commit
}

// WriterMetrics tracks writer performance.
type WriterMetrics struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
}

// Writer persists batches through the store.
type Writer struct {
	store   Store
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	metrics WriterMetrics
}

// NewWriter creates a Writer. A zero timeout leaves ctx unchanged.
func NewWriter(store Store, timeout time.Duration, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{store: store, timeout: timeout, logger: logger}
}

// Write appends the batch atomically. prev is the watermark observed before
// the write; the result carries the watermark after it.
//
// Conflicting rows are skipped and logged. Any other store failure is
// returned as KindWriteFailure and nothing is committed.
func (w *Writer) Write(ctx context.Context, batch *Batch, prev model.Watermark) (WriteResult, error) {
	if batch.consumed {
		return WriteResult{}, newError(KindWriteFailure, StateWriting, errBatchConsumed)
	}
	batch.consumed = true

	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	start := time.Now()

	res, err := w.store.AppendRows(ctx, batch.rows)
	if err != nil {
		w.mu.Lock()
		w.metrics.Errors++
		w.mu.Unlock()
		w.logger.Error("batch insert failed", "error", err, "count", batch.Len())
		return WriteResult{}, newError(KindWriteFailure, StateWriting, err)
	}

	for _, key := range res.Conflicts {
		w.logger.Warn("write conflict",
			"kind", KindWriteConflict.String(),
			"key", key.String(),
		)
	}

	w.mu.Lock()
	w.metrics.Inserts += int64(res.Inserted)
	w.metrics.Conflicts += int64(len(res.Conflicts))
	w.metrics.Flushes++
	w.mu.Unlock()

	w.logger.Debug("flushed observations",
		"count", batch.Len(),
		"conflicts", len(res.Conflicts),
		"duration", time.Since(start),
	)

	wm := prev
	for _, r := range batch.rows {
		wm = wm.Advance(r.Timestamp)
	}

	return WriteResult{
		Written:   res.Inserted,
		Conflicts: res.Conflicts,
		Watermark: wm,
	}, nil
}

// Stats returns current metrics.
func (w *Writer) Stats() WriterMetrics {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.metrics
}
