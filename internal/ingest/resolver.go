package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/rickgao/tsingest/internal/model"
)

// Resolver reads the current watermark from the store.
type Resolver struct {
	store   Store
	timeout time.Duration
	logger  *slog.Logger
}

// NewResolver creates a Resolver. A zero timeout leaves ctx unchanged.
func NewResolver(store Store, timeout time.Duration, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: store, timeout: timeout, logger: logger}
}

// Resolve returns the latest committed timestamp. Any store failure,
// including a timeout, is reported as KindStoreUnavailable.
func (r *Resolver) Resolve(ctx context.Context) (model.Watermark, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	wm, err := r.store.MaxTimestamp(ctx)
	if err != nil {
		return model.Watermark{}, newError(KindStoreUnavailable, StateResolving, err)
	}

	r.logger.Debug("watermark resolved", "watermark", wm.String())
	return wm, nil
}
