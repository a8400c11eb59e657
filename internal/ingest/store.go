package ingest

import (
	"context"

	"github.com/rickgao/tsingest/internal/model"
)

// Store is the persistent observation store consumed by the pipeline.
//
// Implementations must enforce (symbol, timestamp) uniqueness, make
// AppendRows all-or-nothing, and only expose committed rows to MaxTimestamp.
type Store interface {
	// MaxTimestamp returns the latest committed timestamp, or an empty
	// watermark when the store has no rows.
	MaxTimestamp(ctx context.Context) (model.Watermark, error)

	// AppendRows inserts rows in a single transaction. Rows whose identity
	// already exists are reported as conflicts; any other failure rolls the
	// whole call back.
	AppendRows(ctx context.Context, rows []model.Observation) (AppendResult, error)

	// CreateSchemaIfAbsent provisions the observations table.
	CreateSchemaIfAbsent(ctx context.Context) error
}

// AppendResult reports the outcome of a committed AppendRows call.
type AppendResult struct {
	Inserted  int
	Conflicts []model.Key
}
