package database

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/tsingest/internal/config"
	"github.com/rickgao/tsingest/internal/ingest"
	"github.com/rickgao/tsingest/internal/model"
)

// DB is the subset of *pgxpool.Pool used by ObservationStore.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// ObservationStore persists observations in a TimescaleDB table.
type ObservationStore struct {
	db        DB
	cfg       config.StoreConfig
	batchSize int
	logger    *slog.Logger

	table      string // Sanitized schema-qualified table name
	timeCol    string
	symbolCol  string
	insertSQL  string
	maxTimeSQL string
}

var _ ingest.Store = (*ObservationStore)(nil)

// NewObservationStore creates a store for the configured table. batchSize
// bounds the number of statements sent per round trip.
func NewObservationStore(db DB, cfg config.StoreConfig, batchSize int, logger *slog.Logger) *ObservationStore {
	if logger == nil {
		logger = slog.Default()
	}
	if batchSize <= 0 {
		batchSize = config.DefaultBatchSize
	}

	s := &ObservationStore{
		db:        db,
		cfg:       cfg,
		batchSize: batchSize,
		logger:    logger,
		table:     pgx.Identifier{cfg.Schema, cfg.Table}.Sanitize(),
		timeCol:   pgx.Identifier{cfg.TimeColumn}.Sanitize(),
		symbolCol: pgx.Identifier{cfg.SymbolColumn}.Sanitize(),
	}
	s.insertSQL = s.buildInsert()
	s.maxTimeSQL = fmt.Sprintf("SELECT MAX(%s) FROM %s", s.timeCol, s.table)
	return s
}

// Table returns the sanitized, schema-qualified table name.
func (s *ObservationStore) Table() string {
	return s.table
}

func (s *ObservationStore) buildInsert() string {
	cols := []string{s.timeCol, s.symbolCol}
	for _, c := range s.cfg.NumericColumns {
		cols = append(cols, pgx.Identifier{c}.Sanitize())
	}

	params := make([]string, len(cols))
	for i := range cols {
		params[i] = fmt.Sprintf("$%d", i+1)
	}

	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s, %s) DO NOTHING",
		s.table,
		strings.Join(cols, ", "),
		strings.Join(params, ", "),
		s.symbolCol,
		s.timeCol,
	)
}

// MaxTimestamp returns the latest stored timestamp, or an empty watermark
// when the table has no rows.
func (s *ObservationStore) MaxTimestamp(ctx context.Context) (model.Watermark, error) {
	var latest *time.Time
	if err := s.db.QueryRow(ctx, s.maxTimeSQL).Scan(&latest); err != nil {
		return model.Watermark{}, fmt.Errorf("query max %s: %w", s.cfg.TimeColumn, err)
	}
	if latest == nil {
		return model.Watermark{}, nil
	}
	return model.NewWatermark(*latest), nil
}

// AppendRows inserts rows in one transaction. Rows whose key already exists
// are skipped and reported as conflicts. On error the transaction is rolled
// back and nothing is stored.
func (s *ObservationStore) AppendRows(ctx context.Context, rows []model.Observation) (ingest.AppendResult, error) {
	var res ingest.AppendResult
	if len(rows) == 0 {
		return res, nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return res, fmt.Errorf("begin transaction: %w", err)
	}
	// Rollback after Commit is a no-op.
	defer func() { _ = tx.Rollback(context.Background()) }()

	for start := 0; start < len(rows); start += s.batchSize {
		end := min(start+s.batchSize, len(rows))
		inserted, conflicts, err := s.sendChunk(ctx, tx, rows[start:end])
		if err != nil {
			return ingest.AppendResult{}, err
		}
		res.Inserted += inserted
		res.Conflicts = append(res.Conflicts, conflicts...)
	}

	if err := tx.Commit(ctx); err != nil {
		return ingest.AppendResult{}, fmt.Errorf("commit: %w", err)
	}
	return res, nil
}

// sendChunk inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (s *ObservationStore) sendChunk(ctx context.Context, tx pgx.Tx, rows []model.Observation) (inserted int, conflicts []model.Key, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(s.insertSQL, s.args(r)...)
	}

	results := tx.SendBatch(ctx, batch)
	defer results.Close()

	for _, r := range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, nil, fmt.Errorf("insert %s: %w", r.Key(), err)
		}
		if ct.RowsAffected() == 0 {
			conflicts = append(conflicts, r.Key())
			continue
		}
		inserted++
	}

	if err := results.Close(); err != nil {
		return 0, nil, fmt.Errorf("close batch: %w", err)
	}
	return inserted, conflicts, nil
}

func (s *ObservationStore) args(r model.Observation) []any {
	args := make([]any, 0, 2+len(s.cfg.NumericColumns))
	args = append(args, r.Timestamp.UTC(), r.Symbol)
	for _, c := range s.cfg.NumericColumns {
		if v, ok := r.Value(c); ok {
			args = append(args, v)
		} else {
			args = append(args, nil)
		}
	}
	return args
}

// CreateSchemaIfAbsent creates the schema and table, and the hypertable
// when configured. Existing objects are left untouched. Callers are
// serialized by a transaction-scoped advisory lock keyed on the table name.
func (s *ObservationStore) CreateSchemaIfAbsent(ctx context.Context) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	// Concurrent IF NOT EXISTS DDL can still collide on the catalog.
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", s.table); err != nil {
		return fmt.Errorf("lock schema: %w", err)
	}

	for _, stmt := range s.schemaStatements() {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}

	if s.cfg.Hypertable {
		if _, err := tx.Exec(ctx,
			"SELECT create_hypertable($1::regclass, $2::name, if_not_exists => TRUE)",
			s.table, s.cfg.TimeColumn,
		); err != nil {
			return fmt.Errorf("create hypertable: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.logger.Info("schema ready", "table", s.table, "hypertable", s.cfg.Hypertable)
	return nil
}

func (s *ObservationStore) schemaStatements() []string {
	var cols strings.Builder
	fmt.Fprintf(&cols, "%s TIMESTAMPTZ NOT NULL,\n\t%s TEXT NOT NULL DEFAULT ''", s.timeCol, s.symbolCol)
	for _, c := range s.cfg.NumericColumns {
		fmt.Fprintf(&cols, ",\n\t%s NUMERIC", pgx.Identifier{c}.Sanitize())
	}

	return []string{
		fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", pgx.Identifier{s.cfg.Schema}.Sanitize()),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s,\n\tPRIMARY KEY (%s, %s)\n)",
			s.table, cols.String(), s.symbolCol, s.timeCol),
	}
}
