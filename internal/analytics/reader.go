package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/rickgao/tsingest/internal/config"
	"github.com/rickgao/tsingest/internal/model"
)

// Default query parameters.
const (
	DefaultSymbol        = "BTC_USD"
	DefaultWindow        = 7
	DefaultVolWindow     = 20
	DefaultSince         = "3 months"
	DefaultVolumeBucket  = "1 hour"
	DefaultGapfillBucket = "1 day"
	closeColumn          = "close"
	volumeColumn         = "volume"
)

// Querier is the subset of *pgxpool.Pool used by Reader.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Reader runs analytics queries against the observations table.
type Reader struct {
	q       Querier
	cfg     config.StoreConfig
	timeout time.Duration
	logger  *slog.Logger

	table     string
	timeCol   string
	symbolCol string
}

// NewReader creates a Reader. A zero timeout leaves ctx unchanged.
func NewReader(q Querier, cfg config.StoreConfig, timeout time.Duration, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{
		q:         q,
		cfg:       cfg,
		timeout:   timeout,
		logger:    logger,
		table:     pgx.Identifier{cfg.Schema, cfg.Table}.Sanitize(),
		timeCol:   pgx.Identifier{cfg.TimeColumn}.Sanitize(),
		symbolCol: pgx.Identifier{cfg.SymbolColumn}.Sanitize(),
	}
}

// Observations returns every stored observation ordered by time then symbol.
// NULL numeric values are left out of Values.
func (r *Reader) Observations(ctx context.Context) ([]model.Observation, error) {
	return r.observations(ctx, "")
}

func (r *Reader) observations(ctx context.Context, symbol string) ([]model.Observation, error) {
	cols := []string{r.timeCol, r.symbolCol}
	for _, c := range r.cfg.NumericColumns {
		cols = append(cols, pgx.Identifier{c}.Sanitize())
	}

	sql := fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), r.table)
	var args []any
	if symbol != "" {
		sql += fmt.Sprintf(" WHERE %s = $1", r.symbolCol)
		args = append(args, symbol)
	}
	sql += fmt.Sprintf(" ORDER BY %s, %s", r.timeCol, r.symbolCol)

	kinds := []kind{kindTime, kindText}
	for range r.cfg.NumericColumns {
		kinds = append(kinds, kindNumber)
	}

	rows, err := r.collect(ctx, kinds, sql, args...)
	if err != nil {
		return nil, err
	}

	out := make([]model.Observation, 0, len(rows))
	for _, row := range rows {
		o := model.Observation{
			Timestamp: row[0].(time.Time).UTC(),
			Symbol:    row[1].(string),
			Values:    make(map[string]decimal.Decimal, len(r.cfg.NumericColumns)),
		}
		for i, c := range r.cfg.NumericColumns {
			if v := row[2+i].(decimal.NullDecimal); v.Valid {
				o.Values[c] = v.Decimal
			}
		}
		out = append(out, o)
	}
	return out, nil
}

// SelectAll returns every observation.
func (r *Reader) SelectAll(ctx context.Context) (*Table, error) {
	obs, err := r.Observations(ctx)
	if err != nil {
		return nil, err
	}
	return r.observationTable("All observations", obs), nil
}

// FilterSymbol returns the observations of one symbol. The symbol is
// upper-cased before matching.
func (r *Reader) FilterSymbol(ctx context.Context, symbol string) (*Table, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}

	obs, err := r.observations(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return r.observationTable("Observations for "+symbol, obs), nil
}

func (r *Reader) observationTable(title string, obs []model.Observation) *Table {
	t := &Table{Title: title, Columns: append([]string{r.cfg.TimeColumn, r.cfg.SymbolColumn}, r.cfg.NumericColumns...)}
	for _, o := range obs {
		row := []any{o.Timestamp, o.Symbol}
		for _, c := range r.cfg.NumericColumns {
			v, ok := o.Value(c)
			row = append(row, decimal.NullDecimal{Decimal: v, Valid: ok})
		}
		t.append(row...)
	}
	return t
}

// AverageClose returns the mean close per symbol.
func (r *Reader) AverageClose(ctx context.Context) (*Table, error) {
	obs, err := r.Observations(ctx)
	if err != nil {
		return nil, err
	}

	bySymbol := make(map[string][]decimal.Decimal)
	for _, o := range obs {
		if v, ok := o.Value(closeColumn); ok {
			bySymbol[o.Symbol] = append(bySymbol[o.Symbol], v)
		}
	}

	t := &Table{Title: "Average close per symbol", Columns: []string{r.cfg.SymbolColumn, "avg_close", "count"}}
	for _, sym := range sortedKeys(bySymbol) {
		mean, _ := Mean(bySymbol[sym])
		t.append(sym, mean, len(bySymbol[sym]))
	}
	return t, nil
}

// Correlation returns the Pearson correlation matrix of the numeric columns.
func (r *Reader) Correlation(ctx context.Context) (*Table, error) {
	obs, err := r.Observations(ctx)
	if err != nil {
		return nil, err
	}

	series := make([][]float64, len(r.cfg.NumericColumns))
	for i, c := range r.cfg.NumericColumns {
		series[i] = make([]float64, len(obs))
		for j, o := range obs {
			if v, ok := o.Value(c); ok {
				series[i][j] = v.InexactFloat64()
			} else {
				series[i][j] = math.NaN()
			}
		}
	}

	m := CorrelationMatrix(series)
	t := &Table{Title: "Correlation matrix", Columns: append([]string{""}, r.cfg.NumericColumns...)}
	for i, c := range r.cfg.NumericColumns {
		row := []any{c}
		for _, v := range m[i] {
			row = append(row, v)
		}
		t.append(row...)
	}
	return t, nil
}

// Volatility returns, per symbol in time order, the percent change of close
// and its rolling sample standard deviation over window observations.
func (r *Reader) Volatility(ctx context.Context, window int) (*Table, error) {
	if window <= 0 {
		window = DefaultVolWindow
	}

	obs, err := r.Observations(ctx)
	if err != nil {
		return nil, err
	}

	type point struct {
		at    time.Time
		close float64
	}
	bySymbol := make(map[string][]point)
	for _, o := range obs {
		if v, ok := o.Value(closeColumn); ok {
			bySymbol[o.Symbol] = append(bySymbol[o.Symbol], point{o.Timestamp, v.InexactFloat64()})
		}
	}

	t := &Table{
		Title:   fmt.Sprintf("Volatility (rolling %d)", window),
		Columns: []string{r.cfg.TimeColumn, r.cfg.SymbolColumn, closeColumn, "return", "volatility"},
	}
	for _, sym := range sortedKeys(bySymbol) {
		pts := bySymbol[sym]
		closes := make([]float64, len(pts))
		for i, p := range pts {
			closes[i] = p.close
		}
		returns := PctChange(closes)
		vol := RollingStd(returns, window, 1)
		for i, p := range pts {
			t.append(p.at, sym, p.close, returns[i], vol[i])
		}
	}
	return t, nil
}

// AverageVolumeSince returns the mean volume per symbol over the trailing
// interval, such as "3 months".
func (r *Reader) AverageVolumeSince(ctx context.Context, interval string) (*Table, error) {
	if interval == "" {
		interval = DefaultSince
	}

	sql := fmt.Sprintf(
		"SELECT %[1]s, AVG(%[2]s) AS avg_volume FROM %[3]s WHERE %[4]s >= NOW() - $1::interval GROUP BY %[1]s ORDER BY %[1]s",
		r.symbolCol, pgx.Identifier{volumeColumn}.Sanitize(), r.table, r.timeCol,
	)
	rows, err := r.collect(ctx, []kind{kindText, kindNumber}, sql, interval)
	if err != nil {
		return nil, err
	}
	return &Table{
		Title:   "Average volume over the last " + interval,
		Columns: []string{r.cfg.SymbolColumn, "avg_volume"},
		Rows:    rows,
	}, nil
}

// AverageVolumePerBucket returns the mean volume per symbol and time bucket.
func (r *Reader) AverageVolumePerBucket(ctx context.Context, bucket string) (*Table, error) {
	if bucket == "" {
		bucket = DefaultVolumeBucket
	}

	sql := fmt.Sprintf(
		"SELECT time_bucket($1::interval, %[1]s) AS bucket, %[2]s, AVG(%[3]s) AS avg_volume FROM %[4]s GROUP BY bucket, %[2]s ORDER BY bucket, %[2]s",
		r.timeCol, r.symbolCol, pgx.Identifier{volumeColumn}.Sanitize(), r.table,
	)
	rows, err := r.collect(ctx, []kind{kindTime, kindText, kindNumber}, sql, bucket)
	if err != nil {
		return nil, err
	}
	return &Table{
		Title:   "Average volume per " + bucket,
		Columns: []string{"bucket", r.cfg.SymbolColumn, "avg_volume"},
		Rows:    rows,
	}, nil
}

// GapFilled returns the mean close per symbol and bucket across the stored
// time range, with empty buckets linearly interpolated.
func (r *Reader) GapFilled(ctx context.Context, bucket string) (*Table, error) {
	if bucket == "" {
		bucket = DefaultGapfillBucket
	}

	t := &Table{
		Title:   "Close per " + bucket + " with gaps filled",
		Columns: []string{"bucket", r.cfg.SymbolColumn, closeColumn},
	}

	bounds, err := r.collect(ctx, []kind{kindNullTime, kindNullTime},
		fmt.Sprintf("SELECT MIN(%[1]s), MAX(%[1]s) FROM %[2]s", r.timeCol, r.table))
	if err != nil {
		return nil, err
	}
	if len(bounds) == 0 || bounds[0][0] == nil || bounds[0][1] == nil {
		return t, nil
	}

	sql := fmt.Sprintf(
		"SELECT time_bucket_gapfill($1::interval, %[1]s) AS bucket, %[2]s, interpolate(AVG(%[3]s)::double precision) AS %[3]s "+
			"FROM %[4]s WHERE %[1]s >= $2 AND %[1]s <= $3 GROUP BY bucket, %[2]s ORDER BY %[2]s, bucket",
		r.timeCol, r.symbolCol, pgx.Identifier{closeColumn}.Sanitize(), r.table,
	)
	rows, err := r.collect(ctx, []kind{kindTime, kindText, kindNumber}, sql, bucket, bounds[0][0], bounds[0][1])
	if err != nil {
		return nil, err
	}
	t.Rows = rows
	return t, nil
}

// MovingAverage returns the close of one symbol next to its trailing
// average over window rows.
func (r *Reader) MovingAverage(ctx context.Context, symbol string, window int) (*Table, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		symbol = DefaultSymbol
	}
	if window <= 0 {
		window = DefaultWindow
	}

	sql := fmt.Sprintf(
		"SELECT %[1]s, %[2]s, %[3]s, AVG(%[3]s) OVER (PARTITION BY %[2]s ORDER BY %[1]s ROWS BETWEEN %[5]d PRECEDING AND CURRENT ROW) AS moving_avg "+
			"FROM %[4]s WHERE %[2]s = $1 ORDER BY %[1]s",
		r.timeCol, r.symbolCol, pgx.Identifier{closeColumn}.Sanitize(), r.table, window-1,
	)
	rows, err := r.collect(ctx, []kind{kindTime, kindText, kindNumber, kindNumber}, sql, symbol)
	if err != nil {
		return nil, err
	}
	return &Table{
		Title:   fmt.Sprintf("Moving average (%d) of %s close", window, symbol),
		Columns: []string{r.cfg.TimeColumn, r.cfg.SymbolColumn, closeColumn, "moving_avg"},
		Rows:    rows,
	}, nil
}

type kind int

const (
	kindTime kind = iota
	kindNullTime
	kindText
	kindNumber
)

// collect runs sql and scans every row into cells of the given kinds.
func (r *Reader) collect(ctx context.Context, kinds []kind, sql string, args ...any) ([][]any, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var out [][]any
	for rows.Next() {
		dest := make([]any, len(kinds))
		for i, k := range kinds {
			switch k {
			case kindTime:
				dest[i] = new(time.Time)
			case kindNullTime:
				dest[i] = new(*time.Time)
			case kindText:
				dest[i] = new(string)
			case kindNumber:
				dest[i] = new(decimal.NullDecimal)
			}
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}

		row := make([]any, len(kinds))
		for i, d := range dest {
			switch v := d.(type) {
			case *time.Time:
				row[i] = v.UTC()
			case **time.Time:
				if *v != nil {
					row[i] = (*v).UTC()
				}
			case *string:
				row[i] = *v
			case *decimal.NullDecimal:
				row[i] = *v
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}

	r.logger.Debug("analytics query", "rows", len(out), "duration", time.Since(start))
	return out, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
