package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/rickgao/tsingest/internal/config"
	"github.com/rickgao/tsingest/internal/model"
)

type call struct {
	sql  string
	args []any
}

// fakeQuerier answers queries in order from canned result sets.
type fakeQuerier struct {
	results [][][]any
	err     error
	calls   []call
}

func (f *fakeQuerier) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	f.calls = append(f.calls, call{sql, args})
	if f.err != nil {
		return nil, f.err
	}
	if len(f.calls) > len(f.results) {
		return &fakeRows{}, nil
	}
	return &fakeRows{data: f.results[len(f.calls)-1]}, nil
}

// fakeRows embeds pgx.Rows so only the methods under test need bodies.
type fakeRows struct {
	pgx.Rows
	data [][]any
	i    int
}

func (r *fakeRows) Next() bool {
	r.i++
	return r.i <= len(r.data)
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.i-1]
	if len(row) != len(dest) {
		return fmt.Errorf("scan: %d values into %d targets", len(row), len(dest))
	}
	for i, d := range dest {
		switch d := d.(type) {
		case *time.Time:
			*d = row[i].(time.Time)
		case **time.Time:
			if row[i] == nil {
				*d = nil
			} else {
				t := row[i].(time.Time)
				*d = &t
			}
		case *string:
			*d = row[i].(string)
		case *decimal.NullDecimal:
			if row[i] == nil {
				*d = decimal.NullDecimal{}
			} else {
				*d = decimal.NewNullDecimal(row[i].(decimal.Decimal))
			}
		default:
			return fmt.Errorf("scan: unsupported target %T", d)
		}
	}
	return nil
}

func (r *fakeRows) Close()     {}
func (r *fakeRows) Err() error { return nil }

func storeConfig() config.StoreConfig {
	return config.StoreConfig{
		Schema:         "timeseries",
		Table:          "observations",
		TimeColumn:     "timestamp",
		SymbolColumn:   "symbol",
		NumericColumns: []string{"close", "volume"},
	}
}

func ts(s string) time.Time {
	t, err := time.ParseInLocation(model.TimeLayout, s, time.UTC)
	if err != nil {
		panic(err)
	}
	return t
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// obsRow builds a result row for the observations query.
func obsRow(at, symbol string, close, volume any) []any {
	return []any{ts(at), symbol, close, volume}
}
