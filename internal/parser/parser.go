package parser

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/tsingest/internal/model"
)

var (
	// ErrSourceRead marks failures to open or read the source.
	ErrSourceRead = errors.New("source read error")

	// ErrSourceFormat marks a source whose layout cannot be ingested.
	ErrSourceFormat = errors.New("source format error")
)

// ctxCheckInterval is how many rows are parsed between context checks.
const ctxCheckInterval = 1024

// Config describes the expected source layout.
type Config struct {
	TimeColumn     string
	TimeLayout     string
	SymbolColumn   string
	RequireSymbol  bool
	NumericColumns []string

	// MaxRejects aborts the parse once more rows than this are rejected.
	// Zero disables the limit.
	MaxRejects int
}

// RowError describes a rejected row.
type RowError struct {
	Line   int      // 1-based line in the source
	Column int      // 1-based byte column of a CSV syntax error, else 0
	Raw    []string // Raw fields, nil when the row could not be split
	Cause  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Cause)
}

func (e *RowError) Unwrap() error {
	return e.Cause
}

// Result is the outcome of parsing one source.
type Result struct {
	Source       string
	Observations []model.Observation
	Rejected     []RowError
	Total        int // Data rows read, excluding the header
}

// Parsed returns the number of valid observations.
func (r *Result) Parsed() int {
	return len(r.Observations)
}

// Parser converts raw rows into observations.
type Parser struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Parser.
func New(cfg Config, logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TimeLayout == "" {
		cfg.TimeLayout = model.TimeLayout
	}
	return &Parser{cfg: cfg, logger: logger}
}

// ParseFile opens path and parses it.
func (p *Parser) ParseFile(ctx context.Context, path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceRead, err)
	}
	defer f.Close()

	return p.Parse(ctx, f, path)
}

// Parse reads every row of r. source names r in diagnostics.
func (p *Parser) Parse(ctx context.Context, r io.Reader, source string) (*Result, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: %s: no header row", ErrSourceFormat, source)
	}
	if err != nil {
		return nil, readErr(source, err)
	}

	layout, err := p.resolveColumns(header)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSourceFormat, source, err)
	}

	res := &Result{Source: source}
	for {
		if res.Total%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		row, err := reader.Read()
		if err == io.EOF {
			break
		}

		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			res.Total++
			p.reject(res, RowError{Line: parseErr.StartLine, Column: parseErr.Column, Cause: parseErr.Err})
		} else if err != nil {
			return nil, readErr(source, err)
		} else {
			res.Total++
			line, _ := reader.FieldPos(0)
			obs, cause := layout.observation(row, p.cfg.TimeLayout)
			if cause != nil {
				p.reject(res, RowError{Line: line, Raw: append([]string(nil), row...), Cause: cause})
			} else {
				res.Observations = append(res.Observations, obs)
			}
		}

		if p.cfg.MaxRejects > 0 && len(res.Rejected) > p.cfg.MaxRejects {
			return nil, fmt.Errorf("%w: %s: more than %d rejected rows", ErrSourceFormat, source, p.cfg.MaxRejects)
		}
	}

	p.logger.Debug("source parsed",
		"source", source,
		"rows", res.Total,
		"parsed", res.Parsed(),
		"rejected", len(res.Rejected),
	)

	return res, nil
}

func (p *Parser) reject(res *Result, rowErr RowError) {
	res.Rejected = append(res.Rejected, rowErr)
	attrs := []any{"source", res.Source, "line", rowErr.Line}
	if rowErr.Raw != nil {
		attrs = append(attrs, "row", strings.Join(rowErr.Raw, ","))
	} else {
		attrs = append(attrs, "column", rowErr.Column)
	}
	p.logger.Warn("rejected row", append(attrs, "error", rowErr.Cause)...)
}

func readErr(source string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrSourceRead, source, err)
}

// columns maps configured fields to header positions.
type columns struct {
	time          int
	symbol        int // -1 when the source has no symbol column
	requireSymbol bool
	numeric       []string
	numericIdx    []int
}

func (p *Parser) resolveColumns(header []string) (*columns, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		key := normalize(name)
		if _, dup := index[key]; !dup {
			index[key] = i
		}
	}

	lookup := func(name string) (int, bool) {
		i, ok := index[normalize(name)]
		return i, ok
	}

	c := &columns{symbol: -1, requireSymbol: p.cfg.RequireSymbol}

	var ok bool
	if c.time, ok = lookup(p.cfg.TimeColumn); !ok {
		return nil, fmt.Errorf("missing time column %q", p.cfg.TimeColumn)
	}

	if p.cfg.SymbolColumn != "" {
		if i, found := lookup(p.cfg.SymbolColumn); found {
			c.symbol = i
		}
	}
	if c.requireSymbol && c.symbol < 0 {
		return nil, fmt.Errorf("missing symbol column %q", p.cfg.SymbolColumn)
	}

	if len(p.cfg.NumericColumns) == 0 {
		return nil, errors.New("no numeric columns configured")
	}
	for _, name := range p.cfg.NumericColumns {
		i, found := lookup(name)
		if !found {
			return nil, fmt.Errorf("missing numeric column %q", name)
		}
		c.numeric = append(c.numeric, name)
		c.numericIdx = append(c.numericIdx, i)
	}

	return c, nil
}

// observation converts one row. The returned error is the rejection cause.
func (c *columns) observation(row []string, layout string) (model.Observation, error) {
	field := func(i int) (string, error) {
		if i >= len(row) {
			return "", fmt.Errorf("row has %d fields, need column %d", len(row), i+1)
		}
		return strings.TrimSpace(row[i]), nil
	}

	raw, err := field(c.time)
	if err != nil {
		return model.Observation{}, err
	}
	ts, err := time.ParseInLocation(layout, raw, time.UTC)
	if err != nil || !representable(ts, layout) {
		return model.Observation{}, fmt.Errorf("timestamp %q does not match %q", raw, layout)
	}

	obs := model.Observation{
		Timestamp: ts.UTC(),
		Values:    make(map[string]decimal.Decimal, len(c.numeric)),
	}

	if c.symbol >= 0 {
		if obs.Symbol, err = field(c.symbol); err != nil {
			return model.Observation{}, err
		}
	}
	if c.requireSymbol && obs.Symbol == "" {
		return model.Observation{}, errors.New("empty symbol")
	}

	for n, name := range c.numeric {
		raw, err := field(c.numericIdx[n])
		if err != nil {
			return model.Observation{}, err
		}
		if raw == "" {
			return model.Observation{}, fmt.Errorf("column %q: empty value", name)
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return model.Observation{}, fmt.Errorf("column %q: %q is not a number", name, raw)
		}
		obs.Values[name] = v
	}

	return obs, nil
}

// representable reports whether layout can express ts. time.Parse accepts
// fractional seconds after a seconds field even when the layout has none.
func representable(ts time.Time, layout string) bool {
	if ts.Nanosecond() == 0 {
		return true
	}
	return ts.Format(layout) != ts.Truncate(time.Second).Format(layout)
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
