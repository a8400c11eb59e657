package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/tsingest/internal/model"
	"github.com/rickgao/tsingest/internal/parser"
)

var errConnLost = errors.New("connection lost")

// fakeStore is an in-memory Store with transactional appends.
type fakeStore struct {
	mu   sync.Mutex
	rows map[model.Key]model.Observation

	maxErr    error
	schemaErr error
	appendErr error
	failAfter int // fail AppendRows after this many staged inserts
	block     bool

	maxCalls    int
	appendCalls int
	schemaCalls int
}

func newFakeStore(rows ...model.Observation) *fakeStore {
	f := &fakeStore{rows: make(map[model.Key]model.Observation)}
	for _, r := range rows {
		f.rows[r.Key()] = r
	}
	return f
}

func (f *fakeStore) MaxTimestamp(ctx context.Context) (model.Watermark, error) {
	f.mu.Lock()
	f.maxCalls++
	block, maxErr := f.block, f.maxErr
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return model.Watermark{}, ctx.Err()
	}
	if maxErr != nil {
		return model.Watermark{}, maxErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	var wm model.Watermark
	for k := range f.rows {
		wm = wm.Advance(k.Timestamp)
	}
	return wm, nil
}

func (f *fakeStore) AppendRows(ctx context.Context, rows []model.Observation) (AppendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appendCalls++

	if f.appendErr != nil {
		return AppendResult{}, f.appendErr
	}

	staged := make(map[model.Key]model.Observation)
	var res AppendResult
	for _, r := range rows {
		k := r.Key()
		_, stored := f.rows[k]
		_, pending := staged[k]
		if stored || pending {
			res.Conflicts = append(res.Conflicts, k)
			continue
		}
		staged[k] = r
		res.Inserted++
		if f.failAfter > 0 && res.Inserted >= f.failAfter {
			return AppendResult{}, errConnLost
		}
	}

	for k, r := range staged {
		f.rows[k] = r
	}
	return res, nil
}

func (f *fakeStore) CreateSchemaIfAbsent(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.schemaCalls++
	return f.schemaErr
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

// recorder captures telemetry.
type recorder struct {
	mu     sync.Mutex
	stages []State
	runs   []*Summary
}

func (r *recorder) ObserveStage(stage State, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = append(r.stages, stage)
}

func (r *recorder) ObserveRun(s *Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, s)
}

func testParser() *parser.Parser {
	return parser.New(parser.Config{
		TimeColumn:     "timestamp",
		SymbolColumn:   "symbol",
		NumericColumns: []string{"close", "volume"},
	}, nil)
}

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trades.csv")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return path
}

func ts(s string) time.Time {
	t, err := time.ParseInLocation(model.TimeLayout, s, time.UTC)
	if err != nil {
		panic(err)
	}
	return t
}

func obs(symbol, at string) model.Observation {
	return model.Observation{Symbol: symbol, Timestamp: ts(at)}
}
