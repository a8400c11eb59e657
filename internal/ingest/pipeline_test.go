package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func newTestPipeline(store Store, cfg Config, opts ...Option) *Pipeline {
	return NewPipeline(cfg, testParser(), store, opts...)
}

func TestPipeline_RejectedRowScenario(t *testing.T) {
	path := writeCSV(t, "timestamp,close,volume\n"+
		"2024-01-01 00:00:00,100,5\n"+
		"2024-01-02 00:00:00,bad,5\n")
	store := newFakeStore()

	s, err := newTestPipeline(store, Config{}).Run(context.Background(), Request{Source: path})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if s.RowsParsed != 1 || s.RowsRejected != 1 {
		t.Errorf("parsed/rejected = %d/%d, want 1/1", s.RowsParsed, s.RowsRejected)
	}
	if s.RowsWritten != 1 {
		t.Errorf("RowsWritten = %d, want 1", s.RowsWritten)
	}
	if s.State != StateCommitted {
		t.Errorf("State = %s, want Committed", s.State)
	}

	wm, _ := store.MaxTimestamp(context.Background())
	if !wm.Valid || !wm.Time.Equal(ts("2024-01-01 00:00:00")) {
		t.Errorf("stored watermark = %v, want 2024-01-01 00:00:00", wm)
	}
	if !s.WatermarkAfter.Time.Equal(wm.Time) {
		t.Errorf("WatermarkAfter = %v, want %v", s.WatermarkAfter, wm)
	}
}

func TestPipeline_EmptyStoreWritesAll(t *testing.T) {
	path := writeCSV(t, "timestamp,symbol,close,volume\n"+
		"2024-01-01 09:00:00,BTC_USD,100,5\n"+
		"2024-01-01 17:00:00,BTC_USD,101,6\n"+
		"2024-01-02 09:00:00,BTC_USD,102,7\n")
	store := newFakeStore()

	s, err := newTestPipeline(store, Config{}).Run(context.Background(), Request{Source: path})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if s.RowsWritten != 3 || s.RowsFiltered != 0 || s.RowsConflicted != 0 {
		t.Errorf("written/filtered/conflicted = %d/%d/%d, want 3/0/0", s.RowsWritten, s.RowsFiltered, s.RowsConflicted)
	}
	if s.WatermarkBefore.Valid {
		t.Errorf("WatermarkBefore = %v, want empty", s.WatermarkBefore)
	}
	if got := s.WatermarkAfter.String(); got != "2024-01-02 09:00:00" {
		t.Errorf("WatermarkAfter = %s, want 2024-01-02 09:00:00", got)
	}
	if store.count() != 3 {
		t.Errorf("stored rows = %d, want 3", store.count())
	}
}

func TestPipeline_StoreUnavailable(t *testing.T) {
	path := writeCSV(t, "timestamp,close,volume\n2024-01-01 00:00:00,100,5\n")
	store := newFakeStore(obs("BTC_USD", "2023-12-31 00:00:00"))
	store.maxErr = errConnLost

	s, err := newTestPipeline(store, Config{}).Run(context.Background(), Request{Source: path})
	if err == nil {
		t.Fatal("Run() expected error")
	}

	var ie *Error
	if !errors.As(err, &ie) {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if ie.Kind != KindStoreUnavailable || ie.Stage != StateResolving {
		t.Errorf("kind/stage = %s/%s, want StoreUnavailable/Resolving", ie.Kind, ie.Stage)
	}
	if ie.Source != path || ie.RunID != s.RunID {
		t.Errorf("error context = %q/%q, want %q/%q", ie.Source, ie.RunID, path, s.RunID)
	}
	if !errors.Is(err, errConnLost) {
		t.Errorf("error does not wrap cause: %v", err)
	}
	if s.State != StateFailed || s.RowsWritten != 0 {
		t.Errorf("state/written = %s/%d, want Failed/0", s.State, s.RowsWritten)
	}
	if store.appendCalls != 0 || store.count() != 1 {
		t.Errorf("appendCalls/rows = %d/%d, want 0/1", store.appendCalls, store.count())
	}
}

func TestPipeline_ResolveTimeout(t *testing.T) {
	path := writeCSV(t, "timestamp,close,volume\n2024-01-01 00:00:00,100,5\n")
	store := newFakeStore()
	store.block = true

	_, err := newTestPipeline(store, Config{QueryTimeout: 20 * time.Millisecond}).
		Run(context.Background(), Request{Source: path})

	if KindOf(err) != KindStoreUnavailable {
		t.Fatalf("kind = %s, want StoreUnavailable (err %v)", KindOf(err), err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want wrapped DeadlineExceeded", err)
	}
}

func TestPipeline_Idempotence(t *testing.T) {
	path := writeCSV(t, "timestamp,symbol,close,volume\n"+
		"2024-01-01 00:00:00,BTC_USD,100,5\n"+
		"2024-01-02 00:00:00,BTC_USD,101,5\n"+
		"2024-01-02 00:00:00,ETH_USD,20,1\n")
	store := newFakeStore()
	full := true
	p := newTestPipeline(store, Config{})

	first, err := p.Run(context.Background(), Request{Source: path, ForceFullReload: &full})
	if err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	if first.RowsWritten != 3 {
		t.Fatalf("first RowsWritten = %d, want 3", first.RowsWritten)
	}

	t.Run("full reload", func(t *testing.T) {
		s, err := p.Run(context.Background(), Request{Source: path, ForceFullReload: &full})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if s.RowsWritten != 0 || s.RowsConflicted != s.RowsParsed {
			t.Errorf("written/conflicted/parsed = %d/%d/%d", s.RowsWritten, s.RowsConflicted, s.RowsParsed)
		}
		if store.count() != 3 {
			t.Errorf("stored rows = %d, want 3", store.count())
		}
	})

	t.Run("incremental", func(t *testing.T) {
		s, err := p.Run(context.Background(), Request{Source: path})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if !s.NothingToDo || s.RowsWritten != 0 || s.RowsFiltered != s.RowsParsed {
			t.Errorf("nothingToDo/written/filtered = %v/%d/%d", s.NothingToDo, s.RowsWritten, s.RowsFiltered)
		}
		if s.State != StateCommitted {
			t.Errorf("State = %s, want Committed", s.State)
		}
	})

	stats := p.WriterStats()
	if stats.Inserts != 3 || stats.Conflicts != 3 || stats.Flushes != 2 {
		t.Errorf("WriterStats = %+v", stats)
	}
}

func TestPipeline_SameDayExcluded(t *testing.T) {
	store := newFakeStore(obs("BTC_USD", "2024-01-02 10:00:00"))
	path := writeCSV(t, "timestamp,symbol,close,volume\n"+
		"2024-01-02 12:00:00,BTC_USD,100,5\n"+
		"2024-01-03 00:00:00,BTC_USD,101,5\n")

	s, err := newTestPipeline(store, Config{}).Run(context.Background(), Request{Source: path})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if s.RowsWritten != 1 || s.RowsFiltered != 1 {
		t.Errorf("written/filtered = %d/%d, want 1/1", s.RowsWritten, s.RowsFiltered)
	}
	if _, ok := store.rows[obs("BTC_USD", "2024-01-02 12:00:00").Key()]; ok {
		t.Error("same-day row was ingested")
	}
}

func TestPipeline_ConfigFullReload(t *testing.T) {
	store := newFakeStore(obs("BTC_USD", "2024-01-05 00:00:00"))
	path := writeCSV(t, "timestamp,symbol,close,volume\n"+
		"2024-01-01 00:00:00,BTC_USD,100,5\n"+
		"2024-01-05 00:00:00,BTC_USD,100,5\n")

	p := newTestPipeline(store, Config{ForceFullReload: true})
	s, err := p.Run(context.Background(), Request{Source: path})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !s.FullReload || s.RowsWritten != 1 || s.RowsConflicted != 1 {
		t.Errorf("fullReload/written/conflicted = %v/%d/%d, want true/1/1", s.FullReload, s.RowsWritten, s.RowsConflicted)
	}

	off := false
	s, err = p.Run(context.Background(), Request{Source: path, ForceFullReload: &off})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if s.FullReload || !s.NothingToDo {
		t.Errorf("request override ignored: fullReload=%v nothingToDo=%v", s.FullReload, s.NothingToDo)
	}
}

func TestPipeline_WriteFailureLeavesStoreUnchanged(t *testing.T) {
	store := newFakeStore(obs("BTC_USD", "2023-12-31 00:00:00"))
	store.failAfter = 2
	path := writeCSV(t, "timestamp,symbol,close,volume\n"+
		"2024-01-01 00:00:00,BTC_USD,100,5\n"+
		"2024-01-02 00:00:00,BTC_USD,100,5\n"+
		"2024-01-03 00:00:00,BTC_USD,100,5\n")

	s, err := newTestPipeline(store, Config{}).Run(context.Background(), Request{Source: path})

	var ie *Error
	if !errors.As(err, &ie) || ie.Kind != KindWriteFailure || ie.Stage != StateWriting {
		t.Fatalf("error = %v, want WriteFailure in Writing", err)
	}
	if s.State != StateFailed || s.RowsWritten != 0 {
		t.Errorf("state/written = %s/%d, want Failed/0", s.State, s.RowsWritten)
	}
	if store.count() != 1 {
		t.Errorf("stored rows = %d, want 1 (rolled back)", store.count())
	}
	if !s.WatermarkAfter.Time.Equal(s.WatermarkBefore.Time) {
		t.Errorf("watermark moved on failure: %v -> %v", s.WatermarkBefore, s.WatermarkAfter)
	}
}

func TestPipeline_SourceErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		store := newFakeStore()
		s, err := newTestPipeline(store, Config{}).Run(context.Background(), Request{Source: "/nonexistent/trades.csv"})

		var ie *Error
		if !errors.As(err, &ie) || ie.Kind != KindSourceRead || ie.Stage != StateParsing {
			t.Fatalf("error = %v, want SourceReadError in Parsing", err)
		}
		if s.State != StateFailed || store.maxCalls != 0 {
			t.Errorf("state/maxCalls = %s/%d, want Failed/0", s.State, store.maxCalls)
		}
	})

	t.Run("missing column", func(t *testing.T) {
		path := writeCSV(t, "timestamp,close\n2024-01-01 00:00:00,1\n")
		_, err := newTestPipeline(newFakeStore(), Config{}).Run(context.Background(), Request{Source: path})
		if KindOf(err) != KindSourceFormat {
			t.Fatalf("kind = %s, want SourceFormatError", KindOf(err))
		}
	})

	t.Run("canceled while parsing", func(t *testing.T) {
		path := writeCSV(t, "timestamp,close,volume\n2024-01-01 00:00:00,1,2\n")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := newTestPipeline(newFakeStore(), Config{}).Run(ctx, Request{Source: path})
		var ie *Error
		if !errors.As(err, &ie) || ie.Kind != KindCanceled || ie.Stage != StateParsing {
			t.Fatalf("error = %v, want Canceled in Parsing", err)
		}
		if !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v, want wrapped context.Canceled", err)
		}
	})
}

func TestPipeline_NoValidRows(t *testing.T) {
	store := newFakeStore()
	path := writeCSV(t, "timestamp,close,volume\nnot-a-date,1,2\n")

	s, err := newTestPipeline(store, Config{EnsureSchema: true}).Run(context.Background(), Request{Source: path})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !s.NothingToDo || s.State != StateCommitted {
		t.Errorf("nothingToDo/state = %v/%s, want true/Committed", s.NothingToDo, s.State)
	}
	if s.RowsParsed+s.RowsRejected != s.RowsTotal {
		t.Errorf("parsed %d + rejected %d != total %d", s.RowsParsed, s.RowsRejected, s.RowsTotal)
	}
	if store.maxCalls != 0 || store.schemaCalls != 0 || store.appendCalls != 0 {
		t.Errorf("store touched: max=%d schema=%d append=%d", store.maxCalls, store.schemaCalls, store.appendCalls)
	}
}

func TestPipeline_EnsureSchema(t *testing.T) {
	path := writeCSV(t, "timestamp,close,volume\n2024-01-01 00:00:00,1,2\n")

	t.Run("provisions before resolving", func(t *testing.T) {
		store := newFakeStore()
		if _, err := newTestPipeline(store, Config{EnsureSchema: true}).Run(context.Background(), Request{Source: path}); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if store.schemaCalls != 1 {
			t.Errorf("schemaCalls = %d, want 1", store.schemaCalls)
		}
	})

	t.Run("failure is StoreUnavailable", func(t *testing.T) {
		store := newFakeStore()
		store.schemaErr = errConnLost
		_, err := newTestPipeline(store, Config{EnsureSchema: true}).Run(context.Background(), Request{Source: path})
		var ie *Error
		if !errors.As(err, &ie) || ie.Kind != KindStoreUnavailable || ie.Stage != StateResolving {
			t.Fatalf("error = %v, want StoreUnavailable in Resolving", err)
		}
		if store.maxCalls != 0 || store.appendCalls != 0 {
			t.Errorf("store queried after schema failure")
		}
	})

	t.Run("once per pipeline across concurrent runs", func(t *testing.T) {
		store := newFakeStore()
		p := newTestPipeline(store, Config{EnsureSchema: true, ForceFullReload: true})

		sources := make([]string, 4)
		for i := range sources {
			sources[i] = writeCSV(t, "timestamp,close,volume\n2024-01-01 00:00:00,1,2\n")
		}

		var wg sync.WaitGroup
		errs := make([]error, len(sources))
		for i, src := range sources {
			i, src := i, src
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[i] = p.Run(context.Background(), Request{Source: src})
			}()
		}
		wg.Wait()

		for i, err := range errs {
			if err != nil {
				t.Errorf("run %d: %v", i, err)
			}
		}
		if store.schemaCalls != 1 {
			t.Errorf("schemaCalls = %d, want 1", store.schemaCalls)
		}

		if _, err := p.Run(context.Background(), Request{Source: sources[0]}); err != nil {
			t.Fatalf("later run: %v", err)
		}
		if store.schemaCalls != 1 {
			t.Errorf("schemaCalls after later run = %d, want 1", store.schemaCalls)
		}
	})

	t.Run("retried after failure", func(t *testing.T) {
		store := newFakeStore()
		store.schemaErr = errConnLost
		p := newTestPipeline(store, Config{EnsureSchema: true})

		if _, err := p.Run(context.Background(), Request{Source: path}); KindOf(err) != KindStoreUnavailable {
			t.Fatalf("first run kind = %s, want StoreUnavailable", KindOf(err))
		}

		store.mu.Lock()
		store.schemaErr = nil
		store.mu.Unlock()

		if _, err := p.Run(context.Background(), Request{Source: path}); err != nil {
			t.Fatalf("second run: %v", err)
		}
		if store.schemaCalls != 2 {
			t.Errorf("schemaCalls = %d, want 2", store.schemaCalls)
		}
	})
}

func TestPipeline_WatermarkMonotonic(t *testing.T) {
	store := newFakeStore()
	p := newTestPipeline(store, Config{})

	sources := []string{
		"timestamp,close,volume\n2024-01-03 00:00:00,1,1\n",
		"timestamp,close,volume\n2024-01-01 00:00:00,1,1\n",
		"timestamp,close,volume\n2024-01-05 06:00:00,1,1\n2024-01-04 00:00:00,1,1\n",
		"timestamp,close,volume\n2024-01-05 23:00:00,1,1\n",
	}

	prev, _ := store.MaxTimestamp(context.Background())
	for i, src := range sources {
		if _, err := p.Run(context.Background(), Request{Source: writeCSV(t, src)}); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		cur, _ := store.MaxTimestamp(context.Background())
		if cur.Before(prev) {
			t.Fatalf("run %d: watermark went backwards %v -> %v", i, prev, cur)
		}
		prev = cur
	}

	if got := prev.String(); got != "2024-01-05 06:00:00" {
		t.Errorf("final watermark = %s, want 2024-01-05 06:00:00", got)
	}
}

func TestPipeline_Recorder(t *testing.T) {
	path := writeCSV(t, "timestamp,close,volume\n2024-01-01 00:00:00,1,2\n")
	rec := &recorder{}

	s, err := newTestPipeline(newFakeStore(), Config{}, WithRecorder(rec)).Run(context.Background(), Request{Source: path})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []State{StateParsing, StateResolving, StateFiltering, StateWriting}
	if diff := cmp.Diff(want, rec.stages); diff != "" {
		t.Errorf("observed stages mismatch (-want +got):\n%s", diff)
	}
	if len(rec.runs) != 1 || rec.runs[0] != s {
		t.Errorf("ObserveRun calls = %d, want 1 with the returned summary", len(rec.runs))
	}
	if s.RunID == "" {
		t.Error("RunID is empty")
	}
}
