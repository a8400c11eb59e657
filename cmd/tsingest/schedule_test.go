package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rickgao/tsingest/internal/ingest"
	"github.com/rickgao/tsingest/internal/metrics"
	"github.com/rickgao/tsingest/internal/scheduler"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(ctx context.Context) error { return p.err }

type fakeStatuses []scheduler.Status

func (f fakeStatuses) Statuses() []scheduler.Status { return f }

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name       string
		pingErr    error
		statuses   fakeStatuses
		wantStatus string
		wantCode   int
	}{
		{
			name:       "healthy",
			statuses:   fakeStatuses{{Source: "a.csv", Runs: 1, Last: &ingest.Summary{State: ingest.StateCommitted}}},
			wantStatus: "healthy",
			wantCode:   http.StatusOK,
		},
		{
			name:       "failed source",
			statuses:   fakeStatuses{{Source: "a.csv", Runs: 1, Failures: 1, LastErr: errors.New("no such file")}},
			wantStatus: "degraded",
			wantCode:   http.StatusOK,
		},
		{
			name:       "database down",
			pingErr:    errors.New("connection refused"),
			wantStatus: "unhealthy",
			wantCode:   http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := createHealthHandler(fakePinger{tt.pingErr}, tt.statuses, prometheus.NewRegistry(), "/metrics")

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tt.wantCode)
			}
			var body struct {
				Status string `json:"status"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", body.Status, tt.wantStatus)
			}
		})
	}
}

func TestHealthHandler_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.New(reg)
	c.ObserveRun(&ingest.Summary{State: ingest.StateCommitted, RowsWritten: 3})

	h := createHealthHandler(fakePinger{}, fakeStatuses{}, reg, "/custom-metrics")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/custom-metrics", nil))

	if !strings.Contains(rec.Body.String(), `tsingest_rows_total{outcome="written"} 3`) {
		t.Errorf("metrics output missing written rows:\n%s", rec.Body.String())
	}
}
