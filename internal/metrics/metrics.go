package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/tsingest/internal/ingest"
)

const Namespace = "tsingest"

const (
	MetricRuns          = "runs_total"
	MetricRows          = "rows_total"
	MetricRunDuration   = "run_duration_seconds"
	MetricStageDuration = "stage_duration_seconds"
	MetricWatermark     = "watermark_timestamp_seconds"
)

// PoolStats is satisfied by *pgxpool.Stat.
type PoolStats interface {
	TotalConns() int32
	IdleConns() int32
	AcquiredConns() int32
}

// Collector records pipeline telemetry. It implements ingest.Recorder.
type Collector struct {
	reg prometheus.Registerer

	runs          *prometheus.CounterVec
	rows          *prometheus.CounterVec
	runDuration   prometheus.Histogram
	stageDuration *prometheus.HistogramVec
	watermark     *prometheus.GaugeVec
}

var _ ingest.Recorder = (*Collector)(nil)

// New creates a Collector and registers it with reg.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		reg: reg,
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      MetricRuns,
			Help:      "Ingest runs by final state.",
		}, []string{"state"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      MetricRows,
			Help:      "Rows seen by ingest runs, by outcome.",
		}, []string{"outcome"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      MetricRunDuration,
			Help:      "Wall time of ingest runs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      MetricStageDuration,
			Help:      "Time spent in each pipeline state.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"stage"}),
		watermark: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      MetricWatermark,
			Help:      "Latest committed observation time per source.",
		}, []string{"source"}),
	}

	reg.MustRegister(c.runs, c.rows, c.runDuration, c.stageDuration, c.watermark)
	return c
}

// ObserveStage records the time a run spent in stage.
func (c *Collector) ObserveStage(stage ingest.State, d time.Duration) {
	c.stageDuration.WithLabelValues(stage.String()).Observe(d.Seconds())
}

// ObserveRun records the outcome of a finished run.
func (c *Collector) ObserveRun(s *ingest.Summary) {
	c.runs.WithLabelValues(s.State.String()).Inc()
	c.runDuration.Observe(s.Duration.Seconds())

	c.rows.WithLabelValues("parsed").Add(float64(s.RowsParsed))
	c.rows.WithLabelValues("rejected").Add(float64(s.RowsRejected))
	c.rows.WithLabelValues("filtered").Add(float64(s.RowsFiltered))
	c.rows.WithLabelValues("written").Add(float64(s.RowsWritten))
	c.rows.WithLabelValues("conflicted").Add(float64(s.RowsConflicted))

	if s.State == ingest.StateCommitted && s.WatermarkAfter.Valid {
		c.watermark.WithLabelValues(s.Source).Set(float64(s.WatermarkAfter.Time.Unix()))
	}
}

// WatchPool exports connection pool gauges read from stat on each scrape.
func (c *Collector) WatchPool(stat func() PoolStats) {
	gauge := func(name, help string, read func(PoolStats) int32) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "db_pool",
			Name:      name,
			Help:      help,
		}, func() float64 {
			return float64(read(stat()))
		})
	}

	c.reg.MustRegister(
		gauge("total_conns", "Connections in the pool.", PoolStats.TotalConns),
		gauge("idle_conns", "Idle connections in the pool.", PoolStats.IdleConns),
		gauge("acquired_conns", "Connections in use.", PoolStats.AcquiredConns),
	)
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
