// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Ingest runs by outcome and their durations
//   - Rows parsed, rejected, filtered, written and conflicted
//   - Time spent in each pipeline state
//   - Latest committed watermark per source
//   - Database connection pool stats
package metrics
