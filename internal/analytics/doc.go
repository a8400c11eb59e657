// Package analytics answers read-side questions over stored observations.
//
// Aggregations that TimescaleDB does well (time buckets, gap filling,
// window averages) run in SQL. Statistics over whole series (correlation,
// rolling volatility) are computed in Go from the fetched observations.
//
// Every query is addressed by a Command so the CLI and the interactive menu
// share one dispatch table.
package analytics
