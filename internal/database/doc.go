// Package database manages the TimescaleDB connection and implements the
// observation store used by the ingestion pipeline.
//
// Observations live in a single table keyed by (symbol, timestamp):
//
//	CREATE TABLE <schema>.<table> (
//	    timestamp TIMESTAMPTZ NOT NULL,
//	    symbol    TEXT NOT NULL DEFAULT '',
//	    <numeric columns> NUMERIC,
//	    PRIMARY KEY (symbol, timestamp)
//	)
//
// When configured, the table is converted to a hypertable partitioned on the
// time column.
package database
