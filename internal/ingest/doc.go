// Package ingest implements the incremental ingestion pipeline.
//
// A run moves through Idle -> Parsing -> Resolving -> Filtering -> Writing and
// ends in Committed or Failed:
//   - Parsing: the RecordParser turns the source into observations
//   - Resolving: the WatermarkResolver reads MAX(timestamp) from the store
//   - Filtering: only observations on a later UTC day than the watermark pass
//   - Writing: the IngestionWriter appends the batch in one transaction
//
// Duplicate (symbol, timestamp) rows are soft conflicts: they are skipped and
// counted, never failing the batch. Fatal errors are returned as *Error with
// the failing stage and an error Kind.
package ingest
