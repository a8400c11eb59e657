// Package parser implements the RecordParser: it reads a CSV source with a
// header row and turns each data row into a typed model.Observation.
//
// Row-level problems (bad timestamp, non-numeric field, missing symbol, CSV
// quoting error) reject only that row and are reported in Result.Rejected.
// Timestamps must match the layout exactly, including the absence of
// fractional seconds. Problems with the source
// as a whole (unreadable file, missing required columns) abort the parse with
// an error wrapping ErrSourceRead or ErrSourceFormat.
package parser
