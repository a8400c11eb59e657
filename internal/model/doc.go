// Package model defines the observation types shared by the parser, the
// ingestion pipeline and the analytics queries.
//
// Conventions:
//   - Timestamps: time.Time normalized to UTC, second precision
//   - Numeric fields: decimal.Decimal keyed by column name
//   - Identity: (symbol, timestamp); a missing symbol is the empty string
package model
