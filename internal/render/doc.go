// Package render writes run summaries, scheduler statuses and analytics
// results as text tables.
package render
