// Package scheduler re-runs ingestion of configured sources on an interval.
//
// Each cycle ingests every source once, with at most Concurrency runs in
// flight. Runs are incremental, so a cycle over unchanged files is a no-op.
package scheduler
