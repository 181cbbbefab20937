// Package stores provides the persistence layer: SQLite-based storage
// with WAL mode and embedded migrations for workflow runs, per-stage
// attempts, workspace idempotency state, and the run event log. It
// also adapts that storage to the engine's RunRecorder interface and
// the idempotency Tracker interface.
package stores
