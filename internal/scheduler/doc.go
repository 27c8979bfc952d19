// Package scheduler keeps workspace indexes fresh: it watches registered
// workspace roots for filesystem changes and re-runs the indexing pipeline
// for files that changed, through a debounce window and a bounded worker
// pool per workspace.
//
// Each watched file owns one slot moving through Idle -> Pending ->
// InFlight -> Idle. Change events mark a file Pending and (re)arm its
// debounce timer; the timer firing dispatches the file to the workspace's
// worker pool. Events arriving while a run is in flight set a single-slot
// redo flag instead of queueing, so a burst of fifty events collapses into
// one run plus at most one redo. Two runs for the same file never overlap.
//
// Deleted files dispatch to the tombstone path instead of a reindex.
// Duplicate and out-of-order watch events are harmless: the debounce
// coalesces them and the pipeline's content-hash check turns spurious
// dispatches into no-ops.
//
// Watchers for workspaces idle past the configured TTL are stopped by a
// janitor to bound open-handle usage; re-registering restarts them.
package scheduler
