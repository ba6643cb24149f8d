// Package queue persists upload queue items in SQLite.
//
// The store is the single durable source of truth for the delivery
// subsystem: every item created by an enqueue survives process death and
// is re-offered after restart. Status transitions that race with user
// actions (claim vs cancel) are resolved with status-guarded updates so
// at most one owner ever holds an item in the uploading state.
package queue
