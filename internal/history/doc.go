// Package history keeps an append-only SQLite ledger of publish attempts.
//
// The queue file only holds the latest error and retry count for a post; the
// ledger records every adaptation and publish attempt with its outcome so
// operators can see why a post ended up failed. Writes are best effort from
// the processor's point of view.
package history
