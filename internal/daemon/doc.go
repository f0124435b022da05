// Package daemon coordinates the long-running Herald process.
//
// It wires configuration, the queue processor, the optional history ledger,
// and Prometheus metrics into a single lifecycle with flock-based locking
// to prevent multiple instances. Only one process may write the queue file,
// so the lock is held for as long as the processor runs.
//
// The daemon also serves the admin HTTP API: queue inspection and the
// approve/reject/schedule/publish actions, status, history, and /metrics.
// Keep orchestration here; publishing and adaptation live in their own
// packages.
package daemon
