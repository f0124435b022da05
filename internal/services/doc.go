// Package services defines shared error and context helpers consumed by the
// processor, the adaptation engine, and the platform bindings.
//
// Key responsibilities:
//   - Context helpers that stamp post IDs, platforms, cycle IDs, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper, and the Classify and
//     Retryable functions the processor uses to decide between rescheduling a
//     post and failing it.
package services
