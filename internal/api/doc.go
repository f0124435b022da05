// Package api defines the wire-format types of the daemon's admin HTTP API
// and a Client that speaks it.
//
// # Key Types
//
// StatusResponse: daemon running state, processor summary, enabled
// platforms, and the preflight results captured at startup.
//
// QueueListResponse/QueueItemResponse: posts are sent in their persisted
// JSON shape so the CLI renders the same data whether it talks to the daemon
// or reads the queue file directly.
//
// ErrorResponse: every non-2xx response carries {"error": "..."}.
//
// # Errors
//
// Client maps HTTP status codes back onto the queue sentinels: 404 becomes
// queue.ErrNotFound, 409 queue.ErrInvalidTransition, 400
// queue.ErrInvalidInput. Callers can use errors.Is on either side of the
// wire. IsUnavailable reports connection failures so the CLI can fall back
// to direct store access.
package api
