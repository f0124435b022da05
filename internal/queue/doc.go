// Package queue defines queued posts and persists them as a single JSON
// document.
//
// A Post moves pending -> approved -> posted or failed. Approval is an
// external decision; the processor only ever picks up approved posts whose
// scheduled time has passed. Failed attempts push the post into the future
// until the retry budget is spent, after which it becomes failed. Posted and
// failed posts are terminal and kept for audit.
//
// The Store reads and writes the whole collection. It never caches, so the
// file may be edited by other tools between cycles. A file that cannot be
// parsed is renamed aside instead of overwritten.
package queue
