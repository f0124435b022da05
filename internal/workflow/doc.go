// Package workflow drives approved posts through adaptation and publishing.
//
// A Processor owns the poll loop: each cycle loads the whole queue, picks the
// approved posts whose scheduled time has passed, and handles them one at a
// time in queue order. Success moves a post to posted; failure bumps its
// retry count and either pushes its scheduled time forward or marks it
// failed. The administrative operations used by the API and CLI share the
// cycle's mutex so every load-mutate-save sequence in the process is
// serialized.
//
// Delivery is at-least-once. A publish that succeeds at the platform is only
// durable once the queue is saved; a crash in between leaves the post
// approved and it will be published again after restart. Only one processor
// may run against a queue file; the daemon's lock file enforces this for
// herald itself but not for other writers.
package workflow
