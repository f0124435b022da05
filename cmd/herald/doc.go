// Package main hosts the Herald CLI entrypoint and command graph.
//
// The Cobra command tree runs the publishing daemon in the foreground, drives
// the post queue through the daemon's HTTP API (or directly through the queue
// file when no daemon is running), adapts media for inspection, and scaffolds
// configuration. Configuration resolution and queue access live here so
// subcommands stay declarative.
//
// Add behavior to the internal packages first, then surface it through a
// command or flag here.
package main
