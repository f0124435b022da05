// Package logs reads the daemon's log file for the CLI.
//
// Tail prints the last lines of herald.log and can keep following it. The
// daemon points herald.log at a new file on every run, so a follower reopens
// the path on each poll and starts over when it resolves to a different file.
package logs
