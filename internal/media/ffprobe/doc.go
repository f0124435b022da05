// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Inspect runs the binary directly. Callers that route commands through their
// own runner use Args and Parse instead. Helper methods on Result expose the
// first video stream's dimensions and codec along with container duration and
// size.
package ffprobe
