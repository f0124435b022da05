package preflight

import (
	"context"
	"fmt"
	"path/filepath"

	"herald/internal/config"
	"herald/internal/deps"
)

// minFreeBytes is the free space required on the rendition volume.
const minFreeBytes uint64 = 512 << 20

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Detail   string `json:"detail"`
	Critical bool   `json:"critical,omitempty"`
}

// RunAll executes the local checks for the given config. Nothing here
// touches the network.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		critical(CheckDirectoryAccess("State directory", cfg.Paths.StateDir)),
		critical(CheckDirectoryAccess("Queue directory", filepath.Dir(cfg.Paths.QueueFile))),
		CheckDirectoryAccess("Asset directory", cfg.Paths.AssetDir),
		CheckDirectoryAccess("Rendition directory", cfg.Paths.AdaptedDir),
		CheckDiskSpace("Rendition volume", cfg.Paths.AdaptedDir, minFreeBytes),
	}

	for _, status := range deps.CheckMediaTools(ctx, cfg.Adaptation.FFmpegBinary, cfg.Adaptation.FFprobeBinary) {
		results = append(results, fromDependency(status))
	}
	results = append(results, CheckCredentials(cfg)...)
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}

// FirstCritical returns the first failed critical check, if any.
func FirstCritical(results []Result) (Result, bool) {
	for _, r := range results {
		if r.Critical && !r.Passed {
			return r, true
		}
	}
	return Result{}, false
}

// Err summarizes a critical failure as an error.
func (r Result) Err() error {
	return fmt.Errorf("preflight %s: %s", r.Name, r.Detail)
}

func critical(r Result) Result {
	r.Critical = true
	return r
}

func fromDependency(status deps.Status) Result {
	detail := status.Command
	if status.Detail != "" {
		detail = status.Detail
	}
	return Result{Name: status.Name, Passed: status.Available, Detail: detail}
}
