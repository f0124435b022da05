package deps

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"
)

const versionTimeout = 5 * time.Second

// MediaTools lists the encoder binaries the adaptation engine shells out to.
// Blank names fall back to resolving ffmpeg and ffprobe from PATH.
func MediaTools(ffmpegBinary, ffprobeBinary string) []Requirement {
	if strings.TrimSpace(ffmpegBinary) == "" {
		ffmpegBinary = "ffmpeg"
	}
	if strings.TrimSpace(ffprobeBinary) == "" {
		ffprobeBinary = "ffprobe"
	}
	return []Requirement{
		{
			Name:        "FFmpeg",
			Command:     ffmpegBinary,
			Description: "Required for video renditions",
		},
		{
			Name:        "FFprobe",
			Command:     ffprobeBinary,
			Description: "Required for video inspection",
		},
	}
}

// CheckMediaTools resolves the media tools and records the first line of
// each tool's -version output in Detail.
func CheckMediaTools(ctx context.Context, ffmpegBinary, ffprobeBinary string) []Status {
	statuses := CheckBinaries(MediaTools(ffmpegBinary, ffprobeBinary))
	for i := range statuses {
		if !statuses[i].Available {
			continue
		}
		if version := toolVersion(ctx, statuses[i].Command); version != "" {
			statuses[i].Detail = version
		}
	}
	return statuses
}

func toolVersion(ctx context.Context, command string) string {
	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, command, "-version").Output()
	if err != nil {
		return ""
	}
	scanner := bufio.NewScanner(bytes.NewReader(out))
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text())
	}
	return ""
}
