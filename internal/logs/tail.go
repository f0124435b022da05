package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

const (
	defaultPoll  = 250 * time.Millisecond
	maxLineBytes = 1 << 20
)

// Options controls Tail.
type Options struct {
	// Lines is how many existing lines to print first. Zero prints none.
	Lines int
	// Follow keeps reading new lines until ctx ends.
	Follow bool
	// Poll is the follow interval.
	Poll time.Duration
	// Match keeps only lines containing every substring.
	Match []string
}

func (o Options) matches(line string) bool {
	for _, m := range o.Match {
		if m != "" && !strings.Contains(line, m) {
			return false
		}
	}
	return true
}

// Tail emits matching lines from path. A missing file is not an error when
// following; the file may appear once the daemon starts. Tail returns nil
// when ctx ends while following.
func Tail(ctx context.Context, path string, opts Options, emit func(string) error) error {
	if opts.Poll <= 0 {
		opts.Poll = defaultPoll
	}

	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if !opts.Follow {
			return fmt.Errorf("log file %s not found; has the daemon run yet?", path)
		}
	case err != nil:
		return fmt.Errorf("stat log file: %w", err)
	case info.IsDir():
		return fmt.Errorf("log path %q is a directory", path)
	}

	var offset int64
	if info != nil {
		lines, end, err := lastLines(path, opts.Lines, opts)
		if err != nil {
			return err
		}
		for _, line := range lines {
			if err := emit(line); err != nil {
				return err
			}
		}
		offset = end
	}
	if !opts.Follow {
		return nil
	}

	ticker := time.NewTicker(opts.Poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		current, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info == nil || !os.SameFile(info, current) || current.Size() < offset {
			offset = 0
		}
		info = current

		lines, end, err := readFrom(path, offset)
		if err != nil {
			return err
		}
		offset = end
		for _, line := range lines {
			if !opts.matches(line) {
				continue
			}
			if err := emit(line); err != nil {
				return err
			}
		}
	}
}

// lastLines returns up to limit matching lines from the end of path and the
// offset just past the last complete line.
func lastLines(path string, limit int, opts Options) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if limit <= 0 {
		end, err := file.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, 0, fmt.Errorf("seek log file: %w", err)
		}
		return nil, end, nil
	}

	ring := make([]string, 0, limit)
	end, err := scanLines(file, 0, func(line string) {
		if !opts.matches(line) {
			return
		}
		if len(ring) == limit {
			ring = append(ring[:0], ring[1:]...)
		}
		ring = append(ring, line)
	})
	if err != nil {
		return nil, 0, err
	}
	return ring, end, nil
}

func readFrom(path string, offset int64) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, offset, nil
		}
		return nil, offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, fmt.Errorf("seek log file: %w", err)
	}
	var lines []string
	end, err := scanLines(file, offset, func(line string) { lines = append(lines, line) })
	if err != nil {
		return nil, offset, err
	}
	return lines, end, nil
}

// scanLines feeds complete lines to fn and returns the offset after the last
// one. A trailing partial line is left for the next read.
func scanLines(r io.Reader, start int64, fn func(string)) (int64, error) {
	reader := bufio.NewReaderSize(r, 64<<10)
	offset := start
	for {
		line, err := reader.ReadString('\n')
		if err == io.EOF {
			return offset, nil
		}
		if err != nil {
			return offset, fmt.Errorf("read log file: %w", err)
		}
		offset += int64(len(line))
		if len(line) > maxLineBytes {
			line = line[:maxLineBytes]
		}
		fn(strings.TrimRight(line, "\r\n"))
	}
}
