package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"herald/internal/preflight"
)

// level is the severity tag shown in front of a report line.
type level int

const (
	levelInfo level = iota
	levelOK
	levelWarn
	levelError
)

var levelStyles = [...]struct {
	tag   string
	color text.Color
}{
	levelInfo:  {"INFO", text.FgBlue},
	levelOK:    {"OK", text.FgGreen},
	levelWarn:  {"WARN", text.FgYellow},
	levelError: {"ERROR", text.FgRed},
}

const reportLabelWidth = 22

// statusView collects the sectioned report printed by status and doctor.
type statusView struct {
	colorize bool
	lines    []string
}

func newStatusView(colorize bool) *statusView {
	return &statusView{colorize: colorize}
}

func (v *statusView) paint(color text.Color, s string) string {
	if !v.colorize {
		return s
	}
	return color.Sprint(s)
}

// section starts a titled block, separated from the previous one by a blank line.
func (v *statusView) section(title string) {
	if len(v.lines) > 0 {
		v.lines = append(v.lines, "")
	}
	header := "== " + strings.TrimSpace(title) + " =="
	v.lines = append(v.lines,
		v.paint(text.FgBlue, header),
		v.paint(text.FgBlue, strings.Repeat("-", len(header))),
	)
}

func (v *statusView) add(label string, lvl level, message string) {
	style := levelStyles[lvl]
	line := fmt.Sprintf("  %-*s [%s]", reportLabelWidth, label+":", style.tag)
	if message != "" {
		line += " " + message
	}
	v.lines = append(v.lines, v.paint(style.color, line))
}

// checks adds preflight results. A failed critical check is an error and
// any other failure a warning.
func (v *statusView) checks(results []preflight.Result) {
	for _, r := range results {
		lvl := levelOK
		switch {
		case !r.Passed && r.Critical:
			lvl = levelError
		case !r.Passed:
			lvl = levelWarn
		}
		v.add(r.Name, lvl, r.Detail)
	}
}

func (v *statusView) writeTo(w io.Writer) error {
	for _, line := range v.lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
