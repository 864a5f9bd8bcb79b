package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/dshills/diffgate/internal/gate"
)

// TextWriter outputs a human-readable text report: every edit as file,
// line range, then the lines before and after formatting.
type TextWriter struct {
	Color bool
}

type palette struct {
	header, removed, added, warn *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		header:  color.New(color.Bold),
		removed: color.New(color.FgRed),
		added:   color.New(color.FgGreen),
		warn:    color.New(color.FgYellow),
	}
	for _, c := range []*color.Color{p.header, p.removed, p.added, p.warn} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func (t *TextWriter) Write(w io.Writer, report *gate.Report) error {
	ew := &errWriter{w: w}
	p := newPalette(t.Color)

	paths, byPath := report.EditsByPath()
	ew.printf("diffgate formatting check: %s..%s\n", report.Base, report.Target)
	if report.Repo.Root != "" {
		ew.printf("Repository: %s\n", report.Repo.Root)
	}
	ew.println(strings.Repeat("─", 60))
	ew.printf("Files checked: %d | Edits: %d in %d file(s)", report.FilesChecked, len(report.Edits), len(paths))
	if len(report.Failures) > 0 {
		ew.printf(" | Formatter failures: %d", len(report.Failures))
	}
	ew.println("")
	ew.println(strings.Repeat("─", 60))

	for _, path := range paths {
		for _, e := range byPath[path] {
			ew.printf("\n%s\n", p.header.Sprintf("%s:%s", e.Path, e.Range))
			for _, line := range e.OriginalLines {
				ew.printf("  %s\n", p.removed.Sprint("- "+visible(line)))
			}
			for _, line := range e.ReplacementLines {
				ew.printf("  %s\n", p.added.Sprint("+ "+visible(line)))
			}
		}
	}

	if len(report.Failures) > 0 {
		ew.printf("\n%s\n", p.warn.Sprint("Formatter failures:"))
		for _, f := range report.Failures {
			ew.printf("  %s (%s): %s\n", f.Path, f.Formatter, firstLine(f.Message))
		}
	}
	if len(report.Skipped) > 0 {
		ew.println("\nSkipped:")
		for _, s := range report.Skipped {
			ew.printf("  %s (%s)\n", s.Path, s.Reason)
		}
	}

	if report.Passed {
		ew.println("\nNo formatting issues on changed lines.")
	} else {
		ew.println("\nRun `diffgate fix` to apply these edits.")
	}
	ew.printf("%s\n", strings.Repeat("─", 60))
	ew.printf("Completed in %dms (resolve: %dms, format: %dms)\n",
		report.Timing.TotalMs, report.Timing.ResolveMs, report.Timing.FormatMs)

	return ew.err
}

// visible strips the line terminator and marks trailing whitespace so it
// shows up in a terminal.
func visible(line string) string {
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	trimmed := strings.TrimRight(line, " \t")
	if n := len(line) - len(trimmed); n > 0 {
		return trimmed + strings.Repeat("·", n)
	}
	return line
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}

// Summary is a one-line description of a report, for logs and hooks.
func Summary(report *gate.Report) string {
	if report.Passed {
		return fmt.Sprintf("%d file(s) checked, changed lines are formatted", report.FilesChecked)
	}
	paths, _ := report.EditsByPath()
	return fmt.Sprintf("%d formatting edit(s) in %d file(s)", len(report.Edits), len(paths))
}
