package output

import (
	"io"
	"path"
	"strings"

	"github.com/dshills/diffgate/internal/gate"
)

// MarkdownWriter outputs a PR-comment-friendly markdown report.
type MarkdownWriter struct{}

func (m *MarkdownWriter) Write(w io.Writer, report *gate.Report) error {
	ew := &errWriter{w: w}
	paths, byPath := report.EditsByPath()

	ew.printf("## diffgate formatting check\n\n")
	ew.printf("| Files checked | Edits | Files with edits | Formatter failures |\n")
	ew.printf("|---------------|-------|------------------|--------------------|\n")
	ew.printf("| %d | %d | %d | %d |\n\n", report.FilesChecked, len(report.Edits), len(paths), len(report.Failures))

	if report.Passed && len(report.Failures) == 0 {
		ew.println("Changed lines are formatted. :white_check_mark:")
		return ew.err
	}

	for _, p := range paths {
		edits := byPath[p]
		ew.printf("<details>\n<summary><code>%s</code> (%d edit(s))</summary>\n\n", p, len(edits))
		for _, e := range edits {
			ew.printf("**`%s:%s`**\n\n", e.Path, e.Range)
			ew.printf("```diff\n")
			for _, line := range e.OriginalLines {
				ew.printf("-%s\n", strings.TrimRight(line, "\r\n"))
			}
			for _, line := range e.ReplacementLines {
				ew.printf("+%s\n", strings.TrimRight(line, "\r\n"))
			}
			ew.printf("```\n\n")
		}
		ew.printf("</details>\n\n")
	}

	if len(report.Failures) > 0 {
		ew.printf("### Formatter failures\n\n")
		for _, f := range report.Failures {
			lang := inferLang(f.Path)
			ew.printf("- `%s` (%s)\n\n  ```%s\n  %s\n  ```\n\n", f.Path, f.Formatter, lang,
				strings.ReplaceAll(strings.TrimSpace(f.Message), "\n", "\n  "))
		}
	}

	ew.printf("*Checked in %dms. Run `diffgate fix` locally to apply.*\n", report.Timing.TotalMs)
	return ew.err
}

// inferLang picks a fence language for formatter diagnostics.
func inferLang(p string) string {
	switch path.Ext(p) {
	case ".c", ".h":
		return "c"
	case ".cc", ".cpp", ".cxx", ".hh", ".hpp", ".hxx":
		return "cpp"
	case ".java":
		return "java"
	case ".js":
		return "javascript"
	case ".ts":
		return "typescript"
	case ".proto":
		return "protobuf"
	case ".bzl":
		return "starlark"
	}
	if b := path.Base(p); strings.HasPrefix(b, "BUILD") || strings.HasPrefix(b, "WORKSPACE") {
		return "starlark"
	}
	return ""
}
