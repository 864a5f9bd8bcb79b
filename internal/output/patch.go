package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/dshills/diffgate/internal/gate"
	"github.com/dshills/diffgate/internal/linediff"
)

const patchContext = 3

// PatchWriter outputs the in-scope edits as a unified diff that `git apply`
// accepts. With ReadFile set, hunks carry context lines; without it every
// edit becomes a zero-context hunk (apply with --unidiff-zero).
type PatchWriter struct {
	ReadFile func(path string) ([]byte, error)
}

func (p *PatchWriter) Write(w io.Writer, report *gate.Report) error {
	ew := &errWriter{w: w}
	paths, byPath := report.EditsByPath()
	for _, path := range paths {
		edits := byPath[path]
		ew.printf("diff --git a/%s b/%s\n", path, path)
		if body, ok := p.withContext(path, edits); ok {
			ew.printf("%s", body)
			continue
		}
		ew.printf("--- a/%s\n+++ b/%s\n", path, path)
		ew.printf("%s", zeroContextHunks(edits))
	}
	return ew.err
}

// withContext renders a context diff from the current file content. It
// reports false when the content is unavailable or unsuitable.
func (p *PatchWriter) withContext(path string, edits []gate.ScopedEdit) (string, bool) {
	if p.ReadFile == nil {
		return "", false
	}
	data, err := p.ReadFile(path)
	if err != nil {
		return "", false
	}
	orig := string(data)
	fixed, err := gate.ApplyText(orig, edits)
	if err != nil {
		return "", false
	}
	if !endsWithNewline(orig) || !endsWithNewline(fixed) {
		return "", false
	}
	diff, err := linediff.Unified(linediff.Split(orig), linediff.Split(fixed), "a/"+path, "b/"+path, patchContext)
	if err != nil || diff == "" {
		return "", false
	}
	return diff, true
}

func endsWithNewline(s string) bool {
	return s == "" || strings.HasSuffix(s, "\n")
}

func zeroContextHunks(edits []gate.ScopedEdit) string {
	var b strings.Builder
	delta := 0
	for _, e := range edits {
		n, m := len(e.OriginalLines), len(e.ReplacementLines)
		newStart := e.Range.Start + delta
		if m == 0 {
			newStart--
		}
		fmt.Fprintf(&b, "@@ -%d,%d +%d,%d @@\n", e.Range.Start, n, newStart, m)
		for _, line := range e.OriginalLines {
			writePatchLine(&b, '-', line)
		}
		for _, line := range e.ReplacementLines {
			writePatchLine(&b, '+', line)
		}
		delta += m - n
	}
	return b.String()
}

func writePatchLine(b *strings.Builder, op byte, line string) {
	b.WriteByte(op)
	b.WriteString(line)
	if !strings.HasSuffix(line, "\n") {
		b.WriteString("\n\\ No newline at end of file\n")
	}
}
