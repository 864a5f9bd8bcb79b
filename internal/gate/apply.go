package gate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/natefinch/atomic"

	"github.com/dshills/diffgate/internal/linediff"
	"github.com/dshills/diffgate/internal/logging"
)

// ApplyText applies edits for a single file to text. Edits must be disjoint;
// each edit's OriginalLines must match text at its range.
func ApplyText(text string, edits []ScopedEdit) (string, error) {
	lines := linediff.Split(text)
	sorted := append([]ScopedEdit(nil), edits...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Range.Start > sorted[j].Range.Start })

	prevStart := len(lines) + 1
	for _, e := range sorted {
		start, end := e.Range.Start-1, e.Range.End
		if start < 0 || end > len(lines) || end >= prevStart {
			return "", &StaleEditError{Path: e.Path, Range: e.Range}
		}
		if !slices.Equal(lines[start:end], e.OriginalLines) {
			return "", &StaleEditError{Path: e.Path, Range: e.Range}
		}
		tail := append([]string(nil), lines[end:]...)
		lines = append(append(lines[:start], e.ReplacementLines...), tail...)
		prevStart = e.Range.Start
	}
	return strings.Join(lines, ""), nil
}

// Apply writes the report's edits into the files under root. Each file is
// checked against the text the edits were computed from and replaced
// atomically, keeping its permissions. It returns the paths it rewrote.
func Apply(ctx context.Context, root string, report *Report) ([]string, error) {
	log := logging.From(ctx)
	paths, byPath := report.EditsByPath()

	var written []string
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return written, cancelled(ctx)
		}
		full := filepath.Join(root, filepath.FromSlash(p))
		info, err := os.Stat(full)
		if err != nil {
			return written, fmt.Errorf("stat %s: %w", p, err)
		}
		data, err := os.ReadFile(full)
		if err != nil {
			return written, fmt.Errorf("reading %s: %w", p, err)
		}
		updated, err := ApplyText(string(data), byPath[p])
		if err != nil {
			return written, err
		}
		if err := atomic.WriteFile(full, strings.NewReader(updated)); err != nil {
			return written, fmt.Errorf("writing %s: %w", p, err)
		}
		if err := os.Chmod(full, info.Mode().Perm()); err != nil {
			return written, fmt.Errorf("restoring mode of %s: %w", p, err)
		}
		log.Info("applied edits", "path", p, "edits", len(byPath[p]))
		written = append(written, p)
	}
	return written, nil
}
