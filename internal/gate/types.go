package gate

import (
	"fmt"
	"sort"
)

// LineRange is an inclusive, 1-indexed span of lines.
type LineRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of lines covered by r.
func (r LineRange) Len() int {
	return r.End - r.Start + 1
}

// Intersects reports whether r and o share at least one line.
func (r LineRange) Intersects(o LineRange) bool {
	return max(r.Start, o.Start) <= min(r.End, o.End)
}

func (r LineRange) String() string {
	if r.Start == r.End {
		return fmt.Sprintf("%d", r.Start)
	}
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

// IntersectsAny reports whether r intersects any of ranges.
func IntersectsAny(r LineRange, ranges []LineRange) bool {
	// ranges are sorted, so stop once they start past r.
	for _, o := range ranges {
		if o.Start > r.End {
			return false
		}
		if r.Intersects(o) {
			return true
		}
	}
	return false
}

// normalizeRanges sorts ranges and merges overlapping ones.
func normalizeRanges(ranges []LineRange) []LineRange {
	if len(ranges) == 0 {
		return nil
	}
	sorted := append([]LineRange(nil), ranges...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })
	out := []LineRange{sorted[0]}
	for _, r := range sorted[1:] {
		last := &out[len(out)-1]
		if r.Start <= last.End {
			last.End = max(last.End, r.End)
			continue
		}
		out = append(out, r)
	}
	return out
}

// FileChange describes one file modified between two revisions.
type FileChange struct {
	Path string `json:"path"`
	// OldPath is the base-side path for renames, empty otherwise.
	OldPath     string      `json:"oldPath,omitempty"`
	AddedRanges []LineRange `json:"addedRanges"`
}

// FormatResult is a formatter's output for one file.
type FormatResult struct {
	Path          string
	OriginalText  string
	FormattedText string
}

// ScopedEdit is one minimal correction confined to changed lines.
// Lines keep their trailing newline so edits apply byte for byte.
type ScopedEdit struct {
	Path             string    `json:"path"`
	Range            LineRange `json:"range"`
	OriginalLines    []string  `json:"originalLines"`
	ReplacementLines []string  `json:"replacementLines"`
}

// FileFailure records a formatter crash on a single file.
type FileFailure struct {
	Path      string `json:"path"`
	Formatter string `json:"formatter"`
	Message   string `json:"message"`
}

// SkippedFile is a changed file the gate did not format.
type SkippedFile struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// RepoInfo contains repository metadata.
type RepoInfo struct {
	Root   string `json:"root"`
	Head   string `json:"head,omitempty"`
	Branch string `json:"branch,omitempty"`
}

// Timing contains performance metrics.
type Timing struct {
	ResolveMs int64 `json:"resolveMs"`
	FormatMs  int64 `json:"formatMs"`
	TotalMs   int64 `json:"totalMs"`
}

// Report is the outcome of a gate run.
type Report struct {
	Tool         string        `json:"tool"`
	Version      string        `json:"version"`
	RunID        string        `json:"runId"`
	Repo         RepoInfo      `json:"repo"`
	Base         string        `json:"base"`
	Target       string        `json:"target"`
	Passed       bool          `json:"passed"`
	FilesChecked int           `json:"filesChecked"`
	Edits        []ScopedEdit  `json:"edits"`
	Failures     []FileFailure `json:"failures,omitempty"`
	Skipped      []SkippedFile `json:"skipped,omitempty"`
	Timing       Timing        `json:"timing"`
}

// EditsByPath groups the report's edits by file, keeping their order.
func (r *Report) EditsByPath() (paths []string, byPath map[string][]ScopedEdit) {
	byPath = make(map[string][]ScopedEdit)
	for _, e := range r.Edits {
		if _, ok := byPath[e.Path]; !ok {
			paths = append(paths, e.Path)
		}
		byPath[e.Path] = append(byPath[e.Path], e)
	}
	return paths, byPath
}

// SortEdits orders edits by path, then by starting line.
func SortEdits(edits []ScopedEdit) {
	sort.SliceStable(edits, func(i, j int) bool {
		if edits[i].Path != edits[j].Path {
			return edits[i].Path < edits[j].Path
		}
		return edits[i].Range.Start < edits[j].Range.Start
	})
}
