package marker

import (
	"bufio"
	"bytes"
	"strings"

	"github.com/dshills/diffgate/internal/gate"
)

// DefaultPattern blocks a commit until the marked code is cleaned up.
const DefaultPattern = "DO NOT SUBMIT"

// Hit is one line containing a marker.
type Hit struct {
	Path    string `json:"path"`
	Line    int    `json:"line"`
	Pattern string `json:"pattern"`
	Text    string `json:"text"`
}

// Scanner finds literal marker strings in file content.
type Scanner struct {
	Patterns []string
}

// New returns a Scanner for patterns, or for DefaultPattern when none are
// given. Empty patterns are ignored.
func New(patterns ...string) *Scanner {
	var ps []string
	for _, p := range patterns {
		if p = strings.TrimSpace(p); p != "" {
			ps = append(ps, p)
		}
	}
	if len(ps) == 0 {
		ps = []string{DefaultPattern}
	}
	return &Scanner{Patterns: ps}
}

// Scan returns every line of content containing one of the patterns, in line
// order. A line is reported once, for the first pattern it matches. Binary
// content yields no hits.
func (s *Scanner) Scan(path string, content []byte) []Hit {
	if gate.IsBinary(content) {
		return nil
	}
	var hits []Hit
	sc := bufio.NewScanner(bytes.NewReader(content))
	sc.Buffer(make([]byte, 0, 64*1024), len(content)+1)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		for _, p := range s.Patterns {
			if strings.Contains(text, p) {
				hits = append(hits, Hit{
					Path:    path,
					Line:    line,
					Pattern: p,
					Text:    strings.TrimRight(text, "\r"),
				})
				break
			}
		}
	}
	return hits
}

// ScanScoped is Scan restricted to the change's AddedRanges.
func (s *Scanner) ScanScoped(change gate.FileChange, content []byte) []Hit {
	var hits []Hit
	for _, h := range s.Scan(change.Path, content) {
		if gate.IntersectsAny(gate.LineRange{Start: h.Line, End: h.Line}, change.AddedRanges) {
			hits = append(hits, h)
		}
	}
	return hits
}
