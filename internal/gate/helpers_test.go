package gate

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"sync"
)

// memBackend serves revisions from in-memory file maps.
type memBackend struct {
	root    string
	notRepo bool
	revs    map[Revision]map[string]string
	// modeOnly lists paths reported as modified even when content matches.
	modeOnly []string
	// renames maps new path to old path.
	renames map[string]string
}

func (m *memBackend) Root(ctx context.Context) (string, error) {
	if m.notRepo {
		return "", ErrNotARepository
	}
	return m.root, nil
}

func (m *memBackend) Verify(ctx context.Context, rev Revision) error {
	if _, ok := m.revs[rev]; !ok {
		return &RevisionNotFoundError{Revision: string(rev)}
	}
	return nil
}

func (m *memBackend) ChangedFiles(ctx context.Context, base, target Revision, threshold int) ([]FileStatus, error) {
	b, t := m.revs[base], m.revs[target]
	var out []FileStatus
	renamedFrom := make(map[string]bool)
	for newPath, oldPath := range m.renames {
		renamedFrom[oldPath] = true
		out = append(out, FileStatus{Path: newPath, OldPath: oldPath, Kind: Renamed, Similarity: 90})
	}
	for p, content := range t {
		if _, ok := m.renames[p]; ok {
			continue
		}
		old, ok := b[p]
		switch {
		case !ok:
			out = append(out, FileStatus{Path: p, Kind: Added})
		case old != content || contains(m.modeOnly, p):
			out = append(out, FileStatus{Path: p, Kind: Modified})
		}
	}
	for p := range b {
		if _, ok := t[p]; !ok && !renamedFrom[p] {
			out = append(out, FileStatus{Path: p, Kind: Deleted})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (m *memBackend) ReadFile(ctx context.Context, rev Revision, path string) ([]byte, error) {
	content, ok := m.revs[rev][path]
	if !ok {
		return nil, fmt.Errorf("%s at %s: %w", path, rev, fs.ErrNotExist)
	}
	return []byte(content), nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// funcFormatter formats with a Go function and records every call.
type funcFormatter struct {
	name string
	fn   func(path, content string) (string, error)

	mu    sync.Mutex
	calls []string
}

func (f *funcFormatter) Name() string { return f.name }

func (f *funcFormatter) Format(ctx context.Context, path, content string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, path)
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return f.fn(path, content)
}

func (f *funcFormatter) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]string(nil), f.calls...)
	sort.Strings(out)
	return out
}

// spaceEquals is a line-local formatter: it puts exactly one space on each
// side of every '='.
func spaceEquals(path, content string) (string, error) {
	lines := strings.SplitAfter(content, "\n")
	for i, line := range lines {
		if !strings.Contains(line, "=") {
			continue
		}
		parts := strings.Split(line, "=")
		for j := range parts {
			if j > 0 {
				parts[j] = strings.TrimLeft(parts[j], " ")
			}
			if j < len(parts)-1 {
				parts[j] = strings.TrimRight(parts[j], " ")
			}
		}
		lines[i] = strings.Join(parts, " = ")
	}
	return strings.Join(lines, ""), nil
}

// numbered builds an n-line file where overrides replace specific 1-based
// lines.
func numbered(n int, overrides map[int]string) string {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		if s, ok := overrides[i]; ok {
			b.WriteString(s)
		} else {
			fmt.Fprintf(&b, "// line %d", i)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// blankAroundDecls puts a blank line before and after every line starting
// with "int ", except at the start or end of the file.
func blankAroundDecls(path, content string) (string, error) {
	lines := strings.SplitAfter(content, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	var out []string
	for i, line := range lines {
		decl := strings.HasPrefix(line, "int ")
		if decl && len(out) > 0 && out[len(out)-1] != "\n" {
			out = append(out, "\n")
		}
		out = append(out, line)
		if decl && i+1 < len(lines) && lines[i+1] != "\n" {
			out = append(out, "\n")
		}
	}
	return strings.Join(out, ""), nil
}

// joinContinuations joins a line ending in ',' with the line after it.
func joinContinuations(path, content string) (string, error) {
	lines := strings.SplitAfter(content, "\n")
	var b strings.Builder
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		for strings.HasSuffix(line, ",\n") && i+1 < len(lines) && lines[i+1] != "" {
			i++
			line = strings.TrimSuffix(line, "\n") + " " + strings.TrimLeft(lines[i], " ")
		}
		b.WriteString(line)
	}
	return b.String(), nil
}

// squeezeBlank collapses runs of blank lines into one.
func squeezeBlank(path, content string) (string, error) {
	lines := strings.SplitAfter(content, "\n")
	var b strings.Builder
	prevBlank := false
	for _, line := range lines {
		blank := line == "\n"
		if blank && prevBlank {
			continue
		}
		prevBlank = blank
		b.WriteString(line)
	}
	return b.String(), nil
}
