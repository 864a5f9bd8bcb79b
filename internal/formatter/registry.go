package formatter

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/dshills/diffgate/internal/gate"
)

// Kinds of formatter that can be configured.
const (
	KindClangFormat = "clang-format"
	KindBuildifier  = "buildifier"
	KindCommand     = "command"
)

// ClangFormatPatterns are the file types clang-format handles by default.
var ClangFormatPatterns = []string{
	"**/*.c", "**/*.h", "**/*.cc", "**/*.cpp", "**/*.cxx", "**/*.c++",
	"**/*.hh", "**/*.hpp", "**/*.hxx", "**/*.inc", "**/*.cu", "**/*.cuh",
	"**/*.m", "**/*.mm", "**/*.proto", "**/*.java", "**/*.js", "**/*.ts",
}

// BuildifierPatterns are the Bazel files buildifier handles by default.
var BuildifierPatterns = []string{
	"**/BUILD", "**/BUILD.bazel", "**/*.BUILD", "**/WORKSPACE",
	"**/WORKSPACE.bazel", "**/*.bzl", "**/MODULE.bazel",
}

// Spec describes one configured formatter.
type Spec struct {
	Name     string
	Kind     string
	Patterns []string
	// Binary overrides the executable. For KindCommand it is required.
	Binary  string
	Args    []string
	Style   string
	Timeout time.Duration
}

// New builds the formatter a Spec describes.
func New(s Spec) (gate.Formatter, error) {
	switch s.Kind {
	case KindClangFormat:
		return NewClangFormat(s.Binary, s.Style, s.Timeout), nil
	case KindBuildifier:
		return NewBuildifier(s.Binary, s.Timeout), nil
	case KindCommand, "":
		if s.Binary == "" {
			return nil, fmt.Errorf("formatter %q: command is required", s.Name)
		}
		return NewCommand(s.Name, s.Binary, s.Args, s.Timeout), nil
	default:
		return nil, fmt.Errorf("formatter %q: unknown kind %q", s.Name, s.Kind)
	}
}

// DefaultPatterns returns the built-in patterns for a kind.
func DefaultPatterns(kind string) []string {
	switch kind {
	case KindClangFormat:
		return ClangFormatPatterns
	case KindBuildifier:
		return BuildifierPatterns
	}
	return nil
}

type entry struct {
	patterns []string
	f        gate.Formatter
}

// Registry maps file paths to formatters by glob. The first matching entry
// wins.
type Registry struct {
	entries []entry
	exclude []string
}

// Add maps patterns to f.
func (r *Registry) Add(f gate.Formatter, patterns ...string) {
	r.entries = append(r.entries, entry{patterns: patterns, f: f})
}

// Exclude stops paths matching any of patterns from being formatted.
func (r *Registry) Exclude(patterns ...string) {
	r.exclude = append(r.exclude, patterns...)
}

// For returns the formatter for p, or nil if none applies.
func (r *Registry) For(p string) gate.Formatter {
	if MatchesAny(p, r.exclude) {
		return nil
	}
	for _, e := range r.entries {
		if MatchesAny(p, e.patterns) {
			return e.f
		}
	}
	return nil
}

// Len returns the number of registered formatters.
func (r *Registry) Len() int { return len(r.entries) }

// MatchesAny returns true if the slash-separated path matches any of the
// given glob patterns. A leading "**/" matches any directory prefix and a
// trailing "/**" matches everything below a directory.
func MatchesAny(p string, patterns []string) bool {
	for _, pattern := range patterns {
		if matchGlob(pattern, p) {
			return true
		}
	}
	return false
}

func matchGlob(pattern, p string) bool {
	if ok, err := path.Match(pattern, p); err == nil && ok {
		return true
	}
	if dir, ok := strings.CutSuffix(pattern, "/**"); ok {
		if strings.HasPrefix(dir, "**/") {
			dir = strings.TrimPrefix(dir, "**/")
			for _, seg := range dirPrefixes(p) {
				if ok, _ := path.Match(dir, path.Base(seg)); ok {
					return true
				}
			}
			return false
		}
		for _, seg := range dirPrefixes(p) {
			if ok, _ := path.Match(dir, seg); ok {
				return true
			}
		}
		return false
	}
	if clean, ok := strings.CutPrefix(pattern, "**/"); ok {
		if ok, _ := path.Match(clean, path.Base(p)); ok {
			return true
		}
		for i := 0; i < len(p); i++ {
			if p[i] == '/' {
				if ok, _ := path.Match(clean, p[i+1:]); ok {
					return true
				}
			}
		}
		if ok, _ := path.Match(clean, p); ok {
			return true
		}
	}
	return false
}

// dirPrefixes returns every directory prefix of p: "a", "a/b" for "a/b/c.go".
func dirPrefixes(p string) []string {
	var out []string
	for i := 0; i < len(p); i++ {
		if p[i] == '/' {
			out = append(out, p[:i])
		}
	}
	return out
}
