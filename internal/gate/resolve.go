package gate

import (
	"bytes"
	"context"
	"fmt"

	"github.com/dshills/diffgate/internal/linediff"
	"github.com/dshills/diffgate/internal/logging"
)

// Revision names a version of the tree. Besides any expression the backend
// understands, two special values exist.
type Revision string

const (
	// Staged is the index: changes added for the next commit.
	Staged Revision = ":staged"
	// WorkTree is the files on disk.
	WorkTree Revision = ":worktree"
)

// ChangeKind classifies a changed path.
type ChangeKind int

const (
	Modified ChangeKind = iota
	Added
	Deleted
	Renamed
	Copied
	TypeChanged
)

func (k ChangeKind) String() string {
	switch k {
	case Modified:
		return "modified"
	case Added:
		return "added"
	case Deleted:
		return "deleted"
	case Renamed:
		return "renamed"
	case Copied:
		return "copied"
	case TypeChanged:
		return "type-changed"
	default:
		return "unknown"
	}
}

// FileStatus is one entry of a backend's changed-file listing.
type FileStatus struct {
	Path       string
	OldPath    string
	Kind       ChangeKind
	Similarity int
}

// Backend is the version-control surface the resolver depends on.
type Backend interface {
	// Root returns the working tree root, or ErrNotARepository.
	Root(ctx context.Context) (string, error)
	// Verify checks that rev resolves, returning *RevisionNotFoundError if not.
	Verify(ctx context.Context, rev Revision) error
	// ChangedFiles lists the files that differ between base and target.
	// Renames at or above renameThreshold percent similarity are paired.
	ChangedFiles(ctx context.Context, base, target Revision, renameThreshold int) ([]FileStatus, error)
	// ReadFile returns path's content at rev.
	ReadFile(ctx context.Context, rev Revision, path string) ([]byte, error)
}

// Scope selects how changed ranges are computed.
type Scope string

const (
	// ScopeDiff limits checks to changed lines.
	ScopeDiff Scope = "diff"
	// ScopeWholeFile checks every line of each changed file.
	ScopeWholeFile Scope = "whole-file"
)

// ParseScope validates a scope name.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeDiff, "":
		return ScopeDiff, nil
	case ScopeWholeFile:
		return ScopeWholeFile, nil
	default:
		return "", fmt.Errorf("unknown scope %q (want diff or whole-file)", s)
	}
}

// DefaultRenameThreshold is the similarity percentage at which an added and
// a deleted file are treated as a rename.
const DefaultRenameThreshold = 50

// binarySniffLen is how much of a file is inspected for NUL bytes.
const binarySniffLen = 8000

// Resolution is the output of a Resolver.
type Resolution struct {
	Changes []FileChange
	// Binary lists changed paths skipped because they are not text.
	Binary []string
}

// Resolver computes changed line ranges between two revisions.
type Resolver struct {
	Backend         Backend
	Scope           Scope
	RenameThreshold int
	// Paths, when non-empty, restricts resolution to these files.
	Paths []string
}

// Resolve returns one FileChange per text file that differs between base and
// target. Deleted files are omitted. A file whose content is unchanged gets
// an empty AddedRanges.
func (r *Resolver) Resolve(ctx context.Context, base, target Revision) (Resolution, error) {
	if _, err := r.Backend.Root(ctx); err != nil {
		return Resolution{}, err
	}
	for _, rev := range []Revision{base, target} {
		if err := r.Backend.Verify(ctx, rev); err != nil {
			return Resolution{}, err
		}
	}

	threshold := r.RenameThreshold
	if threshold <= 0 {
		threshold = DefaultRenameThreshold
	}
	statuses, err := r.Backend.ChangedFiles(ctx, base, target, threshold)
	if err != nil {
		return Resolution{}, fmt.Errorf("listing changed files: %w", err)
	}

	var filter map[string]bool
	if len(r.Paths) > 0 {
		filter = make(map[string]bool, len(r.Paths))
		for _, p := range r.Paths {
			filter[p] = true
		}
	}

	log := logging.From(ctx)
	var res Resolution
	for _, st := range statuses {
		if err := ctx.Err(); err != nil {
			return Resolution{}, err
		}
		if st.Kind == Deleted {
			continue
		}
		if filter != nil && !filter[st.Path] {
			continue
		}

		newData, err := r.Backend.ReadFile(ctx, target, st.Path)
		if err != nil {
			return Resolution{}, fmt.Errorf("reading %s at %s: %w", st.Path, target, err)
		}
		var oldData []byte
		oldPath := ""
		from := st.Path
		if st.Kind == Renamed || st.Kind == Copied {
			oldPath = st.OldPath
			from = st.OldPath
		}
		if st.Kind != Added {
			oldData, err = r.Backend.ReadFile(ctx, base, from)
			if err != nil {
				return Resolution{}, fmt.Errorf("reading %s at %s: %w", from, base, err)
			}
		}

		if IsBinary(newData) || IsBinary(oldData) {
			log.Debug("skipping binary file", "path", st.Path)
			res.Binary = append(res.Binary, st.Path)
			continue
		}

		ranges := ChangedRanges(string(oldData), string(newData))
		if r.Scope == ScopeWholeFile && len(ranges) > 0 {
			ranges = []LineRange{{Start: 1, End: len(linediff.Split(string(newData)))}}
		}
		log.Debug("resolved file", "path", st.Path, "kind", st.Kind.String(), "ranges", len(ranges))
		res.Changes = append(res.Changes, FileChange{
			Path:        st.Path,
			OldPath:     oldPath,
			AddedRanges: ranges,
		})
	}
	return res, nil
}

// ChangedRanges returns the line ranges of newText that were inserted or
// modified relative to oldText, numbered in newText.
func ChangedRanges(oldText, newText string) []LineRange {
	var ranges []LineRange
	for _, b := range linediff.Blocks(linediff.Split(oldText), linediff.Split(newText)) {
		if b.Deleted() {
			continue
		}
		ranges = append(ranges, LineRange{Start: b.NewStart + 1, End: b.NewEnd})
	}
	return normalizeRanges(ranges)
}

// IsBinary reports whether data looks like a binary file, using git's
// heuristic of a NUL byte near the start.
func IsBinary(data []byte) bool {
	return bytes.IndexByte(data[:min(len(data), binarySniffLen)], 0) >= 0
}
