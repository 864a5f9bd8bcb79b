package gitctx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/dshills/diffgate/internal/gate"
)

// Repo reads revisions of a git working tree by running the git CLI.
type Repo struct {
	// Dir is any directory inside the working tree. Empty means the
	// current directory.
	Dir string
	// Untracked adds untracked, non-ignored files as additions when the
	// target is the working tree.
	Untracked bool

	mu   sync.Mutex
	root string
}

// New returns a Repo rooted at dir.
func New(dir string) *Repo {
	return &Repo{Dir: dir}
}

// RepoMeta contains git repository metadata.
type RepoMeta struct {
	Root   string
	Head   string
	Branch string
}

// Meta collects repository metadata from git.
func (r *Repo) Meta(ctx context.Context) (RepoMeta, error) {
	root, err := r.Root(ctx)
	if err != nil {
		return RepoMeta{}, err
	}
	head, err := r.gitOutput(ctx, "rev-parse", "HEAD")
	if err != nil {
		head = "" // new repo with no commits
	}
	branch, err := r.gitOutput(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		branch = ""
	}
	return RepoMeta{
		Root:   root,
		Head:   strings.TrimSpace(head),
		Branch: strings.TrimSpace(branch),
	}, nil
}

// Root returns the top-level directory of the working tree.
func (r *Repo) Root(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.root != "" {
		return r.root, nil
	}
	out, err := r.gitOutput(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %v", gate.ErrNotARepository, err)
	}
	r.root = strings.TrimSpace(out)
	return r.root, nil
}

// HooksDir returns the directory git runs hooks from.
func (r *Repo) HooksDir(ctx context.Context) (string, error) {
	if _, err := r.Root(ctx); err != nil {
		return "", err
	}
	out, err := r.gitOutput(ctx, "rev-parse", "--git-path", "hooks")
	if err != nil {
		return "", fmt.Errorf("locating hooks dir: %w", err)
	}
	dir := strings.TrimSpace(out)
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(r.Dir, dir)
	}
	return filepath.Abs(dir)
}

// Verify checks that rev names a commit. Staged and WorkTree always exist.
func (r *Repo) Verify(ctx context.Context, rev gate.Revision) error {
	if rev == gate.Staged || rev == gate.WorkTree {
		return nil
	}
	if _, err := r.gitOutput(ctx, "rev-parse", "--verify", "--quiet", string(rev)+"^{commit}"); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &gate.RevisionNotFoundError{Revision: string(rev), Err: err}
	}
	return nil
}

// ChangedFiles lists regular files that differ between base and target.
// Symlinks and submodules are left out.
func (r *Repo) ChangedFiles(ctx context.Context, base, target gate.Revision, renameThreshold int) ([]gate.FileStatus, error) {
	args, err := diffArgs(base, target, renameThreshold)
	if err != nil {
		return nil, err
	}
	out, err := r.gitOutput(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	statuses, err := parseRaw(out)
	if err != nil {
		return nil, err
	}

	if r.Untracked && target == gate.WorkTree {
		others, err := r.gitOutput(ctx, "ls-files", "--others", "--exclude-standard", "-z")
		if err != nil {
			return nil, fmt.Errorf("git ls-files: %w", err)
		}
		for _, p := range strings.Split(others, "\x00") {
			if p != "" {
				statuses = append(statuses, gate.FileStatus{Path: p, Kind: gate.Added})
			}
		}
	}

	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Path < statuses[j].Path })
	return statuses, nil
}

// diffArgs builds the git diff invocation comparing base with target.
func diffArgs(base, target gate.Revision, renameThreshold int) ([]string, error) {
	args := []string{"diff", "--raw", "-z", "--no-abbrev", "--no-ext-diff", "--no-textconv"}
	if renameThreshold > 0 && renameThreshold <= 100 {
		args = append(args, fmt.Sprintf("-M%d%%", renameThreshold))
	} else {
		args = append(args, "--no-renames")
	}

	switch {
	case base == gate.WorkTree:
		return nil, fmt.Errorf("the working tree cannot be used as a base revision")
	case base == gate.Staged && target == gate.WorkTree:
		// index vs working tree
	case base == gate.Staged:
		return nil, fmt.Errorf("the index can only be compared with the working tree")
	case target == gate.Staged:
		args = append(args, "--cached", string(base))
	case target == gate.WorkTree:
		args = append(args, string(base))
	default:
		args = append(args, string(base), string(target))
	}
	return append(args, "--"), nil
}

const (
	modeSymlink = "120000"
	modeGitlink = "160000"
)

// parseRaw parses the output of git diff --raw -z.
func parseRaw(out string) ([]gate.FileStatus, error) {
	fields := strings.Split(out, "\x00")
	var statuses []gate.FileStatus
	for i := 0; i < len(fields); i++ {
		header := fields[i]
		if header == "" {
			continue
		}
		if !strings.HasPrefix(header, ":") {
			return nil, fmt.Errorf("unexpected git diff output %q", header)
		}
		parts := strings.Fields(header[1:])
		if len(parts) != 5 {
			return nil, fmt.Errorf("unexpected git diff header %q", header)
		}
		srcMode, dstMode, status := parts[0], parts[1], parts[4]

		st := gate.FileStatus{}
		paths := 1
		switch status[0] {
		case 'M':
			st.Kind = gate.Modified
		case 'A':
			st.Kind = gate.Added
		case 'D':
			st.Kind = gate.Deleted
		case 'T':
			st.Kind = gate.TypeChanged
		case 'R':
			st.Kind = gate.Renamed
			paths = 2
		case 'C':
			st.Kind = gate.Copied
			paths = 2
		case 'U':
			// unmerged; nothing to format until the conflict is resolved
			i++
			continue
		default:
			return nil, fmt.Errorf("unknown git status %q", status)
		}
		if paths == 2 {
			score, err := strconv.Atoi(status[1:])
			if err != nil {
				return nil, fmt.Errorf("bad similarity in git status %q", status)
			}
			st.Similarity = score
		}
		if i+paths >= len(fields) {
			return nil, fmt.Errorf("truncated git diff output after %q", header)
		}
		if paths == 2 {
			st.OldPath = fields[i+1]
			st.Path = fields[i+2]
		} else {
			st.Path = fields[i+1]
		}
		i += paths

		if isSpecialMode(dstMode) || (st.Kind == gate.Deleted && isSpecialMode(srcMode)) {
			continue
		}
		if st.Kind == gate.TypeChanged || isSpecialMode(srcMode) {
			// A symlink or submodule became a regular file.
			st.Kind = gate.Added
			st.OldPath = ""
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}

func isSpecialMode(mode string) bool {
	return mode == modeSymlink || mode == modeGitlink
}

// ReadFile returns the content of path at rev.
func (r *Repo) ReadFile(ctx context.Context, rev gate.Revision, path string) ([]byte, error) {
	switch rev {
	case gate.WorkTree:
		root, err := r.Root(ctx)
		if err != nil {
			return nil, err
		}
		return os.ReadFile(filepath.Join(root, filepath.FromSlash(path)))
	case gate.Staged:
		return r.git(ctx, "cat-file", "blob", ":"+path)
	default:
		return r.git(ctx, "cat-file", "blob", string(rev)+":"+path)
	}
}

func (r *Repo) gitOutput(ctx context.Context, args ...string) (string, error) {
	out, err := r.git(ctx, args...)
	return string(out), err
}

func (r *Repo) git(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if r.Dir != "" {
		cmd.Dir = r.Dir
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return out, fmt.Errorf("%s: %s", err, strings.TrimSpace(stderr.String()))
		}
		return nil, err
	}
	return out, nil
}
