// Package snapshot compares two plain directory trees, for use where no git
// metadata is available (exported sources, build sandboxes, CI artifacts).
package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/dshills/diffgate/internal/gate"
	"github.com/dshills/diffgate/internal/linediff"
)

// Revisions understood by a Backend. gate.WorkTree is accepted as an alias
// for Target.
const (
	Base   gate.Revision = "base"
	Target gate.Revision = "target"
)

// Backend implements gate.Backend over two directories.
type Backend struct {
	BaseDir   string
	TargetDir string
}

// New returns a Backend comparing baseDir with targetDir.
func New(baseDir, targetDir string) *Backend {
	return &Backend{BaseDir: baseDir, TargetDir: targetDir}
}

// Root returns the target directory, which fix mode writes to.
func (b *Backend) Root(ctx context.Context) (string, error) {
	dir, err := filepath.Abs(b.TargetDir)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", gate.ErrNotARepository, b.TargetDir)
	}
	return dir, nil
}

// Verify checks that rev names one of the two snapshot directories.
func (b *Backend) Verify(ctx context.Context, rev gate.Revision) error {
	dir, ok := b.dir(rev)
	if !ok {
		return &gate.RevisionNotFoundError{Revision: string(rev)}
	}
	info, err := os.Stat(dir)
	if err != nil {
		return &gate.RevisionNotFoundError{Revision: string(rev), Err: err}
	}
	if !info.IsDir() {
		return &gate.RevisionNotFoundError{Revision: string(rev), Err: fmt.Errorf("%s is not a directory", dir)}
	}
	return nil
}

func (b *Backend) dir(rev gate.Revision) (string, bool) {
	switch rev {
	case Base:
		return b.BaseDir, true
	case Target, gate.WorkTree:
		return b.TargetDir, true
	}
	return "", false
}

type fileInfo struct {
	mode fs.FileMode
	data []byte
}

// ChangedFiles lists regular files whose content or permissions differ.
// An added and a deleted file whose similarity reaches renameThreshold
// percent are reported as a rename.
func (b *Backend) ChangedFiles(ctx context.Context, base, target gate.Revision, renameThreshold int) ([]gate.FileStatus, error) {
	baseDir, ok := b.dir(base)
	if !ok {
		return nil, &gate.RevisionNotFoundError{Revision: string(base)}
	}
	targetDir, ok := b.dir(target)
	if !ok {
		return nil, &gate.RevisionNotFoundError{Revision: string(target)}
	}
	oldFiles, err := walk(ctx, baseDir)
	if err != nil {
		return nil, err
	}
	newFiles, err := walk(ctx, targetDir)
	if err != nil {
		return nil, err
	}

	var statuses []gate.FileStatus
	var added, deleted []string
	for p, nf := range newFiles {
		of, ok := oldFiles[p]
		switch {
		case !ok:
			added = append(added, p)
		case !bytes.Equal(of.data, nf.data) || of.mode.Perm() != nf.mode.Perm():
			statuses = append(statuses, gate.FileStatus{Path: p, Kind: gate.Modified})
		}
	}
	for p := range oldFiles {
		if _, ok := newFiles[p]; !ok {
			deleted = append(deleted, p)
		}
	}
	sort.Strings(added)
	sort.Strings(deleted)

	renamed, renamedFrom := pairRenames(added, deleted, oldFiles, newFiles, renameThreshold)
	for _, p := range added {
		if st, ok := renamed[p]; ok {
			statuses = append(statuses, st)
			continue
		}
		statuses = append(statuses, gate.FileStatus{Path: p, Kind: gate.Added})
	}
	for _, p := range deleted {
		if !renamedFrom[p] {
			statuses = append(statuses, gate.FileStatus{Path: p, Kind: gate.Deleted})
		}
	}

	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Path < statuses[j].Path })
	return statuses, nil
}

type candidate struct {
	added, deleted string
	score          int
}

// pairRenames matches added files to deleted files, best similarity first.
func pairRenames(added, deleted []string, oldFiles, newFiles map[string]fileInfo, threshold int) (map[string]gate.FileStatus, map[string]bool) {
	renamed := make(map[string]gate.FileStatus)
	renamedFrom := make(map[string]bool)
	if threshold <= 0 || threshold > 100 || len(added) == 0 || len(deleted) == 0 {
		return renamed, renamedFrom
	}

	var cands []candidate
	for _, a := range added {
		for _, d := range deleted {
			score := similarity(oldFiles[d].data, newFiles[a].data)
			if score >= threshold {
				cands = append(cands, candidate{added: a, deleted: d, score: score})
			}
		}
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].score > cands[j].score })

	for _, c := range cands {
		if _, done := renamed[c.added]; done || renamedFrom[c.deleted] {
			continue
		}
		renamed[c.added] = gate.FileStatus{Path: c.added, OldPath: c.deleted, Kind: gate.Renamed, Similarity: c.score}
		renamedFrom[c.deleted] = true
	}
	return renamed, renamedFrom
}

func similarity(a, b []byte) int {
	if bytes.Equal(a, b) {
		return 100
	}
	if gate.IsBinary(a) || gate.IsBinary(b) {
		return 0
	}
	return linediff.Similarity(linediff.Split(string(a)), linediff.Split(string(b)))
}

// walk reads every regular file under root, keyed by slash-separated
// relative path. Version-control directories are skipped.
func walk(ctx context.Context, root string) (map[string]fileInfo, error) {
	files := make(map[string]fileInfo)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && (d.Name() == ".git" || d.Name() == ".hg" || d.Name() == ".svn") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = fileInfo{mode: info.Mode(), data: data}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	return files, nil
}

// ReadFile returns path's content in the snapshot rev names.
func (b *Backend) ReadFile(ctx context.Context, rev gate.Revision, path string) ([]byte, error) {
	dir, ok := b.dir(rev)
	if !ok {
		return nil, &gate.RevisionNotFoundError{Revision: string(rev)}
	}
	return os.ReadFile(filepath.Join(dir, filepath.FromSlash(path)))
}
