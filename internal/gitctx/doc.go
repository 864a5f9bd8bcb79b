// Package gitctx reads a git working tree for the formatting gate.
//
// [Repo] implements gate.Backend by shelling out to git: it resolves the
// repository root, verifies revisions, lists changed files with
// `git diff --raw -z` (pairing renames above a similarity threshold) and
// reads file contents at a commit, from the index or from disk.
package gitctx
