// Diffgate checks that the lines changed in a git diff are formatted.
//
// It runs each configured formatter (clang-format, buildifier or any
// stdin/stdout command) over the changed files and keeps only the
// corrections that touch changed lines, so untouched legacy code never
// blocks a commit. Exit codes are deterministic for CI gating and git hooks.
//
// Usage:
//
//	diffgate check                    # working tree against HEAD
//	diffgate check --staged           # the index against HEAD
//	diffgate check --base origin/main --format sarif
//	diffgate fix                      # rewrite changed lines in place
//	diffgate markers --diff --staged  # block added DO NOT SUBMIT markers
//	diffgate hook install             # install the pre-commit hook
package main
