// Package provision downloads pinned clang-format builds into a local cache.
//
// Builds are identified by sha1 per version and OS. A download is retried
// with exponential backoff on network failures and 5xx responses, checked
// against the pinned hash, then written atomically and marked executable.
// Cached files are re-hashed on every use; a mismatch is reported with a
// hint to delete the file.
//
// The cache lives in $XDG_CACHE_HOME/diffgate (or ~/.cache/diffgate) and
// carries a README describing its owner.
package provision
