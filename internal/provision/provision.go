package provision

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/natefinch/atomic"

	"github.com/dshills/diffgate/internal/logging"
)

// DefaultBaseURL is the bucket the pinned clang-format builds are served from.
const DefaultBaseURL = "https://commondatastorage.googleapis.com/chromium-clang-format"

const (
	binaryPrefix   = "clang-format-"
	readmeName     = "README"
	defaultRetries = 3
	maxBinarySize  = 64 << 20
)

const readme = `This directory is maintained by diffgate.
It holds clang-format binaries downloaded by "diffgate fetch" and by
formatters configured with a pinned version. Files are named after their
sha1 and verified before every use. It is safe to delete this directory.
`

// clangFormatSHAs maps a clang-format version to the sha1 of its build per OS.
var clangFormatSHAs = map[string]map[string]string{
	"3.5.0": {
		"linux":   "b26f74f07f51a99d79d34be57a28bc82dee42854",
		"darwin":  "ce0718a133a059aca5da5f307a36bbc310df3e12",
		"windows": "fc8a7cd2219eaa70daa01173844fad4c815394d7",
	},
	"3.6.0": {
		"linux":   "f237f50fab9ceca4066788b7bf936ef2aa366239",
		"darwin":  "eb3fd19492128421c3eab80f4cdeed7b07428988",
		"windows": "e93c345e8d4d003632cabae8ff4f64c3b74f0c16",
	},
	"3.7.0": {
		"linux":   "acc9e19e04ad4cf6be067366d2522348cd160ae1",
		"darwin":  "e66adcd1631b8d80650e7b15106033b04c9c2212",
		"windows": "2d5e931765ee1c7c4465fd6d77c8b7606c487b3f",
	},
	"3.9.0": {
		"linux":   "8b68e8093516183b8f38626740eeaff97f112f7e",
		"darwin":  "afe0942b94fe33619361efe1510ae081c3070dc1",
		"windows": "f80b6ab38d7c7e0903c25e968028c1eaa25bb874",
	},
	"4.0.0": {
		"linux":   "06b8b3e315c1b55b58459d61fe3297e0988c6c63",
		"darwin":  "e0cfdaf63938e06d05a986a0038658ec6b7cad17",
		"windows": "a15d5130e787633a119e8e0ae9b267696c4c2863",
	},
	"5.0.0": {
		"linux":   "5349d1954e17f6ccafb6e6663b0f13cdb2bb33c8",
		"darwin":  "0679b295e2ce2fce7919d1e8d003e497475f24a3",
		"windows": "c8455d43d052eb79f65d046c6b02c169857b963b",
	},
	"8.0.0": {
		"linux":   "327721c99d40602c1829b4b682771d52e1d5f1b8",
		"darwin":  "025ca7c75f37ef4a40f3a67d81ddd11d7d0cdb9b",
		"windows": "b5f5d8d5f8a8fcd2edb5b6cae37c0dc3e129c945",
	},
	"11.0.0": {
		"linux":   "1baf0089e895c989a311b6a38ed94d0e8be4c0a7",
		"darwin":  "62bde1baa7196ad9df969fc1f06b66360b1a927b",
		"windows": "d4afd4eba27022f5f6d518133aebde57281677c9",
	},
}

// Versions returns the pinned clang-format versions in ascending order.
func Versions() []string {
	vs := make([]string, 0, len(clangFormatSHAs))
	for v := range clangFormatSHAs {
		vs = append(vs, v)
	}
	sort.Slice(vs, func(i, j int) bool { return versionLess(vs[i], vs[j]) })
	return vs
}

func versionLess(a, b string) bool {
	pa, pb := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(pa) && i < len(pb); i++ {
		if len(pa[i]) != len(pb[i]) {
			return len(pa[i]) < len(pb[i])
		}
		if pa[i] != pb[i] {
			return pa[i] < pb[i]
		}
	}
	return len(pa) < len(pb)
}

// SHA returns the pinned sha1 of clang-format version for goos.
func SHA(version, goos string) (string, error) {
	byOS, ok := clangFormatSHAs[version]
	if !ok {
		return "", fmt.Errorf("unsupported clang-format version %q (available: %s)",
			version, strings.Join(Versions(), ", "))
	}
	sha, ok := byOS[goos]
	if !ok {
		return "", fmt.Errorf("no clang-format %s build for %s", version, goos)
	}
	return sha, nil
}

// HashMismatchError reports a cached or downloaded binary whose sha1 is not
// the pinned one.
type HashMismatchError struct {
	Path string
	Want string
	Got  string
}

func (e *HashMismatchError) Error() string {
	return fmt.Sprintf("sha1 mismatch on %s: expected %s, got %s (the file may be corrupted, delete it and retry)",
		e.Path, e.Want, e.Got)
}

// Store downloads pinned tool binaries into a cache directory.
type Store struct {
	Dir     string
	Client  *http.Client
	Retries int

	// BaseURL overrides DefaultBaseURL.
	BaseURL string
	// GOOS overrides runtime.GOOS when picking a build.
	GOOS string
	// RetryWait is the first backoff interval. Zero means the backoff default.
	RetryWait time.Duration
}

// New returns a Store rooted at dir, or at DefaultDir when dir is empty.
func New(dir string) (*Store, error) {
	if dir == "" {
		d, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	return &Store{Dir: dir, Client: http.DefaultClient, Retries: defaultRetries}, nil
}

// ClangFormat returns the path of the cached clang-format binary for version,
// downloading it first if needed. The file's sha1 is checked on every call.
func (s *Store) ClangFormat(ctx context.Context, version string) (string, error) {
	sha, err := SHA(version, s.goos())
	if err != nil {
		return "", err
	}
	if err := s.ensureDir(); err != nil {
		return "", err
	}
	path := filepath.Join(s.Dir, binaryPrefix+sha)

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		logging.From(ctx).Info("downloading clang-format", "version", version, "sha1", sha)
		if err := s.download(ctx, sha, path); err != nil {
			return "", err
		}
	} else if err != nil {
		return "", fmt.Errorf("checking %s: %w", path, err)
	}

	if err := checkHash(path, sha); err != nil {
		return "", err
	}
	return path, nil
}

func (s *Store) goos() string {
	if s.GOOS != "" {
		return s.GOOS
	}
	return runtime.GOOS
}

func (s *Store) ensureDir() error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	readmePath := filepath.Join(s.Dir, readmeName)
	if _, err := os.Stat(readmePath); errors.Is(err, os.ErrNotExist) {
		if err := atomic.WriteFile(readmePath, strings.NewReader(readme)); err != nil {
			return fmt.Errorf("writing cache README: %w", err)
		}
	}
	return nil
}

type statusError struct {
	url  string
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("GET %s: %d %s", e.url, e.code, http.StatusText(e.code))
}

func (e *statusError) retryable() bool {
	return e.code == http.StatusTooManyRequests || e.code >= 500
}

// download fetches the build named sha and writes it to dest atomically, so
// concurrent runs never observe a partial binary.
func (s *Store) download(ctx context.Context, sha, dest string) error {
	base := s.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	url := strings.TrimSuffix(base, "/") + "/" + sha

	var data []byte
	op := func() error {
		body, err := s.get(ctx, url)
		if err != nil {
			var se *statusError
			if errors.As(err, &se) && !se.retryable() {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		data = body
		return nil
	}
	notify := func(err error, wait time.Duration) {
		logging.From(ctx).Warn("download failed, retrying", "url", url, "wait", wait, "err", err)
	}
	if err := backoff.RetryNotify(op, s.backoff(ctx), notify); err != nil {
		return fmt.Errorf("downloading clang-format: %w", err)
	}

	if got := sum(data); got != sha {
		return &HashMismatchError{Path: url, Want: sha, Got: got}
	}
	if err := atomic.WriteFile(dest, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing %s: %w", dest, err)
	}
	if err := os.Chmod(dest, 0o755); err != nil {
		return fmt.Errorf("marking %s executable: %w", dest, err)
	}
	return nil
}

func (s *Store) backoff(ctx context.Context) backoff.BackOffContext {
	eb := backoff.NewExponentialBackOff()
	if s.RetryWait > 0 {
		eb.InitialInterval = s.RetryWait
	}
	retries := s.Retries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(retries)), ctx)
}

func (s *Store) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{url: url, code: resp.StatusCode}
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxBinarySize))
}

func checkHash(path, want string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	h := sha1.New()
	if _, err := io.Copy(h, f); err != nil {
		return fmt.Errorf("hashing %s: %w", path, err)
	}
	if got := hex.EncodeToString(h.Sum(nil)); got != want {
		return &HashMismatchError{Path: path, Want: want, Got: got}
	}
	return nil
}

func sum(data []byte) string {
	h := sha1.Sum(data)
	return hex.EncodeToString(h[:])
}

// Stats describes the cache directory.
type Stats struct {
	Dir        string   `json:"dir"`
	Binaries   int      `json:"binaries"`
	TotalBytes int64    `json:"totalBytes"`
	Versions   []string `json:"versions,omitempty"`
}

// Stats returns information about the cached binaries.
func (s *Store) Stats() (Stats, error) {
	stats := Stats{Dir: s.Dir}
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return stats, nil
		}
		return stats, fmt.Errorf("reading cache directory: %w", err)
	}
	known := s.versionsBySHA()
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), binaryPrefix) || e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		stats.Binaries++
		stats.TotalBytes += info.Size()
		if v, ok := known[strings.TrimPrefix(e.Name(), binaryPrefix)]; ok {
			stats.Versions = append(stats.Versions, v)
		}
	}
	sort.Slice(stats.Versions, func(i, j int) bool { return versionLess(stats.Versions[i], stats.Versions[j]) })
	return stats, nil
}

func (s *Store) versionsBySHA() map[string]string {
	goos := s.goos()
	m := make(map[string]string, len(clangFormatSHAs))
	for v, byOS := range clangFormatSHAs {
		if sha, ok := byOS[goos]; ok {
			m[sha] = v
		}
	}
	return m
}

// Clear removes every cached binary and returns how many were removed.
func (s *Store) Clear() (int, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading cache directory: %w", err)
	}
	var removed int
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), binaryPrefix) || e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(s.Dir, e.Name())); err != nil {
			return removed, fmt.Errorf("removing %s: %w", e.Name(), err)
		}
		removed++
	}
	return removed, nil
}

// DefaultDir returns $XDG_CACHE_HOME/diffgate, falling back to
// ~/.cache/diffgate.
func DefaultDir() (string, error) {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "diffgate"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".cache", "diffgate"), nil
}
