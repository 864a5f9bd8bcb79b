package formatter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strings"
	"time"

	"github.com/dshills/diffgate/internal/gate"
)

// DefaultTimeout bounds a single formatter invocation.
const DefaultTimeout = 30 * time.Second

// PathPlaceholder in a Command's arguments is replaced by the file path.
const PathPlaceholder = "{path}"

// Command runs an external formatter that reads the file on stdin and writes
// the formatted file to stdout.
type Command struct {
	name    string
	binary  string
	args    []string
	timeout time.Duration
}

// NewCommand creates a generic formatter. A zero timeout means
// DefaultTimeout.
func NewCommand(name, binary string, args []string, timeout time.Duration) *Command {
	if name == "" {
		name = binary
	}
	return &Command{name: name, binary: binary, args: args, timeout: timeout}
}

func (c *Command) Name() string { return c.name }

// Binary returns the executable the formatter runs.
func (c *Command) Binary() string { return c.binary }

func (c *Command) Format(ctx context.Context, path, content string) (string, error) {
	args := make([]string, len(c.args))
	for i, a := range c.args {
		args[i] = strings.ReplaceAll(a, PathPlaceholder, path)
	}
	return c.run(ctx, path, args, content)
}

func (c *Command) run(ctx context.Context, path string, args []string, content string) (string, error) {
	timeout := c.timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, c.binary, args...)
	cmd.Stdin = strings.NewReader(content)
	cmd.WaitDelay = time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.String(), nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if unavailable(err) {
		return "", &gate.FormatterUnavailableError{Formatter: c.name, Path: path, Err: err}
	}

	crash := &gate.FormatterCrashError{
		Formatter: c.name,
		Path:      path,
		ExitCode:  -1,
		Stderr:    strings.TrimSpace(stderr.String()),
		Err:       err,
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		crash.Err = fmt.Errorf("timed out after %s: %w", timeout, context.DeadlineExceeded)
		return "", crash
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		crash.ExitCode = exitErr.ExitCode()
	}
	return "", crash
}

// unavailable reports whether err means the binary could not be started.
func unavailable(err error) bool {
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		return true
	}
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission)
}

// ClangFormat runs clang-format, which picks the language and the
// .clang-format file from --assume-filename.
type ClangFormat struct {
	cmd   *Command
	style string
}

// NewClangFormat creates a clang-format adapter. An empty style lets
// clang-format use its default lookup (-style=file).
func NewClangFormat(binary, style string, timeout time.Duration) *ClangFormat {
	if binary == "" {
		binary = "clang-format"
	}
	return &ClangFormat{cmd: NewCommand("clang-format", binary, nil, timeout), style: style}
}

func (f *ClangFormat) Name() string { return f.cmd.name }

func (f *ClangFormat) Format(ctx context.Context, path, content string) (string, error) {
	args := []string{"--assume-filename=" + path}
	if f.style != "" {
		args = append(args, "-style="+f.style)
	}
	return f.cmd.run(ctx, path, args, content)
}

// Buildifier runs buildifier on Bazel and Starlark files.
type Buildifier struct {
	cmd *Command
}

// NewBuildifier creates a buildifier adapter.
func NewBuildifier(binary string, timeout time.Duration) *Buildifier {
	if binary == "" {
		binary = "buildifier"
	}
	return &Buildifier{cmd: NewCommand("buildifier", binary, nil, timeout)}
}

func (f *Buildifier) Name() string { return f.cmd.name }

func (f *Buildifier) Format(ctx context.Context, path, content string) (string, error) {
	return f.cmd.run(ctx, path, []string{"--type=" + BuildifierType(path)}, content)
}

// BuildifierType maps a file name to buildifier's --type value.
func BuildifierType(path string) string {
	base := path
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	switch {
	case base == "BUILD" || base == "BUILD.bazel" || strings.HasSuffix(base, ".BUILD") ||
		strings.HasPrefix(base, "BUILD."):
		return "build"
	case base == "WORKSPACE" || base == "WORKSPACE.bazel" || strings.HasSuffix(base, ".WORKSPACE"):
		return "workspace"
	case strings.HasSuffix(base, ".bzl"):
		return "bzl"
	default:
		return "default"
	}
}
