package gate

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path"
	"testing"

	"github.com/stretchr/testify/require"
)

func cOnly(f Formatter) func(string) Formatter {
	return func(p string) Formatter {
		if path.Ext(p) == ".c" || path.Ext(p) == ".h" {
			return f
		}
		return nil
	}
}

func newGate(m *memBackend, f Formatter) *Gate {
	return &Gate{
		Resolver:     &Resolver{Backend: m},
		FormatterFor: cOnly(f),
		Jobs:         2,
		Version:      "test",
	}
}

func TestRun_ReportsOnlyChangedLines(t *testing.T) {
	m := newMem()
	m.revs["base"]["a.c"] = numbered(60, map[int]string{5: "int x = 1;", 50: "int y=2;"})
	m.revs[WorkTree]["a.c"] = numbered(60, map[int]string{5: "int x=1;", 50: "int y=2;"})
	f := &funcFormatter{name: "eq", fn: spaceEquals}

	report, err := newGate(m, f).Run(context.Background(), "base", WorkTree)
	require.NoError(t, err)
	require.False(t, report.Passed)
	require.Equal(t, 1, report.FilesChecked)
	require.Len(t, report.Edits, 1)

	e := report.Edits[0]
	require.Equal(t, "a.c", e.Path)
	require.Equal(t, LineRange{Start: 5, End: 5}, e.Range)
	require.Equal(t, []string{"int x = 1;\n"}, e.ReplacementLines)
	require.Equal(t, "/repo", report.Repo.Root)
	require.NotEmpty(t, report.RunID)
}

func TestRun_PassesWhenChangedLinesAreFormatted(t *testing.T) {
	m := newMem()
	m.revs["base"]["a.c"] = numbered(10, map[int]string{9: "int y=2;"})
	m.revs[WorkTree]["a.c"] = numbered(10, map[int]string{2: "int x = 1;", 9: "int y=2;"})
	f := &funcFormatter{name: "eq", fn: spaceEquals}

	report, err := newGate(m, f).Run(context.Background(), "base", WorkTree)
	require.NoError(t, err)
	require.True(t, report.Passed)
	require.Empty(t, report.Edits)
	require.Equal(t, 1, report.FilesChecked)
}

func TestRun_NeverFormatsFilesWithoutChangedLines(t *testing.T) {
	m := newMem()
	m.revs["base"]["mode.c"] = "int a=1;\n"
	m.revs[WorkTree]["mode.c"] = "int a=1;\n"
	m.modeOnly = []string{"mode.c"}
	m.revs["base"]["del.c"] = "a\nb\n"
	m.revs[WorkTree]["del.c"] = "a\n"
	m.revs[WorkTree]["new.c"] = "int b=2;\n"
	f := &funcFormatter{name: "eq", fn: spaceEquals}

	report, err := newGate(m, f).Run(context.Background(), "base", WorkTree)
	require.NoError(t, err)
	require.Equal(t, []string{"new.c"}, f.called())
	require.Equal(t, 1, report.FilesChecked)
}

func TestRun_UnmappedFilesAreIgnored(t *testing.T) {
	m := newMem()
	m.revs[WorkTree]["README.md"] = "a=b\n"
	f := &funcFormatter{name: "eq", fn: spaceEquals}

	report, err := newGate(m, f).Run(context.Background(), "base", WorkTree)
	require.NoError(t, err)
	require.Empty(t, f.called())
	require.True(t, report.Passed)
	require.Zero(t, report.FilesChecked)
}

func TestRun_BinaryFilesAreSkipped(t *testing.T) {
	m := newMem()
	m.revs[WorkTree]["blob.c"] = "\x00\x01\x02"
	f := &funcFormatter{name: "eq", fn: spaceEquals}

	report, err := newGate(m, f).Run(context.Background(), "base", WorkTree)
	require.NoError(t, err)
	require.Empty(t, f.called())
	require.Equal(t, []SkippedFile{{Path: "blob.c", Reason: "binary"}}, report.Skipped)
	require.Zero(t, report.FilesChecked)
}

func TestRun_FormatterUnavailableIsFatal(t *testing.T) {
	m := newMem()
	m.revs[WorkTree]["a.c"] = "int x=1;\n"
	m.revs[WorkTree]["b.c"] = "int y=1;\n"
	f := &funcFormatter{name: "clang-format", fn: func(p, content string) (string, error) {
		return "", &FormatterUnavailableError{Formatter: "clang-format", Path: p, Err: exec.ErrNotFound}
	}}

	report, err := newGate(m, f).Run(context.Background(), "base", WorkTree)
	require.Nil(t, report)
	var fu *FormatterUnavailableError
	require.ErrorAs(t, err, &fu)
	require.ErrorIs(t, err, exec.ErrNotFound)
	require.True(t, IsFatal(err))
}

func TestRun_FormatterCrashIsRecordedPerFile(t *testing.T) {
	m := newMem()
	m.revs[WorkTree]["bad.c"] = "int x=1;\n"
	m.revs[WorkTree]["good.c"] = "int y=1;\n"
	f := &funcFormatter{name: "eq", fn: func(p, content string) (string, error) {
		if p == "bad.c" {
			return "", &FormatterCrashError{Formatter: "eq", Path: p, ExitCode: 1, Stderr: "syntax error"}
		}
		return spaceEquals(p, content)
	}}

	report, err := newGate(m, f).Run(context.Background(), "base", WorkTree)
	require.NoError(t, err)
	require.Len(t, report.Failures, 1)
	require.Equal(t, "bad.c", report.Failures[0].Path)
	require.Contains(t, report.Failures[0].Message, "syntax error")
	require.Equal(t, 1, report.FilesChecked)
	require.Len(t, report.Edits, 1)
	require.Equal(t, "good.c", report.Edits[0].Path)
	require.False(t, IsFatal(&FormatterCrashError{}))
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	m := newMem()
	m.revs[WorkTree]["a.c"] = "int x=1;\n"
	f := &funcFormatter{name: "eq", fn: spaceEquals}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := newGate(m, f).Run(ctx, "base", WorkTree)
	require.Nil(t, report)
	require.ErrorIs(t, err, ErrCancelled)
	require.Empty(t, f.called())
}

type cancellingFormatter struct {
	cancel context.CancelFunc
}

func (c *cancellingFormatter) Name() string { return "cancel" }

func (c *cancellingFormatter) Format(ctx context.Context, path, content string) (string, error) {
	c.cancel()
	<-ctx.Done()
	return "", ctx.Err()
}

func TestRun_CancelledWhileFormatting(t *testing.T) {
	m := newMem()
	for i := 0; i < 8; i++ {
		m.revs[WorkTree][fmt.Sprintf("f%d.c", i)] = "int x=1;\n"
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	report, err := newGate(m, &cancellingFormatter{cancel: cancel}).Run(ctx, "base", WorkTree)
	require.Nil(t, report)
	require.ErrorIs(t, err, ErrCancelled)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRun_FixConverges(t *testing.T) {
	m := newMem()
	m.revs["base"]["a.c"] = numbered(30, map[int]string{20: "int z=3;"})
	m.revs[WorkTree]["a.c"] = numbered(30, map[int]string{3: "int x=1;", 4: "int y =2;", 20: "int z=3;", 25: "w= 4;"})
	m.revs[WorkTree]["b.c"] = "int q=0;\nint r=1;\n"
	f := &funcFormatter{name: "eq", fn: spaceEquals}
	g := newGate(m, f)

	report, err := g.Run(context.Background(), "base", WorkTree)
	require.NoError(t, err)
	require.False(t, report.Passed)

	paths, byPath := report.EditsByPath()
	require.Equal(t, []string{"a.c", "b.c"}, paths)
	for _, p := range paths {
		fixed, err := ApplyText(m.revs[WorkTree][p], byPath[p])
		require.NoError(t, err)
		m.revs[WorkTree][p] = fixed
	}
	// Untouched line 20 keeps its formatting problem.
	require.Contains(t, m.revs[WorkTree]["a.c"], "int z=3;\n")

	again, err := g.Run(context.Background(), "base", WorkTree)
	require.NoError(t, err)
	require.True(t, again.Passed, "edits after fix: %+v", again.Edits)
}

func TestRun_ManyFilesSortedByPath(t *testing.T) {
	m := newMem()
	for i := 9; i >= 0; i-- {
		m.revs[WorkTree][fmt.Sprintf("f%d.c", i)] = "int x=1;\nint y=2;\n"
	}
	f := &funcFormatter{name: "eq", fn: spaceEquals}

	report, err := newGate(m, f).Run(context.Background(), "base", WorkTree)
	require.NoError(t, err)
	require.Equal(t, 10, report.FilesChecked)
	require.Len(t, report.Edits, 10)
	for i := 1; i < len(report.Edits); i++ {
		require.LessOrEqual(t, report.Edits[i-1].Path, report.Edits[i].Path)
	}
}

func TestRun_ResolverErrorsAbortBeforeFormatting(t *testing.T) {
	m := newMem()
	m.revs[WorkTree]["a.c"] = "int x=1;\n"
	f := &funcFormatter{name: "eq", fn: spaceEquals}

	_, err := newGate(m, f).Run(context.Background(), "missing", WorkTree)
	var rnf *RevisionNotFoundError
	require.True(t, errors.As(err, &rnf))
	require.Empty(t, f.called())
}

func TestRun_FixConvergesWithReshapingFormatters(t *testing.T) {
	tests := []struct {
		name   string
		fn     func(path, content string) (string, error)
		base   string
		work   string
		legacy string
	}{
		{
			name:   "inserts blank lines",
			fn:     blankAroundDecls,
			base:   "int y;\nz\na\nb\n",
			work:   "int y;\nz\na\nint x;\nb\n",
			legacy: "int y;\nz\n",
		},
		{
			name:   "joins lines",
			fn:     joinContinuations,
			base:   "g(c,\n  d);\nx\ny\n",
			work:   "g(c,\n  d);\nx\nf(a,\n  b);\ny\n",
			legacy: "g(c,\n  d);\n",
		},
		{
			name: "deletes lines",
			fn:   squeezeBlank,
			base: "a\nb\n",
			work: "a\n\n\n\nb\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMem()
			m.revs["base"]["a.c"] = tt.base
			m.revs[WorkTree]["a.c"] = tt.work
			g := newGate(m, &funcFormatter{name: "reshape", fn: tt.fn})

			report, err := g.Run(context.Background(), "base", WorkTree)
			require.NoError(t, err)
			require.False(t, report.Passed)

			fixed, err := ApplyText(tt.work, report.Edits)
			require.NoError(t, err)
			require.Contains(t, fixed, tt.legacy)
			m.revs[WorkTree]["a.c"] = fixed

			again, err := g.Run(context.Background(), "base", WorkTree)
			require.NoError(t, err)
			require.True(t, again.Passed, "edits after fix: %+v\nfile: %q", again.Edits, fixed)
		})
	}
}
