package gate

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/diffgate/internal/logging"
)

// Formatter reformats the full content of one file. Implementations must be
// deterministic and report failures as *FormatterUnavailableError or
// *FormatterCrashError.
type Formatter interface {
	Name() string
	Format(ctx context.Context, path, content string) (string, error)
}

// Gate runs formatters over the changed lines of a revision range.
type Gate struct {
	Resolver *Resolver
	// FormatterFor maps a path to its formatter, or nil when the path is not
	// checked.
	FormatterFor func(path string) Formatter
	// Jobs bounds concurrent formatter invocations. Zero means one per CPU.
	Jobs           int
	MergeThreshold int
	Version        string
}

type fileJob struct {
	change    FileChange
	formatter Formatter
}

type fileResult struct {
	edits   []ScopedEdit
	failure *FileFailure
}

// Run resolves the changes between base and target, formats each changed
// file and collects the corrections that touch changed lines.
//
// A *FormatterUnavailableError aborts the run. A *FormatterCrashError is
// recorded in Report.Failures and the run continues. When ctx is cancelled
// Run returns an error wrapping ErrCancelled and no report.
func (g *Gate) Run(ctx context.Context, base, target Revision) (*Report, error) {
	startTime := time.Now()
	log := logging.From(ctx)

	res, err := g.Resolver.Resolve(ctx, base, target)
	if err != nil {
		if ctx.Err() != nil {
			return nil, cancelled(ctx)
		}
		return nil, err
	}
	resolveMs := time.Since(startTime).Milliseconds()

	root, err := g.Resolver.Backend.Root(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Tool:    "diffgate",
		Version: g.Version,
		RunID:   uuid.NewString(),
		Repo:    RepoInfo{Root: root},
		Base:    string(base),
		Target:  string(target),
		Edits:   []ScopedEdit{},
	}
	for _, p := range res.Binary {
		report.Skipped = append(report.Skipped, SkippedFile{Path: p, Reason: "binary"})
	}

	var jobs []fileJob
	for _, c := range res.Changes {
		if len(c.AddedRanges) == 0 {
			log.Debug("no changed lines", "path", c.Path)
			continue
		}
		var f Formatter
		if g.FormatterFor != nil {
			f = g.FormatterFor(c.Path)
		}
		if f == nil {
			log.Debug("no formatter mapped", "path", c.Path)
			continue
		}
		jobs = append(jobs, fileJob{change: c, formatter: f})
	}

	formatStart := time.Now()
	results, err := g.formatAll(ctx, target, jobs)
	if err != nil {
		return nil, err
	}

	for _, r := range results {
		if r.failure != nil {
			report.Failures = append(report.Failures, *r.failure)
			continue
		}
		report.FilesChecked++
		report.Edits = append(report.Edits, r.edits...)
	}
	SortEdits(report.Edits)
	report.Passed = len(report.Edits) == 0
	report.Timing = Timing{
		ResolveMs: resolveMs,
		FormatMs:  time.Since(formatStart).Milliseconds(),
		TotalMs:   time.Since(startTime).Milliseconds(),
	}

	log.Info("gate finished",
		"files", report.FilesChecked,
		"edits", len(report.Edits),
		"failures", len(report.Failures),
		"passed", report.Passed)
	return report, nil
}

func (g *Gate) formatAll(ctx context.Context, target Revision, jobs []fileJob) ([]fileResult, error) {
	limit := g.Jobs
	if limit <= 0 {
		limit = runtime.NumCPU()
	}

	results := make([]fileResult, len(jobs))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(limit)

	for i, job := range jobs {
		if egCtx.Err() != nil {
			break
		}
		eg.Go(func() error {
			r, err := g.formatOne(egCtx, target, job)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}

	err := eg.Wait()
	if ctx.Err() != nil {
		return nil, cancelled(ctx)
	}
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (g *Gate) formatOne(ctx context.Context, target Revision, job fileJob) (fileResult, error) {
	path := job.change.Path
	log := logging.From(ctx).With("path", path, "formatter", job.formatter.Name())

	content, err := g.Resolver.Backend.ReadFile(ctx, target, path)
	if err != nil {
		return fileResult{}, fmt.Errorf("reading %s: %w", path, err)
	}

	log.Debug("formatting", "ranges", len(job.change.AddedRanges))
	formatted, err := job.formatter.Format(ctx, path, string(content))
	if err != nil {
		var crash *FormatterCrashError
		if errors.As(err, &crash) {
			log.Warn("formatter failed", "err", err)
			return fileResult{failure: &FileFailure{
				Path:      path,
				Formatter: job.formatter.Name(),
				Message:   err.Error(),
			}}, nil
		}
		return fileResult{}, err
	}

	edits := Extract(job.change, FormatResult{
		Path:          path,
		OriginalText:  string(content),
		FormattedText: formatted,
	}, g.MergeThreshold)
	return fileResult{edits: edits}, nil
}

func cancelled(ctx context.Context) error {
	return fmt.Errorf("%w: %w", ErrCancelled, context.Cause(ctx))
}
