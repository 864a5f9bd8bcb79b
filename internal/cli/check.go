package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/dshills/diffgate/internal/config"
	"github.com/dshills/diffgate/internal/formatter"
	"github.com/dshills/diffgate/internal/gate"
	"github.com/dshills/diffgate/internal/gitctx"
	"github.com/dshills/diffgate/internal/logging"
	"github.com/dshills/diffgate/internal/output"
	"github.com/dshills/diffgate/internal/provision"
	"github.com/dshills/diffgate/internal/snapshot"
)

// Shared check/fix flags
var (
	flagBase            string
	flagTarget          string
	flagStaged          bool
	flagWorktree        bool
	flagScope           string
	flagFormat          string
	flagOut             string
	flagJobs            int
	flagTimeout         time.Duration
	flagMergeThreshold  int
	flagRenameThreshold int
	flagExclude         string
	flagFailOnCrash     bool
	flagUntracked       bool
	flagSnapshotBase    string
	flagSnapshotTarget  string
)

// overrideFlags maps flag names to the config keys they override.
var overrideFlags = map[string]string{
	"base":             "base",
	"scope":            "scope",
	"format":           "format",
	"jobs":             "jobs",
	"timeout":          "timeout",
	"merge-threshold":  "merge_threshold",
	"rename-threshold": "rename_threshold",
	"fail-on-crash":    "fail_on_crash",
	"untracked":        "untracked",
}

func addRevisionFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagBase, "base", "", "Base revision (default from config, HEAD)")
	cmd.Flags().StringVar(&flagTarget, "target", "", "Target revision (default: the working tree)")
	cmd.Flags().BoolVar(&flagStaged, "staged", false, "Use the index as the target")
	cmd.Flags().BoolVar(&flagWorktree, "worktree", false, "Use the working tree as the target")
}

func addGateFlags(cmd *cobra.Command) {
	addRevisionFlags(cmd)
	cmd.Flags().StringVar(&flagScope, "scope", "", "Scope: diff or whole-file")
	cmd.Flags().StringVar(&flagFormat, "format", "", "Output format (text, json, patch, sarif, markdown)")
	cmd.Flags().StringVar(&flagOut, "out", "", "Output file path (default: stdout)")
	cmd.Flags().IntVar(&flagJobs, "jobs", 0, "Concurrent formatter runs (default: one per CPU)")
	cmd.Flags().DurationVar(&flagTimeout, "timeout", 0, "Per-file formatter timeout")
	cmd.Flags().IntVar(&flagMergeThreshold, "merge-threshold", 0, "Merge edits separated by at most N unchanged lines")
	cmd.Flags().IntVar(&flagRenameThreshold, "rename-threshold", 0, "Rename similarity threshold in percent")
	cmd.Flags().StringVar(&flagExclude, "exclude", "", "Exclude file path globs (comma-separated)")
	cmd.Flags().BoolVar(&flagFailOnCrash, "fail-on-crash", false, "Exit 1 when a formatter fails on a file")
	cmd.Flags().BoolVar(&flagUntracked, "untracked", false, "Treat untracked files as added")
	cmd.Flags().StringVar(&flagSnapshotBase, "snapshot-base", "", "Compare directories: base snapshot")
	cmd.Flags().StringVar(&flagSnapshotTarget, "snapshot-target", "", "Compare directories: target snapshot")
}

var checkCmd = &cobra.Command{
	Use:   "check [paths...]",
	Short: "Report formatting problems on changed lines",
	Long: `Check formats every changed file and reports the corrections that touch
changed lines. It exits 1 when any are found.`,
	Run: func(cmd *cobra.Command, args []string) {
		runGate(cmd, args, false)
	},
}

var fixCmd = &cobra.Command{
	Use:   "fix [paths...]",
	Short: "Apply formatting to changed lines",
	Long: `Fix computes the same corrections as check and writes them into the
working tree, leaving every other line untouched.`,
	Run: func(cmd *cobra.Command, args []string) {
		runGate(cmd, args, true)
	},
}

// buildOverrides returns the config overrides for flags the user set.
func buildOverrides(fs *pflag.FlagSet) map[string]string {
	m := make(map[string]string)
	for name, key := range overrideFlags {
		if f := fs.Lookup(name); f != nil && f.Changed {
			m[key] = f.Value.String()
		}
	}
	return m
}

// targetRevision picks the target from --target, --staged and --worktree.
func targetRevision() (gate.Revision, error) {
	n := 0
	target := gate.WorkTree
	if flagTarget != "" {
		n++
		target = gate.Revision(flagTarget)
	}
	if flagStaged {
		n++
		target = gate.Staged
	}
	if flagWorktree {
		n++
		target = gate.WorkTree
	}
	if n > 1 {
		return "", fmt.Errorf("--target, --staged and --worktree are mutually exclusive")
	}
	return target, nil
}

// session is the backend and config a command runs against.
type session struct {
	backend gate.Backend
	repo    *gitctx.Repo // nil in snapshot mode
	root    string
	base    gate.Revision
	target  gate.Revision
	cfg     config.Config
}

// openSession locates the repository (or snapshot directories), loads the
// config and resolves the revisions. Failures are reported and recorded in
// exitCode; the returned bool is false when the command should stop.
func openSession(cmd *cobra.Command) (*session, bool) {
	ctx := cmd.Context()
	s := &session{}

	if flagSnapshotBase != "" || flagSnapshotTarget != "" {
		if flagSnapshotBase == "" || flagSnapshotTarget == "" {
			usageError("--snapshot-base and --snapshot-target must be used together")
			return nil, false
		}
		s.backend = snapshot.New(flagSnapshotBase, flagSnapshotTarget)
		s.base, s.target = snapshot.Base, snapshot.Target
	} else {
		target, err := targetRevision()
		if err != nil {
			usageError("%v", err)
			return nil, false
		}
		s.repo = gitctx.New("")
		s.backend = s.repo
		s.target = target
	}

	root, err := s.backend.Root(ctx)
	if err != nil {
		fail(err)
		return nil, false
	}
	s.root = root

	cfg, err := config.Load(root, buildOverrides(cmd.Flags()))
	if err != nil {
		usageError("loading config: %v", err)
		return nil, false
	}
	if flagExclude != "" {
		cfg.Exclude = append(cfg.Exclude, splitComma(flagExclude)...)
	}
	s.cfg = cfg

	if s.repo != nil {
		s.repo.Untracked = cfg.Untracked
		s.base = gate.Revision(cfg.Base)
	}
	logging.From(ctx).Debug("session",
		"root", root, "base", s.base, "target", s.target, "format", cfg.Format)
	return s, true
}

// readFile returns the current content of a repo path at the target.
func (s *session) readFile(ctx context.Context) func(string) ([]byte, error) {
	return func(path string) ([]byte, error) {
		return s.backend.ReadFile(ctx, s.target, path)
	}
}

func runGate(cmd *cobra.Command, args []string, fix bool) {
	ctx := cmd.Context()
	log := logging.From(ctx)

	s, ok := openSession(cmd)
	if !ok {
		return
	}
	if fix && s.repo != nil && s.target != gate.WorkTree {
		usageError("fix writes to the working tree; %s cannot be the target", s.target)
		return
	}

	paths, err := repoPaths(s.root, args)
	if err != nil {
		usageError("%v", err)
		return
	}
	scope, err := gate.ParseScope(s.cfg.Scope)
	if err != nil {
		usageError("%v", err)
		return
	}
	registry, err := buildRegistry(ctx, s.cfg)
	if err != nil {
		fail(err)
		return
	}

	g := &gate.Gate{
		Resolver: &gate.Resolver{
			Backend:         s.backend,
			Scope:           scope,
			RenameThreshold: s.cfg.RenameThreshold,
			Paths:           paths,
		},
		FormatterFor:   registry.For,
		Jobs:           s.cfg.Jobs,
		MergeThreshold: s.cfg.MergeThreshold,
		Version:        version,
	}

	report, err := g.Run(ctx, s.base, s.target)
	if err != nil {
		fail(err)
		return
	}
	if s.repo != nil {
		if meta, err := s.repo.Meta(ctx); err == nil {
			report.Repo.Head = meta.Head
			report.Repo.Branch = meta.Branch
		}
	}
	log.Debug("report", "summary", output.Summary(report), "run", report.RunID)

	if fix {
		applyFixes(ctx, s.root, report)
		return
	}

	opts := output.Options{Color: true, ReadFile: s.readFile(ctx)}
	if err := output.WriteReport(report, s.cfg.Format, flagOut, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing output: %v\n", err)
		exitCode = ExitRuntimeError
		return
	}

	if !report.Passed {
		exitCode = ExitFindings
		return
	}
	if s.cfg.FailOnCrash && len(report.Failures) > 0 {
		fmt.Fprintf(os.Stderr, "%d formatter failure(s) with --fail-on-crash\n", len(report.Failures))
		exitCode = ExitFindings
	}
}

func applyFixes(ctx context.Context, root string, report *gate.Report) {
	written, err := gate.Apply(ctx, root, report)
	_, byPath := report.EditsByPath()
	for _, p := range written {
		fmt.Fprintf(os.Stdout, "Formatted %s (%d edit(s))\n", p, len(byPath[p]))
	}
	for _, f := range report.Failures {
		fmt.Fprintf(os.Stderr, "Warning: %s failed on %s: %s\n", f.Formatter, f.Path, f.Message)
	}
	if err != nil {
		fail(err)
		return
	}
	if len(written) == 0 {
		fmt.Fprintln(os.Stdout, "No formatting issues on changed lines.")
	}
}

// buildRegistry maps the configured formatters to their file patterns. A
// formatter with a pinned version runs the provisioned binary.
func buildRegistry(ctx context.Context, cfg config.Config) (*formatter.Registry, error) {
	reg := &formatter.Registry{}
	reg.Exclude(cfg.Exclude...)

	var store *provision.Store
	for _, fc := range cfg.Formatters {
		spec := fc.Spec(cfg.Timeout.Duration)
		if fc.Version != "" {
			if store == nil {
				s, err := provision.New(cfg.CacheDir)
				if err != nil {
					return nil, err
				}
				store = s
			}
			path, err := store.ClangFormat(ctx, fc.Version)
			if err != nil {
				return nil, &gate.FormatterUnavailableError{
					Formatter: spec.Name,
					Err:       fmt.Errorf("provisioning version %s: %w", fc.Version, err),
				}
			}
			spec.Binary = path
		}
		f, err := formatter.New(spec)
		if err != nil {
			return nil, err
		}
		reg.Add(f, spec.Patterns...)
	}
	return reg, nil
}

// repoPaths converts command-line paths to slash-separated paths relative
// to root.
func repoPaths(root string, args []string) ([]string, error) {
	if len(args) == 0 {
		return nil, nil
	}
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		realRoot = root
	}
	var paths []string
	for _, arg := range args {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return nil, err
		}
		if dir, err := filepath.EvalSymlinks(filepath.Dir(abs)); err == nil {
			abs = filepath.Join(dir, filepath.Base(abs))
		}
		rel, err := filepath.Rel(realRoot, abs)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return nil, fmt.Errorf("%s is outside the repository", arg)
		}
		paths = append(paths, filepath.ToSlash(rel))
	}
	return paths, nil
}

func splitComma(s string) []string {
	parts := strings.Split(s, ",")
	var result []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

func init() {
	addGateFlags(checkCmd)
	addGateFlags(fixCmd)
}
