package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/diffgate/internal/config"
	"github.com/dshills/diffgate/internal/gate"
	"github.com/dshills/diffgate/internal/gitctx"
	"github.com/dshills/diffgate/internal/marker"
)

var (
	flagMarkerDiff     bool
	flagMarkerPatterns []string
)

var markersCmd = &cobra.Command{
	Use:   "markers [files...]",
	Short: `Fail when files contain "DO NOT SUBMIT" style markers`,
	Long: `Markers scans the given files for forbidden markers and exits 1 when one is
found, or 2 when a file cannot be read. With --diff it scans only the lines
changed between the base and target revisions.`,
	Run: func(cmd *cobra.Command, args []string) {
		if flagMarkerDiff {
			runMarkersDiff(cmd, args)
			return
		}
		if len(args) == 0 {
			usageError("no files given (use --diff to scan changed lines)")
			return
		}
		runMarkersFiles(cmd, args)
	},
}

// markerScanner uses --pattern values, falling back to the config.
func markerScanner(cfg config.Config) *marker.Scanner {
	if len(flagMarkerPatterns) > 0 {
		return marker.New(flagMarkerPatterns...)
	}
	return marker.New(cfg.Markers.Patterns...)
}

func runMarkersFiles(cmd *cobra.Command, files []string) {
	root, _ := gitctx.New("").Root(cmd.Context())
	cfg, err := config.Load(root, nil)
	if err != nil {
		usageError("loading config: %v", err)
		return
	}
	scanner := markerScanner(cfg)

	var hits []marker.Hit
	readFailed := false
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", f, err)
			readFailed = true
			continue
		}
		hits = append(hits, scanner.Scan(f, data)...)
	}
	reportHits(hits)
	if readFailed {
		exitCode = ExitUsageError
	}
}

func runMarkersDiff(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	target, err := targetRevision()
	if err != nil {
		usageError("%v", err)
		return
	}
	repo := gitctx.New("")
	root, err := repo.Root(ctx)
	if err != nil {
		fail(err)
		return
	}
	overrides := map[string]string{}
	if flagBase != "" {
		overrides["base"] = flagBase
	}
	cfg, err := config.Load(root, overrides)
	if err != nil {
		usageError("loading config: %v", err)
		return
	}
	repo.Untracked = cfg.Untracked
	paths, err := repoPaths(root, args)
	if err != nil {
		usageError("%v", err)
		return
	}

	resolver := &gate.Resolver{
		Backend:         repo,
		Scope:           gate.ScopeDiff,
		RenameThreshold: cfg.RenameThreshold,
		Paths:           paths,
	}
	res, err := resolver.Resolve(ctx, gate.Revision(cfg.Base), target)
	if err != nil {
		fail(err)
		return
	}

	scanner := markerScanner(cfg)
	var hits []marker.Hit
	for _, change := range res.Changes {
		if len(change.AddedRanges) == 0 {
			continue
		}
		data, err := repo.ReadFile(ctx, target, change.Path)
		if err != nil {
			fail(fmt.Errorf("reading %s: %w", change.Path, err))
			return
		}
		hits = append(hits, scanner.ScanScoped(change, data)...)
	}
	reportHits(hits)
}

// reportHits prints hits as path:line:text and sets exit code 1 when there
// are any.
func reportHits(hits []marker.Hit) {
	if len(hits) == 0 {
		return
	}
	seen := make(map[string]bool)
	var patterns []string
	for _, h := range hits {
		if !seen[h.Pattern] {
			seen[h.Pattern] = true
			patterns = append(patterns, fmt.Sprintf("%q", h.Pattern))
		}
	}
	fmt.Fprintf(os.Stderr, "Error: %s found!\n", strings.Join(patterns, ", "))
	for _, h := range hits {
		fmt.Fprintf(os.Stdout, "%s:%d:%s\n", h.Path, h.Line, h.Text)
	}
	exitCode = ExitFindings
}

func init() {
	addRevisionFlags(markersCmd)
	markersCmd.Flags().BoolVar(&flagMarkerDiff, "diff", false, "Scan only lines changed between base and target")
	markersCmd.Flags().StringArrayVar(&flagMarkerPatterns, "pattern", nil, "Marker to search for (repeatable)")
}
