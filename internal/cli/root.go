package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/diffgate/internal/gate"
	"github.com/dshills/diffgate/internal/logging"
)

const version = "0.3.0"

// Exit codes
const (
	ExitSuccess      = 0
	ExitFindings     = 1
	ExitUsageError   = 2
	ExitFatal        = 3
	ExitRuntimeError = 4
	ExitCancelled    = 130
)

var flagVerbose bool

var rootCmd = &cobra.Command{
	Use:   "diffgate",
	Short: "Formatting gate for changed lines",
	Long: "Diffgate runs code formatters over the lines a change touched and reports or applies " +
		"only the corrections that fall on those lines.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := logging.ParseLevel(os.Getenv("DIFFGATE_LOG_LEVEL"))
		if flagVerbose {
			level = slog.LevelDebug
		}
		ctx := logging.Put(cmd.Context(), logging.New(os.Stderr, level))
		cmd.SetContext(ctx)
	},
}

// Run executes the root command and returns an exit code. SIGINT and
// SIGTERM cancel the running command.
func Run() int {
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(fixCmd)
	rootCmd.AddCommand(markersCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(hookCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(versionCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		// Cobra already prints the error
		return ExitUsageError
	}

	return exitCode
}

// exitCode is set by command handlers to control the process exit code.
var exitCode = ExitSuccess

// fail reports err on stderr and records the exit code it maps to.
func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	exitCode = codeFor(err)
}

// usageError reports a bad invocation detected after flag parsing.
func usageError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	exitCode = ExitUsageError
}

func codeFor(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, gate.ErrCancelled), errors.Is(err, context.Canceled):
		return ExitCancelled
	case gate.IsFatal(err):
		return ExitFatal
	default:
		return ExitRuntimeError
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print diffgate version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(os.Stdout, "diffgate version %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable debug logging")
}
