package cli

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/diffgate/internal/config"
	"github.com/dshills/diffgate/internal/gitctx"
	"github.com/dshills/diffgate/internal/provision"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download pinned formatter binaries",
}

var fetchClangFormatCmd = &cobra.Command{
	Use:       "clang-format <version>",
	Short:     "Download a pinned clang-format build into the cache",
	Long:      "Available versions: " + strings.Join(provision.Versions(), ", "),
	Args:      cobra.ExactArgs(1),
	ValidArgs: provision.Versions(),
	Run: func(cmd *cobra.Command, args []string) {
		if _, err := provision.SHA(args[0], runtime.GOOS); err != nil {
			usageError("%v", err)
			return
		}
		store, ok := openStore(cmd)
		if !ok {
			return
		}
		path, err := store.ClangFormat(cmd.Context(), args[0])
		if err != nil {
			fail(err)
			return
		}
		fmt.Fprintln(os.Stdout, path)
	},
}

// openStore returns the provisioning store for the configured cache dir.
func openStore(cmd *cobra.Command) (*provision.Store, bool) {
	root, _ := gitctx.New("").Root(cmd.Context())
	cfg, err := config.Load(root, nil)
	if err != nil {
		usageError("loading config: %v", err)
		return nil, false
	}
	store, err := provision.New(cfg.CacheDir)
	if err != nil {
		fail(err)
		return nil, false
	}
	return store, true
}

func init() {
	fetchCmd.AddCommand(fetchClangFormatCmd)
}
