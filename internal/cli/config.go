package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dshills/diffgate/internal/config"
	"github.com/dshills/diffgate/internal/gitctx"
)

var flagConfigRepo bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage diffgate configuration",
}

// configFilePath returns the user config path, or the repository's
// .diffgate.toml with --repo.
func configFilePath(cmd *cobra.Command) (string, error) {
	if !flagConfigRepo {
		return config.ConfigPath()
	}
	root, err := gitctx.New("").Root(cmd.Context())
	if err != nil {
		return "", err
	}
	return filepath.Join(root, config.RepoFile), nil
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configFilePath(cmd)
		if err != nil {
			return err
		}

		if _, err := os.Stat(path); err == nil {
			fmt.Fprintf(os.Stderr, "Config file already exists at %s\n", path)
			return nil
		}

		cfg := config.Default()
		if err := config.Save(path, cfg); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Fprintf(os.Stdout, "Config file created at %s\n", path)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configFilePath(cmd)
		if err != nil {
			return err
		}

		cfg, err := config.LoadFile(path)
		if err != nil {
			return err
		}

		if err := config.SetField(&cfg, args[0], args[1]); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		if err := config.Save(path, cfg); err != nil {
			return fmt.Errorf("saving config: %w", err)
		}

		fmt.Fprintf(os.Stdout, "Set %s = %s\n", args[0], args[1])
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		root, _ := gitctx.New("").Root(cmd.Context())
		cfg, err := config.Load(root, nil)
		if err != nil {
			return err
		}

		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return err
		}

		fmt.Fprintln(os.Stdout, string(data))
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.PersistentFlags().BoolVar(&flagConfigRepo, "repo", false, "Use the repository's "+config.RepoFile+" instead of the user config")
}
