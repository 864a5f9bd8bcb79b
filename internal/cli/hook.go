package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dshills/diffgate/internal/gitctx"
)

const (
	hookMarkerStart = "# >>> diffgate pre-commit hook >>>"
	hookMarkerEnd   = "# <<< diffgate pre-commit hook <<<"
)

var (
	hookMode    string
	hookMarkers bool
)

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Manage git pre-commit hook",
}

var hookInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install diffgate as a git pre-commit hook",
	RunE: func(cmd *cobra.Command, args []string) error {
		if hookMode != "check" && hookMode != "fix" {
			return fmt.Errorf("invalid --mode %q (want check or fix)", hookMode)
		}
		hookPath, err := getHookPath(cmd)
		if err != nil {
			fail(err)
			return nil
		}

		section := generateHookScript(hookMode, hookMarkers)

		existing, err := os.ReadFile(hookPath)
		if err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Error reading hook file: %v\n", err)
			exitCode = ExitRuntimeError
			return nil
		}

		var content string
		if os.IsNotExist(err) || len(existing) == 0 {
			content = "#!/bin/sh\n" + section
		} else {
			content = replaceHookSection(string(existing), section)
		}

		if err := os.MkdirAll(filepath.Dir(hookPath), 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating hooks directory: %v\n", err)
			exitCode = ExitRuntimeError
			return nil
		}

		if err := os.WriteFile(hookPath, []byte(content), 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing hook file: %v\n", err)
			exitCode = ExitRuntimeError
			return nil
		}

		fmt.Fprintf(os.Stdout, "Installed diffgate pre-commit hook (%s mode) at %s\n", hookMode, hookPath)
		return nil
	},
}

var hookUninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove diffgate pre-commit hook",
	RunE: func(cmd *cobra.Command, args []string) error {
		hookPath, err := getHookPath(cmd)
		if err != nil {
			fail(err)
			return nil
		}

		existing, err := os.ReadFile(hookPath)
		if err != nil {
			if os.IsNotExist(err) {
				fmt.Fprintln(os.Stdout, "No pre-commit hook found.")
				return nil
			}
			fmt.Fprintf(os.Stderr, "Error reading hook file: %v\n", err)
			exitCode = ExitRuntimeError
			return nil
		}

		content := removeHookSection(string(existing))

		// Only a shebang left: the hook was ours alone.
		trimmed := strings.TrimSpace(content)
		if trimmed == "" || trimmed == "#!/bin/sh" || trimmed == "#!/bin/bash" {
			if err := os.Remove(hookPath); err != nil {
				fmt.Fprintf(os.Stderr, "Error removing hook file: %v\n", err)
				exitCode = ExitRuntimeError
				return nil
			}
			fmt.Fprintf(os.Stdout, "Removed diffgate pre-commit hook at %s\n", hookPath)
			return nil
		}

		if err := os.WriteFile(hookPath, []byte(content), 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing hook file: %v\n", err)
			exitCode = ExitRuntimeError
			return nil
		}

		fmt.Fprintf(os.Stdout, "Removed diffgate section from %s\n", hookPath)
		return nil
	},
}

var hookManifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Print a .pre-commit-hooks.yaml for the pre-commit framework",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := hookManifest()
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}

func getHookPath(cmd *cobra.Command) (string, error) {
	dir, err := gitctx.New("").HooksDir(cmd.Context())
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "pre-commit"), nil
}

func generateHookScript(mode string, markers bool) string {
	var b strings.Builder
	b.WriteString(hookMarkerStart + "\n")
	if mode == "fix" {
		writeHookStep(&b, "diffgate fix", "")
		writeHookStep(&b, "diffgate check --staged",
			"diffgate: formatting applied to the working tree; review and stage it, then commit again")
	} else {
		writeHookStep(&b, "diffgate check --staged",
			"diffgate: changed lines are not formatted, run 'diffgate fix' (commit blocked)")
	}
	if markers {
		writeHookStep(&b, "diffgate markers --diff --staged",
			"diffgate: staged changes add a forbidden marker (commit blocked)")
	}
	b.WriteString(hookMarkerEnd + "\n")
	return b.String()
}

// writeHookStep runs command and applies the hook's exit policy: 1 blocks
// the commit with blockMsg, 130 aborts, anything else non-zero warns and lets
// the commit through. An empty blockMsg treats 1 like any other failure.
func writeHookStep(b *strings.Builder, command, blockMsg string) {
	b.WriteString(command + "\n")
	b.WriteString("DIFFGATE_EXIT=$?\n")
	if blockMsg != "" {
		b.WriteString("if [ $DIFFGATE_EXIT -eq 1 ]; then\n")
		fmt.Fprintf(b, "  echo %q\n", blockMsg)
		b.WriteString("  exit 1\n")
		b.WriteString("elif [ $DIFFGATE_EXIT -eq 130 ]; then\n")
	} else {
		b.WriteString("if [ $DIFFGATE_EXIT -eq 130 ]; then\n")
	}
	b.WriteString("  exit 130\n")
	b.WriteString("elif [ $DIFFGATE_EXIT -ne 0 ]; then\n")
	fmt.Fprintf(b, "  echo \"diffgate: warning: '%s' could not run (exit $DIFFGATE_EXIT), allowing commit\"\n", command)
	b.WriteString("fi\n")
}

func replaceHookSection(existing, section string) string {
	startIdx := strings.Index(existing, hookMarkerStart)
	endIdx := strings.Index(existing, hookMarkerEnd)

	if startIdx == -1 || endIdx == -1 {
		if !strings.HasSuffix(existing, "\n") {
			existing += "\n"
		}
		return existing + section
	}

	before := existing[:startIdx]
	after := existing[endIdx+len(hookMarkerEnd):]
	after = strings.TrimPrefix(after, "\n")
	return before + section + after
}

func removeHookSection(existing string) string {
	startIdx := strings.Index(existing, hookMarkerStart)
	endIdx := strings.Index(existing, hookMarkerEnd)

	if startIdx == -1 || endIdx == -1 {
		return existing
	}

	before := existing[:startIdx]
	after := existing[endIdx+len(hookMarkerEnd):]
	after = strings.TrimPrefix(after, "\n")

	return before + after
}

// manifestHook is one entry of a pre-commit framework hooks manifest.
type manifestHook struct {
	ID             string   `yaml:"id"`
	Name           string   `yaml:"name"`
	Description    string   `yaml:"description"`
	Entry          string   `yaml:"entry"`
	Language       string   `yaml:"language"`
	Args           []string `yaml:"args,omitempty"`
	Files          string   `yaml:"files,omitempty"`
	PassFilenames  bool     `yaml:"pass_filenames"`
	RequireSerial  bool     `yaml:"require_serial,omitempty"`
	MinimumVersion string   `yaml:"minimum_pre_commit_version,omitempty"`
}

var manifestHooks = []manifestHook{
	{
		ID:             "diffgate-check",
		Name:           "diffgate check",
		Description:    "Check that staged changed lines are formatted",
		Entry:          "diffgate check --staged",
		Language:       "golang",
		Files:          `\.(c|cc|cpp|cxx|h|hh|hpp|hxx|m|mm|proto|java|js|ts|cs)$|(^|/)(BUILD|WORKSPACE)(\.bazel)?$|\.(bzl|star)$`,
		PassFilenames:  true,
		RequireSerial:  true,
		MinimumVersion: "2.9.0",
	},
	{
		ID:            "diffgate-fix",
		Name:          "diffgate fix",
		Description:   "Format changed lines in the working tree",
		Entry:         "diffgate fix",
		Language:      "golang",
		PassFilenames: true,
		RequireSerial: true,
	},
	{
		ID:            "do-not-submit",
		Name:          "Check for DO NOT SUBMIT",
		Description:   `Fail when files contain "DO NOT SUBMIT"`,
		Entry:         "diffgate markers",
		Language:      "golang",
		PassFilenames: true,
	},
}

func hookManifest() ([]byte, error) {
	data, err := yaml.Marshal(manifestHooks)
	if err != nil {
		return nil, fmt.Errorf("encoding hook manifest: %w", err)
	}
	return data, nil
}

func init() {
	hookCmd.AddCommand(hookInstallCmd)
	hookCmd.AddCommand(hookUninstallCmd)
	hookCmd.AddCommand(hookManifestCmd)
	hookInstallCmd.Flags().StringVar(&hookMode, "mode", "check", "Hook mode: check blocks unformatted commits, fix also formats them")
	hookInstallCmd.Flags().BoolVar(&hookMarkers, "markers", true, "Also block commits that add DO NOT SUBMIT markers")
}
