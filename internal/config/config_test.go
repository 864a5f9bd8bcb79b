package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dshills/diffgate/internal/formatter"
)

// isolate points the user config at an empty temp dir and clears DIFFGATE_*
// variables.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	for _, key := range Keys {
		t.Setenv(EnvName(key), "")
	}
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Base != "HEAD" {
		t.Errorf("Default base = %q, want HEAD", cfg.Base)
	}
	if cfg.Scope != "diff" {
		t.Errorf("Default scope = %q, want diff", cfg.Scope)
	}
	if cfg.Format != "text" {
		t.Errorf("Default format = %q, want text", cfg.Format)
	}
	if cfg.Timeout.Duration != 30*time.Second {
		t.Errorf("Default timeout = %v, want 30s", cfg.Timeout)
	}
	if cfg.RenameThreshold != 50 {
		t.Errorf("Default renameThreshold = %d, want 50", cfg.RenameThreshold)
	}
	if cfg.MergeThreshold != 0 {
		t.Errorf("Default mergeThreshold = %d, want 0", cfg.MergeThreshold)
	}
	if len(cfg.Formatters) != 2 {
		t.Errorf("Default formatters = %+v", cfg.Formatters)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config invalid: %v", err)
	}
}

func TestMergeEnv(t *testing.T) {
	isolate(t)
	t.Setenv("DIFFGATE_BASE", "origin/main")
	t.Setenv("DIFFGATE_FORMAT", "json")
	t.Setenv("DIFFGATE_JOBS", "3")
	t.Setenv("DIFFGATE_TIMEOUT", "5s")
	t.Setenv("DIFFGATE_FAIL_ON_CRASH", "true")
	t.Setenv("DIFFGATE_EXCLUDE", "third_party/**, gen/**")

	cfg := Default()
	if err := mergeEnv(&cfg); err != nil {
		t.Fatalf("mergeEnv error: %v", err)
	}
	if cfg.Base != "origin/main" {
		t.Errorf("Base = %q", cfg.Base)
	}
	if cfg.Format != "json" {
		t.Errorf("Format = %q", cfg.Format)
	}
	if cfg.Jobs != 3 {
		t.Errorf("Jobs = %d", cfg.Jobs)
	}
	if cfg.Timeout.Duration != 5*time.Second {
		t.Errorf("Timeout = %v", cfg.Timeout)
	}
	if !cfg.FailOnCrash {
		t.Error("FailOnCrash should be true")
	}
	if len(cfg.Exclude) != 2 || cfg.Exclude[1] != "gen/**" {
		t.Errorf("Exclude = %v", cfg.Exclude)
	}
}

func TestMergeEnv_Invalid(t *testing.T) {
	isolate(t)
	t.Setenv("DIFFGATE_JOBS", "many")

	cfg := Default()
	err := mergeEnv(&cfg)
	if err == nil || !strings.Contains(err.Error(), "DIFFGATE_JOBS") {
		t.Errorf("mergeEnv error = %v, want one naming DIFFGATE_JOBS", err)
	}
}

func TestSetField(t *testing.T) {
	cfg := Default()
	sets := map[string]string{
		"scope":            "whole-file",
		"merge_threshold":  "2",
		"rename_threshold": "80",
		"untracked":        "yes",
		"markers":          "DO NOT SUBMIT,NOCOMMIT",
	}
	for k, v := range sets {
		err := SetField(&cfg, k, v)
		if k == "untracked" {
			if err == nil {
				t.Error("untracked=yes should be rejected")
			}
			continue
		}
		if err != nil {
			t.Fatalf("SetField(%s) error: %v", k, err)
		}
	}
	if cfg.Scope != "whole-file" || cfg.MergeThreshold != 2 || cfg.RenameThreshold != 80 {
		t.Errorf("cfg = %+v", cfg)
	}
	if len(cfg.Markers.Patterns) != 2 || cfg.Markers.Patterns[1] != "NOCOMMIT" {
		t.Errorf("Markers = %v", cfg.Markers.Patterns)
	}
}

func TestSetField_UnknownKey(t *testing.T) {
	cfg := Default()
	if err := SetField(&cfg, "provider", "x"); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestSetField_InvalidDuration(t *testing.T) {
	cfg := Default()
	if err := SetField(&cfg, "timeout", "soon"); err == nil {
		t.Error("expected error for invalid duration")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"scope", func(c *Config) { c.Scope = "lines" }},
		{"format", func(c *Config) { c.Format = "html" }},
		{"jobs", func(c *Config) { c.Jobs = -1 }},
		{"rename threshold", func(c *Config) { c.RenameThreshold = 101 }},
		{"merge threshold", func(c *Config) { c.MergeThreshold = -2 }},
		{"command without binary", func(c *Config) {
			c.Formatters = []Formatter{{Name: "x", Kind: formatter.KindCommand}}
		}},
		{"unknown kind", func(c *Config) {
			c.Formatters = []Formatter{{Name: "x", Kind: "gofmt"}}
		}},
		{"version on buildifier", func(c *Config) {
			c.Formatters = []Formatter{{Name: "b", Kind: formatter.KindBuildifier, Version: "6.0.0"}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate should fail")
			}
		})
	}
}

func TestConfigDir_XDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	dir, err := ConfigDir()
	if err != nil {
		t.Fatalf("ConfigDir error: %v", err)
	}
	if dir != filepath.Join("/tmp/xdg", "diffgate") {
		t.Errorf("ConfigDir = %q", dir)
	}
	path, err := ConfigPath()
	if err != nil {
		t.Fatalf("ConfigPath error: %v", err)
	}
	if filepath.Base(path) != "config.toml" {
		t.Errorf("ConfigPath = %q, want config.toml", path)
	}
}

func TestSaveAndLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := Default()
	cfg.Format = "sarif"
	cfg.Timeout = Duration{90 * time.Second}
	cfg.Formatters = append(cfg.Formatters, Formatter{
		Name:     "prettier",
		Kind:     formatter.KindCommand,
		Patterns: []string{"**/*.md"},
		Command:  "prettier",
		Args:     []string{"--stdin-filepath", "{path}"},
	})

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	got, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile error: %v", err)
	}
	if got.Format != "sarif" || got.Timeout.Duration != 90*time.Second {
		t.Errorf("round trip lost scalars: %+v", got)
	}
	if len(got.Formatters) != 3 || got.Formatters[2].Args[1] != "{path}" {
		t.Errorf("round trip lost formatters: %+v", got.Formatters)
	}
}

func TestLoadFile_NoFile(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("LoadFile error: %v", err)
	}
	if cfg.Format != "text" || cfg.Base != "HEAD" {
		t.Errorf("missing file should give the defaults, got %+v", cfg)
	}
}

func TestLoadFile_PartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, "jobs = 8\n")
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile error: %v", err)
	}
	if cfg.Jobs != 8 || cfg.Format != "text" || len(cfg.Formatters) != 2 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadFile_UnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, "formt = \"json\"\n")
	if _, err := LoadFile(path); err == nil || !strings.Contains(err.Error(), "formt") {
		t.Errorf("LoadFile error = %v, want unknown key formt", err)
	}
}

func TestLoad_Precedence(t *testing.T) {
	xdg := isolate(t)
	repo := t.TempDir()
	writeFile(t, filepath.Join(xdg, "diffgate", "config.toml"), `
format = "json"
jobs = 2
fail_on_crash = true
`)
	writeFile(t, filepath.Join(repo, RepoFile), `
jobs = 4
fail_on_crash = false

[[formatters]]
name = "cf11"
kind = "clang-format"
version = "11.0.0"
style = "Google"
timeout = "10s"
`)
	t.Setenv("DIFFGATE_JOBS", "6")

	cfg, err := Load(repo, map[string]string{"format": "patch"})
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Format != "patch" {
		t.Errorf("flag should win: Format = %q", cfg.Format)
	}
	if cfg.Jobs != 6 {
		t.Errorf("env should beat files: Jobs = %d", cfg.Jobs)
	}
	if cfg.FailOnCrash {
		t.Error("repo file should override the user file's fail_on_crash = true")
	}
	if len(cfg.Formatters) != 1 || cfg.Formatters[0].Version != "11.0.0" {
		t.Fatalf("repo formatters should replace defaults: %+v", cfg.Formatters)
	}
	spec := cfg.Formatters[0].Spec(cfg.Timeout.Duration)
	if spec.Timeout != 10*time.Second || spec.Style != "Google" || len(spec.Patterns) == 0 {
		t.Errorf("Spec = %+v", spec)
	}
	if cfg.Base != "HEAD" {
		t.Errorf("unset keys keep defaults: Base = %q", cfg.Base)
	}
}

func TestLoad_InvalidOverride(t *testing.T) {
	isolate(t)
	if _, err := Load("", map[string]string{"scope": "everything"}); err == nil {
		t.Error("invalid scope override should fail validation")
	}
}

func TestFormatterSpecDefaults(t *testing.T) {
	spec := Formatter{Kind: formatter.KindBuildifier}.Spec(time.Minute)
	if spec.Name != "buildifier" {
		t.Errorf("Name = %q, want the kind", spec.Name)
	}
	if spec.Timeout != time.Minute {
		t.Errorf("Timeout = %v, want the default", spec.Timeout)
	}
	if len(spec.Patterns) != len(formatter.BuildifierPatterns) {
		t.Errorf("Patterns = %v", spec.Patterns)
	}
}
