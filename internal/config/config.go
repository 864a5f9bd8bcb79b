package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/natefinch/atomic"

	"github.com/dshills/diffgate/internal/formatter"
	"github.com/dshills/diffgate/internal/gate"
)

// RepoFile is the per-repository config file, looked up at the working tree
// root.
const RepoFile = ".diffgate.toml"

// Config represents the diffgate configuration.
type Config struct {
	Base            string      `toml:"base" json:"base"`
	Scope           string      `toml:"scope" json:"scope"`
	Format          string      `toml:"format" json:"format"`
	Jobs            int         `toml:"jobs" json:"jobs"`
	Timeout         Duration    `toml:"timeout" json:"timeout"`
	MergeThreshold  int         `toml:"merge_threshold" json:"mergeThreshold"`
	RenameThreshold int         `toml:"rename_threshold" json:"renameThreshold"`
	FailOnCrash     bool        `toml:"fail_on_crash" json:"failOnCrash"`
	Untracked       bool        `toml:"untracked" json:"untracked"`
	Exclude         []string    `toml:"exclude" json:"exclude"`
	LogLevel        string      `toml:"log_level" json:"logLevel"`
	CacheDir        string      `toml:"cache_dir,omitempty" json:"cacheDir,omitempty"`
	Markers         Markers     `toml:"markers" json:"markers"`
	Formatters      []Formatter `toml:"formatters" json:"formatters"`
}

// Markers configures the forbidden-marker scan.
type Markers struct {
	Patterns []string `toml:"patterns" json:"patterns"`
}

// Formatter maps file patterns to one formatter.
type Formatter struct {
	Name     string   `toml:"name" json:"name"`
	Kind     string   `toml:"kind" json:"kind"`
	Patterns []string `toml:"patterns,omitempty" json:"patterns,omitempty"`
	Command  string   `toml:"command,omitempty" json:"command,omitempty"`
	Args     []string `toml:"args,omitempty" json:"args,omitempty"`
	Style    string   `toml:"style,omitempty" json:"style,omitempty"`
	// Version pins a clang-format release to download instead of using
	// the binary on PATH.
	Version string   `toml:"version,omitempty" json:"version,omitempty"`
	Timeout Duration `toml:"timeout,omitempty" json:"timeout,omitempty"`
}

// Spec converts the entry to a formatter.Spec. Patterns default to the
// kind's built-in list.
func (f Formatter) Spec(defaultTimeout time.Duration) formatter.Spec {
	patterns := f.Patterns
	if len(patterns) == 0 {
		patterns = formatter.DefaultPatterns(f.Kind)
	}
	timeout := f.Timeout.Duration
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	name := f.Name
	if name == "" {
		name = f.Kind
	}
	return formatter.Spec{
		Name:     name,
		Kind:     f.Kind,
		Patterns: patterns,
		Binary:   f.Command,
		Args:     f.Args,
		Style:    f.Style,
		Timeout:  timeout,
	}
}

// Duration is a time.Duration written as a string such as "30s".
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Base:            "HEAD",
		Scope:           string(gate.ScopeDiff),
		Format:          "text",
		Timeout:         Duration{formatter.DefaultTimeout},
		RenameThreshold: gate.DefaultRenameThreshold,
		LogLevel:        "info",
		Markers:         Markers{Patterns: []string{"DO NOT SUBMIT"}},
		Formatters: []Formatter{
			{Name: "clang-format", Kind: formatter.KindClangFormat},
			{Name: "buildifier", Kind: formatter.KindBuildifier},
		},
	}
}

// ConfigDir returns the platform-appropriate config directory for diffgate.
func ConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "diffgate"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "diffgate"), nil
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "diffgate"), nil
		}
		return filepath.Join(home, "AppData", "Roaming", "diffgate"), nil
	default:
		return filepath.Join(home, ".config", "diffgate"), nil
	}
}

// ConfigPath returns the full path to the user config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// layer is one decoded config file together with the keys it set.
type layer struct {
	cfg Config
	md  toml.MetaData
}

// LoadFile returns the defaults overlaid with the keys set in one config
// file. A missing file yields the defaults.
func LoadFile(path string) (Config, error) {
	l, err := loadLayer(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	mergeFile(&cfg, l)
	return cfg, nil
}

func loadLayer(path string) (layer, error) {
	var l layer
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return layer{}, nil
		}
		return layer{}, fmt.Errorf("reading config file: %w", err)
	}
	md, err := toml.Decode(string(data), &l.cfg)
	if err != nil {
		return layer{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return layer{}, fmt.Errorf("parsing %s: unknown key %q", path, undecoded[0].String())
	}
	l.md = md
	return l, nil
}

// Save writes cfg as TOML to path, creating parent directories.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := atomic.WriteFile(path, &buf); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Load builds the effective config by merging:
// defaults <- user file <- repository file <- env <- overrides.
// repoRoot may be empty when there is no working tree. The overrides map
// comes from CLI flags (only flags the user set should be present).
func Load(repoRoot string, overrides map[string]string) (Config, error) {
	cfg := Default()

	userPath, err := ConfigPath()
	if err != nil {
		return Config{}, err
	}
	paths := []string{userPath}
	if repoRoot != "" {
		paths = append(paths, filepath.Join(repoRoot, RepoFile))
	}
	for _, p := range paths {
		l, err := loadLayer(p)
		if err != nil {
			return Config{}, err
		}
		mergeFile(&cfg, l)
	}

	if err := mergeEnv(&cfg); err != nil {
		return Config{}, err
	}
	for key, value := range overrides {
		if err := SetField(&cfg, key, value); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// mergeFile copies every key the file defined.
func mergeFile(dst *Config, src layer) {
	set := func(key ...string) bool { return src.md.IsDefined(key...) }
	if set("base") {
		dst.Base = src.cfg.Base
	}
	if set("scope") {
		dst.Scope = src.cfg.Scope
	}
	if set("format") {
		dst.Format = src.cfg.Format
	}
	if set("jobs") {
		dst.Jobs = src.cfg.Jobs
	}
	if set("timeout") {
		dst.Timeout = src.cfg.Timeout
	}
	if set("merge_threshold") {
		dst.MergeThreshold = src.cfg.MergeThreshold
	}
	if set("rename_threshold") {
		dst.RenameThreshold = src.cfg.RenameThreshold
	}
	if set("fail_on_crash") {
		dst.FailOnCrash = src.cfg.FailOnCrash
	}
	if set("untracked") {
		dst.Untracked = src.cfg.Untracked
	}
	if set("exclude") {
		dst.Exclude = src.cfg.Exclude
	}
	if set("log_level") {
		dst.LogLevel = src.cfg.LogLevel
	}
	if set("cache_dir") {
		dst.CacheDir = src.cfg.CacheDir
	}
	if set("markers", "patterns") {
		dst.Markers.Patterns = src.cfg.Markers.Patterns
	}
	if set("formatters") {
		dst.Formatters = src.cfg.Formatters
	}
}

// Keys lists the scalar settings accepted by SetField, the CLI overrides
// map and the DIFFGATE_* environment.
var Keys = []string{
	"base", "scope", "format", "jobs", "timeout", "merge_threshold",
	"rename_threshold", "fail_on_crash", "untracked", "exclude", "log_level",
	"cache_dir", "markers",
}

// EnvName returns the environment variable that sets key.
func EnvName(key string) string {
	return "DIFFGATE_" + strings.ToUpper(key)
}

func mergeEnv(cfg *Config) error {
	for _, key := range Keys {
		if v := os.Getenv(EnvName(key)); v != "" {
			if err := SetField(cfg, key, v); err != nil {
				return fmt.Errorf("%s: %w", EnvName(key), err)
			}
		}
	}
	return nil
}

// SetField sets a single config field by key name. List values are comma
// separated. Returns error if key is unknown.
func SetField(cfg *Config, key, value string) error {
	switch key {
	case "base":
		cfg.Base = value
	case "scope":
		cfg.Scope = value
	case "format":
		cfg.Format = value
	case "jobs":
		return setInt(&cfg.Jobs, key, value)
	case "timeout":
		return cfg.Timeout.UnmarshalText([]byte(value))
	case "merge_threshold":
		return setInt(&cfg.MergeThreshold, key, value)
	case "rename_threshold":
		return setInt(&cfg.RenameThreshold, key, value)
	case "fail_on_crash":
		return setBool(&cfg.FailOnCrash, key, value)
	case "untracked":
		return setBool(&cfg.Untracked, key, value)
	case "exclude":
		cfg.Exclude = splitList(value)
	case "log_level":
		cfg.LogLevel = value
	case "cache_dir":
		cfg.CacheDir = value
	case "markers":
		cfg.Markers.Patterns = splitList(value)
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return nil
}

func setInt(dst *int, key, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("%s must be an integer: %w", key, err)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, key, value string) error {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("%s must be true or false: %w", key, err)
	}
	*dst = b
	return nil
}

func splitList(value string) []string {
	var out []string
	for _, s := range strings.Split(value, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Formats lists the supported report formats.
var Formats = []string{"text", "json", "patch", "sarif", "markdown"}

// Validate checks values that cannot be caught while decoding.
func (c Config) Validate() error {
	if _, err := gate.ParseScope(c.Scope); err != nil {
		return err
	}
	valid := false
	for _, f := range Formats {
		if c.Format == f {
			valid = true
		}
	}
	if !valid {
		return fmt.Errorf("unknown format %q (want one of %s)", c.Format, strings.Join(Formats, ", "))
	}
	if c.Jobs < 0 {
		return fmt.Errorf("jobs must not be negative")
	}
	if c.MergeThreshold < 0 {
		return fmt.Errorf("merge_threshold must not be negative")
	}
	if c.RenameThreshold < 0 || c.RenameThreshold > 100 {
		return fmt.Errorf("rename_threshold must be between 0 and 100")
	}
	if c.Timeout.Duration < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	for i, f := range c.Formatters {
		switch f.Kind {
		case formatter.KindClangFormat, formatter.KindBuildifier:
		case formatter.KindCommand, "":
			if f.Command == "" {
				return fmt.Errorf("formatters[%d] (%s): command is required", i, f.Name)
			}
		default:
			return fmt.Errorf("formatters[%d] (%s): unknown kind %q", i, f.Name, f.Kind)
		}
		if f.Version != "" && f.Kind != formatter.KindClangFormat {
			return fmt.Errorf("formatters[%d] (%s): version is only supported for clang-format", i, f.Name)
		}
	}
	return nil
}
