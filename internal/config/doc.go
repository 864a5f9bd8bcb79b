// Package config loads and merges diffgate configuration from multiple sources.
//
// Precedence (highest to lowest):
//  1. CLI flags
//  2. Environment variables (DIFFGATE_BASE, DIFFGATE_FORMAT, DIFFGATE_JOBS, ...)
//  3. Repository file (.diffgate.toml at the working tree root)
//  4. User file ($XDG_CONFIG_HOME/diffgate/config.toml)
//  5. Built-in defaults
//
// Files are TOML. A key present in a file overrides the layers below it even
// when its value is the zero value. Formatters are declared as
// [[formatters]] tables; a file that declares any replaces the default list.
package config
