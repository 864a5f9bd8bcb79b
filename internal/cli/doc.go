// Package cli wires together the Cobra command tree for the diffgate binary.
//
// It defines the root command and all subcommands (check, fix, markers,
// fetch, hook, config, cache, version), binds flags, loads configuration,
// runs the gate and maps its errors to deterministic exit codes for hooks
// and CI.
package cli
