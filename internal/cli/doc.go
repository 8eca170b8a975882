// Package cli wires together the Cobra command tree for the focus binary.
//
// It defines the root command and its subcommands (analyze, extract, watch,
// cache, config, hook, version), binds flags onto config overrides, opens
// the caches for the project and returns exit codes for scripts and hooks.
package cli
