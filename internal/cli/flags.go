package cli

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// Shared run flags
var (
	flagDir         string
	flagBaseline    string
	flagBaselineDir string
	flagPaths       string
	flagExclude     string
	flagFormat      string
	flagOut         string
	flagMaxTokens   int
	flagWindow      int
	flagConcurrency int
	flagNoCache     bool
	flagNoRedact    bool
	flagVerbose     bool
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagDir, "dir", "C", "", "Working tree to analyze (default: current directory)")
	rootCmd.PersistentFlags().StringVar(&flagBaselineDir, "baseline-dir", "", "Compare against this directory instead of a git revision")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Log at debug level")
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagBaseline, "baseline", "", "Baseline revision (default HEAD)")
	cmd.Flags().StringVar(&flagPaths, "paths", "", "Include file path globs (comma-separated)")
	cmd.Flags().StringVar(&flagExclude, "exclude", "", "Exclude file path globs (comma-separated)")
	cmd.Flags().StringVar(&flagFormat, "format", "", "Output format (text, json, markdown)")
	cmd.Flags().StringVar(&flagOut, "out", "", "Output file path (default: stdout)")
	cmd.Flags().IntVar(&flagMaxTokens, "max-tokens", 0, "Token ceiling for a full file")
	cmd.Flags().IntVar(&flagWindow, "window", 0, "Context window lines around each change")
	cmd.Flags().IntVar(&flagConcurrency, "concurrency", 0, "Files processed in parallel")
	cmd.Flags().BoolVar(&flagNoCache, "no-cache", false, "Disable the result cache")
	cmd.Flags().BoolVar(&flagNoRedact, "no-redact", false, "Disable secret redaction (use with caution)")
}

// buildOverrides maps set flags to config keys.
func buildOverrides() map[string]string {
	m := make(map[string]string)
	if flagBaseline != "" {
		m["baseline"] = flagBaseline
	}
	if flagFormat != "" {
		m["format"] = flagFormat
	}
	if flagMaxTokens > 0 {
		m["maxTokensPerFile"] = strconv.Itoa(flagMaxTokens)
	}
	if flagWindow > 0 {
		m["contextWindowLines"] = strconv.Itoa(flagWindow)
	}
	if flagConcurrency > 0 {
		m["concurrency"] = strconv.Itoa(flagConcurrency)
	}
	if flagNoCache {
		m["cache.enabled"] = "false"
	}
	if flagNoRedact {
		m["privacy.redactSecrets"] = "false"
	}
	if flagVerbose {
		m["logLevel"] = "debug"
	}
	return m
}

func splitComma(s string) []string {
	parts := strings.Split(s, ",")
	var result []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
