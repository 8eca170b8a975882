package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

// Exit codes
const (
	ExitSuccess      = 0
	ExitUsageError   = 2
	ExitRuntimeError = 4
)

var rootCmd = &cobra.Command{
	Use:   "focus",
	Short: "Change-aware context extraction for code review",
	Long: "Focus decides, per changed file, how much of it a reviewer needs to see " +
		"and extracts exactly that: the diff, windows around changes, enclosing blocks, " +
		"a summary, or the whole file.",
	Version:      version,
	SilenceUsage: true,
}

// exitCode is set by command handlers; Run returns it when cobra itself
// reports no error.
var exitCode = ExitSuccess

// fail reports a runtime error and sets the exit code.
func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	exitCode = ExitRuntimeError
}

// Run executes the root command and returns an exit code.
func Run() int {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error
		return ExitUsageError
	}
	return exitCode
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print focus version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(os.Stdout, "focus %s\n", version)
	},
}

func init() {
	rootCmd.SetVersionTemplate("focus {{.Version}}\n")
	rootCmd.AddCommand(analyzeCmd, extractCmd, watchCmd, cacheCmd, configCmd, hookCmd, versionCmd)
}
