package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/focus/internal/output"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [paths...]",
	Short: "Show how each changed file would be extracted",
	Long: "Analyze every changed file (or the given paths) against the baseline and " +
		"report change ratio, regions and the selected strategy.",
	RunE: func(cmd *cobra.Command, args []string) error {
		runFiles(args, output.Options{AnalysisOnly: true})
		return nil
	},
}

var extractCmd = &cobra.Command{
	Use:   "extract [paths...]",
	Short: "Extract review context for changed files",
	Long: "Extract the context of every changed file (or the given paths) using the " +
		"strategy chosen for it, and write the result in the configured format.",
	RunE: func(cmd *cobra.Command, args []string) error {
		runFiles(args, output.Options{})
		return nil
	},
}

func runFiles(args []string, opts output.Options) {
	s, err := openSession()
	if err != nil {
		fail("%v", err)
		return
	}
	defer func() {
		if err := s.Close(); err != nil {
			s.logger.Warn("closing caches failed", "error", err)
		}
	}()

	paths, err := s.targets(args)
	if err != nil {
		fail("%v", err)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := s.pipeline().RunAll(ctx, paths)
	if err != nil {
		fail("%v", err)
		return
	}
	if err := output.WriteReport(report, s.cfg.Format, flagOut, opts); err != nil {
		fail("writing output: %v", err)
	}
}

func init() {
	addRunFlags(analyzeCmd)
	addRunFlags(extractCmd)
}
