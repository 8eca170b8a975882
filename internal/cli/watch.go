package cli

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/focus/internal/output"
	"github.com/dshills/focus/internal/pipeline"
	"github.com/dshills/focus/internal/watch"
)

var (
	watchDebounce time.Duration
	watchInitial  bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-extract files as they are saved",
	Long: "Watch the working tree. Each saved file has its cached results invalidated " +
		"and its context re-extracted and written in the configured format.",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			fail("%v", err)
			return nil
		}
		defer func() {
			if err := s.Close(); err != nil {
				s.logger.Warn("closing caches failed", "error", err)
			}
		}()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		p := s.pipeline()
		if watchInitial {
			paths, err := s.targets(nil)
			if err != nil {
				fail("%v", err)
				return nil
			}
			emit(ctx, s, p, paths)
		}

		var ownOutput []string
		if flagOut != "" {
			// Writing the output inside the root must not trigger another run.
			if abs, err := filepath.Abs(flagOut); err == nil {
				ownOutput = append(ownOutput, abs)
			}
		}
		w, err := watch.New(s.root, p, watch.Options{
			Debounce:    watchDebounce,
			IgnorePaths: ownOutput,
			Include:     s.include(),
			Exclude:     s.exclude(),
			Logger:      s.logger,
			OnChange: func(ctx context.Context, paths []string) {
				emit(ctx, s, p, paths)
			},
		})
		if err != nil {
			fail("%v", err)
			return nil
		}
		s.logger.Info("watching", "root", s.root, "baseline", s.cfg.Baseline)
		if err := w.Run(ctx); err != nil {
			fail("%v", err)
		}
		return nil
	},
}

func emit(ctx context.Context, s *session, p *pipeline.Pipeline, paths []string) {
	if len(paths) == 0 {
		return
	}
	report, err := p.RunAll(ctx, paths)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("run failed", "error", err)
		}
		return
	}
	if err := output.WriteReport(report, s.cfg.Format, flagOut, output.Options{}); err != nil {
		s.logger.Error("writing output failed", "error", err)
	}
}

func init() {
	addRunFlags(watchCmd)
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watch.DefaultDebounce, "Quiet period before a changed file is processed")
	watchCmd.Flags().BoolVar(&watchInitial, "initial", false, "Extract all changed files before watching")
}
