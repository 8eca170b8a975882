package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/focus/internal/analyze"
	"github.com/dshills/focus/internal/gitctx"
)

// Skipped records a file that produced no result.
type Skipped struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Totals summarizes a run.
type Totals struct {
	Files           int            `json:"files"`
	OriginalLines   int            `json:"originalLines"`
	ExtractedLines  int            `json:"extractedLines"`
	EstimatedTokens int            `json:"estimatedTokens"`
	Redactions      int            `json:"redactions"`
	ByStrategy      map[string]int `json:"byStrategy"`
}

// Report is the outcome of RunAll. Results keep the order of the input paths.
type Report struct {
	RunID    string `json:"runId"`
	Baseline string `json:"baseline"`
	// BaselineRev is what Baseline resolved to for this run.
	BaselineRev string           `json:"baselineRev,omitempty"`
	Repo        *gitctx.RepoMeta `json:"repo,omitempty"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"durationNs"`
	Results   []Result      `json:"results"`
	Skipped   []Skipped     `json:"skipped,omitempty"`
	Totals    Totals        `json:"totals"`
	Cache     CacheStats    `json:"cache"`
}

// RunAll processes paths with bounded concurrency. Files that cannot be read
// or exceed the per-file timeout are reported as skipped. The error is
// non-nil only when ctx is done before the run completes.
func (p *Pipeline) RunAll(ctx context.Context, paths []string) (*Report, error) {
	report := &Report{
		RunID:     uuid.NewString(),
		Baseline:  p.opts.Baseline,
		StartedAt: time.Now(),
	}
	log := p.logger.With("run", report.RunID)

	// The baseline may have moved since the last run, as after a commit.
	rev, err := p.analyzer.Refresh()
	if err != nil {
		log.Warn("baseline unresolved, analysis cache bypassed", "baseline", p.opts.Baseline, "error", err)
	}
	report.BaselineRev = rev
	if m, ok := p.provider.(interface{ Meta() gitctx.RepoMeta }); ok {
		meta := m.Meta()
		report.Repo = &meta
	}
	log.Info("run started", "files", len(paths), "baseline", p.opts.Baseline, "rev", rev, "concurrency", p.opts.Concurrency)

	results := make([]*Result, len(paths))
	skipped := make([]*Skipped, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := p.processWithTimeout(gctx, path)
			if err == nil {
				results[i] = &res
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			reason := err.Error()
			switch {
			case errors.Is(err, analyze.ErrFileUnreadable):
				log.Warn("skipping unreadable file", "path", path, "error", err)
			case errors.Is(err, context.DeadlineExceeded):
				reason = fmt.Sprintf("timed out after %s", p.opts.FileTimeout)
				log.Warn("skipping file", "path", path, "reason", reason)
			default:
				log.Warn("skipping file", "path", path, "error", err)
			}
			skipped[i] = &Skipped{Path: path, Reason: reason}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("run %s: %w", report.RunID, err)
	}

	report.Totals.ByStrategy = make(map[string]int)
	for i := range paths {
		if r := results[i]; r != nil {
			report.Results = append(report.Results, *r)
			report.Totals.add(r)
		}
		if s := skipped[i]; s != nil {
			report.Skipped = append(report.Skipped, *s)
		}
	}
	report.Duration = time.Since(report.StartedAt)
	report.Cache = p.CacheStats()
	log.Info("run finished",
		"files", report.Totals.Files, "skipped", len(report.Skipped),
		"tokens", report.Totals.EstimatedTokens, "duration", report.Duration)
	return report, nil
}

func (t *Totals) add(r *Result) {
	t.Files++
	t.OriginalLines += r.Context.OriginalLineCount
	t.ExtractedLines += r.Context.ExtractedLineCount
	t.EstimatedTokens += r.Context.EstimatedTokens
	t.Redactions += r.Redactions
	t.ByStrategy[r.Context.Strategy.String()]++
}

// processWithTimeout runs Process under the per-file deadline. Process itself
// is not interruptible; on timeout its result is discarded.
func (p *Pipeline) processWithTimeout(ctx context.Context, path string) (Result, error) {
	if p.opts.FileTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.FileTimeout)
		defer cancel()
	}

	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := p.Process(path)
		done <- outcome{res, err}
	}()

	select {
	case o := <-done:
		return o.res, o.err
	case <-ctx.Done():
		return Result{}, fmt.Errorf("processing %s: %w", path, ctx.Err())
	}
}
