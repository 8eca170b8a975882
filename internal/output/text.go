package output

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dshills/focus/internal/pipeline"
	"github.com/dshills/focus/internal/strategy"
)

// TextWriter outputs a human-readable report for the terminal.
type TextWriter struct {
	AnalysisOnly bool
}

func (t *TextWriter) Write(w io.Writer, report *pipeline.Report) error {
	ew := &errWriter{w: w}

	ew.printf("Focus: %d files against %s", len(report.Results), baselineLabel(report))
	if report.Repo != nil && report.Repo.Branch != "" {
		ew.printf(" on %s", report.Repo.Branch)
	}
	ew.printf(" (run %s)\n", shortID(report.RunID))
	ew.println(strings.Repeat("─", 60))

	if len(report.Results) == 0 && len(report.Skipped) == 0 {
		ew.println("\nNo changed files.")
		return ew.err
	}

	if t.AnalysisOnly {
		t.writeTable(ew, report)
	} else {
		for _, r := range report.Results {
			writeContext(ew, r)
		}
	}

	writeSkipped(ew, report.Skipped)
	writeTotals(ew, report)
	return ew.err
}

func (t *TextWriter) writeTable(ew *errWriter, report *pipeline.Report) {
	if ew.err != nil {
		return
	}
	tw := tabwriter.NewWriter(ew.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\nPATH\tCATEGORY\tLINES\t+/-\tRATIO\tREGIONS\tSTRATEGY\tTOKENS")
	for _, r := range report.Results {
		a := r.Analysis
		name := a.Strategy.String()
		if a.Degraded != "" {
			name += "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t+%d/-%d\t%.2f\t%d\t%s\t%d\n",
			a.FilePath, a.Category, a.FileLineCount, a.AddedLines, a.DeletedLines,
			a.ChangeRatio, a.RegionCount, name, a.EstimatedTokens)
	}
	ew.err = tw.Flush()
}

func writeContext(ew *errWriter, r pipeline.Result) {
	c := r.Context
	ew.printf("\n=== %s [%s] %d -> %d lines (%.0f%%), ~%d tokens\n",
		r.Path, c.Strategy, c.OriginalLineCount, c.ExtractedLineCount,
		c.CompressionRatio*100, c.EstimatedTokens)
	if c.Fallback != "" {
		ew.printf("    fallback: %s\n", c.Fallback)
	}
	if r.Analysis.Degraded != "" {
		ew.printf("    degraded: %s\n", r.Analysis.Degraded)
	}
	if r.Redactions > 0 {
		ew.printf("    redacted: %d\n", r.Redactions)
	}
	ew.println(strings.Repeat("─", 40))
	ew.printf("%s", c.Text)
	if c.Text != "" && !strings.HasSuffix(c.Text, "\n") {
		ew.println("")
	}
}

func writeSkipped(ew *errWriter, skipped []pipeline.Skipped) {
	if len(skipped) == 0 {
		return
	}
	ew.printf("\nSkipped %d files:\n", len(skipped))
	for _, s := range skipped {
		ew.printf("  %s: %s\n", s.Path, s.Reason)
	}
}

func writeTotals(ew *errWriter, report *pipeline.Report) {
	tot := report.Totals
	ew.printf("\n%s\n", strings.Repeat("─", 60))
	ew.printf("Lines: %d -> %d, ~%d tokens", tot.OriginalLines, tot.ExtractedLines, tot.EstimatedTokens)
	if tot.Redactions > 0 {
		ew.printf(", %d redactions", tot.Redactions)
	}
	ew.println("")
	if s := strategyCounts(tot.ByStrategy); s != "" {
		ew.printf("Strategies: %s\n", s)
	}
	if cs := report.Cache.Contexts; cs.Enabled {
		ew.printf("Cache: %d/%d analysis hits, %d/%d context hits\n",
			report.Cache.Analyses.Hits, report.Cache.Analyses.Hits+report.Cache.Analyses.Misses,
			cs.Hits, cs.Hits+cs.Misses)
	}
	ew.printf("Completed in %dms\n", report.Duration.Round(time.Millisecond).Milliseconds())
}

// strategyCounts renders counts in budget order, e.g. "diff_only=2 full_file=1".
func strategyCounts(by map[string]int) string {
	var parts []string
	seen := make(map[string]bool)
	for _, s := range strategy.All() {
		if n := by[s.String()]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", s, n))
		}
		seen[s.String()] = true
	}
	var rest []string
	for name := range by {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		parts = append(parts, fmt.Sprintf("%s=%d", name, by[name]))
	}
	return strings.Join(parts, " ")
}

// baselineLabel names the baseline with its resolved commit when that is a
// git hash, e.g. "HEAD@1a2b3c4d".
func baselineLabel(report *pipeline.Report) string {
	rev := report.BaselineRev
	if len(rev) != 40 || report.Repo == nil || report.Repo.Head == "" {
		return report.Baseline
	}
	return report.Baseline + "@" + shortID(rev)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// errWriter wraps an io.Writer and captures the first error.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func (ew *errWriter) println(s string) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintln(ew.w, s)
}
