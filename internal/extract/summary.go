package extract

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dshills/focus/internal/diffparse"
	"github.com/dshills/focus/internal/strategy"
)

const (
	summaryTopRegions = 3
	summaryMargin     = 5
	// summaryMaxWindow caps the lines quoted for one region, so that a new
	// file whose single region is the whole file stays a summary.
	summaryMaxWindow = 40
)

func changeMarker(k diffparse.Kind, ok bool) string {
	if !ok {
		return " "
	}
	switch k {
	case diffparse.KindAddition:
		return "+"
	case diffparse.KindDeletion:
		return "-"
	default:
		return "~"
	}
}

// largestRegions returns up to n regions with the most changed lines, in
// file order.
func largestRegions(regions []diffparse.Region, n int) []diffparse.Region {
	ranked := append([]diffparse.Region(nil), regions...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Size > ranked[j].Size
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].StartLine < ranked[j].StartLine
	})
	return ranked
}

func smartSummary(in Input, lines []string) Context {
	n := len(lines)
	if n == 0 {
		return Context{Strategy: strategy.SmartSummary}
	}
	var b strings.Builder
	quoted := make(map[int]bool)

	fmt.Fprintf(&b, "# %s (%d lines, %d change regions)\n", in.Path, n, len(in.Regions))

	if h := headerEnd(lines); h > 0 {
		b.WriteString("\n## Header\n")
		for ln := 1; ln <= h; ln++ {
			fmt.Fprintf(&b, "%5d | %s\n", ln, lines[ln-1])
			quoted[ln] = true
		}
	}

	b.WriteString("\n## Changes\n")
	if len(in.Regions) == 0 {
		b.WriteString("(no change regions)\n")
	}
	for _, r := range in.Regions {
		rs := regionSpan(r, n)
		fmt.Fprintf(&b, "- lines %d-%d: %s (%d changed)\n", rs.lo, rs.hi, r.Kind, r.Size)
	}

	top := largestRegions(in.Regions, summaryTopRegions)
	if len(top) > 0 {
		kinds := diffparse.LineKinds(in.Diff)
		fmt.Fprintf(&b, "\n## Largest changes\n")
		for _, r := range top {
			rs := regionSpan(r, n)
			w, ok := clampSpan(span{lo: rs.lo - summaryMargin, hi: rs.hi + summaryMargin}, n)
			if !ok {
				continue
			}
			truncated := 0
			if w.hi-w.lo+1 > summaryMaxWindow {
				truncated = w.hi - (w.lo + summaryMaxWindow - 1)
				w.hi = w.lo + summaryMaxWindow - 1
			}
			fmt.Fprintf(&b, "@@ lines %d-%d @@\n", w.lo, w.hi)
			for ln := w.lo; ln <= w.hi; ln++ {
				k, changed := kinds[ln]
				fmt.Fprintf(&b, "%s %5d | %s\n", changeMarker(k, changed), ln, lines[ln-1])
				quoted[ln] = true
			}
			if truncated > 0 {
				fmt.Fprintf(&b, "%s (%d more lines)\n", gapMarker, truncated)
			}
		}
	}

	return Context{Strategy: strategy.SmartSummary, Text: b.String(), ExtractedLineCount: len(quoted)}
}
