package extract

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dshills/focus/internal/diffparse"
	"github.com/dshills/focus/internal/strategy"
)

// span is an inclusive 1-based line range.
type span struct {
	lo, hi int
}

// clampSpan limits s to [1, n]. The bool is false when nothing is left.
func clampSpan(s span, n int) (span, bool) {
	s.lo = max(s.lo, 1)
	s.hi = min(s.hi, n)
	return s, s.lo <= s.hi
}

// mergeSpans sorts spans and merges those that overlap or touch.
func mergeSpans(spans []span) []span {
	if len(spans) == 0 {
		return nil
	}
	sorted := append([]span(nil), spans...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].lo != sorted[j].lo {
			return sorted[i].lo < sorted[j].lo
		}
		return sorted[i].hi < sorted[j].hi
	})
	out := []span{sorted[0]}
	for _, s := range sorted[1:] {
		last := &out[len(out)-1]
		if s.lo <= last.hi+1 {
			last.hi = max(last.hi, s.hi)
			continue
		}
		out = append(out, s)
	}
	return out
}

// regionSpan returns the lines of r, pulled into the file when a deletion at
// the end points one past the last line.
func regionSpan(r diffparse.Region, n int) span {
	lo, hi := r.StartLine, max(r.EndLine, r.StartLine)
	if lo > n {
		lo = n
	}
	if hi > n {
		hi = n
	}
	return span{lo: lo, hi: hi}
}

const gapMarker = "..."

// renderSpans prints the merged spans with line numbers. Gaps before, between
// and after the spans are shown as "...". It returns the text and the number
// of source lines printed.
func renderSpans(lines []string, spans []span) (string, int) {
	var b strings.Builder
	n := len(lines)
	count := 0
	prev := 0
	for _, s := range spans {
		if s.lo > prev+1 {
			b.WriteString(gapMarker + "\n")
		}
		for ln := s.lo; ln <= s.hi; ln++ {
			fmt.Fprintf(&b, "%5d | %s\n", ln, lines[ln-1])
			count++
		}
		prev = s.hi
	}
	if prev < n && len(spans) > 0 {
		b.WriteString(gapMarker + "\n")
	}
	return b.String(), count
}

func windowSpans(regions []diffparse.Region, n, w int) []span {
	spans := make([]span, 0, len(regions))
	for _, r := range regions {
		rs := regionSpan(r, n)
		if s, ok := clampSpan(span{lo: rs.lo - w, hi: rs.hi + w}, n); ok {
			spans = append(spans, s)
		}
	}
	return mergeSpans(spans)
}

func contextWindow(in Input, lines []string, opts Options) Context {
	if len(lines) == 0 {
		return Context{Strategy: strategy.ContextWindow}
	}
	spans := windowSpans(in.Regions, len(lines), opts.window())
	if len(spans) == 0 {
		return fallback(strategy.ContextWindow, "no change regions", fullFile(in, lines))
	}
	text, count := renderSpans(lines, spans)
	return Context{Strategy: strategy.ContextWindow, Text: text, ExtractedLineCount: count}
}
