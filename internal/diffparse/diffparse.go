package diffparse

import (
	"regexp"
	"strconv"
	"strings"
)

// Kind classifies a change region.
type Kind string

const (
	KindAddition     Kind = "addition"
	KindDeletion     Kind = "deletion"
	KindModification Kind = "modification"
)

// Region is a contiguous changed span of the new file. Lines are 1-based.
type Region struct {
	StartLine int  `json:"startLine"`
	EndLine   int  `json:"endLine"`
	Size      int  `json:"size"`
	Kind      Kind `json:"kind"`
}

// Lines returns the number of new-file lines the region spans.
func (r Region) Lines() int {
	return r.EndLine - r.StartLine + 1
}

// Stats holds added and deleted line counts.
type Stats struct {
	Added   int `json:"added"`
	Deleted int `json:"deleted"`
}

var hunkHeader = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)

type regionBuilder struct {
	first, last int
	size        int
	added       bool
	deleted     bool
}

func (b *regionBuilder) mark(line int) {
	if line < 1 {
		line = 1
	}
	if b.size == 0 || line < b.first {
		b.first = line
	}
	if line > b.last {
		b.last = line
	}
	b.size++
}

func (b *regionBuilder) region() Region {
	kind := KindAddition
	switch {
	case b.added && b.deleted:
		kind = KindModification
	case b.deleted:
		kind = KindDeletion
	}
	return Region{StartLine: b.first, EndLine: b.last, Size: b.size, Kind: kind}
}

// Parse returns the change regions of a single-file unified diff in the order
// they appear. Each hunk produces at most one region spanning its first to
// last changed line. Empty or malformed input yields nil.
func Parse(diff string) []Region {
	return scan(diff).regions
}

// Count returns the number of added and deleted content lines in the diff.
func Count(diff string) Stats {
	return scan(diff).stats
}

// Added returns the text of every added line, without the leading '+'.
func Added(diff string) []string {
	return scan(diff).added
}

// LineKinds maps new-file line numbers to the way they changed. A deletion
// is attributed to the line that now occupies its position; a line that was
// both replaced and added is a modification.
func LineKinds(diff string) map[int]Kind {
	return scan(diff).kinds
}

type scanResult struct {
	regions []Region
	stats   Stats
	added   []string
	kinds   map[int]Kind
}

func (r *scanResult) markKind(line int, k Kind) {
	if line < 1 {
		line = 1
	}
	if prev, ok := r.kinds[line]; ok && prev != k {
		k = KindModification
	}
	r.kinds[line] = k
}

func scan(diff string) scanResult {
	res := scanResult{kinds: make(map[int]Kind)}
	var (
		cur     *regionBuilder
		line    int
		oldLeft int
		newLeft int
	)
	if strings.TrimSpace(diff) == "" {
		return res
	}

	flush := func() {
		if cur != nil && cur.size > 0 {
			res.regions = append(res.regions, cur.region())
		}
		cur = nil
	}

	for _, raw := range strings.Split(diff, "\n") {
		raw = strings.TrimSuffix(raw, "\r")

		if m := hunkHeader.FindStringSubmatch(raw); m != nil {
			flush()
			oldLeft = hunkCount(m[2])
			newLeft = hunkCount(m[4])
			line, _ = strconv.Atoi(m[3])
			cur = &regionBuilder{}
			continue
		}
		// File headers before the first hunk, or between files.
		if cur == nil || (oldLeft <= 0 && newLeft <= 0) {
			continue
		}
		if strings.HasPrefix(raw, `\`) {
			continue
		}

		switch {
		case strings.HasPrefix(raw, "+"):
			cur.mark(line)
			cur.added = true
			res.stats.Added++
			res.added = append(res.added, raw[1:])
			res.markKind(line, KindAddition)
			line++
			newLeft--
		case strings.HasPrefix(raw, "-"):
			cur.mark(line)
			cur.deleted = true
			res.stats.Deleted++
			res.markKind(line, KindDeletion)
			oldLeft--
		case raw == "" || strings.HasPrefix(raw, " "):
			line++
			oldLeft--
			newLeft--
		default:
			// Not a hunk body line; the header counts were wrong.
			oldLeft, newLeft = 0, 0
		}
	}
	flush()
	return res
}

func hunkCount(s string) int {
	if s == "" {
		return 1
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// IsNewFile reports whether the diff headers describe a file with no
// baseline version.
func IsNewFile(diff string) bool {
	for _, line := range headerLines(diff) {
		if strings.HasPrefix(line, "new file mode") || strings.HasPrefix(line, "--- /dev/null") {
			return true
		}
	}
	return false
}

// IsDeletedFile reports whether the diff headers describe a removed file.
func IsDeletedFile(diff string) bool {
	for _, line := range headerLines(diff) {
		if strings.HasPrefix(line, "deleted file mode") || strings.HasPrefix(line, "+++ /dev/null") {
			return true
		}
	}
	return false
}

// headerLines returns the lines preceding the first hunk header.
func headerLines(diff string) []string {
	var out []string
	for _, line := range strings.Split(diff, "\n") {
		if strings.HasPrefix(line, "@@") {
			break
		}
		out = append(out, strings.TrimSuffix(line, "\r"))
	}
	return out
}
