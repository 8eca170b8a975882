package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dshills/focus/internal/strategy"
)

// Declaration anchors across Go, JS/TS, Python, Java and Rust. Matching is
// line based; a hit only nominates a candidate block.
var anchorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\s*func\b`),
	regexp.MustCompile(`^\s*type\s+\w+(\[[^\]]*\])?\s+(struct|interface)\b`),
	regexp.MustCompile(`^\s*(export\s+)?(default\s+)?(async\s+)?function\b`),
	regexp.MustCompile(`^\s*(export\s+)?(default\s+)?(abstract\s+)?class\s+\w+`),
	regexp.MustCompile(`^\s*(export\s+)?(interface|enum)\s+\w+`),
	regexp.MustCompile(`^\s*(export\s+)?(const|let|var)\s+\w+\s*=\s*(async\s*)?(\([^)]*\)|\w+)\s*=>`),
	regexp.MustCompile(`^\s*(async\s+)?def\s+\w+`),
	regexp.MustCompile(`^\s*((public|private|protected|static|final|abstract|synchronized|override)\s+)+[\w<>\[\],.? ]*\w+\s*\(`),
	regexp.MustCompile(`^\s*(pub(\([^)]*\))?\s+)?(async\s+)?(unsafe\s+)?(fn|struct|enum|trait|impl|mod)\b`),
}

var pythonBlock = regexp.MustCompile(`^\s*((async\s+)?def|class)\s+\w+.*:\s*(#.*)?$`)

// maxBraceSearch bounds how far below an anchor the opening brace may be.
const maxBraceSearch = 10

func isAnchor(line string) bool {
	for _, re := range anchorPatterns {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// enclosingBlock returns the declaration block containing line target
// (1-based), walking upward from it. Anchors whose block cannot be matched
// are skipped.
func enclosingBlock(lines []string, target int) (span, error) {
	unbalanced := 0
	for i := target - 1; i >= 0; i-- {
		if !isAnchor(lines[i]) {
			continue
		}
		end, ok := blockEnd(lines, i)
		if !ok {
			unbalanced++
			continue
		}
		if end+1 >= target {
			return span{lo: i + 1, hi: end + 1}, nil
		}
	}
	if unbalanced > 0 {
		return span{}, fmt.Errorf("%w: no balanced declaration encloses line %d", ErrBoundaryNotFound, target)
	}
	return span{}, fmt.Errorf("%w: no declaration encloses line %d", ErrBoundaryNotFound, target)
}

// blockEnd returns the 0-based index of the last line of the block opened at
// start.
func blockEnd(lines []string, start int) (int, bool) {
	if pythonBlock.MatchString(lines[start]) && !strings.Contains(stripCode(lines[start]), "{") {
		return indentEnd(lines, start)
	}
	return braceEnd(lines, start)
}

func braceEnd(lines []string, start int) (int, bool) {
	depth := 0
	opened := false
	for i := start; i < len(lines); i++ {
		code := stripCode(lines[i])
		if !opened && i-start >= maxBraceSearch {
			return 0, false
		}
		if !opened && strings.HasSuffix(strings.TrimSpace(code), ";") && !strings.Contains(code, "{") {
			// A declaration without a body, such as an interface method.
			return 0, false
		}
		for _, r := range code {
			switch r {
			case '{':
				depth++
				opened = true
			case '}':
				depth--
			}
			if opened && depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

func indentEnd(lines []string, start int) (int, bool) {
	base := indentOf(lines[start])
	last := -1
	for i := start + 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "" {
			continue
		}
		if indentOf(lines[i]) <= base {
			break
		}
		last = i
	}
	if last < 0 {
		return 0, false
	}
	return last, true
}

func indentOf(line string) int {
	n := 0
	for _, r := range line {
		switch r {
		case ' ':
			n++
		case '\t':
			n += 4
		default:
			return n
		}
	}
	return n
}

// stripCode removes string and rune literals and line comments so that
// braces inside them are not counted. Block comments spanning lines are not
// tracked.
func stripCode(line string) string {
	var b strings.Builder
	var quote, last rune
	escaped, code := false, false
	for _, r := range line {
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
			case r == '\\' && quote != '`':
				escaped = true
			case r == quote:
				quote = 0
			}
			continue
		}
		switch {
		case r == '"' || r == '\'' || r == '`':
			quote = r
		case r == '/' && last == '/':
			s := b.String()
			return s[:len(s)-1]
		case r == '#' && !code:
			return b.String()
		default:
			b.WriteRune(r)
		}
		last = r
		if r != ' ' && r != '\t' {
			code = true
		}
	}
	return b.String()
}

var headerPattern = regexp.MustCompile(
	`^\s*((package|import|from|use|using|require|module|namespace|extern\s+crate)\b|#include|#!|"use strict"|'use strict')`)

// maxHeaderLines caps the file header.
const maxHeaderLines = 30

// headerEnd returns how many leading lines form the file header: package,
// import and include lines plus the comments and blank lines between them.
// Comments and blank lines after the last header line are not counted, so a
// doc comment stays with the declaration it documents.
func headerEnd(lines []string) int {
	end := 0
	inBlock, inComment := false, false
	for i := 0; i < len(lines) && i < maxHeaderLines; i++ {
		trimmed := strings.TrimSpace(lines[i])
		switch {
		case inComment:
			inComment = !strings.Contains(trimmed, "*/")
			continue
		case inBlock:
			if strings.HasPrefix(trimmed, ")") || strings.HasPrefix(trimmed, "}") {
				inBlock = false
			}
		case trimmed == "":
			continue
		case isComment(trimmed):
			inComment = strings.HasPrefix(trimmed, "/*") && !strings.Contains(trimmed[2:], "*/")
			continue
		case headerPattern.MatchString(lines[i]):
			if strings.HasSuffix(trimmed, "(") || (strings.HasSuffix(trimmed, "{") && strings.HasPrefix(trimmed, "import")) {
				inBlock = true
			}
		default:
			return end
		}
		end = i + 1
	}
	return end
}

func isComment(trimmed string) bool {
	for _, p := range []string{"//", "/*", "*", "#", "--", `"""`} {
		if strings.HasPrefix(trimmed, p) {
			return true
		}
	}
	return false
}

func affectedBlocks(in Input, lines []string, opts Options) Context {
	if len(lines) == 0 {
		return Context{Strategy: strategy.AffectedBlocks}
	}
	if len(in.Regions) == 0 {
		return fallback(strategy.AffectedBlocks, "no change regions", contextWindow(in, lines, opts))
	}

	var spans []span
	if h := headerEnd(lines); h > 0 {
		spans = append(spans, span{lo: 1, hi: h})
	}
	for _, r := range in.Regions {
		rs := regionSpan(r, len(lines))
		block, err := enclosingBlock(lines, rs.lo)
		if err != nil {
			return fallback(strategy.AffectedBlocks, err.Error(), contextWindow(in, lines, opts))
		}
		block.hi = max(block.hi, rs.hi)
		spans = append(spans, block)
	}
	text, count := renderSpans(lines, mergeSpans(spans))
	return Context{Strategy: strategy.AffectedBlocks, Text: text, ExtractedLineCount: count}
}
