// Package textutil holds small line-oriented helpers shared by the analyzer
// and the extractors.
package textutil

import (
	"bytes"
	"strings"
)

// Normalize converts CRLF and lone CR line endings to LF.
func Normalize(b []byte) []byte {
	b = bytes.ReplaceAll(b, []byte("\r\n"), []byte("\n"))
	return bytes.ReplaceAll(b, []byte("\r"), []byte("\n"))
}

// SplitLines splits content into lines without their terminators. A trailing
// newline does not produce an extra empty line, so "a\nb\n" has two lines.
func SplitLines(content string) []string {
	if content == "" {
		return nil
	}
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.TrimSuffix(content, "\n")
	return strings.Split(content, "\n")
}

// CountLines returns len(SplitLines(content)) without allocating.
func CountLines(content []byte) int {
	if len(content) == 0 {
		return 0
	}
	n := bytes.Count(content, []byte("\n"))
	if content[len(content)-1] != '\n' {
		n++
	}
	return n
}

// EnsureTrailingLF appends a single \n if not already present.
func EnsureTrailingLF(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
