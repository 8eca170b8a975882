package output

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/dshills/focus/internal/pipeline"
	"github.com/dshills/focus/internal/strategy"
)

// MarkdownWriter outputs a report suitable for pasting into a prompt or a
// PR comment, with one collapsible section per file.
type MarkdownWriter struct {
	AnalysisOnly bool
}

func (m *MarkdownWriter) Write(w io.Writer, report *pipeline.Report) error {
	ew := &errWriter{w: w}
	tot := report.Totals

	ew.printf("## Focus context\n\n")
	ew.printf("Baseline `%s`, %d files, %d -> %d lines, ~%d tokens.\n\n",
		report.Baseline, tot.Files, tot.OriginalLines, tot.ExtractedLines, tot.EstimatedTokens)

	ew.printf("| Strategy | Files |\n")
	ew.printf("|----------|-------|\n")
	for _, s := range strategy.All() {
		if n := tot.ByStrategy[s.String()]; n > 0 {
			ew.printf("| %s | %d |\n", s, n)
		}
	}
	ew.printf("| **Total** | **%d** |\n\n", tot.Files)

	if m.AnalysisOnly {
		ew.printf("| File | Category | Lines | +/- | Ratio | Strategy |\n")
		ew.printf("|------|----------|-------|-----|-------|----------|\n")
		for _, r := range report.Results {
			a := r.Analysis
			ew.printf("| `%s` | %s | %d | +%d/-%d | %.2f | %s |\n",
				a.FilePath, a.Category, a.FileLineCount, a.AddedLines, a.DeletedLines, a.ChangeRatio, a.Strategy)
		}
		ew.println("")
	} else {
		for _, r := range report.Results {
			c := r.Context
			ew.printf("<details>\n<summary><code>%s</code> %s (%d of %d lines)</summary>\n\n",
				r.Path, c.Strategy, c.ExtractedLineCount, c.OriginalLineCount)
			if c.Fallback != "" {
				ew.printf("> fallback: %s\n\n", c.Fallback)
			}
			fence := codeFence(c.Text)
			ew.printf("%s%s\n%s", fence, fenceLang(r.Path, c.Strategy), c.Text)
			if !strings.HasSuffix(c.Text, "\n") {
				ew.println("")
			}
			ew.printf("%s\n\n</details>\n\n", fence)
		}
	}

	if len(report.Skipped) > 0 {
		ew.printf("**Skipped:**\n\n")
		for _, s := range report.Skipped {
			ew.printf("- `%s`: %s\n", s.Path, s.Reason)
		}
		ew.println("")
	}

	ew.printf("*Extracted in %dms*\n", report.Duration.Milliseconds())
	return ew.err
}

// codeFence returns a backtick fence longer than any run inside text.
func codeFence(text string) string {
	longest, run := 0, 0
	for _, r := range text {
		if r == '`' {
			run++
			longest = max(longest, run)
			continue
		}
		run = 0
	}
	return strings.Repeat("`", max(3, longest+1))
}

func fenceLang(path string, s strategy.Strategy) string {
	switch s {
	case strategy.DiffOnly:
		return "diff"
	case strategy.SmartSummary:
		return ""
	}
	return inferLang(path)
}

func inferLang(path string) string {
	langMap := map[string]string{
		".go":   "go",
		".py":   "python",
		".js":   "javascript",
		".ts":   "typescript",
		".tsx":  "tsx",
		".jsx":  "jsx",
		".rs":   "rust",
		".java": "java",
		".rb":   "ruby",
		".cpp":  "cpp",
		".c":    "c",
		".cs":   "csharp",
		".php":  "php",
		".sh":   "bash",
		".sql":  "sql",
		".yaml": "yaml",
		".yml":  "yaml",
		".json": "json",
		".toml": "toml",
		".tf":   "hcl",
	}
	return langMap[strings.ToLower(filepath.Ext(path))]
}
