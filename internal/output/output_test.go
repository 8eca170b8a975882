package output

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dshills/focus/internal/analyze"
	"github.com/dshills/focus/internal/extract"
	"github.com/dshills/focus/internal/pipeline"
	"github.com/dshills/focus/internal/strategy"
)

func sampleReport() *pipeline.Report {
	return &pipeline.Report{
		RunID:    "0f8e2c1a-1111-2222-3333-444455556666",
		Baseline: "HEAD",
		Duration: 42 * time.Millisecond,
		Results: []pipeline.Result{
			{
				Path: "svc/handler.go",
				Analysis: analyze.Analysis{
					FilePath:        "svc/handler.go",
					FileLineCount:   300,
					ChangeRatio:     0.02,
					RegionCount:     1,
					AddedLines:      3,
					DeletedLines:    2,
					Category:        strategy.CategoryCore,
					Strategy:        strategy.DiffOnly,
					EstimatedTokens: 500,
				},
				Context: extract.Context{
					Strategy:           strategy.DiffOnly,
					Text:               "@@ -10,2 +10,3 @@\n-old\n+new\n",
					OriginalLineCount:  300,
					ExtractedLineCount: 3,
					CompressionRatio:   0.01,
					EstimatedTokens:    8,
				},
			},
			{
				Path: "cmd/main.go",
				Analysis: analyze.Analysis{
					FilePath:        "cmd/main.go",
					FileLineCount:   12,
					ChangeRatio:     1,
					IsNew:           true,
					AddedLines:      12,
					Category:        strategy.CategoryCore,
					Strategy:        strategy.FullFile,
					EstimatedTokens: 96,
					Diff:            "+package main\n",
				},
				Context: extract.Context{
					Strategy:           strategy.FullFile,
					Text:               "package main\n\nfunc main() {}\n",
					OriginalLineCount:  3,
					ExtractedLineCount: 3,
					CompressionRatio:   1,
					EstimatedTokens:    8,
				},
				Redactions: 1,
			},
		},
		Skipped: []pipeline.Skipped{{Path: "bin/tool", Reason: "file unreadable"}},
		Totals: pipeline.Totals{
			Files:           2,
			OriginalLines:   303,
			ExtractedLines:  6,
			EstimatedTokens: 16,
			Redactions:      1,
			ByStrategy:      map[string]int{"diff_only": 1, "full_file": 1},
		},
	}
}

func TestGetWriter(t *testing.T) {
	for _, format := range []string{"text", "json", "markdown"} {
		if _, err := GetWriter(format, Options{}); err != nil {
			t.Errorf("GetWriter(%q) error: %v", format, err)
		}
	}
	if _, err := GetWriter("sarif", Options{}); err == nil {
		t.Error("Expected error for unsupported format")
	}
}

func TestWriteReport_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.md")
	if err := WriteReport(sampleReport(), "markdown", path, Options{}); err != nil {
		t.Fatalf("WriteReport error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading report: %v", err)
	}
	if !strings.Contains(string(data), "## Focus context") {
		t.Error("report file missing heading")
	}
}
