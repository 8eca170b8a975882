package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dshills/focus/internal/analyze"
	"github.com/dshills/focus/internal/pipeline"
)

// JSONWriter outputs the report as JSON.
type JSONWriter struct {
	AnalysisOnly bool
}

// analysisReport is the JSON shape of an analysis-only run.
type analysisReport struct {
	RunID    string              `json:"runId"`
	Baseline string              `json:"baseline"`
	Files    []analyze.Analysis  `json:"files"`
	Skipped  []pipeline.Skipped  `json:"skipped,omitempty"`
	Cache    pipeline.CacheStats `json:"cache"`
}

func (j *JSONWriter) Write(w io.Writer, report *pipeline.Report) error {
	var v any = report
	if j.AnalysisOnly {
		ar := analysisReport{
			RunID:    report.RunID,
			Baseline: report.Baseline,
			Files:    make([]analyze.Analysis, 0, len(report.Results)),
			Skipped:  report.Skipped,
			Cache:    report.Cache,
		}
		for _, r := range report.Results {
			a := r.Analysis
			a.Diff = ""
			ar.Files = append(ar.Files, a)
		}
		v = ar
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = w.Write(data)
	if err != nil {
		return fmt.Errorf("writing JSON: %w", err)
	}
	_, err = fmt.Fprintln(w)
	return err
}
