package output

import (
	"fmt"
	"io"
	"os"

	"github.com/dshills/focus/internal/pipeline"
)

// Writer writes a run report in a specific format.
type Writer interface {
	Write(w io.Writer, report *pipeline.Report) error
}

// Options selects what a writer includes.
type Options struct {
	// AnalysisOnly omits extracted text and reports the per-file analysis.
	AnalysisOnly bool
}

// GetWriter returns a writer for the specified format.
func GetWriter(format string, opts Options) (Writer, error) {
	switch format {
	case "text":
		return &TextWriter{AnalysisOnly: opts.AnalysisOnly}, nil
	case "json":
		return &JSONWriter{AnalysisOnly: opts.AnalysisOnly}, nil
	case "markdown":
		return &MarkdownWriter{AnalysisOnly: opts.AnalysisOnly}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// WriteReport writes the report to outPath, or to stdout when outPath is empty.
func WriteReport(report *pipeline.Report, format, outPath string, opts Options) error {
	writer, err := GetWriter(format, opts)
	if err != nil {
		return err
	}

	if outPath == "" {
		return writer.Write(os.Stdout, report)
	}
	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	if err := writer.Write(f, report); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
