// Package output formats pipeline run reports for display or machine
// consumption.
//
// Three formats are supported:
//   - text: terminal output with each file's extracted context (default)
//   - json: the full structured report
//   - markdown: one collapsible section per file, fenced by language
//
// With [Options.AnalysisOnly] writers report the per-file change analysis
// instead of extracted text. Use [GetWriter] to obtain a [Writer] for a
// format string, or [WriteReport] to write to a file or stdout.
package output
