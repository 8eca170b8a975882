// Package analyze measures how a file changed against a baseline and picks
// the extraction strategy for it.
//
// An Analyzer reads the working copy through a gitctx.Provider, parses the
// per-file diff into regions, classifies the file by path, scans the added
// lines for exported declarations and hands the resulting signals to
// strategy.Select. Results are written through to a cache keyed by baseline,
// path and modification time, so a file that has not been touched since the
// last run is never re-diffed.
//
// Failures below the analyzer degrade instead of aborting: a file that
// cannot be diffed is sent whole (strategy.FullFile) and the reason is
// recorded in Analysis.Degraded. Only a path that is neither readable nor
// known to the baseline returns ErrFileUnreadable.
package analyze
