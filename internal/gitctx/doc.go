// Package gitctx is the version-control side of the pipeline: it reports
// per-file diff statistics, unified diffs and working-tree content relative
// to a baseline.
//
// [Git] shells out to git in a repository root. [DirProvider] compares a
// working directory against a baseline directory and renders the diff
// itself, for trees that are not under version control.
//
// A [Lister] enumerates what changed against the baseline and
// [Filter] narrows the list by include/exclude glob patterns.
package gitctx
