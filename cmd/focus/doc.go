// Focus extracts change-aware review context from a working tree.
//
// For each file changed against a baseline it measures how much of the file
// moved and picks an extraction strategy: the diff alone, windows around the
// changed regions, the enclosing blocks, a summary, or the whole file.
//
// Usage:
//
//	focus analyze                      # show the strategy chosen per file
//	focus extract --format markdown    # extract context for changed files
//	focus extract --baseline origin/main pkg/a.go
//	focus watch --out ctx.md           # re-extract on every save
//	focus cache show                   # cache hit rates and sizes
//	focus hook install                 # write context on every commit
package main
