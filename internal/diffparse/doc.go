// Package diffparse turns the unified diff of a single file into ordered
// change regions.
//
// Parsing is line based and tolerant: file headers are skipped, hunk headers
// (@@ -a,b +c,d @@) open a new region at new-file line c, and anything that
// cannot be understood is ignored. An empty or malformed diff produces no
// regions, which callers treat as "the whole file changed".
package diffparse
