// Package strategy chooses how much of a changed file to hand to a reviewer.
//
// Five strategies are ordered by token budget, from the bare diff up to the
// whole file. [Select] is a pure, ordered decision table over the signals
// produced by change analysis; the first matching rule wins. Small or
// localized changes are biased toward cheap strategies, while files where the
// savings would be negligible are sent whole.
//
// [EstimateTokens] gives a relative budgeting figure for a strategy. It is not
// tied to any particular model tokenizer.
package strategy
