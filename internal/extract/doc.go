// Package extract renders the part of a changed file that a reviewer needs,
// according to an extraction strategy.
//
// All extractors are pure functions of (content, diff, regions, options) and
// share one Input. Extract dispatches with a closed switch over
// strategy.Strategy:
//
//   - DiffOnly returns the raw diff.
//   - ContextWindow returns numbered windows around each region.
//   - AffectedBlocks returns the file header plus every enclosing
//     declaration block, found with regex anchors and brace or indentation
//     matching.
//   - SmartSummary returns the header, a region list, and the three largest
//     regions with change markers.
//   - FullFile returns the content unchanged.
//
// Block detection is heuristic. When it is inconclusive for any region the
// whole file falls back to ContextWindow and Context.Fallback says why.
package extract
