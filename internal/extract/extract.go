package extract

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dshills/focus/internal/diffparse"
	"github.com/dshills/focus/internal/strategy"
	"github.com/dshills/focus/internal/textutil"
)

// ErrBoundaryNotFound reports that no enclosing block could be located for a
// region.
var ErrBoundaryNotFound = errors.New("block boundary not found")

// DefaultWindowLines is the context kept on each side of a region.
const DefaultWindowLines = 20

// NoChangesMarker is the DiffOnly text for an empty diff.
const NoChangesMarker = "(no changes)"

// Context is the extracted text for one file.
type Context struct {
	// Strategy is the strategy that produced Text. It differs from the
	// requested one when Fallback is set.
	Strategy           strategy.Strategy `json:"strategy"`
	Text               string            `json:"text"`
	OriginalLineCount  int               `json:"originalLineCount"`
	ExtractedLineCount int               `json:"extractedLineCount"`
	CompressionRatio   float64           `json:"compressionRatio"`
	EstimatedTokens    int               `json:"estimatedTokens"`
	Fallback           string            `json:"fallback,omitempty"`
}

// Input is what every extractor works from.
type Input struct {
	Path    string
	Content string
	Diff    string
	Regions []diffparse.Region
}

// Options tunes extraction.
type Options struct {
	// WindowLines is the ContextWindow margin. Zero uses DefaultWindowLines.
	WindowLines int
}

func (o Options) window() int {
	if o.WindowLines <= 0 {
		return DefaultWindowLines
	}
	return o.WindowLines
}

// Extract runs the extractor for s.
func Extract(s strategy.Strategy, in Input, opts Options) Context {
	lines := textutil.SplitLines(in.Content)

	var c Context
	switch s {
	case strategy.DiffOnly:
		c = diffOnly(in)
	case strategy.ContextWindow:
		c = contextWindow(in, lines, opts)
	case strategy.AffectedBlocks:
		c = affectedBlocks(in, lines, opts)
	case strategy.SmartSummary:
		c = smartSummary(in, lines)
	case strategy.FullFile:
		c = fullFile(in, lines)
	default:
		c = fullFile(in, lines)
		c.Fallback = fmt.Sprintf("unknown strategy %s", s)
	}

	c.OriginalLineCount = len(lines)
	if c.OriginalLineCount > 0 {
		c.CompressionRatio = float64(c.ExtractedLineCount) / float64(c.OriginalLineCount)
	}
	c.EstimatedTokens = EstimateTokens(c.Text)
	return c
}

// EstimateTokens approximates the token count of text at four characters
// per token, rounded up.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

func diffOnly(in Input) Context {
	if strings.TrimSpace(in.Diff) == "" {
		return Context{Strategy: strategy.DiffOnly, Text: NoChangesMarker}
	}
	return Context{
		Strategy:           strategy.DiffOnly,
		Text:               in.Diff,
		ExtractedLineCount: textutil.CountLines([]byte(in.Diff)),
	}
}

func fullFile(in Input, lines []string) Context {
	return Context{
		Strategy:           strategy.FullFile,
		Text:               in.Content,
		ExtractedLineCount: len(lines),
	}
}

// fallback re-runs extraction with a cheaper strategy and records why.
func fallback(from strategy.Strategy, reason string, c Context) Context {
	msg := from.String() + ": " + reason
	if c.Fallback != "" {
		msg += "; " + c.Fallback
	}
	c.Fallback = msg
	return c
}
