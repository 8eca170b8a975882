package strategy

import (
	"fmt"
)

// Strategy is an extraction policy. Values are ordered by token budget.
type Strategy int

const (
	DiffOnly Strategy = iota
	ContextWindow
	AffectedBlocks
	SmartSummary
	FullFile
)

// DefaultMaxTokensPerFile caps the FullFile estimate when no ceiling is configured.
const DefaultMaxTokensPerFile = 4000

var names = [...]string{
	DiffOnly:       "diff_only",
	ContextWindow:  "context_window",
	AffectedBlocks: "affected_blocks",
	SmartSummary:   "smart_summary",
	FullFile:       "full_file",
}

// baseTokens is the fixed estimate for every strategy except FullFile.
var baseTokens = [...]int{
	DiffOnly:       500,
	ContextWindow:  1000,
	AffectedBlocks: 2000,
	SmartSummary:   3000,
}

// All returns every strategy in budget order.
func All() []Strategy {
	return []Strategy{DiffOnly, ContextWindow, AffectedBlocks, SmartSummary, FullFile}
}

// Valid reports whether s is one of the five known strategies.
func (s Strategy) Valid() bool {
	return s >= DiffOnly && s <= FullFile
}

func (s Strategy) String() string {
	if !s.Valid() {
		return fmt.Sprintf("strategy(%d)", int(s))
	}
	return names[s]
}

// Parse returns the strategy with the given name.
func Parse(name string) (Strategy, error) {
	for i, n := range names {
		if n == name {
			return Strategy(i), nil
		}
	}
	return 0, fmt.Errorf("unknown strategy: %s", name)
}

// MarshalText encodes the strategy by name.
func (s Strategy) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid strategy %d", int(s))
	}
	return []byte(names[s]), nil
}

// UnmarshalText decodes a strategy name.
func (s *Strategy) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Category is the coarse role of a file inferred from its path.
type Category string

const (
	CategoryCore   Category = "core"
	CategoryTest   Category = "test"
	CategoryConfig Category = "config"
	CategoryDocs   Category = "docs"
	CategoryBuild  Category = "build"
)

// Signals are the analysis facts the decision table looks at.
type Signals struct {
	IsNew              bool
	IsDeleted          bool
	FileLineCount      int
	Category           Category
	ChangeRatio        float64
	RegionCount        int
	HasPublicAPIChange bool
}

// Select applies the decision table. The first matching rule wins.
func Select(sig Signals) Strategy {
	lines := sig.FileLineCount

	switch {
	case sig.IsDeleted:
		return DiffOnly
	case sig.IsNew && lines < 100:
		return FullFile
	case sig.IsNew:
		return SmartSummary
	case lines < 20:
		return FullFile
	case sig.Category == CategoryConfig && lines < 50:
		return FullFile
	}

	switch ratio := sig.ChangeRatio; {
	case ratio <= 0.10:
		if sig.RegionCount <= 2 {
			return DiffOnly
		}
		return ContextWindow
	case ratio <= 0.30:
		if sig.HasPublicAPIChange {
			return AffectedBlocks
		}
		return ContextWindow
	case ratio <= 0.70:
		if lines > 100 {
			return SmartSummary
		}
		return AffectedBlocks
	default:
		if lines < 150 {
			return FullFile
		}
		return SmartSummary
	}
}

// EstimateTokens returns the relative token budget for sending a file of the
// given length with strategy s. FullFile scales with length up to
// maxTokensPerFile; a non-positive ceiling uses DefaultMaxTokensPerFile.
func EstimateTokens(s Strategy, fileLineCount, maxTokensPerFile int) int {
	if maxTokensPerFile <= 0 {
		maxTokensPerFile = DefaultMaxTokensPerFile
	}
	if s == FullFile {
		return min(max(fileLineCount, 0)*8, maxTokensPerFile)
	}
	if !s.Valid() {
		return maxTokensPerFile
	}
	return baseTokens[s]
}
