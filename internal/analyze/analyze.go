package analyze

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/dshills/focus/internal/cache"
	"github.com/dshills/focus/internal/diffparse"
	"github.com/dshills/focus/internal/gitctx"
	"github.com/dshills/focus/internal/strategy"
	"github.com/dshills/focus/internal/textutil"
)

// ErrFileUnreadable reports a path that can be neither read nor found in the
// baseline. Callers skip the file.
var ErrFileUnreadable = errors.New("file unreadable")

// Analysis describes how one file changed and how it should be sent.
type Analysis struct {
	FilePath           string             `json:"filePath"`
	FileLineCount      int                `json:"fileLineCount"`
	ChangeRatio        float64            `json:"changeRatio"`
	RegionCount        int                `json:"regionCount"`
	MaxRegionSize      int                `json:"maxRegionSize"`
	AddedLines         int                `json:"addedLines"`
	DeletedLines       int                `json:"deletedLines"`
	IsNew              bool               `json:"isNew"`
	IsDeleted          bool               `json:"isDeleted"`
	Category           strategy.Category  `json:"category"`
	HasPublicAPIChange bool               `json:"hasPublicApiChange"`
	Strategy           strategy.Strategy  `json:"strategy"`
	EstimatedTokens    int                `json:"estimatedTokens"`
	Regions            []diffparse.Region `json:"regions,omitempty"`
	Diff               string             `json:"diff,omitempty"`
	ModTime            time.Time          `json:"modTime"`
	ContentHash        string             `json:"contentHash,omitempty"`
	Degraded           string             `json:"degraded,omitempty"`
}

// Signals returns the inputs of the strategy decision table.
func (a *Analysis) Signals() strategy.Signals {
	return strategy.Signals{
		IsNew:              a.IsNew,
		IsDeleted:          a.IsDeleted,
		FileLineCount:      a.FileLineCount,
		Category:           a.Category,
		ChangeRatio:        a.ChangeRatio,
		RegionCount:        a.RegionCount,
		HasPublicAPIChange: a.HasPublicAPIChange,
	}
}

// Options configures an Analyzer.
type Options struct {
	Baseline         string
	MaxTokensPerFile int
	// Cache stores analyses. Nil disables caching.
	Cache  *cache.Cache[Analysis]
	Logger *slog.Logger
}

// Analyzer computes Analysis values. It is safe for concurrent use on
// different files.
type Analyzer struct {
	provider gitctx.Provider
	opts     Options
	logger   *slog.Logger

	mu sync.RWMutex
	// rev is what the baseline resolved to at the last Refresh. Empty with
	// resolved set means the provider cannot resolve baselines.
	rev      string
	resolved bool
}

// New returns an Analyzer reading through provider.
func New(provider gitctx.Provider, opts Options) *Analyzer {
	if opts.MaxTokensPerFile <= 0 {
		opts.MaxTokensPerFile = strategy.DefaultMaxTokensPerFile
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	a := &Analyzer{provider: provider, opts: opts, logger: logger}
	if _, err := a.Refresh(); err != nil {
		logger.Warn("baseline unresolved, analysis cache bypassed", "baseline", opts.Baseline, "error", err)
	}
	return a
}

// Refresh resolves the baseline to the revision it names now. Cached
// analyses are keyed by that revision, so they stop matching once the
// baseline moves. A baseline that does not exist yet resolves to "none".
func (a *Analyzer) Refresh() (string, error) {
	r, ok := a.provider.(gitctx.Resolver)
	if !ok {
		a.mu.Lock()
		a.rev, a.resolved = "", true
		a.mu.Unlock()
		return "", nil
	}
	rev, err := r.ResolveBaseline(a.opts.Baseline)
	if errors.Is(err, gitctx.ErrNoBaseline) {
		rev, err = "none", nil
	}
	a.mu.Lock()
	a.rev, a.resolved = rev, err == nil
	a.mu.Unlock()
	return rev, err
}

// cacheKey returns the analysis key for path, or "" when the baseline could
// not be resolved and nothing may be cached.
func (a *Analyzer) cacheKey(path string, modTime time.Time) string {
	a.mu.RLock()
	rev, resolved := a.rev, a.resolved
	a.mu.RUnlock()
	if !resolved {
		return ""
	}
	return CacheKey(a.opts.Baseline, rev, path, modTime)
}

// Baseline returns the revision the analyzer diffs against.
func (a *Analyzer) Baseline() string {
	return a.opts.Baseline
}

// PathTag is the cache tag carried by every entry derived from path.
func PathTag(path string) string {
	return "path:" + filepath.ToSlash(filepath.Clean(path))
}

// CacheKey returns the analysis cache key. A new modification time or a new
// baseline revision is a new key.
func CacheKey(baseline, rev, path string, modTime time.Time) string {
	return cache.HashKey("analysis", baseline, rev, filepath.ToSlash(path), modTime.UTC().Format(time.RFC3339Nano))
}

// Analyze returns the change analysis of path.
func (a *Analyzer) Analyze(path string) (Analysis, error) {
	info, err := a.provider.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return a.analyzeMissing(path)
		}
		return Analysis{}, fmt.Errorf("%w: %s: %v", ErrFileUnreadable, path, err)
	}
	if info.IsDir() {
		return Analysis{}, fmt.Errorf("%w: %s is a directory", ErrFileUnreadable, path)
	}

	key := a.cacheKey(path, info.ModTime())
	if an, ok := a.cacheGet(key); ok {
		return an, nil
	}

	content, err := a.provider.ReadFile(path)
	if err != nil {
		return Analysis{}, fmt.Errorf("%w: %s: %v", ErrFileUnreadable, path, err)
	}
	content = textutil.Normalize(content)

	an := Analysis{
		FilePath:      path,
		FileLineCount: textutil.CountLines(content),
		Category:      Categorize(path),
		ModTime:       info.ModTime(),
		ContentHash:   cache.HashBytes(content),
	}

	if an.FileLineCount == 0 {
		a.fillDeleted(&an)
	} else {
		a.fillChange(&an, content)
	}
	a.finish(&an)
	a.cacheSet(key, path, an)
	return an, nil
}

// analyzeMissing handles a path with no working copy. It is a deletion when
// the baseline still has it.
func (a *Analyzer) analyzeMissing(path string) (Analysis, error) {
	inBase, err := a.provider.InBaseline(path, a.opts.Baseline)
	if err != nil || !inBase {
		if err == nil {
			err = fs.ErrNotExist
		}
		return Analysis{}, fmt.Errorf("%w: %s: %v", ErrFileUnreadable, path, err)
	}

	key := a.cacheKey(path, time.Time{})
	if an, ok := a.cacheGet(key); ok {
		return an, nil
	}
	an := Analysis{FilePath: path, Category: Categorize(path)}
	a.fillDeleted(&an)
	a.finish(&an)
	a.cacheSet(key, path, an)
	return an, nil
}

// fillDeleted records a removed or emptied file. The removal diff is kept for
// DiffOnly; failing to get it only loses that text.
func (a *Analyzer) fillDeleted(an *Analysis) {
	an.IsDeleted = true
	diff, err := a.provider.Diff(an.FilePath, a.opts.Baseline)
	if err != nil && !errors.Is(err, gitctx.ErrNoBaseline) {
		a.logger.Warn("deletion diff unavailable", "path", an.FilePath, "error", err)
	}
	an.Diff = diff
	an.DeletedLines = diffparse.Count(diff).Deleted
	an.ChangeRatio = ChangeRatio(0, 0, an.DeletedLines)
}

func (a *Analyzer) fillChange(an *Analysis, content []byte) {
	inBase, err := a.provider.InBaseline(an.FilePath, a.opts.Baseline)
	switch {
	case errors.Is(err, gitctx.ErrNoBaseline), err == nil && !inBase:
		a.fillNew(an, content)
		return
	case err != nil:
		a.degrade(an, err)
		return
	}

	added, deleted, err := a.provider.DiffStats(an.FilePath, a.opts.Baseline)
	if err != nil {
		a.degrade(an, err)
		return
	}
	diff, err := a.provider.Diff(an.FilePath, a.opts.Baseline)
	if err != nil {
		a.degrade(an, err)
		return
	}

	an.AddedLines, an.DeletedLines = added, deleted
	an.Diff = diff
	an.Regions = diffparse.Parse(diff)
	an.ChangeRatio = ChangeRatio(an.FileLineCount, added, deleted)
	an.HasPublicAPIChange = HasPublicDeclaration(an.FilePath, diffparse.Added(diff))

	if len(an.Regions) == 0 && added+deleted > 0 {
		// Numstat saw changes the diff text does not show; treat the whole
		// file as changed.
		a.degrade(an, fmt.Errorf("%w: no parsable hunks", gitctx.ErrDiffUnavailable))
	}
}

func (a *Analyzer) fillNew(an *Analysis, content []byte) {
	an.IsNew = true
	an.Diff = gitctx.NewFileDiff(filepath.ToSlash(an.FilePath), content)
	an.Regions = diffparse.Parse(an.Diff)
	an.AddedLines = an.FileLineCount
	an.DeletedLines = 0
	an.ChangeRatio = 1
	an.HasPublicAPIChange = HasPublicDeclaration(an.FilePath, textutil.SplitLines(string(content)))
}

// degrade marks the analysis as undiffable. Strategy selection is bypassed
// and the whole file is sent.
func (a *Analyzer) degrade(an *Analysis, cause error) {
	an.Degraded = cause.Error()
	an.ChangeRatio = 1
	a.logger.Warn("diff unavailable, sending whole file",
		"path", an.FilePath, "fallback", strategy.FullFile.String(), "error", cause)
}

func (a *Analyzer) finish(an *Analysis) {
	an.RegionCount = len(an.Regions)
	for _, r := range an.Regions {
		an.MaxRegionSize = max(an.MaxRegionSize, r.Size)
	}
	if an.Degraded != "" {
		an.Strategy = strategy.FullFile
	} else {
		an.Strategy = strategy.Select(an.Signals())
	}
	an.EstimatedTokens = strategy.EstimateTokens(an.Strategy, an.FileLineCount, a.opts.MaxTokensPerFile)
	a.logger.Debug("file analyzed",
		"path", an.FilePath, "strategy", an.Strategy.String(), "ratio", an.ChangeRatio, "regions", an.RegionCount)
}

func (a *Analyzer) cacheGet(key string) (Analysis, bool) {
	if a.opts.Cache == nil || key == "" {
		return Analysis{}, false
	}
	return a.opts.Cache.Get(key)
}

func (a *Analyzer) cacheSet(key, path string, an Analysis) {
	if a.opts.Cache == nil || key == "" {
		return
	}
	if err := a.opts.Cache.Set(key, an, cache.SetOptions{Tags: []string{PathTag(path)}}); err != nil {
		a.logger.Warn("caching analysis failed", "path", path, "error", err)
	}
}

// ChangeRatio returns the share of a file touched by a change, in [0, 1].
// Deleted lines beyond the added ones are counted as if the file were that
// much longer. Negative inputs are treated as zero.
func ChangeRatio(fileLineCount, added, deleted int) float64 {
	fileLineCount, added, deleted = max(fileLineCount, 0), max(added, 0), max(deleted, 0)
	denom := max(fileLineCount+max(0, deleted-added), 1)
	r := float64(added+deleted) / float64(denom)
	return min(max(r, 0), 1)
}
