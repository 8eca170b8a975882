// Package pipeline ties change analysis, strategy selection and extraction
// together behind one handle, and runs them over many files.
package pipeline

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/dshills/focus/internal/analyze"
	"github.com/dshills/focus/internal/cache"
	"github.com/dshills/focus/internal/extract"
	"github.com/dshills/focus/internal/gitctx"
	"github.com/dshills/focus/internal/redact"
	"github.com/dshills/focus/internal/textutil"
)

// Options configures a Pipeline.
type Options struct {
	Baseline         string
	MaxTokensPerFile int
	WindowLines      int
	// Concurrency bounds RunAll. Zero uses DefaultConcurrency.
	Concurrency int
	// FileTimeout bounds each file in RunAll. Zero means no limit.
	FileTimeout time.Duration
	Redactor    *redact.Redactor
	Logger      *slog.Logger
}

// DefaultConcurrency is the RunAll worker count when none is configured.
const DefaultConcurrency = 4

// Caches are the handles a Pipeline memoizes into. Either may be nil.
type Caches struct {
	Analyses *cache.Cache[analyze.Analysis]
	Contexts *cache.Cache[extract.Context]
}

// CacheStats reports both caches.
type CacheStats struct {
	Analyses cache.Stats `json:"analyses"`
	Contexts cache.Stats `json:"contexts"`
}

// Result is the outcome for one file.
type Result struct {
	Path       string           `json:"path"`
	Analysis   analyze.Analysis `json:"analysis"`
	Context    extract.Context  `json:"context"`
	Redactions int              `json:"redactions,omitempty"`
	Elapsed    time.Duration    `json:"elapsedNs"`
}

// Pipeline is safe for concurrent use on different files.
type Pipeline struct {
	provider gitctx.Provider
	analyzer *analyze.Analyzer
	caches   Caches
	opts     Options
	logger   *slog.Logger
}

// New wires a pipeline over provider.
func New(provider gitctx.Provider, caches Caches, opts Options) *Pipeline {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.WindowLines <= 0 {
		opts.WindowLines = extract.DefaultWindowLines
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		provider: provider,
		analyzer: analyze.New(provider, analyze.Options{
			Baseline:         opts.Baseline,
			MaxTokensPerFile: opts.MaxTokensPerFile,
			Cache:            caches.Analyses,
			Logger:           logger,
		}),
		caches: caches,
		opts:   opts,
		logger: logger,
	}
}

// Analyze returns the change analysis of path.
func (p *Pipeline) Analyze(path string) (analyze.Analysis, error) {
	return p.analyzer.Analyze(path)
}

// Extract returns the context for path under an. Results are memoized by
// the content hash and the analysis facts extraction depends on.
func (p *Pipeline) Extract(path string, an analyze.Analysis) (extract.Context, error) {
	var content []byte
	if !an.IsDeleted {
		b, err := p.provider.ReadFile(path)
		if err != nil {
			return extract.Context{}, fmt.Errorf("%w: %s: %v", analyze.ErrFileUnreadable, path, err)
		}
		content = textutil.Normalize(b)
	}

	key, err := p.extractKey(path, cache.HashBytes(content), an)
	if err != nil {
		return extract.Context{}, err
	}
	if p.caches.Contexts != nil {
		if c, ok := p.caches.Contexts.Get(key); ok {
			return c, nil
		}
	}

	c := extract.Extract(an.Strategy, extract.Input{
		Path:    path,
		Content: string(content),
		Diff:    an.Diff,
		Regions: an.Regions,
	}, extract.Options{WindowLines: p.opts.WindowLines})
	if c.Fallback != "" {
		p.logger.Warn("extraction degraded",
			"path", path, "fallback", c.Strategy.String(), "reason", c.Fallback)
	}

	if p.caches.Contexts != nil {
		opts := cache.SetOptions{Tags: []string{analyze.PathTag(path)}}
		if err := p.caches.Contexts.Set(key, c, opts); err != nil {
			p.logger.Warn("caching context failed", "path", path, "error", err)
		}
	}
	return c, nil
}

func (p *Pipeline) extractKey(path, contentHash string, an analyze.Analysis) (string, error) {
	regions, err := json.Marshal(an.Regions)
	if err != nil {
		return "", fmt.Errorf("encoding regions: %w", err)
	}
	return cache.HashKey(
		"extract",
		path,
		contentHash,
		an.Strategy.String(),
		string(regions),
		cache.HashBytes([]byte(an.Diff)),
		strconv.Itoa(p.opts.WindowLines),
	), nil
}

// Process analyzes and extracts path, then redacts the text.
func (p *Pipeline) Process(path string) (Result, error) {
	start := time.Now()
	an, err := p.Analyze(path)
	if err != nil {
		return Result{}, err
	}
	c, err := p.Extract(path, an)
	if err != nil {
		return Result{}, err
	}
	res := Result{Path: path, Analysis: an, Context: c}
	if p.opts.Redactor.Enabled() {
		res.Context.Text, res.Redactions = p.opts.Redactor.Apply(path, c.Text)
		if res.Redactions > 0 {
			p.logger.Info("redacted extracted text", "path", path, "count", res.Redactions)
		}
	}
	res.Elapsed = time.Since(start)
	return res, nil
}

// Invalidate drops every cached entry derived from path and returns how
// many were removed.
func (p *Pipeline) Invalidate(path string) int {
	tag := analyze.PathTag(path)
	n := 0
	if p.caches.Analyses != nil {
		n += p.caches.Analyses.InvalidateTag(tag)
	}
	if p.caches.Contexts != nil {
		n += p.caches.Contexts.InvalidateTag(tag)
	}
	return n
}

// CacheStats returns statistics for both caches.
func (p *Pipeline) CacheStats() CacheStats {
	var s CacheStats
	if p.caches.Analyses != nil {
		s.Analyses = p.caches.Analyses.Stats()
	}
	if p.caches.Contexts != nil {
		s.Contexts = p.caches.Contexts.Stats()
	}
	return s
}
