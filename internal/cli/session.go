package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dshills/focus/internal/analyze"
	"github.com/dshills/focus/internal/cache"
	"github.com/dshills/focus/internal/config"
	"github.com/dshills/focus/internal/extract"
	"github.com/dshills/focus/internal/gitctx"
	"github.com/dshills/focus/internal/pipeline"
	"github.com/dshills/focus/internal/redact"
)

// session holds everything a command needs for one invocation.
type session struct {
	cfg      config.Config
	logger   *slog.Logger
	root     string
	provider gitctx.Provider
	lister   gitctx.Lister
	caches   pipeline.Caches
	closers  []func() error
}

// openSession resolves the working tree and provider, loads the config for
// it and opens the caches.
func openSession() (*session, error) {
	dir := flagDir
	if dir == "" {
		dir = "."
	}

	s := &session{}
	var git *gitctx.Git
	if flagBaselineDir != "" {
		root, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", dir, err)
		}
		s.root = root
	} else {
		g, err := gitctx.NewGit(dir, 0)
		if err != nil {
			return nil, fmt.Errorf("%w (use --baseline-dir outside git)", err)
		}
		git = g
		s.root = g.Root
	}

	cfg, err := config.Load(s.root, buildOverrides())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	s.cfg = cfg
	s.logger = newLogger(cfg.LogLevel)
	slog.SetDefault(s.logger)

	if git != nil {
		git.ContextLines = cfg.DiffContextLines
		s.provider, s.lister = git, git
	} else {
		d := gitctx.NewDirProvider(flagBaselineDir, s.root, cfg.DiffContextLines)
		s.provider, s.lister = d, d
	}

	if err := s.openCaches(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// projectRoot returns the directory whose project config applies: the
// working tree in baseline-dir mode, otherwise the repository top level.
func projectRoot() (string, error) {
	dir := flagDir
	if dir == "" {
		dir = "."
	}
	if flagBaselineDir != "" {
		return filepath.Abs(dir)
	}
	g, err := gitctx.NewGit(dir, 0)
	if err != nil {
		return "", err
	}
	return g.Root, nil
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

// openCaches opens the analysis and context caches. Snapshots live in a
// per-project directory under the configured cache dir. When the snapshot
// store cannot be opened the caches run in memory only.
func (s *session) openCaches() error {
	cc := s.cfg.Cache
	if !cc.Enabled {
		return nil
	}

	var analysesStore, contextsStore cache.Store
	if cc.Persist {
		var err error
		analysesStore, contextsStore, err = s.openStores()
		if err != nil {
			s.logger.Warn("cache snapshots unavailable, caching in memory only",
				"backend", cc.Backend, "error", err)
			analysesStore, contextsStore = nil, nil
		}
	}

	analyses, err := cache.Open[analyze.Analysis](s.cacheOptions("analyses", analysesStore))
	if err != nil {
		return fmt.Errorf("opening cache: %w", err)
	}
	s.caches.Analyses = analyses
	// Caches flush before their store closes.
	s.closers = append([]func() error{analyses.Close}, s.closers...)

	contexts, err := cache.Open[extract.Context](s.cacheOptions("contexts", contextsStore))
	if err != nil {
		return fmt.Errorf("opening cache: %w", err)
	}
	s.caches.Contexts = contexts
	s.closers = append([]func() error{contexts.Close}, s.closers...)
	return nil
}

// openStores opens the snapshot stores for this project. Errors wrap
// cache.ErrCacheIO.
func (s *session) openStores() (analyses, contexts cache.Store, err error) {
	base, err := s.cfg.Cache.ResolveDir()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", cache.ErrCacheIO, err)
	}
	dir := filepath.Join(base, cache.HashKey(s.root)[:16])
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("%w: creating cache directory: %v", cache.ErrCacheIO, err)
	}
	if s.cfg.Cache.Backend == "sqlite" {
		db, err := cache.OpenSQLiteStore(filepath.Join(dir, "cache.db"), "analyses")
		if err != nil {
			return nil, nil, err
		}
		s.closers = append(s.closers, db.Close)
		return db, db.WithNamespace("contexts"), nil
	}
	return cache.NewJSONStore(filepath.Join(dir, "analyses.json")),
		cache.NewJSONStore(filepath.Join(dir, "contexts.json")), nil
}

func (s *session) cacheOptions(name string, store cache.Store) cache.Options {
	cc := s.cfg.Cache
	return cache.Options{
		Enabled:         true,
		Policy:          cache.Policy(cc.Strategy),
		MaxBytes:        cc.MaxBytes,
		MaxEntries:      cc.MaxEntries,
		DefaultTTL:      cc.TTL(),
		SweepInterval:   cc.SweepInterval(),
		PersistInterval: cc.PersistInterval(),
		Store:           store,
		Logger:          s.logger.With("cache", name),
	}
}

// Close flushes the caches and releases their stores.
func (s *session) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

func (s *session) pipeline() *pipeline.Pipeline {
	return pipeline.New(s.provider, s.caches, pipeline.Options{
		Baseline:         s.cfg.Baseline,
		MaxTokensPerFile: s.cfg.MaxTokensPerFile,
		WindowLines:      s.cfg.ContextWindowLines,
		Concurrency:      s.cfg.Concurrency,
		FileTimeout:      s.cfg.FileTimeout(),
		Redactor:         redact.New(s.cfg.Privacy.RedactSecrets, s.cfg.Privacy.RedactPaths),
		Logger:           s.logger,
	})
}

func (s *session) include() []string {
	if flagPaths != "" {
		return splitComma(flagPaths)
	}
	return s.cfg.Include
}

func (s *session) exclude() []string {
	return append(append([]string(nil), s.cfg.Exclude...), splitComma(flagExclude)...)
}

// targets returns the explicit paths relative to the root, or every changed
// file passing the include and exclude globs.
func (s *session) targets(args []string) ([]string, error) {
	if len(args) > 0 {
		paths := make([]string, 0, len(args))
		for _, a := range args {
			paths = append(paths, s.relPath(a))
		}
		return paths, nil
	}
	changed, err := s.lister.ChangedFiles(s.cfg.Baseline)
	if err != nil {
		return nil, err
	}
	return gitctx.Filter(changed, s.include(), s.exclude()), nil
}

// relPath resolves a path given on the command line against the current
// directory and makes it relative to the root.
func (s *session) relPath(arg string) string {
	abs, err := filepath.Abs(arg)
	if err != nil {
		return filepath.ToSlash(arg)
	}
	rel, err := filepath.Rel(s.root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(arg)
	}
	return filepath.ToSlash(rel)
}
