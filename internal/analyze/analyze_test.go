package analyze

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dshills/focus/internal/cache"
	"github.com/dshills/focus/internal/diffparse"
	"github.com/dshills/focus/internal/gitctx"
	"github.com/dshills/focus/internal/strategy"
)

type fakeInfo struct {
	name string
	mod  time.Time
	size int64
}

func (f fakeInfo) Name() string       { return f.name }
func (f fakeInfo) Size() int64        { return f.size }
func (f fakeInfo) Mode() fs.FileMode  { return 0o644 }
func (f fakeInfo) ModTime() time.Time { return f.mod }
func (f fakeInfo) IsDir() bool        { return false }
func (f fakeInfo) Sys() any           { return nil }

// fakeProvider serves files and diffs from memory.
type fakeProvider struct {
	files      map[string]string
	mtimes     map[string]time.Time
	baseline   map[string]bool
	diffs      map[string]string
	stats      map[string][2]int
	noBaseline bool
	diffErr    error
	readErr    error
	diffCalls  int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		files:    map[string]string{},
		mtimes:   map[string]time.Time{},
		baseline: map[string]bool{},
		diffs:    map[string]string{},
		stats:    map[string][2]int{},
	}
}

func (p *fakeProvider) Stat(path string) (fs.FileInfo, error) {
	content, ok := p.files[path]
	if !ok {
		return nil, &fs.PathError{Op: "stat", Path: path, Err: fs.ErrNotExist}
	}
	return fakeInfo{name: path, mod: p.mtimes[path], size: int64(len(content))}, nil
}

func (p *fakeProvider) ReadFile(path string) ([]byte, error) {
	if p.readErr != nil {
		return nil, p.readErr
	}
	content, ok := p.files[path]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return []byte(content), nil
}

func (p *fakeProvider) InBaseline(path, _ string) (bool, error) {
	if p.noBaseline {
		return false, gitctx.ErrNoBaseline
	}
	return p.baseline[path], nil
}

func (p *fakeProvider) DiffStats(path, _ string) (int, int, error) {
	if p.diffErr != nil {
		return 0, 0, p.diffErr
	}
	if s, ok := p.stats[path]; ok {
		return s[0], s[1], nil
	}
	c := diffparse.Count(p.diffs[path])
	return c.Added, c.Deleted, nil
}

func (p *fakeProvider) Diff(path, _ string) (string, error) {
	p.diffCalls++
	if p.noBaseline {
		return "", gitctx.ErrNoBaseline
	}
	if p.diffErr != nil {
		return "", p.diffErr
	}
	return p.diffs[path], nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func numberedLines(n int) string {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "line %d\n", i)
	}
	return b.String()
}

func newTestAnalyzer(p gitctx.Provider, c *cache.Cache[Analysis]) *Analyzer {
	return New(p, Options{Baseline: "HEAD", Cache: c, Logger: discardLogger()})
}

func TestAnalyze_NewSmallFile(t *testing.T) {
	p := newFakeProvider()
	p.files["new.go"] = numberedLines(40)

	an, err := newTestAnalyzer(p, nil).Analyze("new.go")
	if err != nil {
		t.Fatalf("Analyze error: %v", err)
	}
	if !an.IsNew {
		t.Error("expected IsNew")
	}
	if an.ChangeRatio != 1 || an.DeletedLines != 0 {
		t.Errorf("new file ratio = %v deleted = %d, want 1 and 0", an.ChangeRatio, an.DeletedLines)
	}
	if an.AddedLines != 40 || an.FileLineCount != 40 {
		t.Errorf("AddedLines = %d FileLineCount = %d, want 40", an.AddedLines, an.FileLineCount)
	}
	if an.Strategy != strategy.FullFile {
		t.Errorf("Strategy = %s, want full_file", an.Strategy)
	}
	if an.EstimatedTokens != 320 {
		t.Errorf("EstimatedTokens = %d, want 320", an.EstimatedTokens)
	}
	if len(an.Regions) != 1 || an.Regions[0].StartLine != 1 || an.Regions[0].EndLine != 40 {
		t.Errorf("Regions = %+v, want one region 1-40", an.Regions)
	}
}

func TestAnalyze_NoBaselineTreatsFileAsNew(t *testing.T) {
	p := newFakeProvider()
	p.noBaseline = true
	p.files["big.go"] = numberedLines(250)

	an, err := newTestAnalyzer(p, nil).Analyze("big.go")
	if err != nil {
		t.Fatalf("Analyze error: %v", err)
	}
	if !an.IsNew || an.ChangeRatio != 1 || an.DeletedLines != 0 {
		t.Errorf("got IsNew=%v ratio=%v deleted=%d", an.IsNew, an.ChangeRatio, an.DeletedLines)
	}
	if an.Strategy != strategy.SmartSummary {
		t.Errorf("Strategy = %s, want smart_summary", an.Strategy)
	}
}

func TestAnalyze_SmallLocalizedChange(t *testing.T) {
	p := newFakeProvider()
	p.files["svc.go"] = numberedLines(300)
	p.baseline["svc.go"] = true
	p.diffs["svc.go"] = `diff --git a/svc.go b/svc.go
--- a/svc.go
+++ b/svc.go
@@ -100,4 +100,5 @@
 line 100
-old 101
-old 102
+line 101
+line 102
+line 103
 line 104
`
	an, err := newTestAnalyzer(p, nil).Analyze("svc.go")
	if err != nil {
		t.Fatalf("Analyze error: %v", err)
	}
	if an.AddedLines != 3 || an.DeletedLines != 2 {
		t.Errorf("added/deleted = %d/%d, want 3/2", an.AddedLines, an.DeletedLines)
	}
	if math.Abs(an.ChangeRatio-5.0/300) > 1e-9 {
		t.Errorf("ChangeRatio = %v, want ~0.017", an.ChangeRatio)
	}
	if an.RegionCount != 1 {
		t.Errorf("RegionCount = %d, want 1", an.RegionCount)
	}
	if an.Strategy != strategy.DiffOnly {
		t.Errorf("Strategy = %s, want diff_only", an.Strategy)
	}
	if an.EstimatedTokens != 500 {
		t.Errorf("EstimatedTokens = %d, want 500", an.EstimatedTokens)
	}
	if an.IsNew || an.IsDeleted {
		t.Error("modified file flagged new or deleted")
	}
}

// spreadDiff builds four 30-line hunks in a 300-line file. Every fourth line
// and the last line of each hunk are replaced.
func spreadDiff(firstAdded string) string {
	var b strings.Builder
	b.WriteString("diff --git a/api.go b/api.go\n--- a/api.go\n+++ b/api.go\n")
	for h := 0; h < 4; h++ {
		start := 1 + h*70
		fmt.Fprintf(&b, "@@ -%d,30 +%d,30 @@\n", start, start)
		for j := 0; j < 30; j++ {
			if j%4 == 0 || j == 29 {
				added := "\tx := 1"
				if h == 0 && j == 0 {
					added = firstAdded
				}
				fmt.Fprintf(&b, "-old %d\n+%s\n", start+j, added)
				continue
			}
			fmt.Fprintf(&b, " line %d\n", start+j)
		}
	}
	return b.String()
}

func TestAnalyze_SpreadChangeWithPublicAPI(t *testing.T) {
	p := newFakeProvider()
	p.files["api.go"] = numberedLines(300)
	p.baseline["api.go"] = true
	p.diffs["api.go"] = spreadDiff("func NewWidget() *Widget {")

	an, err := newTestAnalyzer(p, nil).Analyze("api.go")
	if err != nil {
		t.Fatalf("Analyze error: %v", err)
	}
	if an.RegionCount != 4 {
		t.Fatalf("RegionCount = %d, want 4", an.RegionCount)
	}
	span := 0
	for _, r := range an.Regions {
		span += r.Lines()
	}
	if span != 120 {
		t.Errorf("regions span %d lines, want 120", span)
	}
	if an.MaxRegionSize != 18 {
		t.Errorf("MaxRegionSize = %d, want 18", an.MaxRegionSize)
	}
	if !an.HasPublicAPIChange {
		t.Error("expected public API change")
	}
	if math.Abs(an.ChangeRatio-72.0/300) > 1e-9 {
		t.Errorf("ChangeRatio = %v, want 0.24", an.ChangeRatio)
	}
	if an.Strategy != strategy.AffectedBlocks {
		t.Errorf("Strategy = %s, want affected_blocks", an.Strategy)
	}

	p.diffs["api.go"] = spreadDiff("func newWidget() *widget {")
	p.mtimes["api.go"] = time.Unix(10, 0)
	an, err = newTestAnalyzer(p, nil).Analyze("api.go")
	if err != nil {
		t.Fatalf("Analyze error: %v", err)
	}
	if an.HasPublicAPIChange || an.Strategy != strategy.ContextWindow {
		t.Errorf("unexported change: public=%v strategy=%s, want false and context_window", an.HasPublicAPIChange, an.Strategy)
	}
}

func TestAnalyze_DeletedFile(t *testing.T) {
	p := newFakeProvider()
	p.baseline["gone.go"] = true
	p.diffs["gone.go"] = `diff --git a/gone.go b/gone.go
deleted file mode 100644
--- a/gone.go
+++ /dev/null
@@ -1,3 +0,0 @@
-package gone
-
-func X() {}
`
	an, err := newTestAnalyzer(p, nil).Analyze("gone.go")
	if err != nil {
		t.Fatalf("Analyze error: %v", err)
	}
	if !an.IsDeleted {
		t.Error("expected IsDeleted")
	}
	if an.AddedLines != 0 || an.DeletedLines != 3 {
		t.Errorf("added/deleted = %d/%d, want 0/3", an.AddedLines, an.DeletedLines)
	}
	if an.RegionCount != 0 {
		t.Errorf("RegionCount = %d, want 0", an.RegionCount)
	}
	if an.Strategy != strategy.DiffOnly {
		t.Errorf("Strategy = %s, want diff_only", an.Strategy)
	}
	if an.Diff != p.diffs["gone.go"] {
		t.Errorf("Diff = %q, want the deletion diff", an.Diff)
	}
}

func TestAnalyze_EmptyFileIsDeleted(t *testing.T) {
	p := newFakeProvider()
	p.files["empty.go"] = ""
	p.baseline["empty.go"] = true

	an, err := newTestAnalyzer(p, nil).Analyze("empty.go")
	if err != nil {
		t.Fatalf("Analyze error: %v", err)
	}
	if !an.IsDeleted || an.FileLineCount != 0 || len(an.Regions) != 0 {
		t.Errorf("got IsDeleted=%v lines=%d regions=%d", an.IsDeleted, an.FileLineCount, len(an.Regions))
	}
	if an.Strategy != strategy.DiffOnly {
		t.Errorf("Strategy = %s, want diff_only", an.Strategy)
	}
}

func TestAnalyze_Unreadable(t *testing.T) {
	p := newFakeProvider()
	a := newTestAnalyzer(p, nil)

	if _, err := a.Analyze("nowhere.go"); !errors.Is(err, ErrFileUnreadable) {
		t.Errorf("missing untracked file: err = %v, want ErrFileUnreadable", err)
	}

	p.files["locked.go"] = "package locked\n"
	p.readErr = fs.ErrPermission
	if _, err := a.Analyze("locked.go"); !errors.Is(err, ErrFileUnreadable) {
		t.Errorf("permission denied: err = %v, want ErrFileUnreadable", err)
	}
}

func TestAnalyze_MalformedDiff(t *testing.T) {
	p := newFakeProvider()
	p.files["m.go"] = numberedLines(60)
	p.baseline["m.go"] = true
	p.diffs["m.go"] = "this is not\na unified diff\n@@ broken @@\n"

	an, err := newTestAnalyzer(p, nil).Analyze("m.go")
	if err != nil {
		t.Fatalf("Analyze error: %v", err)
	}
	if an.RegionCount != 0 {
		t.Errorf("RegionCount = %d, want 0", an.RegionCount)
	}
	if !an.Strategy.Valid() || an.FileLineCount != 60 {
		t.Errorf("invalid analysis: %+v", an)
	}

	// When numstat reports changes the broken diff cannot show, the whole
	// file is sent.
	p.stats["m.go"] = [2]int{4, 1}
	p.mtimes["m.go"] = time.Unix(5, 0)
	an, err = newTestAnalyzer(p, nil).Analyze("m.go")
	if err != nil {
		t.Fatalf("Analyze error: %v", err)
	}
	if an.Strategy != strategy.FullFile || an.Degraded == "" {
		t.Errorf("Strategy = %s Degraded = %q, want full_file with a reason", an.Strategy, an.Degraded)
	}
}

func TestAnalyze_DiffUnavailableFallsBackToFullFile(t *testing.T) {
	p := newFakeProvider()
	p.files["logo.go"] = numberedLines(500)
	p.baseline["logo.go"] = true
	p.diffErr = fmt.Errorf("%w: binary file logo.go", gitctx.ErrDiffUnavailable)

	an, err := newTestAnalyzer(p, nil).Analyze("logo.go")
	if err != nil {
		t.Fatalf("Analyze error: %v", err)
	}
	if an.Strategy != strategy.FullFile {
		t.Errorf("Strategy = %s, want full_file", an.Strategy)
	}
	if !strings.Contains(an.Degraded, "binary") {
		t.Errorf("Degraded = %q, want the cause", an.Degraded)
	}
	if an.EstimatedTokens != strategy.DefaultMaxTokensPerFile {
		t.Errorf("EstimatedTokens = %d, want ceiling %d", an.EstimatedTokens, strategy.DefaultMaxTokensPerFile)
	}
}

func TestAnalyze_CacheByModTime(t *testing.T) {
	p := newFakeProvider()
	p.files["c.go"] = numberedLines(300)
	p.baseline["c.go"] = true
	p.diffs["c.go"] = "@@ -10,1 +10,1 @@\n-a\n+b\n"
	p.mtimes["c.go"] = time.Unix(100, 0)

	c := cache.New[Analysis](cache.Options{Enabled: true, Logger: discardLogger()})
	a := newTestAnalyzer(p, c)

	first, err := a.Analyze("c.go")
	if err != nil {
		t.Fatalf("Analyze error: %v", err)
	}
	calls := p.diffCalls
	second, err := a.Analyze("c.go")
	if err != nil {
		t.Fatalf("Analyze error: %v", err)
	}
	if p.diffCalls != calls {
		t.Errorf("second Analyze called Diff again")
	}
	if first.Strategy != second.Strategy || first.ContentHash != second.ContentHash || first.ChangeRatio != second.ChangeRatio {
		t.Errorf("cached analysis differs: %+v vs %+v", first, second)
	}
	if c.Stats().Hits != 1 {
		t.Errorf("Hits = %d, want 1", c.Stats().Hits)
	}

	p.mtimes["c.go"] = time.Unix(200, 0)
	if _, err := a.Analyze("c.go"); err != nil {
		t.Fatalf("Analyze error: %v", err)
	}
	if p.diffCalls == calls {
		t.Error("new mtime should miss the cache")
	}
	if n := c.InvalidateTag(PathTag("c.go")); n != 2 {
		t.Errorf("InvalidateTag removed %d entries, want 2", n)
	}
}

// resolvingProvider reports a baseline revision that tests can move.
type resolvingProvider struct {
	*fakeProvider
	rev string
	err error
}

func (p *resolvingProvider) ResolveBaseline(string) (string, error) {
	return p.rev, p.err
}

func TestAnalyze_CacheFollowsBaselineRevision(t *testing.T) {
	p := &resolvingProvider{fakeProvider: newFakeProvider(), rev: "aaa"}
	p.files["c.go"] = numberedLines(300)
	p.baseline["c.go"] = true
	p.diffs["c.go"] = "@@ -10,1 +10,1 @@\n-a\n+b\n"
	p.mtimes["c.go"] = time.Unix(100, 0)

	c := cache.New[Analysis](cache.Options{Enabled: true, Logger: discardLogger()})
	a := newTestAnalyzer(p, c)

	if _, err := a.Analyze("c.go"); err != nil {
		t.Fatalf("Analyze error: %v", err)
	}
	if _, err := a.Analyze("c.go"); err != nil {
		t.Fatalf("Analyze error: %v", err)
	}
	if c.Stats().Hits != 1 {
		t.Fatalf("Hits = %d, want 1 before the baseline moves", c.Stats().Hits)
	}

	// The file is untouched but the baseline now includes its change.
	p.rev = "bbb"
	p.diffs["c.go"] = ""
	if rev, err := a.Refresh(); err != nil || rev != "bbb" {
		t.Fatalf("Refresh = (%q, %v), want (bbb, nil)", rev, err)
	}
	an, err := a.Analyze("c.go")
	if err != nil {
		t.Fatalf("Analyze error: %v", err)
	}
	if c.Stats().Hits != 1 {
		t.Error("moved baseline should miss the cache")
	}
	if an.RegionCount != 0 || an.Strategy != strategy.DiffOnly {
		t.Errorf("analysis after move = %d regions, %s; want 0, diff_only", an.RegionCount, an.Strategy)
	}
}

func TestAnalyze_UnresolvedBaselineBypassesCache(t *testing.T) {
	p := &resolvingProvider{fakeProvider: newFakeProvider(), err: errors.New("git exploded")}
	p.files["c.go"] = numberedLines(300)
	p.baseline["c.go"] = true
	p.diffs["c.go"] = "@@ -10,1 +10,1 @@\n-a\n+b\n"

	c := cache.New[Analysis](cache.Options{Enabled: true, Logger: discardLogger()})
	a := newTestAnalyzer(p, c)
	for range 2 {
		if _, err := a.Analyze("c.go"); err != nil {
			t.Fatalf("Analyze error: %v", err)
		}
	}
	if st := c.Stats(); st.Entries != 0 || st.Hits != 0 {
		t.Errorf("Stats = %+v, want nothing cached", st)
	}

	p.err = gitctx.ErrNoBaseline
	if rev, err := a.Refresh(); err != nil || rev != "none" {
		t.Errorf("Refresh = (%q, %v), want (none, nil)", rev, err)
	}
}

func TestAnalyze_CommitInvalidatesCachedAnalysis(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	run := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@test.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@test.com",
		)
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v failed: %v\n%s", args, err, out)
		}
	}
	path := filepath.Join(dir, "big.go")
	content := "package big\n" + numberedLines(300)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	run("init")
	run("config", "commit.gpgsign", "false")
	run("add", "-A")
	run("commit", "-m", "init")

	if err := os.WriteFile(path, []byte(content+"extra\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	g, err := gitctx.NewGit(dir, 3)
	if err != nil {
		t.Fatalf("NewGit error: %v", err)
	}
	c := cache.New[Analysis](cache.Options{Enabled: true, Logger: discardLogger()})

	first, err := newTestAnalyzer(g, c).Analyze("big.go")
	if err != nil {
		t.Fatalf("Analyze error: %v", err)
	}
	if first.AddedLines != 1 {
		t.Fatalf("AddedLines = %d, want 1", first.AddedLines)
	}

	run("commit", "-am", "extra")

	// A fresh analyzer over the same persistent cache, as in the next run.
	after, err := newTestAnalyzer(g, c).Analyze("big.go")
	if err != nil {
		t.Fatalf("Analyze error: %v", err)
	}
	if after.AddedLines != 0 || after.RegionCount != 0 {
		t.Errorf("after commit: added=%d regions=%d, want 0 and 0", after.AddedLines, after.RegionCount)
	}
}

func TestChangeRatio_Bounds(t *testing.T) {
	for lines := 0; lines <= 40; lines += 3 {
		for added := 0; added <= 60; added += 7 {
			for deleted := 0; deleted <= 60; deleted += 5 {
				r := ChangeRatio(lines, added, deleted)
				if r < 0 || r > 1 || math.IsNaN(r) {
					t.Fatalf("ChangeRatio(%d, %d, %d) = %v out of [0,1]", lines, added, deleted, r)
				}
			}
		}
	}
	if r := ChangeRatio(-5, -1, -2); r != 0 {
		t.Errorf("negative inputs ratio = %v, want 0", r)
	}
	if r := ChangeRatio(0, 0, 30); r != 1 {
		t.Errorf("full deletion ratio = %v, want 1", r)
	}
	if r := ChangeRatio(10, 0, 30); math.Abs(r-0.75) > 1e-9 {
		t.Errorf("deletion-heavy ratio = %v, want 0.75", r)
	}
	if r := ChangeRatio(200, 10, 10); math.Abs(r-0.1) > 1e-9 {
		t.Errorf("ChangeRatio(200,10,10) = %v, want 0.1", r)
	}
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		path string
		want strategy.Category
	}{
		{"internal/cache/cache.go", strategy.CategoryCore},
		{"internal/cache/cache_test.go", strategy.CategoryTest},
		{"src/__tests__/app.js", strategy.CategoryTest},
		{"web/app.spec.ts", strategy.CategoryTest},
		{"pkg/test_utils.py", strategy.CategoryTest},
		{"testdata/config.json", strategy.CategoryTest},
		{"Makefile", strategy.CategoryBuild},
		{"go.mod", strategy.CategoryBuild},
		{".github/workflows/ci.yml", strategy.CategoryBuild},
		{"deploy/Dockerfile", strategy.CategoryBuild},
		{"README.md", strategy.CategoryDocs},
		{"docs/architecture.go", strategy.CategoryDocs},
		{"config/app.yaml", strategy.CategoryConfig},
		{".focus.toml", strategy.CategoryConfig},
		{".gitignore", strategy.CategoryConfig},
		{`src\main.rs`, strategy.CategoryCore},
	}
	for _, tt := range tests {
		if got := Categorize(tt.path); got != tt.want {
			t.Errorf("Categorize(%q) = %s, want %s", tt.path, got, tt.want)
		}
	}
}

func TestHasPublicDeclaration(t *testing.T) {
	tests := []struct {
		path string
		line string
		want bool
	}{
		{"a.go", "func Exported() {}", true},
		{"a.go", "func (s *Server) Start() error {", true},
		{"a.go", "func helper() {}", false},
		{"a.go", "type Config struct {", true},
		{"a.go", "\tconst Max = 3", true},
		{"a.ts", "export function render() {}", true},
		{"a.ts", "function render() {}", false},
		{"a.py", "def handler(event):", true},
		{"a.py", "def _private():", false},
		{"a.py", "    def method(self):", false},
		{"A.java", "    public void run() {", true},
		{"A.java", "    private void run() {", false},
		{"lib.rs", "pub fn parse(input: &str) {", true},
		{"lib.rs", "pub(crate) struct Inner;", true},
		{"lib.rs", "fn parse() {}", false},
		{"script.sh", "export function x() {}", true},
	}
	for _, tt := range tests {
		if got := HasPublicDeclaration(tt.path, []string{tt.line}); got != tt.want {
			t.Errorf("HasPublicDeclaration(%q, %q) = %v, want %v", tt.path, tt.line, got, tt.want)
		}
	}
}
