package gitctx

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dshills/focus/internal/diffparse"
)

func TestMatchesAny(t *testing.T) {
	tests := []struct {
		path     string
		patterns []string
		want     bool
	}{
		{"vendor/lib.go", []string{"vendor/**"}, true},
		{"vendor/a/b/lib.go", []string{"vendor/**"}, true},
		{"main.go", []string{"vendor/**"}, false},
		{"foo.gen.go", []string{"**/*.gen.go"}, true},
		{"pkg/foo.gen.go", []string{"**/*.gen.go"}, true},
		{"dist/bundle.js", []string{"**/dist/**"}, true},
		{"web/dist/bundle.js", []string{"**/dist/**"}, true},
		{"main.go", []string{"*.go"}, true},
		{"anything/at/all.txt", []string{"**/*"}, true},
		{"main.go", nil, false},
	}
	for _, tt := range tests {
		got := MatchesAny(tt.path, tt.patterns)
		if got != tt.want {
			t.Errorf("MatchesAny(%q, %v) = %v, want %v", tt.path, tt.patterns, got, tt.want)
		}
	}
}

func TestFilter(t *testing.T) {
	files := []string{"main.go", "vendor/lib.go", "pkg/util.go", "dist/bundle.js", "README.md"}
	result := Filter(files, []string{"**/*.go"}, []string{"vendor/**", "**/dist/**"})
	if len(result) != 2 {
		t.Fatalf("Filter got %d files, want 2: %v", len(result), result)
	}
	if result[0] != "main.go" || result[1] != "pkg/util.go" {
		t.Errorf("Filter = %v, want [main.go pkg/util.go]", result)
	}
	if got := Filter(nil, nil, []string{"vendor/**"}); len(got) != 0 {
		t.Errorf("Filter nil input got %d, want 0", len(got))
	}
}

func TestParseNumstat(t *testing.T) {
	added, deleted, err := parseNumstat("3\t1\tmain.go\n")
	if err != nil {
		t.Fatalf("parseNumstat error: %v", err)
	}
	if added != 3 || deleted != 1 {
		t.Errorf("parseNumstat = (%d, %d), want (3, 1)", added, deleted)
	}

	added, deleted, err = parseNumstat("")
	if err != nil || added != 0 || deleted != 0 {
		t.Errorf("parseNumstat empty = (%d, %d, %v), want (0, 0, nil)", added, deleted, err)
	}

	_, _, err = parseNumstat("-\t-\timg.png\n")
	if !errors.Is(err, ErrDiffUnavailable) {
		t.Errorf("binary numstat error = %v, want ErrDiffUnavailable", err)
	}
}

func TestNewFileDiff(t *testing.T) {
	content := "package main\n\nfunc main() {}\n"
	diff := NewFileDiff("main.go", []byte(content))
	if !strings.Contains(diff, "+++ b/main.go") {
		t.Error("diff should contain +++ header")
	}
	if !strings.Contains(diff, "@@ -0,0 +1,3 @@") {
		t.Errorf("diff should contain a 3-line hunk, got:\n%s", diff)
	}
	regions := diffparse.Parse(diff)
	if len(regions) != 1 || regions[0].StartLine != 1 || regions[0].EndLine != 3 {
		t.Errorf("regions = %+v, want one region 1-3", regions)
	}
	if !diffparse.IsNewFile(diff) {
		t.Error("synthesized diff should be marked as new")
	}
}

func TestNewFileDiff_Empty(t *testing.T) {
	diff := NewFileDiff("empty.txt", nil)
	if strings.Contains(diff, "@@") {
		t.Errorf("empty file should have no hunk, got:\n%s", diff)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDirProvider_Modified(t *testing.T) {
	base, work := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(base, "a.go"), "package a\n\nfunc A() {}\n")
	writeFile(t, filepath.Join(work, "a.go"), "package a\n\nfunc A() {}\n\nfunc B() {}\n")

	p := NewDirProvider(base, work, 3)
	ok, err := p.InBaseline("a.go", "")
	if err != nil || !ok {
		t.Fatalf("InBaseline = (%v, %v), want (true, nil)", ok, err)
	}
	diff, err := p.Diff("a.go", "")
	if err != nil {
		t.Fatalf("Diff error: %v", err)
	}
	if !strings.HasPrefix(diff, "diff --git a/a.go b/a.go\n") {
		t.Errorf("diff missing git header:\n%s", diff)
	}
	added, deleted, err := p.DiffStats("a.go", "")
	if err != nil {
		t.Fatalf("DiffStats error: %v", err)
	}
	if added != 2 || deleted != 0 {
		t.Errorf("DiffStats = (%d, %d), want (2, 0)", added, deleted)
	}
	regions := diffparse.Parse(diff)
	if len(regions) != 1 || regions[0].StartLine != 4 || regions[0].EndLine != 5 {
		t.Errorf("regions = %+v, want one region 4-5", regions)
	}
}

func TestDirProvider_NoTrailingNewline(t *testing.T) {
	base, work := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(base, "x.txt"), "one\ntwo")
	writeFile(t, filepath.Join(work, "x.txt"), "one\nTWO")

	p := NewDirProvider(base, work, 0)
	diff, err := p.Diff("x.txt", "")
	if err != nil {
		t.Fatalf("Diff error: %v", err)
	}
	stats := diffparse.Count(diff)
	if stats.Added != 1 || stats.Deleted != 1 {
		t.Errorf("Count = %+v, want {1 1}\n%s", stats, diff)
	}
}

func TestDirProvider_NewAndDeleted(t *testing.T) {
	base, work := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(work, "new.go"), "package n\n")
	writeFile(t, filepath.Join(base, "gone.go"), "package g\n\nvar X = 1\n")

	p := NewDirProvider(base, work, 3)

	ok, err := p.InBaseline("new.go", "")
	if err != nil || ok {
		t.Errorf("InBaseline(new.go) = (%v, %v), want (false, nil)", ok, err)
	}
	diff, err := p.Diff("new.go", "")
	if err != nil {
		t.Fatalf("Diff(new.go) error: %v", err)
	}
	if !diffparse.IsNewFile(diff) {
		t.Errorf("new.go diff should be a new-file diff:\n%s", diff)
	}

	diff, err = p.Diff("gone.go", "")
	if err != nil {
		t.Fatalf("Diff(gone.go) error: %v", err)
	}
	if !diffparse.IsDeletedFile(diff) {
		t.Errorf("gone.go diff should be a deletion:\n%s", diff)
	}
	if stats := diffparse.Count(diff); stats.Deleted != 3 || stats.Added != 0 {
		t.Errorf("gone.go stats = %+v, want {0 3}", stats)
	}

	files, err := p.ChangedFiles("")
	if err != nil {
		t.Fatalf("ChangedFiles error: %v", err)
	}
	if len(files) != 2 || files[0] != "gone.go" || files[1] != "new.go" {
		t.Errorf("ChangedFiles = %v, want [gone.go new.go]", files)
	}
}

func TestDirProvider_Binary(t *testing.T) {
	base, work := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(base, "img.bin"), "a\x00b")
	writeFile(t, filepath.Join(work, "img.bin"), "a\x00c")

	p := NewDirProvider(base, work, 3)
	if _, err := p.Diff("img.bin", ""); !errors.Is(err, ErrDiffUnavailable) {
		t.Errorf("Diff(binary) error = %v, want ErrDiffUnavailable", err)
	}
}

func TestDirProvider_MissingBaseline(t *testing.T) {
	work := t.TempDir()
	writeFile(t, filepath.Join(work, "a.go"), "package a\n")
	p := NewDirProvider(filepath.Join(work, "does-not-exist"), work, 3)
	if _, err := p.InBaseline("a.go", ""); !errors.Is(err, ErrNoBaseline) {
		t.Errorf("InBaseline error = %v, want ErrNoBaseline", err)
	}
	if _, err := p.Diff("a.go", ""); !errors.Is(err, ErrNoBaseline) {
		t.Errorf("Diff error = %v, want ErrNoBaseline", err)
	}
}

// setupTestRepo creates a temp git repo with some tracked files and returns
// the path.
func setupTestRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	run := gitRunner(t, dir)

	run("git", "init")
	run("git", "checkout", "-b", "main")
	run("git", "config", "commit.gpgsign", "false")

	writeFile(t, filepath.Join(dir, "main.go"), "package main\n\nfunc main() {}\n")
	writeFile(t, filepath.Join(dir, "util.go"), "package main\n\nfunc helper() {}\n")
	writeFile(t, filepath.Join(dir, "vendor", "lib.go"), "package vendor\n")

	run("git", "add", "-A")
	run("git", "commit", "-m", "init")

	return dir
}

func gitRunner(t *testing.T, dir string) func(args ...string) {
	return func(args ...string) {
		t.Helper()
		cmd := exec.Command(args[0], args[1:]...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test",
			"GIT_AUTHOR_EMAIL=test@test.com",
			"GIT_COMMITTER_NAME=test",
			"GIT_COMMITTER_EMAIL=test@test.com",
		)
		out, err := cmd.CombinedOutput()
		if err != nil {
			t.Fatalf("command %v failed: %v\n%s", args, err, out)
		}
	}
}

func TestGit_DiffAndStats(t *testing.T) {
	dir := setupTestRepo(t)
	writeFile(t, filepath.Join(dir, "util.go"), "package main\n\nfunc helper() {}\n\nfunc Exported() {}\n")
	writeFile(t, filepath.Join(dir, "fresh.go"), "package main\n")

	g, err := NewGit(dir, 0)
	if err != nil {
		t.Fatalf("NewGit error: %v", err)
	}

	added, deleted, err := g.DiffStats("util.go", "HEAD")
	if err != nil {
		t.Fatalf("DiffStats error: %v", err)
	}
	if added != 2 || deleted != 0 {
		t.Errorf("DiffStats = (%d, %d), want (2, 0)", added, deleted)
	}

	diff, err := g.Diff("util.go", "HEAD")
	if err != nil {
		t.Fatalf("Diff error: %v", err)
	}
	regions := diffparse.Parse(diff)
	if len(regions) != 1 || regions[0].StartLine != 4 || regions[0].EndLine != 5 {
		t.Errorf("regions = %+v, want one region 4-5", regions)
	}

	inBase, err := g.InBaseline("fresh.go", "HEAD")
	if err != nil || inBase {
		t.Errorf("InBaseline(fresh.go) = (%v, %v), want (false, nil)", inBase, err)
	}
	inBase, err = g.InBaseline("main.go", "HEAD")
	if err != nil || !inBase {
		t.Errorf("InBaseline(main.go) = (%v, %v), want (true, nil)", inBase, err)
	}

	files, err := g.ChangedFiles("HEAD")
	if err != nil {
		t.Fatalf("ChangedFiles error: %v", err)
	}
	if strings.Join(files, ",") != "fresh.go,util.go" {
		t.Errorf("ChangedFiles = %v, want [fresh.go util.go]", files)
	}
}

func TestGit_NoBaseline(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	gitRunner(t, dir)("git", "init")
	writeFile(t, filepath.Join(dir, "a.go"), "package a\n")

	g, err := NewGit(dir, 3)
	if err != nil {
		t.Fatalf("NewGit error: %v", err)
	}
	if _, err := g.InBaseline("a.go", "HEAD"); !errors.Is(err, ErrNoBaseline) {
		t.Errorf("InBaseline error = %v, want ErrNoBaseline", err)
	}
	if _, err := g.Diff("a.go", "HEAD"); !errors.Is(err, ErrNoBaseline) {
		t.Errorf("Diff error = %v, want ErrNoBaseline", err)
	}
	files, err := g.ChangedFiles("HEAD")
	if err != nil {
		t.Fatalf("ChangedFiles error: %v", err)
	}
	if len(files) != 1 || files[0] != "a.go" {
		t.Errorf("ChangedFiles = %v, want [a.go]", files)
	}

	gitDir, err := g.GitDir()
	if err != nil {
		t.Fatalf("GitDir error: %v", err)
	}
	if !filepath.IsAbs(gitDir) || filepath.Base(gitDir) != ".git" {
		t.Errorf("GitDir = %q, want an absolute .git path", gitDir)
	}
}

func TestGit_ResolveBaselineFollowsHead(t *testing.T) {
	dir := setupTestRepo(t)
	g, err := NewGit(dir, 3)
	if err != nil {
		t.Fatalf("NewGit error: %v", err)
	}

	before, err := g.ResolveBaseline("HEAD")
	if err != nil {
		t.Fatalf("ResolveBaseline error: %v", err)
	}
	if len(before) != 40 {
		t.Errorf("ResolveBaseline = %q, want a full commit hash", before)
	}
	again, _ := g.ResolveBaseline("HEAD")
	if again != before {
		t.Errorf("ResolveBaseline changed without a commit: %q -> %q", before, again)
	}

	writeFile(t, filepath.Join(dir, "util.go"), "package main\n\nfunc helper() {}\n\nfunc more() {}\n")
	run := gitRunner(t, dir)
	run("git", "commit", "-am", "second")

	after, err := g.ResolveBaseline("HEAD")
	if err != nil {
		t.Fatalf("ResolveBaseline error: %v", err)
	}
	if after == before {
		t.Error("ResolveBaseline should change after a commit")
	}

	if _, err := g.ResolveBaseline("no-such-ref"); !errors.Is(err, ErrNoBaseline) {
		t.Errorf("ResolveBaseline(no-such-ref) error = %v, want ErrNoBaseline", err)
	}
	if _, err := g.ResolveBaseline(""); !errors.Is(err, ErrNoBaseline) {
		t.Errorf("ResolveBaseline(\"\") error = %v, want ErrNoBaseline", err)
	}
}

func TestGit_Meta(t *testing.T) {
	dir := setupTestRepo(t)
	g, err := NewGit(dir, 3)
	if err != nil {
		t.Fatalf("NewGit error: %v", err)
	}
	meta := g.Meta()
	if meta.Branch != "main" {
		t.Errorf("Branch = %q, want %q", meta.Branch, "main")
	}
	head, _ := g.ResolveBaseline("HEAD")
	if meta.Head != head {
		t.Errorf("Head = %q, want %q", meta.Head, head)
	}
	if meta.Root != g.Root {
		t.Errorf("Root = %q, want %q", meta.Root, g.Root)
	}
}

func TestDirProvider_ResolveBaseline(t *testing.T) {
	base, work := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(base, "a.go"), "package a\n")
	p := NewDirProvider(base, work, 3)

	first, err := p.ResolveBaseline("")
	if err != nil {
		t.Fatalf("ResolveBaseline error: %v", err)
	}
	if again, _ := p.ResolveBaseline(""); again != first {
		t.Error("ResolveBaseline should be stable for an unchanged directory")
	}

	writeFile(t, filepath.Join(base, "a.go"), "package a\n\nvar X = 1\n")
	second, err := p.ResolveBaseline("")
	if err != nil {
		t.Fatalf("ResolveBaseline error: %v", err)
	}
	if second == first {
		t.Error("ResolveBaseline should change when a baseline file changes")
	}

	missing := NewDirProvider(filepath.Join(base, "nope"), work, 3)
	if _, err := missing.ResolveBaseline(""); !errors.Is(err, ErrNoBaseline) {
		t.Errorf("ResolveBaseline error = %v, want ErrNoBaseline", err)
	}
	if meta := p.Meta(); meta.Root == "" || meta.Head != "" {
		t.Errorf("Meta = %+v, want only a root", meta)
	}
}
