package gitctx

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/dshills/focus/internal/textutil"
)

var (
	// ErrNoBaseline reports that the baseline revision does not exist, as in
	// a repository without commits. Callers treat every file as new.
	ErrNoBaseline = errors.New("no baseline revision")

	// ErrDiffUnavailable reports that a file cannot be diffed: binary
	// content, permission problems, or a failing version-control command.
	ErrDiffUnavailable = errors.New("diff unavailable")
)

// Provider is the version-control collaborator consumed by change analysis.
// Paths are relative to the provider's root unless absolute.
type Provider interface {
	// Stat returns file info for the working copy of path.
	Stat(path string) (fs.FileInfo, error)
	// ReadFile returns the working copy content of path.
	ReadFile(path string) ([]byte, error)
	// InBaseline reports whether path exists in the baseline revision.
	InBaseline(path, baseline string) (bool, error)
	// DiffStats returns added and deleted line counts against the baseline.
	DiffStats(path, baseline string) (added, deleted int, err error)
	// Diff returns the raw unified diff of path against the baseline.
	Diff(path, baseline string) (string, error)
}

// Lister enumerates files that differ from a baseline.
type Lister interface {
	ChangedFiles(baseline string) ([]string, error)
}

// Resolver is implemented by providers that can name the exact content a
// baseline refers to right now. Two calls return the same revision only when
// the baseline has not moved.
type Resolver interface {
	ResolveBaseline(baseline string) (string, error)
}

// RepoMeta describes the working tree a run was made in.
type RepoMeta struct {
	Root   string `json:"root"`
	Head   string `json:"head"`
	Branch string `json:"branch"`
}

// Git implements Provider by shelling out to the git binary.
type Git struct {
	Root         string
	ContextLines int
}

// NewGit returns a Git provider rooted at the top level of the repository
// containing dir.
func NewGit(dir string, contextLines int) (*Git, error) {
	if dir == "" {
		dir = "."
	}
	root, err := gitOutput(dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return nil, fmt.Errorf("not a git repository: %w", err)
	}
	return &Git{Root: strings.TrimSpace(root), ContextLines: contextLines}, nil
}

// Meta collects repository metadata.
func (g *Git) Meta() RepoMeta {
	meta := RepoMeta{Root: g.Root}
	if head, err := g.git("rev-parse", "HEAD"); err == nil {
		meta.Head = strings.TrimSpace(head)
	}
	if branch, err := g.git("rev-parse", "--abbrev-ref", "HEAD"); err == nil {
		meta.Branch = strings.TrimSpace(branch)
	}
	return meta
}

// ResolveBaseline returns the commit baseline points to.
func (g *Git) ResolveBaseline(baseline string) (string, error) {
	if baseline == "" {
		return "", ErrNoBaseline
	}
	out, err := g.git("rev-parse", "--verify", "--quiet", baseline+"^{commit}")
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNoBaseline, baseline)
	}
	return strings.TrimSpace(out), nil
}

// GitDir returns the absolute path of the repository's git directory.
func (g *Git) GitDir() (string, error) {
	out, err := g.git("rev-parse", "--git-dir")
	if err != nil {
		return "", fmt.Errorf("locating git directory: %w", err)
	}
	dir := strings.TrimSpace(out)
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(g.Root, dir)
	}
	return dir, nil
}

func (g *Git) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(g.abs(path))
}

func (g *Git) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(g.abs(path))
}

func (g *Git) InBaseline(path, baseline string) (bool, error) {
	if err := g.verifyBaseline(baseline); err != nil {
		return false, err
	}
	_, err := g.git("cat-file", "-e", baseline+":"+g.rel(path))
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return false, nil
		}
		return false, fmt.Errorf("%w: git cat-file: %v", ErrDiffUnavailable, err)
	}
	return true, nil
}

func (g *Git) DiffStats(path, baseline string) (int, int, error) {
	if err := g.verifyBaseline(baseline); err != nil {
		return 0, 0, err
	}
	out, err := g.git("diff", "--numstat", baseline, "--", g.rel(path))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: git diff --numstat: %v", ErrDiffUnavailable, err)
	}
	return parseNumstat(out)
}

func (g *Git) Diff(path, baseline string) (string, error) {
	if err := g.verifyBaseline(baseline); err != nil {
		return "", err
	}
	args := []string{"diff"}
	if g.ContextLines >= 0 {
		args = append(args, fmt.Sprintf("-U%d", g.ContextLines))
	}
	args = append(args, baseline, "--", g.rel(path))
	out, err := g.git(args...)
	if err != nil {
		return "", fmt.Errorf("%w: git diff: %v", ErrDiffUnavailable, err)
	}
	if strings.Contains(out, "\nBinary files ") || strings.HasPrefix(out, "Binary files ") {
		return "", fmt.Errorf("%w: binary file %s", ErrDiffUnavailable, path)
	}
	return out, nil
}

// ChangedFiles lists tracked files that differ from baseline, including
// deletions, followed by untracked files. Without a baseline every tracked
// and untracked file is returned.
func (g *Git) ChangedFiles(baseline string) ([]string, error) {
	var out string
	var err error
	if verr := g.verifyBaseline(baseline); verr != nil {
		out, err = g.git("ls-files")
	} else {
		out, err = g.git("diff", "--name-only", baseline)
	}
	if err != nil {
		return nil, fmt.Errorf("listing changed files: %w", err)
	}
	untracked, err := g.git("ls-files", "--others", "--exclude-standard")
	if err != nil {
		return nil, fmt.Errorf("listing untracked files: %w", err)
	}
	return uniqueLines(out + "\n" + untracked), nil
}

func (g *Git) verifyBaseline(baseline string) error {
	if baseline == "" {
		return ErrNoBaseline
	}
	if _, err := g.git("rev-parse", "--verify", "--quiet", baseline+"^{commit}"); err != nil {
		return fmt.Errorf("%w: %s", ErrNoBaseline, baseline)
	}
	return nil
}

func (g *Git) git(args ...string) (string, error) {
	return gitOutput(g.Root, args...)
}

func (g *Git) abs(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(g.Root, path)
}

func (g *Git) rel(path string) string {
	if !filepath.IsAbs(path) {
		return filepath.ToSlash(path)
	}
	if r, err := filepath.Rel(g.Root, path); err == nil {
		return filepath.ToSlash(r)
	}
	return path
}

// parseNumstat reads "added\tdeleted\tpath" lines. Binary files report "-".
func parseNumstat(out string) (int, int, error) {
	var added, deleted int
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, "\t", 3)
		if len(fields) < 2 {
			continue
		}
		if fields[0] == "-" || fields[1] == "-" {
			return 0, 0, fmt.Errorf("%w: binary file", ErrDiffUnavailable)
		}
		a, err := strconv.Atoi(fields[0])
		if err != nil {
			return 0, 0, fmt.Errorf("%w: numstat %q", ErrDiffUnavailable, line)
		}
		d, err := strconv.Atoi(fields[1])
		if err != nil {
			return 0, 0, fmt.Errorf("%w: numstat %q", ErrDiffUnavailable, line)
		}
		added += a
		deleted += d
	}
	return added, deleted, nil
}

// NewFileDiff synthesizes the unified diff of a file with no baseline.
func NewFileDiff(path string, content []byte) string {
	lines := textutil.SplitLines(string(content))
	var b strings.Builder
	fmt.Fprintf(&b, "diff --git a/%s b/%s\n", path, path)
	fmt.Fprintf(&b, "new file mode 100644\n")
	fmt.Fprintf(&b, "--- /dev/null\n")
	fmt.Fprintf(&b, "+++ b/%s\n", path)
	if len(lines) == 0 {
		return b.String()
	}
	fmt.Fprintf(&b, "@@ -0,0 +1,%d @@\n", len(lines))
	for _, line := range lines {
		fmt.Fprintf(&b, "+%s\n", line)
	}
	return b.String()
}

// Filter keeps paths matching include (when non-empty) and not matching exclude.
func Filter(paths, include, exclude []string) []string {
	var result []string
	for _, p := range paths {
		if len(include) > 0 && !MatchesAny(p, include) {
			continue
		}
		if len(exclude) > 0 && MatchesAny(p, exclude) {
			continue
		}
		result = append(result, p)
	}
	return result
}

// MatchesAny returns true if the path matches any of the given glob patterns.
// A leading "**/" matches at any depth and a trailing "/**" matches everything
// below a directory.
func MatchesAny(path string, patterns []string) bool {
	path = filepath.ToSlash(path)
	for _, pattern := range patterns {
		if pattern == "**" || pattern == "**/*" {
			return true
		}
		if matched, err := filepath.Match(pattern, path); err == nil && matched {
			return true
		}
		if dir, ok := strings.CutSuffix(pattern, "/**"); ok {
			if strings.HasPrefix(path, dir+"/") {
				return true
			}
			if d, ok := strings.CutPrefix(dir, "**/"); ok && containsDir(path, d) {
				return true
			}
		}
		clean := strings.TrimPrefix(pattern, "**/")
		if clean != pattern {
			if matched, err := filepath.Match(clean, filepath.Base(path)); err == nil && matched {
				return true
			}
			if matched, err := filepath.Match(clean, path); err == nil && matched {
				return true
			}
		}
	}
	return false
}

func containsDir(path, dir string) bool {
	parts := strings.Split(path, "/")
	for _, p := range parts[:len(parts)-1] {
		if matched, err := filepath.Match(dir, p); err == nil && matched {
			return true
		}
	}
	return false
}

func uniqueLines(s string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || seen[line] {
			continue
		}
		seen[line] = true
		out = append(out, line)
	}
	sort.Strings(out)
	return out
}

func gitOutput(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return string(out), fmt.Errorf("%w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", err
	}
	return string(out), nil
}
