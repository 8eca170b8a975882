package gitctx

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	difflib "github.com/pmezard/go-difflib/difflib"

	"github.com/dshills/focus/internal/diffparse"
	"github.com/dshills/focus/internal/textutil"
)

// DirProvider implements Provider by comparing a working directory against a
// baseline directory, for trees that are not under git or for snapshot
// comparisons. The baseline argument of each method is ignored; the
// baseline directory is the baseline.
type DirProvider struct {
	BaselineDir  string
	WorkDir      string
	ContextLines int
}

// NewDirProvider returns a provider diffing workDir against baselineDir.
func NewDirProvider(baselineDir, workDir string, contextLines int) *DirProvider {
	if contextLines < 0 {
		contextLines = 3
	}
	return &DirProvider{BaselineDir: baselineDir, WorkDir: workDir, ContextLines: contextLines}
}

func (d *DirProvider) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(d.work(path))
}

func (d *DirProvider) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(d.work(path))
}

func (d *DirProvider) InBaseline(path, _ string) (bool, error) {
	if err := d.checkBaseline(); err != nil {
		return false, err
	}
	_, err := os.Stat(d.base(path))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("%w: %v", ErrDiffUnavailable, err)
}

func (d *DirProvider) DiffStats(path, baseline string) (int, int, error) {
	diff, err := d.Diff(path, baseline)
	if err != nil {
		return 0, 0, err
	}
	stats := diffparse.Count(diff)
	return stats.Added, stats.Deleted, nil
}

func (d *DirProvider) Diff(path, _ string) (string, error) {
	if err := d.checkBaseline(); err != nil {
		return "", err
	}
	before, beforeOK, err := readOptional(d.base(path))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDiffUnavailable, err)
	}
	after, afterOK, err := readOptional(d.work(path))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDiffUnavailable, err)
	}
	if !beforeOK && !afterOK {
		return "", nil
	}
	if isBinary(before) || isBinary(after) {
		return "", fmt.Errorf("%w: binary file %s", ErrDiffUnavailable, path)
	}

	slash := filepath.ToSlash(path)
	from, to := "a/"+slash, "b/"+slash
	var header string
	switch {
	case !beforeOK:
		from = "/dev/null"
		header = "new file mode 100644\n"
	case !afterOK:
		to = "/dev/null"
		header = "deleted file mode 100644\n"
	}

	u := difflib.UnifiedDiff{
		A:        splitLinesKeepNL(before),
		B:        splitLinesKeepNL(after),
		FromFile: from,
		ToFile:   to,
		Context:  d.ContextLines,
	}
	body, err := difflib.GetUnifiedDiffString(u)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDiffUnavailable, err)
	}
	if body == "" {
		return "", nil
	}
	return fmt.Sprintf("diff --git a/%s b/%s\n%s%s", slash, slash, header, body), nil
}

// ChangedFiles walks both trees and returns paths that were added, removed,
// or whose content differs.
func (d *DirProvider) ChangedFiles(_ string) ([]string, error) {
	work, err := walkFiles(d.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", d.WorkDir, err)
	}
	base, err := walkFiles(d.BaselineDir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("walking %s: %w", d.BaselineDir, err)
	}

	var changed []string
	for rel := range work {
		if _, ok := base[rel]; !ok {
			changed = append(changed, rel)
			continue
		}
		a, errA := os.ReadFile(d.base(rel))
		b, errB := os.ReadFile(d.work(rel))
		if errA != nil || errB != nil || !bytes.Equal(a, b) {
			changed = append(changed, rel)
		}
	}
	for rel := range base {
		if _, ok := work[rel]; !ok {
			changed = append(changed, rel)
		}
	}
	sort.Strings(changed)
	return changed, nil
}

// ResolveBaseline fingerprints the baseline directory by the path, size and
// modification time of every file in it. The baseline argument is ignored.
func (d *DirProvider) ResolveBaseline(_ string) (string, error) {
	if err := d.checkBaseline(); err != nil {
		return "", err
	}
	files, err := walkFiles(d.BaselineDir)
	if err != nil {
		return "", fmt.Errorf("walking %s: %w", d.BaselineDir, err)
	}
	paths := make([]string, 0, len(files))
	for rel := range files {
		paths = append(paths, rel)
	}
	sort.Strings(paths)

	h := sha256.New()
	for _, rel := range paths {
		info, err := os.Stat(d.base(rel))
		if err != nil {
			return "", fmt.Errorf("stat %s: %w", rel, err)
		}
		fmt.Fprintf(h, "%s\x00%d\x00%d\n", rel, info.Size(), info.ModTime().UnixNano())
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Meta describes the working directory. Directory comparisons have no head
// or branch.
func (d *DirProvider) Meta() RepoMeta {
	root, err := filepath.Abs(d.WorkDir)
	if err != nil {
		root = d.WorkDir
	}
	return RepoMeta{Root: root}
}

func (d *DirProvider) checkBaseline() error {
	info, err := os.Stat(d.BaselineDir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrNoBaseline, d.BaselineDir)
	}
	return nil
}

func (d *DirProvider) work(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(d.WorkDir, path)
}

func (d *DirProvider) base(path string) string {
	if filepath.IsAbs(path) {
		if r, err := filepath.Rel(d.WorkDir, path); err == nil {
			path = r
		}
	}
	return filepath.Join(d.BaselineDir, path)
}

func readOptional(path string) ([]byte, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

func isBinary(b []byte) bool {
	n := min(len(b), 8000)
	return bytes.IndexByte(b[:n], 0) >= 0
}

// splitLinesKeepNL splits into lines and keeps newline characters. A final
// line without a terminator gets one so hunks never run together.
func splitLinesKeepNL(b []byte) []string {
	if len(b) == 0 {
		return []string{}
	}
	s := textutil.EnsureTrailingLF(string(textutil.Normalize(b)))
	lines := strings.SplitAfter(s, "\n")
	return lines[:len(lines)-1]
}

func walkFiles(root string) (map[string]struct{}, error) {
	files := make(map[string]struct{})
	err := filepath.WalkDir(root, func(path string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if e.IsDir() {
			if e.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = struct{}{}
		return nil
	})
	return files, err
}
