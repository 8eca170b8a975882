package analyze

import (
	"path"
	"regexp"
	"strings"

	"github.com/dshills/focus/internal/strategy"
)

var testDirs = map[string]bool{
	"test": true, "tests": true, "__tests__": true, "spec": true, "testdata": true, "e2e": true,
}

var docDirs = map[string]bool{"doc": true, "docs": true}

var buildFiles = map[string]bool{
	"makefile": true, "dockerfile": true, "jenkinsfile": true, "taskfile.yml": true,
	"cmakelists.txt": true, "build.gradle": true, "build.gradle.kts": true, "pom.xml": true,
	"go.mod": true, "go.sum": true, "cargo.toml": true, "cargo.lock": true,
	"package.json": true, "package-lock.json": true, "yarn.lock": true, "build": true,
	"workspace": true, ".gitlab-ci.yml": true, ".goreleaser.yml": true, ".goreleaser.yaml": true,
}

var buildExts = map[string]bool{".mk": true, ".bazel": true, ".bzl": true, ".gradle": true}

var docExts = map[string]bool{".md": true, ".markdown": true, ".rst": true, ".adoc": true, ".txt": true}

var configExts = map[string]bool{
	".json": true, ".yaml": true, ".yml": true, ".toml": true, ".ini": true, ".cfg": true,
	".conf": true, ".env": true, ".properties": true, ".xml": true, ".plist": true,
}

// Categorize classifies a file by path alone. Test files win over every
// other category, then build, docs and config; everything else is core.
func Categorize(p string) strategy.Category {
	p = strings.ToLower(strings.ReplaceAll(p, "\\", "/"))
	base := path.Base(p)
	ext := path.Ext(base)
	dirs := strings.Split(path.Dir(p), "/")

	if isTestFile(base) {
		return strategy.CategoryTest
	}
	for _, d := range dirs {
		if testDirs[d] {
			return strategy.CategoryTest
		}
	}

	if buildFiles[base] || buildExts[ext] || strings.HasPrefix(base, "dockerfile.") ||
		strings.Contains(p, ".github/workflows/") || strings.HasPrefix(p, ".circleci/") {
		return strategy.CategoryBuild
	}

	if docExts[ext] || strings.HasPrefix(base, "readme") || strings.HasPrefix(base, "license") ||
		strings.HasPrefix(base, "changelog") {
		return strategy.CategoryDocs
	}
	for _, d := range dirs {
		if docDirs[d] {
			return strategy.CategoryDocs
		}
	}

	if configExts[ext] || (strings.HasPrefix(base, ".") && ext == base) {
		return strategy.CategoryConfig
	}
	return strategy.CategoryCore
}

func isTestFile(base string) bool {
	switch {
	case strings.HasSuffix(base, "_test.go"),
		strings.HasPrefix(base, "test_") && strings.HasSuffix(base, ".py"),
		strings.HasSuffix(base, "_test.py"),
		strings.Contains(base, ".test."),
		strings.Contains(base, ".spec."),
		strings.HasSuffix(base, "test.java"),
		strings.HasSuffix(base, "tests.cs"),
		strings.HasSuffix(base, "_spec.rb"):
		return true
	}
	return false
}

// Public declaration anchors per language family. These are heuristics: a
// match means "probably widens the public surface", not a parse result.
var (
	goPublic = []*regexp.Regexp{
		regexp.MustCompile(`^\s*func\s+(\([^)]*\)\s*)?[A-Z]\w*`),
		regexp.MustCompile(`^\s*type\s+[A-Z]\w*`),
		regexp.MustCompile(`^\s*(var|const)\s+[A-Z]\w*`),
	}
	jsPublic = []*regexp.Regexp{
		regexp.MustCompile(`^\s*export\s+`),
		regexp.MustCompile(`^\s*module\.exports\b`),
		regexp.MustCompile(`^\s*exports\.\w+\s*=`),
	}
	pyPublic = []*regexp.Regexp{
		regexp.MustCompile(`^(async\s+)?def\s+[A-Za-z]\w*\s*\(`),
		regexp.MustCompile(`^class\s+[A-Za-z]\w*`),
	}
	javaPublic = []*regexp.Regexp{
		regexp.MustCompile(`^\s*public\s+`),
	}
	rustPublic = []*regexp.Regexp{
		regexp.MustCompile(`^\s*pub(\([^)]*\))?\s+(async\s+)?(fn|struct|enum|trait|type|mod|const|static|use)\b`),
	}
)

func publicPatterns(p string) []*regexp.Regexp {
	switch strings.ToLower(path.Ext(p)) {
	case ".go":
		return goPublic
	case ".js", ".jsx", ".mjs", ".cjs", ".ts", ".tsx":
		return jsPublic
	case ".py":
		return pyPublic
	case ".java", ".kt", ".cs", ".scala", ".php":
		return javaPublic
	case ".rs":
		return rustPublic
	}
	all := make([]*regexp.Regexp, 0, 12)
	for _, group := range [][]*regexp.Regexp{goPublic, jsPublic, pyPublic, javaPublic, rustPublic} {
		all = append(all, group...)
	}
	return all
}

// HasPublicDeclaration reports whether any of lines declares an exported
// or public symbol in the language implied by the file path.
func HasPublicDeclaration(filePath string, lines []string) bool {
	patterns := publicPatterns(filePath)
	for _, line := range lines {
		for _, re := range patterns {
			if re.MatchString(line) {
				return true
			}
		}
	}
	return false
}
