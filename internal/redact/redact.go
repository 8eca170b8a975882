package redact

import (
	"regexp"

	"github.com/dshills/focus/internal/gitctx"
)

// Placeholder replaces every redacted span.
const Placeholder = "[REDACTED]"

// PathPolicyText replaces the whole extracted text of a file matched by a
// path pattern.
const PathPolicyText = Placeholder + " (file content redacted by path policy)\n"

// secretPatterns are regex heuristics for common secret types.
var secretPatterns = []*regexp.Regexp{
	// API keys after common key names
	regexp.MustCompile(`(?i)(api[_-]?key|apikey|api[_-]?secret)\s*[:=]\s*["']?([A-Za-z0-9/+=_-]{20,})["']?`),
	// AWS access key IDs
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
	// AWS secret access keys
	regexp.MustCompile(`(?i)(aws[_-]?secret[_-]?access[_-]?key)\s*[:=]\s*["']?([A-Za-z0-9/+=]{40})["']?`),
	// Secrets, tokens and passwords in assignments
	regexp.MustCompile(`(?i)(secret|token|password|passwd|credential)\s*[:=]\s*["']([^"']{8,})["']`),
	regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9._-]{20,}`),
	// JWTs
	regexp.MustCompile(`eyJ[A-Za-z0-9_-]{10,}\.eyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}`),
	regexp.MustCompile(`-----BEGIN\s+(RSA\s+|EC\s+|OPENSSH\s+)?PRIVATE KEY-----`),
	// Connection strings with inline credentials
	regexp.MustCompile(`(?i)\b(postgres(ql)?|mysql|mongodb(\+srv)?|redis|amqp)://[^:/\s]+:[^@\s]+@`),
	regexp.MustCompile(`gh[pousr]_[A-Za-z0-9_]{36,}`),
	regexp.MustCompile(`xox[bporas]-[A-Za-z0-9-]{10,}`),
	regexp.MustCompile(`sk-ant-[A-Za-z0-9_-]{20,}`),
	regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`),
	// Long hex strings in key assignments
	regexp.MustCompile(`(?i)(key|secret|token)\s*[:=]\s*["']?[0-9a-f]{32,}["']?`),
}

// Redactor scrubs extracted text before it leaves the tool.
type Redactor struct {
	secrets bool
	paths   []string
}

// New returns a Redactor. With secrets false only path patterns apply.
func New(secrets bool, paths []string) *Redactor {
	return &Redactor{secrets: secrets, paths: append([]string(nil), paths...)}
}

// Enabled reports whether the redactor can change anything.
func (r *Redactor) Enabled() bool {
	return r != nil && (r.secrets || len(r.paths) > 0)
}

// Apply redacts text extracted from path and returns the result with the
// number of redactions. A path matching a pattern counts as one redaction.
// A nil Redactor returns text unchanged.
func (r *Redactor) Apply(path, text string) (string, int) {
	if !r.Enabled() {
		return text, 0
	}
	if ShouldRedactPath(path, r.paths) {
		return PathPolicyText, 1
	}
	if !r.secrets {
		return text, 0
	}
	return Secrets(text)
}

// Secrets replaces detected secrets in text and reports how many spans
// were replaced.
func Secrets(text string) (string, int) {
	n := 0
	for _, pat := range secretPatterns {
		text = pat.ReplaceAllStringFunc(text, func(string) string {
			n++
			return Placeholder
		})
	}
	return text, n
}

// ShouldRedactPath reports whether path matches any redaction pattern.
func ShouldRedactPath(path string, patterns []string) bool {
	return len(patterns) > 0 && gitctx.MatchesAny(path, patterns)
}
