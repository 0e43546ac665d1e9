package workspace

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Matcher decides whether a workspace-relative path is excluded,
// combining configured exclude patterns with .gitignore entries.
type Matcher struct {
	patterns []compiledPattern
}

type compiledPattern struct {
	raw string
	re  *regexp.Regexp
}

// NewMatcher compiles the given gitignore-style patterns. Patterns that
// fail to compile are skipped.
func NewMatcher(patterns []string) *Matcher {
	m := &Matcher{}
	for _, p := range patterns {
		if re := compilePattern(p); re != nil {
			m.patterns = append(m.patterns, compiledPattern{raw: p, re: re})
		}
	}
	return m
}

// LoadGitignore reads root/.gitignore and returns its patterns. A missing
// file yields no patterns, not an error.
func LoadGitignore(root string) []string {
	content, err := os.ReadFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		return nil
	}
	return ParseIgnoreLines(string(content))
}

// ParseIgnoreLines extracts patterns from gitignore content, dropping
// blanks and comments.
func ParseIgnoreLines(content string) []string {
	var patterns []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns
}

// Match reports whether relPath (slash-separated, workspace-relative)
// matches any pattern.
func (m *Matcher) Match(relPath string) bool {
	relPath = filepath.ToSlash(relPath)
	for _, p := range m.patterns {
		if p.re.MatchString(relPath) {
			return true
		}
	}
	return false
}

// compilePattern converts one gitignore-style pattern to a regexp:
// "**" crosses directories, "*" stops at slashes, "?" is one character,
// a leading slash anchors at the root, a trailing slash matches the
// directory's whole subtree.
func compilePattern(pattern string) *regexp.Regexp {
	expr := regexp.QuoteMeta(pattern)
	expr = strings.ReplaceAll(expr, `\*\*`, "\x00")
	expr = strings.ReplaceAll(expr, `\*`, "[^/]*")
	expr = strings.ReplaceAll(expr, `\?`, ".")
	expr = strings.ReplaceAll(expr, "\x00", ".*")

	if strings.HasPrefix(pattern, "/") {
		expr = "^" + strings.TrimPrefix(expr, "/")
	}
	if strings.HasSuffix(pattern, "/") {
		expr = expr + ".*"
	}

	re, err := regexp.Compile(expr)
	if err != nil {
		return nil
	}
	return re
}
