package chip

import (
	"regexp"
	"strings"
)

// Kind is the closed set of content origins a chip can represent.
type Kind string

const (
	KindSelection Kind = "selection"
	KindFile      Kind = "file"
	KindFileList  Kind = "files"     // aggregate of multiple files
	KindProblems  Kind = "problems"  // diagnostics list
	KindFileTree  Kind = "file-tree" // workspace structure
	KindDiff      Kind = "diff"
	KindTerminal  Kind = "terminal"
	KindMention   Kind = "mention" // arbitrary @-mention
)

// Placeholders are wrapped as [@label]. The bracket-at form is unlikely to
// occur in user text and survives round trips through plain-text inputs.
var placeholderPattern = regexp.MustCompile(`^\[@[A-Za-z0-9][A-Za-z0-9._/ -]*\]$`)

var labelSanitizer = regexp.MustCompile(`[^A-Za-z0-9._/ -]+`)

// WrapLabel builds the literal placeholder token for a label.
func WrapLabel(label string) string {
	return "[@" + label + "]"
}

// ValidPlaceholder reports whether s has the expected placeholder shape.
// Expansion validates placeholders before substring replacement so a
// corrupted tracking entry can never rewrite arbitrary buffer text.
func ValidPlaceholder(s string) bool {
	return placeholderPattern.MatchString(s)
}

// SanitizeLabel reduces a free-form label to the placeholder-safe charset.
// Empty results fall back to the chip kind.
func SanitizeLabel(label string, kind Kind) string {
	cleaned := labelSanitizer.ReplaceAllString(label, "")
	cleaned = strings.Trim(cleaned, " .")
	if cleaned == "" {
		return string(kind)
	}
	return cleaned
}

// BaseName returns the final path segment of a file label, handling both
// slash styles.
func BaseName(path string) string {
	if idx := strings.LastIndexAny(path, `/\`); idx >= 0 {
		return path[idx+1:]
	}
	return path
}
