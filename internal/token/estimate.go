// Package token approximates subword token counts for arbitrary text and
// exposes per-model context-window limits. The estimator is a BPE-style
// heuristic calibrated against GPT-4-class tokenizers; it requires no
// network access and is fully deterministic.
package token

import (
	"math"
	"strings"
	"unicode"
)

// QuickThreshold is the input size (in runes) above which EstimateQuick
// switches from the full scan to a statistical estimate.
const QuickThreshold = 10000

// singleTokens holds common programming words that BPE encoders keep as a
// single token regardless of length.
var singleTokens = map[string]bool{
	"function": true, "return": true, "const": true, "let": true, "var": true,
	"if": true, "else": true, "for": true, "while": true,
	"class": true, "import": true, "export": true, "from": true,
	"async": true, "await": true, "try": true, "catch": true,
	"throw": true, "new": true, "this": true, "true": true, "false": true,
	"null": true, "undefined": true, "typeof": true,
	"void": true, "delete": true, "in": true, "of": true,
	"switch": true, "case": true, "break": true, "continue": true,
	"default": true, "static": true, "extends": true, "super": true,
	"constructor": true, "get": true, "set": true,
	"public": true, "private": true, "protected": true,
	"interface": true, "type": true, "enum": true, "readonly": true,
	"def": true, "self": true, "None": true, "True": true, "False": true,
	"elif": true, "except": true, "finally": true,
	"lambda": true, "yield": true, "with": true, "as": true, "pass": true,
	"raise": true, "assert": true, "global": true,
	"print": true, "input": true, "range": true, "len": true,
	"str": true, "int": true, "float": true, "list": true, "dict": true,
}

// operatorTokens lists multi-character operators that encode as one token.
// Matched longest-first by list order during the scan.
var operatorTokens = []string{
	"===", "!==", "==", "!=", "<=", ">=", "&&", "||", "++", "--",
	"+=", "-=", "*=", "/=", "%=", "=>", "->", "::", "<<", ">>", "...",
	"**", "//", "??", "?.",
}

// Estimate approximates the token count of text with a single
// left-to-right scan. Returns 0 for empty text and at least 1 otherwise.
func Estimate(text string) int {
	if text == "" {
		return 0
	}

	runes := []rune(text)
	n := len(runes)
	count := 0
	i := 0

scan:
	for i < n {
		r := runes[i]

		// Whitespace: spaces merge into the following token, newlines are
		// their own token.
		if unicode.IsSpace(r) {
			if r == '\n' {
				count++
			}
			i++
			continue
		}

		// Multi-character operators.
		for _, op := range operatorTokens {
			if matchAt(runes, i, op) {
				count++
				i += len(op)
				continue scan
			}
		}

		// Identifier-like words.
		if isWordStart(r) {
			start := i
			for i < n && isWordChar(runes[i]) {
				i++
			}
			count += wordTokens(string(runes[start:i]))
			continue
		}

		// Numeric literals (including hex/exponent/sign characters).
		if r >= '0' && r <= '9' {
			start := i
			for i < n && isNumberChar(runes[i]) {
				i++
			}
			count += ceilDiv(i-start, 3)
			continue
		}

		// Quoted strings: quote chars cost 1 each, body costs len/4.
		if r == '"' || r == '\'' || r == '`' {
			quote := r
			count++
			i++
			bodyLen := 0
			for i < n && runes[i] != quote {
				if runes[i] == '\\' && i+1 < n {
					bodyLen += 2
					i += 2
				} else {
					bodyLen++
					i++
				}
			}
			count += ceilDiv(bodyLen, 4)
			if i < n {
				count++ // closing quote
				i++
			}
			continue
		}

		// Any other single symbol.
		count++
		i++
	}

	if count < 1 {
		return 1
	}
	return count
}

// EstimateQuick approximates tokens for large inputs in O(1) passes over
// the text. Inputs below QuickThreshold delegate to the full scan. The
// statistical estimate picks a denser chars-per-token divisor when the
// text looks like code.
func EstimateQuick(text string) int {
	if text == "" {
		return 0
	}

	runes := []rune(text)
	length := len(runes)
	if length < QuickThreshold {
		return Estimate(text)
	}

	lines := strings.Count(text, "\n")
	codeIndicators := 0
	for _, r := range runes {
		switch r {
		case '{', '}', '[', ']', '(', ')', ';', '=', '<', '>':
			codeIndicators++
		}
	}

	divisor := 4.0
	if codeIndicators > length/50 {
		divisor = 3.2
	}

	base := int(math.Ceil(float64(length) / divisor))
	return base + int(math.Ceil(float64(lines)*0.3))
}

// wordTokens estimates tokens for one identifier-like word: keywords and
// short words are a single token, longer identifiers split on snake_case
// or camelCase boundaries, and plain long words fall back to len/4.
func wordTokens(word string) int {
	if singleTokens[word] {
		return 1
	}
	runes := []rune(word)
	if len(runes) <= 4 {
		return 1
	}

	if strings.ContainsRune(word, '_') {
		return strings.Count(word, "_") + 1
	}

	if segments := camelSegments(runes); segments > 1 {
		return segments
	}

	return ceilDiv(len(runes), 4)
}

// camelSegments counts camelCase segments: one plus every uppercase letter
// after the first position. Returns 1 for words with no interior case
// boundary.
func camelSegments(runes []rune) int {
	segments := 1
	hasBoundary := false
	for i := 1; i < len(runes); i++ {
		if unicode.IsUpper(runes[i]) {
			segments++
			if unicode.IsLower(runes[i-1]) {
				hasBoundary = true
			}
		}
	}
	if !hasBoundary {
		return 1
	}
	return segments
}

func matchAt(runes []rune, i int, op string) bool {
	if i+len(op) > len(runes) {
		return false
	}
	for j := 0; j < len(op); j++ {
		if runes[i+j] != rune(op[j]) {
			return false
		}
	}
	return true
}

func isWordStart(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isWordChar(r rune) bool {
	return isWordStart(r) || (r >= '0' && r <= '9')
}

func isNumberChar(r rune) bool {
	switch {
	case r >= '0' && r <= '9':
		return true
	case r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		return true
	case r == '.' || r == 'x' || r == 'X' || r == 'e' || r == 'E' || r == '+' || r == '-':
		return true
	}
	return false
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
