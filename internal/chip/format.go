package chip

import (
	"fmt"
	"strings"

	"github.com/techidiots/webaibridge/internal/protocol"
	"github.com/techidiots/webaibridge/internal/token"
)

// chipSeparator divides chips in a multi-chip insert block.
const chipSeparator = "\n\n---\n\n"

// FormatForInsert renders host-pushed chips into one text block ready for
// insertion into a chat input. A single chip gets a comment header with
// its label and language; multiple chips get numbered headers and clear
// separators.
func FormatForInsert(chips []protocol.Chip) string {
	if len(chips) == 0 {
		return ""
	}

	if len(chips) == 1 {
		c := chips[0]
		return chipHeader(c, 0, 0) + "\n" + c.Text
	}

	parts := make([]string, len(chips))
	for i, c := range chips {
		parts[i] = chipHeader(c, i+1, len(chips)) + "\n" + c.Text
	}
	return strings.Join(parts, chipSeparator)
}

// FormatForInsertTruncated renders chips and truncates the block when it
// exceeds the model's limit.
func FormatForInsertTruncated(chips []protocol.Chip, model string) string {
	formatted := FormatForInsert(chips)
	if token.ExceedsLimit(token.Estimate(formatted), model) {
		return token.TruncateToLimit(formatted, model, 0)
	}
	return formatted
}

func chipHeader(c protocol.Chip, index, total int) string {
	lang := c.LanguageID
	if lang == "" {
		lang = "plaintext"
	}

	position := ""
	if total > 1 {
		position = fmt.Sprintf("[%d/%d] ", index, total)
	}

	if c.Kind == string(KindFile) {
		return fmt.Sprintf("/* %sFILE: %s (%s) */", position, c.Label, lang)
	}
	return fmt.Sprintf("/* %s%s (%s) */", position, c.Label, lang)
}
