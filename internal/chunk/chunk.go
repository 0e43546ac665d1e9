// Package chunk splits oversized text into an ordered sequence of
// limit-respecting parts. Split points prefer natural boundaries
// (paragraph, line, sentence, word) near the interpolated target offset so
// chunks read cleanly when pasted one at a time.
package chunk

import (
	"strings"

	"github.com/techidiots/webaibridge/internal/token"
)

// HeaderReserve is the token budget held back from each chunk's limit to
// leave room for a "part X/Y" marker the caller prepends. Calibration
// constant, not a structural requirement.
const HeaderReserve = 20

// boundaryWindow bounds the neighborhood (in runes) searched around the
// interpolated split offset for a natural boundary.
const boundaryWindow = 200

// minSplitRunes is the floor below which the geometric shrink stops; it
// guarantees termination when a single run of text cannot be made to fit.
const minSplitRunes = 16

// Chunk is one part of a split text. PartNumber is 1-based and contiguous;
// TotalParts is identical across all chunks of one Split call and equals
// the sequence length.
type Chunk struct {
	Text       string `json:"text"`
	Tokens     int    `json:"tokens"`
	PartNumber int    `json:"partNumber"`
	TotalParts int    `json:"totalParts"`
}

// Split divides text into chunks whose estimates fit maxTokensPerChunk
// (minus HeaderReserve). Text that already fits returns a single chunk.
// When overlapTokens > 0, a proportional trailing slice of each emitted
// chunk is carried into the next chunk's input so context survives the
// boundary; the overlap counts against the next chunk's budget after the
// boundary search, matching the calibration of the estimates.
func Split(text string, maxTokensPerChunk, overlapTokens int) []Chunk {
	if text == "" {
		return nil
	}

	whole := token.Estimate(text)
	if whole <= maxTokensPerChunk {
		return []Chunk{{Text: text, Tokens: whole, PartNumber: 1, TotalParts: 1}}
	}

	effective := maxTokensPerChunk - HeaderReserve
	if effective < 1 {
		effective = 1
	}

	var chunks []Chunk
	remaining := text

	for remaining != "" {
		tokens := token.Estimate(remaining)
		if tokens <= effective {
			chunks = append(chunks, Chunk{
				Text:       remaining,
				Tokens:     tokens,
				PartNumber: len(chunks) + 1,
			})
			break
		}

		runes := []rune(remaining)
		ratio := float64(len(runes)) / float64(tokens)

		// Interpolated candidate offset, then snap to the best natural
		// boundary in the neighborhood.
		offset := int(float64(effective) * ratio)
		if offset < 1 {
			offset = 1
		}
		if offset >= len(runes) {
			offset = len(runes) - 1
		}
		offset = snapToBoundary(runes, offset)

		// Shrink geometrically until the prefix fits or the floor is hit.
		prefix := string(runes[:offset])
		for token.Estimate(prefix) > effective && offset > minSplitRunes {
			offset = offset * 9 / 10
			if nl := strings.LastIndexByte(string(runes[:offset]), '\n'); nl > minSplitRunes {
				offset = len([]rune(string(runes[:offset])[:nl])) + 1
			}
			prefix = string(runes[:offset])
		}
		if offset < 1 {
			// Forward progress even when nothing fits.
			offset = 1
			prefix = string(runes[:1])
		}

		chunks = append(chunks, Chunk{
			Text:       prefix,
			Tokens:     token.Estimate(prefix),
			PartNumber: len(chunks) + 1,
		})

		rest := string(runes[offset:])
		if overlapTokens > 0 && rest != "" {
			overlapRunes := int(float64(overlapTokens) * ratio)
			// Never carry more than half the emitted chunk, so the input
			// strictly shrinks every iteration.
			if overlapRunes > offset/2 {
				overlapRunes = offset / 2
			}
			if overlapRunes > 0 {
				rest = string(runes[offset-overlapRunes:offset]) + rest
			}
		}
		remaining = rest
	}

	for i := range chunks {
		chunks[i].TotalParts = len(chunks)
	}
	return chunks
}

// snapToBoundary finds the best natural boundary near offset, searching a
// bounded neighborhood in priority order: paragraph break, line break,
// sentence end, word break. Returns the split position just after the
// boundary, or the raw offset if no boundary is found within the window.
func snapToBoundary(runes []rune, offset int) int {
	lo := offset - boundaryWindow
	if lo < 1 {
		lo = 1
	}
	hi := offset + boundaryWindow
	if hi > len(runes)-1 {
		hi = len(runes) - 1
	}
	if lo >= hi {
		return offset
	}

	window := string(runes[lo:hi])

	boundaries := []struct {
		pattern string
		skip    int // runes consumed past the match start
	}{
		{"\n\n", 2},
		{"\n", 1},
		{". ", 2},
		{"! ", 2},
		{"? ", 2},
		{" ", 1},
	}

	for _, b := range boundaries {
		if idx := strings.LastIndex(window, b.pattern); idx >= 0 {
			return lo + len([]rune(window[:idx])) + b.skip
		}
	}
	return offset
}
