// Package policy decides what happens to text that may exceed a model's
// token budget before it is inserted into a chat input: pass it through,
// warn, truncate, or split into chunks.
package policy

import (
	"github.com/techidiots/webaibridge/internal/chunk"
	"github.com/techidiots/webaibridge/internal/token"
)

// Mode selects the over-limit behavior.
type Mode string

const (
	ModeWarn     Mode = "warn"     // default: surface a warning, keep the original text
	ModeTruncate Mode = "truncate" // cut to fit, flag the result
	ModeChunk    Mode = "chunk"    // split into sequential parts
)

// TruncateReserve is the token headroom kept when truncating, leaving room
// for whatever the user types around the inserted content.
const TruncateReserve = 100

// Action is the outcome kind of a policy decision.
type Action string

const (
	ActionInsert Action = "insert"
	ActionWarn   Action = "warn"
	ActionChunk  Action = "chunk"
)

// Decision is the result of applying the limit policy to one text.
type Decision struct {
	Action Action
	// Text is the content to insert for ActionInsert and ActionWarn.
	Text string
	// Chunks is populated for ActionChunk.
	Chunks []chunk.Chunk
	// Tokens is the estimate for Text (post-truncation when truncated);
	// for ActionChunk it is the estimate of the original text.
	Tokens int
	// Limit is the effective limit the decision was made against.
	Limit int
	// WasTruncated is set when ModeTruncate cut the text; OriginalTokens
	// then carries the pre-truncation estimate.
	WasTruncated   bool
	OriginalTokens int
}

// Apply decides how text should be inserted for the given model and mode.
// The effective limit is min(customLimit, modelLimit) when a positive
// custom limit is configured, else the model limit. Pure: no shared state
// is read or written beyond the estimator tables.
func Apply(text string, customLimit int, mode Mode, model string, estimator *token.Estimator) Decision {
	if estimator == nil {
		estimator = token.NewEstimator(token.FamilyBPE)
	}

	modelLimit := estimator.GetLimit(model)
	effective := modelLimit
	if customLimit > 0 && customLimit < modelLimit {
		effective = customLimit
	}

	tokens := estimator.Estimate(text)

	if tokens <= effective {
		return Decision{Action: ActionInsert, Text: text, Tokens: tokens, Limit: effective}
	}

	switch mode {
	case ModeTruncate:
		truncated := token.TruncateToLimit(text, model, TruncateReserve)
		return Decision{
			Action:         ActionInsert,
			Text:           truncated,
			Tokens:         estimator.Estimate(truncated),
			Limit:          effective,
			WasTruncated:   true,
			OriginalTokens: tokens,
		}

	case ModeChunk:
		return Decision{
			Action: ActionChunk,
			Chunks: chunk.Split(text, effective, 0),
			Tokens: tokens,
			Limit:  effective,
		}

	default: // ModeWarn and anything unrecognized
		return Decision{Action: ActionWarn, Text: text, Tokens: tokens, Limit: effective}
	}
}
