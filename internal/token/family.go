package token

import "math"

// Family identifies a tokenizer family for per-family estimate adjustment.
// The set is closed; family selection is explicit configuration, never
// inferred from hostnames or model-name substrings.
type Family string

const (
	// FamilyBPE is the GPT-style byte-pair encoding family. The base
	// estimator is calibrated against it, so no adjustment applies.
	FamilyBPE Family = "bpe"

	// FamilySentencePiece covers Gemini-style SentencePiece tokenizers,
	// which are ~15% more efficient for code than BPE. Warnings also
	// relax to 90% of the limit given the much larger context windows.
	FamilySentencePiece Family = "sentencepiece"
)

type familyProfile struct {
	factor    float64
	warnRatio float64
}

var familyProfiles = map[Family]familyProfile{
	FamilyBPE:           {factor: 1.0, warnRatio: WarnRatio},
	FamilySentencePiece: {factor: 0.85, warnRatio: 0.9},
}

// Estimator wraps the package-level estimation functions with a tokenizer
// family adjustment and optional per-model limit overrides from
// configuration.
type Estimator struct {
	family Family
	limits map[string]int // overrides ModelLimits; nil means none
}

// NewEstimator creates an Estimator for the given family. Unknown families
// behave as FamilyBPE.
func NewEstimator(family Family) *Estimator {
	if _, ok := familyProfiles[family]; !ok {
		family = FamilyBPE
	}
	return &Estimator{family: family}
}

// WithLimits sets per-model limit overrides (configuration reload path).
func (e *Estimator) WithLimits(limits map[string]int) *Estimator {
	e.limits = limits
	return e
}

// Family returns the estimator's tokenizer family.
func (e *Estimator) Family() Family {
	return e.family
}

// Estimate returns the family-adjusted token estimate for text.
func (e *Estimator) Estimate(text string) int {
	return e.adjust(Estimate(text))
}

// EstimateQuick returns the family-adjusted quick estimate for text.
func (e *Estimator) EstimateQuick(text string) int {
	return e.adjust(EstimateQuick(text))
}

// GetLimit returns the limit for a model, consulting configured overrides
// before the built-in table.
func (e *Estimator) GetLimit(model string) int {
	if e.limits != nil {
		if limit, ok := e.limits[model]; ok {
			return limit
		}
	}
	return GetLimit(model)
}

// ExceedsLimit reports whether tokens exceed the model's limit.
func (e *Estimator) ExceedsLimit(tokens int, model string) bool {
	return tokens > e.GetLimit(model)
}

// IsWarningLevel reports whether tokens fall in the family's warning
// interval [warnRatio*limit, limit).
func (e *Estimator) IsWarningLevel(tokens int, model string) bool {
	limit := e.GetLimit(model)
	threshold := int(float64(limit) * familyProfiles[e.family].warnRatio)
	return tokens >= threshold && tokens < limit
}

func (e *Estimator) adjust(tokens int) int {
	factor := familyProfiles[e.family].factor
	if factor == 1.0 || tokens == 0 {
		return tokens
	}
	adjusted := int(math.Floor(float64(tokens) * factor))
	if adjusted < 1 {
		return 1
	}
	return adjusted
}
