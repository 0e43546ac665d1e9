// Package chip tracks lightweight placeholders that stand in for
// externally-sourced content inside a text buffer, and expands them to the
// full content exactly once, when the text is about to leave the system.
package chip

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/techidiots/webaibridge/internal/errors"
	"github.com/techidiots/webaibridge/internal/token"
)

// Chip is one tracked placeholder binding.
type Chip struct {
	// ID uniquely identifies the chip within the registry.
	ID string

	// Kind is the content origin.
	Kind Kind

	// Label is the human-readable display label.
	Label string

	// Placeholder is the literal token embedded in the buffer.
	Placeholder string

	// Tokens is the estimated token count of the resolved content, or 0
	// while the content is still pending.
	Tokens int

	// FilePath is set for file-backed chips.
	FilePath string

	// CreatedAt is when the chip was inserted.
	CreatedAt time.Time
}

// InsertOptions parameterizes Registry.Insert.
type InsertOptions struct {
	Kind  Kind
	Label string

	// Content is the resolved content, or nil when it will arrive
	// asynchronously via ResolveContent.
	Content *string

	// Tokens is a caller-supplied estimate; 0 means estimate from Content
	// when available.
	Tokens int

	// TriggerSpan is the literal mention text ("@files" and any typed
	// query) the placeholder replaces. Empty means append at the end of
	// the buffer.
	TriggerSpan string

	FilePath string
}

// Registry owns the placeholder↔content bindings for one text buffer.
// All methods are safe for concurrent use; the registry state is one
// shared mapping guarded by a single coarse mutex.
type Registry struct {
	mu        sync.Mutex
	buffer    TextBuffer
	estimator *token.Estimator
	logger    *slog.Logger

	chips    []*Chip
	contents map[string]*string // placeholder → content, nil until resolved
}

// NewRegistry creates a registry bound to one buffer.
func NewRegistry(buffer TextBuffer, estimator *token.Estimator, logger *slog.Logger) *Registry {
	if estimator == nil {
		estimator = token.NewEstimator(token.FamilyBPE)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		buffer:    buffer,
		estimator: estimator,
		logger:    logger,
		contents:  make(map[string]*string),
	}
}

// Insert generates a collision-free placeholder for the chip, writes it
// into the buffer (replacing the mention trigger span, or appended), and
// begins tracking it. Returns the new chip's id.
func (r *Registry) Insert(opts InsertOptions) (string, error) {
	if opts.Kind == "" {
		return "", errors.NewInvalidRequest("chip kind is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	label := SanitizeLabel(opts.Label, opts.Kind)
	placeholder := r.freePlaceholder(label)

	// Copy the content so later mutation of the caller's variable cannot
	// change what the placeholder expands to.
	var content *string
	if opts.Content != nil {
		copied := *opts.Content
		content = &copied
	}

	tokens := opts.Tokens
	if tokens == 0 && content != nil {
		tokens = r.estimator.Estimate(*content)
	}

	c := &Chip{
		ID:          ulid.Make().String(),
		Kind:        opts.Kind,
		Label:       label,
		Placeholder: placeholder,
		Tokens:      tokens,
		FilePath:    opts.FilePath,
		CreatedAt:   time.Now(),
	}

	if opts.TriggerSpan != "" && strings.Contains(r.buffer.Read(), opts.TriggerSpan) {
		r.buffer.ReplaceAll(opts.TriggerSpan, placeholder+" ")
	} else {
		r.buffer.Append(placeholder + " ")
	}

	r.chips = append(r.chips, c)
	r.contents[placeholder] = content

	return c.ID, nil
}

// ResolveContent fills in content that arrived after insertion and
// recomputes the chip's token estimate.
func (r *Registry) ResolveContent(chipID, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.findLocked(chipID)
	if c == nil {
		return errors.NewNotFound(chipID)
	}
	r.contents[c.Placeholder] = &content
	c.Tokens = r.estimator.Estimate(content)
	return nil
}

// Remove deletes the chip's placeholder from the buffer (every literal
// occurrence, including copies duplicated by paste) and drops its
// tracking state.
func (r *Registry) Remove(chipID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.findLocked(chipID)
	if c == nil {
		return errors.NewNotFound(chipID)
	}

	// Placeholder-plus-space first, so removal doesn't leave double spaces.
	r.buffer.ReplaceAll(c.Placeholder+" ", "")
	r.buffer.ReplaceAll(c.Placeholder, "")

	r.dropLocked(c)
	return nil
}

// Sync reconciles tracking with the buffer's current text: any chip whose
// placeholder literal is no longer present was deleted by the user, so
// its tracking is dropped without editing the buffer. Idempotent; safe to
// call on every edit.
func (r *Registry) Sync() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	text := r.buffer.Read()
	removed := 0
	kept := r.chips[:0]
	for _, c := range r.chips {
		if strings.Contains(text, c.Placeholder) {
			kept = append(kept, c)
			continue
		}
		delete(r.contents, c.Placeholder)
		removed++
	}
	r.chips = kept

	if removed > 0 {
		r.logger.Debug("synced chips with buffer text", "removed", removed, "remaining", len(r.chips))
	}
	return removed
}

// Expand replaces every tracked placeholder in the buffer's current text
// with its resolved content and clears all tracking. Placeholders with no
// resolved content are left literal and logged. The result depends only
// on the buffer text and the content map, never on insertion order.
// This is the single exit point before content leaves the system; the
// caller writes the returned text into the host input.
func (r *Registry) Expand() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	text := r.buffer.Read()
	for _, c := range r.chips {
		content := r.contents[c.Placeholder]
		if content == nil {
			r.logger.Warn("placeholder unresolved at expansion, leaving literal",
				"placeholder", c.Placeholder, "kind", c.Kind)
			continue
		}
		if !ValidPlaceholder(c.Placeholder) {
			r.logger.Warn("invalid placeholder shape, skipping expansion",
				"placeholder", c.Placeholder)
			continue
		}
		text = strings.ReplaceAll(text, c.Placeholder, *content)
	}

	r.chips = nil
	r.contents = make(map[string]*string)
	return text
}

// Clear deletes every placeholder from the buffer by substring
// replacement and resets all tracking.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.chips {
		r.buffer.ReplaceAll(c.Placeholder+" ", "")
		r.buffer.ReplaceAll(c.Placeholder, "")
	}
	r.chips = nil
	r.contents = make(map[string]*string)
}

// Chips returns a snapshot of the tracked chips in insertion order.
func (r *Registry) Chips() []Chip {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Chip, len(r.chips))
	for i, c := range r.chips {
		out[i] = *c
	}
	return out
}

// Resolved reports whether the chip's content has arrived.
func (r *Registry) Resolved(chipID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.findLocked(chipID)
	return c != nil && r.contents[c.Placeholder] != nil
}

// TotalTokens sums the token estimates of all tracked chips.
func (r *Registry) TotalTokens() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	total := 0
	for _, c := range r.chips {
		total += c.Tokens
	}
	return total
}

// freePlaceholder returns the placeholder for label, appending an
// incrementing numeric suffix on collision with a tracked placeholder.
// Caller holds the lock.
func (r *Registry) freePlaceholder(label string) string {
	placeholder := WrapLabel(label)
	if _, taken := r.contents[placeholder]; !taken {
		return placeholder
	}
	for n := 2; ; n++ {
		candidate := WrapLabel(fmt.Sprintf("%s-%d", label, n))
		if _, taken := r.contents[candidate]; !taken {
			return candidate
		}
	}
}

func (r *Registry) findLocked(chipID string) *Chip {
	for _, c := range r.chips {
		if c.ID == chipID {
			return c
		}
	}
	return nil
}

func (r *Registry) dropLocked(target *Chip) {
	delete(r.contents, target.Placeholder)
	kept := r.chips[:0]
	for _, c := range r.chips {
		if c != target {
			kept = append(kept, c)
		}
	}
	r.chips = kept
}
