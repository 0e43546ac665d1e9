package chip

import (
	"strings"
	"sync"
)

// TextBuffer abstracts the host text input the registry tracks placeholders
// in. Implemented once per host buffer technology; the registry never
// touches concrete editor or DOM APIs.
type TextBuffer interface {
	// Read returns the buffer's current full text.
	Read() string
	// ReplaceAll replaces every literal occurrence of a substring.
	ReplaceAll(literal, replacement string)
	// Append adds text at the end of the buffer (the "cursor" position for
	// buffers without a richer location model).
	Append(text string)
}

// MemoryBuffer is an in-memory TextBuffer, used by tests and by callers
// that stage text before handing it to a real input.
type MemoryBuffer struct {
	mu   sync.Mutex
	text string
}

// NewMemoryBuffer creates a MemoryBuffer with initial text.
func NewMemoryBuffer(text string) *MemoryBuffer {
	return &MemoryBuffer{text: text}
}

// Read returns the current text.
func (b *MemoryBuffer) Read() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text
}

// ReplaceAll replaces every occurrence of literal with replacement.
func (b *MemoryBuffer) ReplaceAll(literal, replacement string) {
	if literal == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.text = strings.ReplaceAll(b.text, literal, replacement)
}

// Append adds text at the end of the buffer.
func (b *MemoryBuffer) Append(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.text += text
}

// SetText replaces the whole buffer content, simulating a user edit.
func (b *MemoryBuffer) SetText(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.text = text
}
