package host

import (
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/techidiots/webaibridge/internal/protocol"
	"github.com/techidiots/webaibridge/internal/workspace"
)

// ChipSnapshotter persists the chip set across host restarts.
// Implemented by the store package; nil disables persistence.
type ChipSnapshotter interface {
	SaveChips([]protocol.Chip) error
	LoadChips() ([]protocol.Chip, error)
}

// ChipStore holds the host-side chip set. Safe for concurrent use.
type ChipStore struct {
	mu       sync.Mutex
	chips    []protocol.Chip
	snapshot ChipSnapshotter
	logger   *slog.Logger
}

// NewChipStore creates a ChipStore, restoring any persisted snapshot.
func NewChipStore(snapshot ChipSnapshotter, logger *slog.Logger) *ChipStore {
	if logger == nil {
		logger = slog.Default()
	}
	s := &ChipStore{snapshot: snapshot, logger: logger}
	if snapshot != nil {
		chips, err := snapshot.LoadChips()
		if err != nil {
			logger.Warn("failed to restore chip snapshot", "error", err)
		} else {
			s.chips = chips
		}
	}
	return s
}

// Add stores a new chip, stamping its id and timestamp, and returns it.
func (s *ChipStore) Add(kind, label, text, filePath, lineRange string) protocol.Chip {
	chip := protocol.Chip{
		ID:         ulid.Make().String(),
		Kind:       kind,
		Label:      label,
		Text:       text,
		LanguageID: workspace.DetectLanguage(filePath),
		FilePath:   filePath,
		LineRange:  lineRange,
		Timestamp:  time.Now().UnixMilli(),
	}

	s.mu.Lock()
	s.chips = append(s.chips, chip)
	s.mu.Unlock()

	s.persist()
	return chip
}

// Remove deletes the chip with the given id; a miss is a no-op.
func (s *ChipStore) Remove(chipID string) bool {
	s.mu.Lock()
	kept := s.chips[:0]
	removed := false
	for _, c := range s.chips {
		if c.ID == chipID {
			removed = true
			continue
		}
		kept = append(kept, c)
	}
	s.chips = kept
	s.mu.Unlock()

	if removed {
		s.persist()
	}
	return removed
}

// Clear drops every chip.
func (s *ChipStore) Clear() {
	s.mu.Lock()
	s.chips = nil
	s.mu.Unlock()
	s.persist()
}

// List returns a snapshot of the chip set in insertion order.
func (s *ChipStore) List() []protocol.Chip {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.Chip, len(s.chips))
	copy(out, s.chips)
	return out
}

func (s *ChipStore) persist() {
	if s.snapshot == nil {
		return
	}
	if err := s.snapshot.SaveChips(s.List()); err != nil {
		s.logger.Warn("failed to persist chip snapshot", "error", err)
	}
}
