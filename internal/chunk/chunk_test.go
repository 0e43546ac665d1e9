package chunk

import (
	"strings"
	"testing"

	"github.com/techidiots/webaibridge/internal/token"
)

func TestSplit_Empty(t *testing.T) {
	if got := Split("", 100, 0); got != nil {
		t.Errorf("Split(\"\") = %v, want nil", got)
	}
}

func TestSplit_FitsInOne(t *testing.T) {
	text := "a short paragraph that fits easily"
	chunks := Split(text, 1000, 0)

	if len(chunks) != 1 {
		t.Fatalf("len(chunks) = %d, want 1", len(chunks))
	}
	if chunks[0].Text != text {
		t.Errorf("chunk text = %q, want input unchanged", chunks[0].Text)
	}
	if chunks[0].PartNumber != 1 || chunks[0].TotalParts != 1 {
		t.Errorf("part = %d/%d, want 1/1", chunks[0].PartNumber, chunks[0].TotalParts)
	}
	if chunks[0].Tokens != token.Estimate(text) {
		t.Errorf("tokens = %d, want %d", chunks[0].Tokens, token.Estimate(text))
	}
}

func TestSplit_Reconstruction(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 200; i++ {
		sb.WriteString("The compiler walks the syntax tree and emits bytecode for each node.\n")
		if i%10 == 9 {
			sb.WriteString("\n")
		}
	}
	text := sb.String()

	const limit = 120
	chunks := Split(text, limit, 0)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	var joined strings.Builder
	for _, c := range chunks {
		joined.WriteString(c.Text)
	}
	if joined.String() != text {
		t.Error("concatenated chunks should reconstruct the input exactly")
	}

	for _, c := range chunks {
		if c.Tokens > limit {
			t.Errorf("chunk %d tokens %d exceeds limit %d", c.PartNumber, c.Tokens, limit)
		}
	}
}

func TestSplit_PartNumbering(t *testing.T) {
	text := strings.Repeat("alpha beta gamma delta epsilon zeta eta theta.\n", 400)
	chunks := Split(text, 150, 0)

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.PartNumber != i+1 {
			t.Errorf("chunk %d PartNumber = %d, want %d", i, c.PartNumber, i+1)
		}
		if c.TotalParts != len(chunks) {
			t.Errorf("chunk %d TotalParts = %d, want %d", i, c.TotalParts, len(chunks))
		}
	}
}

func TestSplit_BoundaryPreference(t *testing.T) {
	// Paragraph breaks should win over mid-line splits when in range.
	var sb strings.Builder
	for i := 0; i < 120; i++ {
		sb.WriteString("A sentence inside a paragraph with several words in it.\n\n")
	}
	chunks := Split(sb.String(), 200, 0)

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for _, c := range chunks[:len(chunks)-1] {
		if !strings.HasSuffix(c.Text, "\n") {
			t.Errorf("chunk %d should end at a line or paragraph break, got %q",
				c.PartNumber, c.Text[len(c.Text)-12:])
		}
	}
}

func TestSplit_Overlap(t *testing.T) {
	text := strings.Repeat("one two three four five six seven eight nine ten\n", 300)
	noOverlap := Split(text, 150, 0)
	overlap := Split(text, 150, 10)

	if len(overlap) < len(noOverlap) {
		t.Errorf("overlap splitting produced fewer chunks: %d < %d",
			len(overlap), len(noOverlap))
	}

	// Each later chunk starts with a slice carried from the tail of the
	// previous chunk.
	for i := 1; i < len(overlap); i++ {
		head := overlap[i].Text
		if len(head) > 20 {
			head = head[:20]
		}
		if !strings.Contains(overlap[i-1].Text, head) {
			t.Errorf("chunk %d head %q not carried from predecessor", i+1, head)
		}
	}
}

func TestSplit_PathologicalInputTerminates(t *testing.T) {
	// A single unbroken "word" far beyond the limit must still terminate
	// and make progress each iteration.
	text := strings.Repeat("x", 50000)
	chunks := Split(text, 50, 0)

	if len(chunks) == 0 {
		t.Fatal("expected chunks for pathological input")
	}

	var joined strings.Builder
	for _, c := range chunks {
		joined.WriteString(c.Text)
	}
	if joined.String() != text {
		t.Error("pathological input should still reconstruct exactly")
	}
}
