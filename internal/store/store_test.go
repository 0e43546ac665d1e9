package store

import (
	"path/filepath"
	"testing"

	"github.com/techidiots/webaibridge/internal/protocol"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "bridge"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGetSetRoundTrip(t *testing.T) {
	s := openTestStore(t)

	if err := s.Set(map[string]string{"a": "1", "b": "two"}); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err := s.Get("a", "b", "missing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got["a"] != "1" || got["b"] != "two" {
		t.Fatalf("values = %v", got)
	}
	if _, ok := got["missing"]; ok {
		t.Fatal("missing key should be absent, not empty")
	}
}

func TestSetOverwrites(t *testing.T) {
	s := openTestStore(t)

	if err := s.Set(map[string]string{"k": "old"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Set(map[string]string{"k": "new"}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	got, err := s.Get("k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got["k"] != "new" {
		t.Fatalf("value = %q, want new", got["k"])
	}
}

func TestDelete(t *testing.T) {
	s := openTestStore(t)

	if err := s.Set(map[string]string{"k": "v"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Delete("k", "never-existed"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	got, err := s.Get("k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("deleted key still present: %v", got)
	}
}

func TestSelectedPort(t *testing.T) {
	s := openTestStore(t)

	port, err := s.SelectedPort()
	if err != nil {
		t.Fatalf("selected port: %v", err)
	}
	if port != 0 {
		t.Fatalf("fresh store port = %d, want 0", port)
	}

	if err := s.SetSelectedPort(64925); err != nil {
		t.Fatalf("set port: %v", err)
	}
	port, err = s.SelectedPort()
	if err != nil {
		t.Fatalf("selected port: %v", err)
	}
	if port != 64925 {
		t.Fatalf("port = %d, want 64925", port)
	}
}

func TestChipSnapshot(t *testing.T) {
	s := openTestStore(t)

	chips, err := s.LoadChips()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if chips != nil {
		t.Fatalf("fresh store chips = %v, want nil", chips)
	}

	want := []protocol.Chip{
		{ID: "01ABC", Kind: "file", Label: "main.go", Text: "package main", Timestamp: 1700000000},
		{ID: "01DEF", Kind: "selection", Label: "sel", Text: "x := 1", Timestamp: 1700000001},
	}
	if err := s.SaveChips(want); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.LoadChips()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 2 || got[0].ID != "01ABC" || got[1].Label != "sel" {
		t.Fatalf("loaded chips = %v", got)
	}
}

func TestReopenPersists(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "bridge")

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.SetSelectedPort(64930); err != nil {
		t.Fatalf("set port: %v", err)
	}
	s.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	port, err := s2.SelectedPort()
	if err != nil {
		t.Fatalf("selected port: %v", err)
	}
	if port != 64930 {
		t.Fatalf("port after reopen = %d, want 64930", port)
	}
}
