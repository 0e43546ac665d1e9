package host

import (
	"path/filepath"
	"testing"

	"github.com/techidiots/webaibridge/internal/store"
)

func TestChipStoreAddRemoveClear(t *testing.T) {
	s := NewChipStore(nil, nil)

	a := s.Add("file", "main.go", "package main", "main.go", "")
	b := s.Add("selection", "sel", "x := 1", "", "10-12")

	if a.ID == "" || b.ID == "" || a.ID == b.ID {
		t.Fatalf("ids = %q, %q", a.ID, b.ID)
	}
	if a.LanguageID != "go" {
		t.Fatalf("language = %q, want go", a.LanguageID)
	}
	if got := s.List(); len(got) != 2 {
		t.Fatalf("listed %d chips, want 2", len(got))
	}

	if !s.Remove(a.ID) {
		t.Fatal("remove reported miss for existing chip")
	}
	if s.Remove("missing") {
		t.Fatal("remove reported hit for unknown chip")
	}
	if got := s.List(); len(got) != 1 || got[0].ID != b.ID {
		t.Fatalf("after remove: %v", got)
	}

	s.Clear()
	if got := s.List(); len(got) != 0 {
		t.Fatalf("after clear: %v", got)
	}
}

func TestChipStorePersistsSnapshots(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "bridge")
	st, err := store.Open(dir)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	s := NewChipStore(st, nil)
	s.Add("file", "a.go", "package a", "a.go", "")

	// A fresh store over the same database restores the snapshot.
	restored := NewChipStore(st, nil)
	got := restored.List()
	if len(got) != 1 || got[0].Label != "a.go" {
		t.Fatalf("restored chips = %v", got)
	}
}
