package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}

func TestParseIgnoreLines(t *testing.T) {
	patterns := ParseIgnoreLines("node_modules/\n\n# a comment\n*.log\n  dist/  \n")
	if len(patterns) != 3 {
		t.Fatalf("patterns = %v", patterns)
	}
	if patterns[0] != "node_modules/" || patterns[1] != "*.log" || patterns[2] != "dist/" {
		t.Fatalf("patterns = %v", patterns)
	}
}

func TestMatcherPatterns(t *testing.T) {
	m := NewMatcher([]string{"node_modules/", "*.log", "/build", "src/**/gen"})

	cases := []struct {
		path string
		want bool
	}{
		{"node_modules/lodash/index.js", true},
		{"src/app.ts", false},
		{"debug.log", true},
		{"logs/x.log", true},
		{"build/out.o", true},
		{"src/a/b/gen", true},
		{"README.md", false},
	}
	for _, tc := range cases {
		if got := m.Match(tc.path); got != tc.want {
			t.Errorf("Match(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

func TestDetectLanguage(t *testing.T) {
	cases := map[string]string{
		"main.go":      "go",
		"app.tsx":      "typescriptreact",
		"config.yml":   "yaml",
		"notes.txt":    "plaintext",
		"src/query.sql": "sql",
	}
	for path, want := range cases {
		if got := DetectLanguage(path); got != want {
			t.Errorf("DetectLanguage(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestListFilesHonorsGitignore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "node_modules/\n*.log\n")
	writeFile(t, root, "main.go", "package main")
	writeFile(t, root, "debug.log", "noise")
	writeFile(t, root, "node_modules/dep/index.js", "module.exports = {}")
	writeFile(t, root, "src/app.ts", "export {}")

	w := New(root, Options{UseGitignore: true})
	files, err := w.ListFiles()
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	paths := map[string]bool{}
	for _, f := range files {
		paths[f.Path] = true
	}
	if !paths["main.go"] || !paths["src/app.ts"] {
		t.Fatalf("missing expected files: %v", files)
	}
	if paths["debug.log"] || paths["node_modules/dep/index.js"] {
		t.Fatalf("excluded files listed: %v", files)
	}
	// .gitignore itself is listed; it matches no pattern.
	for _, f := range files {
		if f.Path == "main.go" && f.LanguageID != "go" {
			t.Fatalf("language for main.go = %q", f.LanguageID)
		}
	}
}

func TestListFilesCap(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 10; i++ {
		writeFile(t, root, filepath.Join("d", string(rune('a'+i))+".txt"), "x")
	}

	w := New(root, Options{MaxFiles: 3})
	files, err := w.ListFiles()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("listed %d files, want 3", len(files))
	}
}

func TestListFilesSkipsOversized(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "small.txt", "ok")
	writeFile(t, root, "big.txt", strings.Repeat("x", 200))

	w := New(root, Options{MaxFileSize: 100})
	files, err := w.ListFiles()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, f := range files {
		if f.Path == "big.txt" {
			t.Fatal("oversized file listed")
		}
	}
}

func TestReadFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/app.go", "package app")
	writeFile(t, root, "secret.env", "KEY=1")

	w := New(root, Options{ExcludePatterns: []string{"*.env"}})

	got, err := w.ReadFile("src/app.go")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got != "package app" {
		t.Fatalf("content = %q", got)
	}

	if _, err := w.ReadFile("secret.env"); err == nil {
		t.Fatal("excluded file readable")
	}
	if _, err := w.ReadFile("../outside.txt"); err == nil {
		t.Fatal("path escape allowed")
	}
	if _, err := w.ReadFile("missing.go"); err == nil {
		t.Fatal("missing file readable")
	}
}

func TestReadFileSizeCap(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "big.txt", strings.Repeat("x", 500))

	w := New(root, Options{MaxFileSize: 100})
	if _, err := w.ReadFile("big.txt"); err == nil {
		t.Fatal("oversized file readable")
	}
}

func TestTree(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main")
	writeFile(t, root, "src/app.go", "package app")

	w := New(root, Options{})
	tree, err := w.Tree()
	if err != nil {
		t.Fatalf("tree: %v", err)
	}
	if !strings.HasPrefix(tree, filepath.Base(root)+"/\n") {
		t.Fatalf("tree missing root line: %q", tree)
	}
	if !strings.Contains(tree, "  main.go\n") || !strings.Contains(tree, "  src/\n") || !strings.Contains(tree, "    app.go\n") {
		t.Fatalf("tree = %q", tree)
	}
}
