// Package workspace gives the editor host bounded access to the files
// under a workspace root: gitignore-aware exclusion, capped recursive
// listing, language detection, and a renderable file tree.
package workspace

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/techidiots/webaibridge/internal/protocol"
)

// Listing caps, matching the host defaults.
const (
	DefaultMaxFileSize = 100000
	DefaultMaxFiles    = 50
)

// langMap maps file extensions to language identifiers.
var langMap = map[string]string{
	"ts": "typescript", "tsx": "typescriptreact",
	"js": "javascript", "jsx": "javascriptreact",
	"py": "python", "rb": "ruby", "rs": "rust",
	"go": "go", "java": "java", "cs": "csharp",
	"cpp": "cpp", "c": "c", "h": "c",
	"html": "html", "css": "css", "scss": "scss",
	"json": "json", "yaml": "yaml", "yml": "yaml",
	"md": "markdown", "sql": "sql", "sh": "shellscript",
}

// DetectLanguage returns the language id for a file path, defaulting to
// plaintext for unknown extensions.
func DetectLanguage(path string) string {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if lang, ok := langMap[ext]; ok {
		return lang
	}
	return "plaintext"
}

// Options bounds what a Workspace will read and list.
type Options struct {
	// MaxFileSize is the per-file byte cap; larger files are skipped in
	// listings and refused by ReadFile. 0 takes the default.
	MaxFileSize int64

	// MaxFiles caps one recursive listing. 0 takes the default.
	MaxFiles int

	// ExcludePatterns are gitignore-style patterns applied on top of the
	// workspace's own .gitignore.
	ExcludePatterns []string

	// UseGitignore controls whether .gitignore at the root is honored.
	UseGitignore bool
}

// Workspace is a bounded view of one directory tree.
type Workspace struct {
	root        string
	name        string
	maxFileSize int64
	maxFiles    int
	matcher     *Matcher
}

// New creates a Workspace rooted at root.
func New(root string, opts Options) *Workspace {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	if opts.MaxFiles <= 0 {
		opts.MaxFiles = DefaultMaxFiles
	}

	patterns := append([]string{}, opts.ExcludePatterns...)
	if opts.UseGitignore {
		patterns = append(patterns, LoadGitignore(root)...)
	}

	return &Workspace{
		root:        root,
		name:        filepath.Base(root),
		maxFileSize: opts.MaxFileSize,
		maxFiles:    opts.MaxFiles,
		matcher:     NewMatcher(patterns),
	}
}

// Root returns the workspace root path.
func (w *Workspace) Root() string { return w.root }

// Name returns the workspace's display name (the root's base name).
func (w *Workspace) Name() string { return w.name }

// Excluded reports whether the workspace-relative path matches an
// exclude pattern.
func (w *Workspace) Excluded(relPath string) bool {
	return w.matcher.Match(relPath)
}

// ReadFile returns the content of a workspace-relative file, enforcing
// the exclusion patterns and the size cap.
func (w *Workspace) ReadFile(relPath string) (string, error) {
	relPath = filepath.ToSlash(filepath.Clean(relPath))
	if strings.HasPrefix(relPath, "..") {
		return "", fmt.Errorf("path %q escapes the workspace", relPath)
	}
	if w.Excluded(relPath) {
		return "", fmt.Errorf("path %q matches an exclude pattern", relPath)
	}

	full := filepath.Join(w.root, filepath.FromSlash(relPath))
	info, err := os.Stat(full)
	if err != nil {
		return "", err
	}
	if info.Size() > w.maxFileSize {
		return "", fmt.Errorf("file %q is %d bytes (limit %d)", relPath, info.Size(), w.maxFileSize)
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ListFiles walks the tree and returns up to MaxFiles entries, skipping
// excluded paths and files over the size cap, sorted by path.
func (w *Workspace) ListFiles() ([]protocol.FileEntry, error) {
	var files []protocol.FileEntry

	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		rel, relErr := filepath.Rel(w.root, path)
		if relErr != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if w.Excluded(rel) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		info, infoErr := d.Info()
		if infoErr != nil || info.Size() > w.maxFileSize {
			return nil
		}

		files = append(files, protocol.FileEntry{
			Path:       rel,
			Label:      rel,
			LanguageID: DetectLanguage(rel),
		})
		if len(files) >= w.maxFiles {
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// Tree renders the workspace structure as an indented listing, honoring
// the same exclusions and file cap as ListFiles. Directories end with a
// slash.
func (w *Workspace) Tree() (string, error) {
	var b strings.Builder
	b.WriteString(w.name + "/\n")

	count := 0
	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(w.root, path)
		if relErr != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if w.Excluded(rel) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		depth := strings.Count(rel, "/") + 1
		b.WriteString(strings.Repeat("  ", depth))
		if d.IsDir() {
			b.WriteString(filepath.Base(rel) + "/\n")
			return nil
		}
		b.WriteString(filepath.Base(rel) + "\n")
		count++
		if count >= w.maxFiles {
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}
