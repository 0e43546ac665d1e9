package host

import (
	"context"
	"fmt"

	"github.com/techidiots/webaibridge/internal/workspace"
)

// ContextRequest carries the parameters of one GET_CONTEXT fetch.
type ContextRequest struct {
	// FilePath is set for file fetches; workspace-relative.
	FilePath string
}

// ContextProvider fetches one kind of editor context on demand.
// Providers for editor-process state (selection, diagnostics, terminal)
// are supplied by the embedding integration; the workspace-backed ones
// below cover files and the file tree.
type ContextProvider interface {
	// Label is the human-readable name shown for this context type.
	Label() string

	// Fetch returns the current content for this context type.
	Fetch(ctx context.Context, req ContextRequest) (string, error)
}

// ProviderFunc adapts a function to the ContextProvider interface.
type ProviderFunc struct {
	Name string
	Fn   func(ctx context.Context, req ContextRequest) (string, error)
}

func (p ProviderFunc) Label() string { return p.Name }

func (p ProviderFunc) Fetch(ctx context.Context, req ContextRequest) (string, error) {
	return p.Fn(ctx, req)
}

// FileProvider serves file content fetches from the workspace.
type FileProvider struct {
	WS *workspace.Workspace
}

func (p FileProvider) Label() string { return "File" }

func (p FileProvider) Fetch(_ context.Context, req ContextRequest) (string, error) {
	if req.FilePath == "" {
		return "", fmt.Errorf("file fetch requires a filePath")
	}
	return p.WS.ReadFile(req.FilePath)
}

// FileTreeProvider serves the workspace structure.
type FileTreeProvider struct {
	WS *workspace.Workspace
}

func (p FileTreeProvider) Label() string { return "File Tree" }

func (p FileTreeProvider) Fetch(context.Context, ContextRequest) (string, error) {
	return p.WS.Tree()
}
