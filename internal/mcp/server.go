// Package mcp exposes the editor-host bridge as MCP tools: chip staging,
// context fetches, workspace listings, and captured AI responses.
package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/techidiots/webaibridge/internal/host"
	"github.com/techidiots/webaibridge/internal/token"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"chip_list": {
		def:     chipListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleChipList },
	},
	"chip_add": {
		def:     chipAddToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleChipAdd },
	},
	"chip_remove": {
		def:     chipRemoveToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleChipRemove },
	},
	"chip_clear": {
		def:     chipClearToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleChipClear },
	},
	"context_fetch": {
		def:     contextFetchToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleContextFetch },
	},
	"context_info": {
		def:     contextInfoToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleContextInfo },
	},
	"file_list": {
		def:     fileListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleFileList },
	},
	"response_latest": {
		def:     responseLatestToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleResponseLatest },
	},
	"token_estimate": {
		def:     tokenEstimateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTokenEstimate },
	},
}

// AllToolNames returns a list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// NewServer creates a new MCP server with bridge tools registered.
func NewServer(srv *host.Server, estimator *token.Estimator, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"webaibridge",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(srv, estimator)
	for _, entry := range toolRegistry {
		s.AddTool(entry.def, entry.handler(h))
	}
	return s
}

// Run starts the MCP server using stdio transport.
func Run(srv *host.Server, estimator *token.Estimator, version string) error {
	return server.ServeStdio(NewServer(srv, estimator, version))
}

// ToolHandlerFunc is the signature for tool handlers.
type ToolHandlerFunc func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
