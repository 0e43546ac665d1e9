package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/techidiots/webaibridge/internal/errors"
	"github.com/techidiots/webaibridge/internal/host"
	"github.com/techidiots/webaibridge/internal/token"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	srv       *host.Server
	estimator *token.Estimator
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(srv *host.Server, estimator *token.Estimator) *Handlers {
	if estimator == nil {
		estimator = token.NewEstimator(token.FamilyBPE)
	}
	return &Handlers{srv: srv, estimator: estimator}
}

// Request types for each tool

// ChipAddRequest represents the arguments for chip_add.
type ChipAddRequest struct {
	Kind      string `json:"kind,omitempty"`
	Label     string `json:"label"`
	Text      string `json:"text"`
	FilePath  string `json:"file_path,omitempty"`
	LineRange string `json:"line_range,omitempty"`
}

// ChipRemoveRequest represents the arguments for chip_remove.
type ChipRemoveRequest struct {
	ChipID string `json:"chip_id"`
}

// ContextFetchRequest represents the arguments for context_fetch.
type ContextFetchRequest struct {
	ContextType string `json:"context_type"`
	FilePath    string `json:"file_path,omitempty"`
}

// EstimateRequest represents the arguments for token_estimate.
type EstimateRequest struct {
	Text  string `json:"text"`
	Model string `json:"model,omitempty"`
}

// Tool definitions

var chipListToolDef = mcp.NewTool("chip_list",
	mcp.WithDescription("List the context chips currently staged on the editor host."),
)

var chipAddToolDef = mcp.NewTool("chip_add",
	mcp.WithDescription("Stage a context chip on the editor host and sync it to connected browser clients."),
	mcp.WithString("label", mcp.Required(), mcp.Description("Display label for the chip.")),
	mcp.WithString("text", mcp.Required(), mcp.Description("Chip content.")),
	mcp.WithString("kind", mcp.Description("Chip kind: selection, file, files, problems, file-tree, diff, terminal, or mention. Defaults to mention.")),
	mcp.WithString("file_path", mcp.Description("Workspace-relative file path for file-backed chips.")),
	mcp.WithString("line_range", mcp.Description("Line range annotation, e.g. \"10-42\".")),
)

var chipRemoveToolDef = mcp.NewTool("chip_remove",
	mcp.WithDescription("Remove one staged chip by id."),
	mcp.WithString("chip_id", mcp.Required(), mcp.Description("Id of the chip to remove.")),
)

var chipClearToolDef = mcp.NewTool("chip_clear",
	mcp.WithDescription("Remove every staged chip."),
)

var contextFetchToolDef = mcp.NewTool("context_fetch",
	mcp.WithDescription("Fetch editor context (file, file-tree, selection, problems, diff, terminal) with its token estimate."),
	mcp.WithString("context_type", mcp.Required(), mcp.Description("Which context to fetch.")),
	mcp.WithString("file_path", mcp.Description("Workspace-relative path, required for context_type=file.")),
)

var contextInfoToolDef = mcp.NewTool("context_info",
	mcp.WithDescription("Token counts per available context type, without full content."),
)

var fileListToolDef = mcp.NewTool("file_list",
	mcp.WithDescription("List workspace files available for chips, honoring exclude patterns."),
)

var responseLatestToolDef = mcp.NewTool("response_latest",
	mcp.WithDescription("Return the most recent AI response captured from a browser client."),
)

var tokenEstimateToolDef = mcp.NewTool("token_estimate",
	mcp.WithDescription("Estimate the token count of a text against a model's limit."),
	mcp.WithString("text", mcp.Required(), mcp.Description("Text to estimate.")),
	mcp.WithString("model", mcp.Description("Target model; defaults to gpt-4.")),
)

// Handlers

func (h *Handlers) HandleChipList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return successResult(map[string]any{"chips": h.srv.Chips().List()})
}

func (h *Handlers) HandleChipAdd(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := decode[ChipAddRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if args.Label == "" || args.Text == "" {
		return errorResult(errors.NewInvalidRequest("label and text are required")), nil
	}
	if args.Kind == "" {
		args.Kind = "mention"
	}

	chip := h.srv.AddChip(args.Kind, args.Label, args.Text, args.FilePath, args.LineRange)
	return successResult(map[string]any{"chip": chip})
}

func (h *Handlers) HandleChipRemove(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := decode[ChipRemoveRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if args.ChipID == "" {
		return errorResult(errors.NewInvalidRequest("chip_id is required")), nil
	}

	if !h.srv.Chips().Remove(args.ChipID) {
		return errorResult(errors.NewNotFound(args.ChipID)), nil
	}
	h.srv.BroadcastChips()
	return successResult(map[string]any{"removed": args.ChipID})
}

func (h *Handlers) HandleChipClear(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h.srv.Chips().Clear()
	h.srv.BroadcastChips()
	return successResult(map[string]any{"cleared": true})
}

func (h *Handlers) HandleContextFetch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := decode[ContextFetchRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if args.ContextType == "" {
		return errorResult(errors.NewInvalidRequest("context_type is required")), nil
	}

	text, err := h.srv.FetchContext(ctx, args.ContextType, args.FilePath)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{
		"text":   text,
		"tokens": h.estimator.EstimateQuick(text),
	})
}

func (h *Handlers) HandleContextInfo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return successResult(map[string]any{"contextInfo": h.srv.ContextInfo(ctx)})
}

func (h *Handlers) HandleFileList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	files, err := h.srv.ListFiles()
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"files": files})
}

func (h *Handlers) HandleResponseLatest(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r := h.srv.LastResponse()
	if r == nil {
		return errorResult(errors.NewNotFound("last response")), nil
	}
	return successResult(map[string]any{"response": r})
}

func (h *Handlers) HandleTokenEstimate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := decode[EstimateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	model := args.Model
	if model == "" {
		model = token.DefaultModel
	}
	tokens := h.estimator.EstimateQuick(args.Text)
	limit := h.estimator.GetLimit(model)
	return successResult(map[string]any{
		"tokens":  tokens,
		"model":   model,
		"limit":   limit,
		"exceeds": tokens > limit,
		"warning": h.estimator.IsWarningLevel(tokens, model),
	})
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Note: Internal error details are not exposed to prevent leaking sensitive info.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if bridgeErr, ok := err.(*errors.BridgeError); ok {
		errorObj := map[string]any{
			"code":    bridgeErr.Code,
			"message": bridgeErr.Message,
		}
		if bridgeErr.Code != errors.ErrInternal && bridgeErr.Details != nil {
			errorObj["details"] = bridgeErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
