// Package host runs the editor side of the bridge: a WebSocket server
// that answers discovery probes, syncs the chip set to connected browser
// clients, serves on-demand context fetches, and captures AI responses.
package host

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/techidiots/webaibridge/internal/errors"
	"github.com/techidiots/webaibridge/internal/protocol"
	"github.com/techidiots/webaibridge/internal/store"
	"github.com/techidiots/webaibridge/internal/token"
	"github.com/techidiots/webaibridge/internal/workspace"
)

// Streaming thresholds: context larger than DefaultStreamThreshold is
// sent as CONTEXT_RESPONSE_STREAM sub-chunks of streamChunkSize.
const (
	DefaultStreamThreshold = 32 * 1024
	streamChunkSize        = 8 * 1024
)

// ResponseSink persists captured AI responses. Implemented by the store
// package; nil disables persistence.
type ResponseSink interface {
	SaveResponse(store.Response) error
}

// Options configures a Server.
type Options struct {
	// PortStart and PortEnd bound the listen port search; the server
	// binds the first free port so several instances can coexist.
	PortStart int
	PortEnd   int

	Workspace *workspace.Workspace

	// Snapshot persists the chip set; nil disables persistence.
	Snapshot ChipSnapshotter

	// Responses persists captured AI responses; nil disables persistence.
	Responses ResponseSink

	// Providers maps contextType to its provider. File and file-tree
	// providers are installed automatically from Workspace when absent.
	Providers map[string]ContextProvider

	// StreamThreshold overrides DefaultStreamThreshold; 0 takes the
	// default.
	StreamThreshold int

	Estimator *token.Estimator
	Logger    *slog.Logger
}

// Server is one editor-host bridge instance.
type Server struct {
	opts      Options
	logger    *slog.Logger
	estimator *token.Estimator
	chips     *ChipStore
	providers map[string]ContextProvider
	upgrader  websocket.Upgrader

	mu           sync.Mutex
	port         int
	listener     net.Listener
	clients      map[*client]struct{}
	lastResponse *store.Response
}

type client struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *client) send(logger *slog.Logger, msg *protocol.Message) {
	data, err := protocol.Encode(msg)
	if err != nil {
		logger.Warn("failed to encode outbound message", "type", msg.Type, "error", err)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		logger.Debug("client write failed", "type", msg.Type, "error", err)
	}
}

// NewServer creates a host server; call Listen then Serve.
func NewServer(opts Options) *Server {
	if opts.PortStart <= 0 {
		opts.PortStart = 64923
	}
	if opts.PortEnd < opts.PortStart {
		opts.PortEnd = opts.PortStart + 9
	}
	if opts.StreamThreshold <= 0 {
		opts.StreamThreshold = DefaultStreamThreshold
	}
	if opts.Estimator == nil {
		opts.Estimator = token.NewEstimator(token.FamilyBPE)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	providers := make(map[string]ContextProvider, len(opts.Providers)+2)
	for kind, p := range opts.Providers {
		providers[kind] = p
	}
	if opts.Workspace != nil {
		if _, ok := providers["file"]; !ok {
			providers["file"] = FileProvider{WS: opts.Workspace}
		}
		if _, ok := providers["file-tree"]; !ok {
			providers["file-tree"] = FileTreeProvider{WS: opts.Workspace}
		}
	}

	return &Server{
		opts:      opts,
		logger:    opts.Logger,
		estimator: opts.Estimator,
		chips:     NewChipStore(opts.Snapshot, opts.Logger),
		providers: providers,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// Listen binds the first free port in the configured range. Returns a
// PORT_EXHAUSTED error when every port is taken.
func (s *Server) Listen() (int, error) {
	for port := s.opts.PortStart; port <= s.opts.PortEnd; port++ {
		ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err != nil {
			continue
		}
		s.mu.Lock()
		s.listener = ln
		s.port = port
		s.mu.Unlock()
		s.logger.Info("bridge host listening", "port", port)
		return port, nil
	}
	return 0, errors.NewPortExhausted(s.opts.PortStart, s.opts.PortEnd)
}

// Port returns the bound port; 0 before Listen.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// Chips exposes the host chip store.
func (s *Server) Chips() *ChipStore {
	return s.chips
}

// Serve accepts bridge clients until ctx is cancelled or the listener
// closes. Call after Listen.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return fmt.Errorf("serve called before listen")
	}

	httpSrv := &http.Server{
		Handler:           http.HandlerFunc(s.handleWS),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	err := httpSrv.Serve(ln)
	if err == http.ErrServerClosed || ctx.Err() != nil {
		return nil
	}
	return err
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("upgrade failed", "error", err)
		return
	}

	c := &client{ws: ws}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()
		ws.Close()
	}()

	// Announce identity and the current chip set to the new client.
	c.send(s.logger, s.identity(protocol.TypeInstanceInfo))
	c.send(s.logger, &protocol.Message{Type: protocol.TypeChipsList, Chips: s.chips.List()})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			s.logger.Warn("dropping malformed message", "error", err)
			continue
		}
		s.handleMessage(r.Context(), c, msg)
	}
}

func (s *Server) handleMessage(ctx context.Context, c *client, msg *protocol.Message) {
	switch msg.Type {
	case protocol.TypePing:
		c.send(s.logger, s.identity(protocol.TypePong))

	case protocol.TypeGetChips:
		c.send(s.logger, &protocol.Message{Type: protocol.TypeChipsList, Chips: s.chips.List()})

	case protocol.TypeClearChips:
		s.chips.Clear()
		s.BroadcastChips()

	case protocol.TypeRemoveChip:
		if s.chips.Remove(msg.ChipID) {
			s.BroadcastChips()
		}

	case protocol.TypeGetContext:
		s.handleGetContext(ctx, c, msg)

	case protocol.TypeGetContextInfo:
		s.handleGetContextInfo(ctx, c, msg)

	case protocol.TypeGetFileList:
		s.handleGetFileList(c, msg)

	case protocol.TypeAIResponse:
		s.handleAIResponse(msg)

	default:
		s.logger.Debug("dropping unhandled message", "type", msg.Type)
	}
}

// Identity returns the instance's announce record: port and workspace
// identity as sent in INSTANCE_INFO.
func (s *Server) Identity() *protocol.Message {
	return s.identity(protocol.TypeInstanceInfo)
}

func (s *Server) identity(t protocol.Type) *protocol.Message {
	msg := &protocol.Message{Type: t, Port: s.Port()}
	if s.opts.Workspace != nil {
		msg.WorkspaceName = s.opts.Workspace.Name()
		msg.WorkspacePath = s.opts.Workspace.Root()
	}
	return msg
}

// FetchContext fetches one context type directly, bypassing the wire
// protocol. Used by the MCP and web surfaces.
func (s *Server) FetchContext(ctx context.Context, contextType, filePath string) (string, error) {
	provider, ok := s.providers[contextType]
	if !ok {
		return "", fmt.Errorf("no provider for context type %q", contextType)
	}
	return provider.Fetch(ctx, ContextRequest{FilePath: filePath})
}

// ContextInfo returns per-type token counts without delivering content.
// Providers that fail to fetch are omitted.
func (s *Server) ContextInfo(ctx context.Context) map[string]protocol.ContextInfo {
	info := make(map[string]protocol.ContextInfo, len(s.providers))
	for kind, provider := range s.providers {
		text, err := provider.Fetch(ctx, ContextRequest{})
		if err != nil {
			continue
		}
		info[kind] = protocol.ContextInfo{
			Label:  provider.Label(),
			Tokens: s.estimator.EstimateQuick(text),
		}
	}
	return info
}

// ListFiles lists the workspace files available for chips.
func (s *Server) ListFiles() ([]protocol.FileEntry, error) {
	if s.opts.Workspace == nil {
		return nil, fmt.Errorf("no workspace open")
	}
	return s.opts.Workspace.ListFiles()
}

func (s *Server) handleGetContext(ctx context.Context, c *client, msg *protocol.Message) {
	text, err := s.FetchContext(ctx, msg.ContextType, msg.FilePath)
	if err != nil {
		s.logger.Warn("context fetch failed", "contextType", msg.ContextType, "error", err)
		c.send(s.logger, &protocol.Message{
			Type:      protocol.TypeContextResponse,
			RequestID: msg.RequestID,
			Error:     err.Error(),
		})
		return
	}

	if len(text) > s.opts.StreamThreshold {
		s.streamContext(c, msg.RequestID, text)
		return
	}

	c.send(s.logger, &protocol.Message{
		Type:      protocol.TypeContextResponse,
		RequestID: msg.RequestID,
		Text:      text,
		Tokens:    s.estimator.EstimateQuick(text),
	})
}

// streamContext sends large content as ordered sub-chunk batches; the
// client reassembles by concatenation until totalSize characters arrive.
func (s *Server) streamContext(c *client, requestID, text string) {
	total := len(text)
	for off := 0; off < total; off += streamChunkSize {
		end := off + streamChunkSize
		if end > total {
			end = total
		}
		c.send(s.logger, &protocol.Message{
			Type:      protocol.TypeContextStream,
			RequestID: requestID,
			Chunks:    []protocol.StreamChunk{{Text: text[off:end]}},
			TotalSize: total,
		})
	}
}

func (s *Server) handleGetContextInfo(ctx context.Context, c *client, msg *protocol.Message) {
	c.send(s.logger, &protocol.Message{
		Type:        protocol.TypeContextInfoResponse,
		RequestID:   msg.RequestID,
		ContextInfo: s.ContextInfo(ctx),
	})
}

func (s *Server) handleGetFileList(c *client, msg *protocol.Message) {
	files, err := s.ListFiles()
	if err != nil {
		c.send(s.logger, &protocol.Message{
			Type:      protocol.TypeFileListResponse,
			RequestID: msg.RequestID,
			Error:     err.Error(),
		})
		return
	}
	c.send(s.logger, &protocol.Message{
		Type:      protocol.TypeFileListResponse,
		RequestID: msg.RequestID,
		Files:     files,
	})
}

func (s *Server) handleAIResponse(msg *protocol.Message) {
	s.CaptureResponse(store.Response{
		Text:      msg.Text,
		Site:      msg.Site,
		IsCode:    msg.IsCode,
		Timestamp: msg.Timestamp,
	})
}

// CaptureResponse records an AI response as the latest capture and
// persists it when a sink is configured.
func (s *Server) CaptureResponse(r store.Response) {
	if r.Timestamp == 0 {
		r.Timestamp = time.Now().UnixMilli()
	}

	s.mu.Lock()
	s.lastResponse = &r
	s.mu.Unlock()

	s.logger.Info("captured AI response", "site", r.Site, "isCode", r.IsCode, "chars", len(r.Text))

	if s.opts.Responses != nil {
		if err := s.opts.Responses.SaveResponse(r); err != nil {
			s.logger.Warn("failed to persist AI response", "error", err)
		}
	}
}

// LastResponse returns the most recent captured AI response, or nil.
func (s *Server) LastResponse() *store.Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastResponse
}

// BroadcastChips sends the current chip set to every connected client.
func (s *Server) BroadcastChips() {
	s.broadcast(&protocol.Message{Type: protocol.TypeChipsList, Chips: s.chips.List()})
}

// PushChips asks connected clients to insert the given chips now.
func (s *Server) PushChips(chips []protocol.Chip) {
	s.broadcast(&protocol.Message{Type: protocol.TypeChipsInsert, Chips: chips})
}

// AddChip stores a chip and syncs all clients.
func (s *Server) AddChip(kind, label, text, filePath, lineRange string) protocol.Chip {
	chip := s.chips.Add(kind, label, text, filePath, lineRange)
	s.BroadcastChips()
	return chip
}

func (s *Server) broadcast(msg *protocol.Message) {
	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.send(s.logger, msg)
	}
}
