package host

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/techidiots/webaibridge/internal/protocol"
	"github.com/techidiots/webaibridge/internal/store"
	"github.com/techidiots/webaibridge/internal/workspace"
)

// startServer brings up a host instance on a free port in a private
// range and returns it with a connected test client.
func startServer(t *testing.T, opts Options) (*Server, *websocket.Conn) {
	t.Helper()

	if opts.PortStart == 0 {
		// High range to avoid colliding with anything real.
		opts.PortStart = 52000
		opts.PortEnd = 52100
	}
	srv := NewServer(opts)
	port, err := srv.Listen()
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = srv.Serve(ctx) }()

	ws, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://127.0.0.1:%d", port), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return srv, ws
}

func readMessage(t *testing.T, ws *websocket.Conn) *protocol.Message {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	msg, err := protocol.Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return msg
}

func writeMessage(t *testing.T, ws *websocket.Conn, msg *protocol.Message) {
	t.Helper()
	data, err := protocol.Encode(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// awaitType drains messages until one of the wanted type arrives.
func awaitType(t *testing.T, ws *websocket.Conn, want protocol.Type) *protocol.Message {
	t.Helper()
	for i := 0; i < 20; i++ {
		msg := readMessage(t, ws)
		if msg.Type == want {
			return msg
		}
	}
	t.Fatalf("no %s message received", want)
	return nil
}

func testWorkspace(t *testing.T) *workspace.Workspace {
	t.Helper()
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "main.go"), []byte("package main\n"), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	return workspace.New(root, workspace.Options{})
}

func TestConnectAnnouncesIdentityAndChips(t *testing.T) {
	ws := testWorkspace(t)
	srv, conn := startServer(t, Options{Workspace: ws})

	info := readMessage(t, conn)
	if info.Type != protocol.TypeInstanceInfo {
		t.Fatalf("first message = %s, want INSTANCE_INFO", info.Type)
	}
	if info.Port != srv.Port() || info.WorkspaceName != ws.Name() {
		t.Fatalf("identity = %+v", info)
	}

	chips := readMessage(t, conn)
	if chips.Type != protocol.TypeChipsList {
		t.Fatalf("second message = %s, want CHIPS_LIST", chips.Type)
	}
}

func TestPingPong(t *testing.T) {
	srv, conn := startServer(t, Options{Workspace: testWorkspace(t)})

	writeMessage(t, conn, &protocol.Message{Type: protocol.TypePing})
	pong := awaitType(t, conn, protocol.TypePong)
	if pong.Port != srv.Port() {
		t.Fatalf("pong port = %d, want %d", pong.Port, srv.Port())
	}
}

func TestTwoInstancesBindDistinctPorts(t *testing.T) {
	a := NewServer(Options{PortStart: 53000, PortEnd: 53010})
	portA, err := a.Listen()
	if err != nil {
		t.Fatalf("listen a: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = a.Serve(ctx) }()

	b := NewServer(Options{PortStart: 53000, PortEnd: 53010})
	portB, err := b.Listen()
	if err != nil {
		t.Fatalf("listen b: %v", err)
	}
	go func() { _ = b.Serve(ctx) }()

	if portA == portB {
		t.Fatalf("both instances bound %d", portA)
	}
}

func TestGetContextFile(t *testing.T) {
	_, conn := startServer(t, Options{Workspace: testWorkspace(t)})

	writeMessage(t, conn, &protocol.Message{
		Type:        protocol.TypeGetContext,
		RequestID:   "r1",
		ContextType: "file",
		FilePath:    "main.go",
	})

	resp := awaitType(t, conn, protocol.TypeContextResponse)
	if resp.RequestID != "r1" {
		t.Fatalf("requestId = %q", resp.RequestID)
	}
	if resp.Text != "package main\n" || resp.Error != "" {
		t.Fatalf("response = %+v", resp)
	}
	if resp.Tokens < 1 {
		t.Fatalf("tokens = %d", resp.Tokens)
	}
}

func TestGetContextUnknownType(t *testing.T) {
	_, conn := startServer(t, Options{Workspace: testWorkspace(t)})

	writeMessage(t, conn, &protocol.Message{
		Type:        protocol.TypeGetContext,
		RequestID:   "r2",
		ContextType: "telepathy",
	})

	resp := awaitType(t, conn, protocol.TypeContextResponse)
	if resp.Error == "" {
		t.Fatal("expected error for unknown context type")
	}
}

func TestGetContextStreamsLargeContent(t *testing.T) {
	big := strings.Repeat("0123456789abcdef", 4096) // 64 KiB

	_, conn := startServer(t, Options{
		Workspace: testWorkspace(t),
		Providers: map[string]ContextProvider{
			"terminal": ProviderFunc{
				Name: "Terminal",
				Fn: func(context.Context, ContextRequest) (string, error) {
					return big, nil
				},
			},
		},
	})

	writeMessage(t, conn, &protocol.Message{
		Type:        protocol.TypeGetContext,
		RequestID:   "r3",
		ContextType: "terminal",
	})

	var assembled strings.Builder
	for {
		msg := readMessage(t, conn)
		if msg.Type != protocol.TypeContextStream {
			continue
		}
		if msg.RequestID != "r3" || msg.TotalSize != len(big) {
			t.Fatalf("stream frame = %+v", msg)
		}
		for _, chunk := range msg.Chunks {
			assembled.WriteString(chunk.Text)
		}
		if assembled.Len() >= msg.TotalSize {
			break
		}
	}
	if assembled.String() != big {
		t.Fatal("reassembled stream differs from source")
	}
}

func TestGetFileList(t *testing.T) {
	_, conn := startServer(t, Options{Workspace: testWorkspace(t)})

	writeMessage(t, conn, &protocol.Message{
		Type:      protocol.TypeGetFileList,
		RequestID: "r4",
	})

	resp := awaitType(t, conn, protocol.TypeFileListResponse)
	if len(resp.Files) != 1 || resp.Files[0].Path != "main.go" {
		t.Fatalf("files = %v", resp.Files)
	}
	if resp.Files[0].LanguageID != "go" {
		t.Fatalf("language = %q", resp.Files[0].LanguageID)
	}
}

func TestChipMutationsBroadcast(t *testing.T) {
	srv, conn := startServer(t, Options{Workspace: testWorkspace(t)})

	// Drain the connect-time messages.
	awaitType(t, conn, protocol.TypeChipsList)

	chip := srv.AddChip("file", "main.go", "package main", "main.go", "")
	list := awaitType(t, conn, protocol.TypeChipsList)
	if len(list.Chips) != 1 || list.Chips[0].ID != chip.ID {
		t.Fatalf("broadcast chips = %v", list.Chips)
	}

	writeMessage(t, conn, &protocol.Message{Type: protocol.TypeRemoveChip, ChipID: chip.ID})
	list = awaitType(t, conn, protocol.TypeChipsList)
	if len(list.Chips) != 0 {
		t.Fatalf("chips after remove = %v", list.Chips)
	}

	srv.Chips().Add("selection", "sel", "x", "", "")
	writeMessage(t, conn, &protocol.Message{Type: protocol.TypeClearChips})
	list = awaitType(t, conn, protocol.TypeChipsList)
	if len(list.Chips) != 0 {
		t.Fatalf("chips after clear = %v", list.Chips)
	}
}

func TestAIResponseCapturedAndPersisted(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "bridge"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	srv, conn := startServer(t, Options{Workspace: testWorkspace(t), Responses: st})

	writeMessage(t, conn, &protocol.Message{
		Type:   protocol.TypeAIResponse,
		Text:   "```go\nfunc main() {}\n```",
		IsCode: true,
		Site:   "chat.example.com",
	})

	deadline := time.Now().Add(2 * time.Second)
	for srv.LastResponse() == nil {
		if time.Now().After(deadline) {
			t.Fatal("response not captured")
		}
		time.Sleep(10 * time.Millisecond)
	}

	got := srv.LastResponse()
	if !got.IsCode || got.Site != "chat.example.com" {
		t.Fatalf("captured = %+v", got)
	}
	if got.Timestamp == 0 {
		t.Fatal("timestamp not stamped")
	}

	persisted, err := st.LastResponse()
	if err != nil {
		t.Fatalf("load persisted: %v", err)
	}
	if persisted == nil || persisted.Text != got.Text {
		t.Fatalf("persisted = %+v", persisted)
	}
}
