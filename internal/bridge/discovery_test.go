package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/techidiots/webaibridge/internal/protocol"
)

func TestDiscoverFindsLiveInstance(t *testing.T) {
	var hostPort int
	port := startHost(t, func(ws *websocket.Conn, msg *protocol.Message) {
		if msg.Type == protocol.TypePing {
			reply(ws, &protocol.Message{
				Type:          protocol.TypePong,
				Port:          hostPort,
				WorkspaceName: "demo",
				WorkspacePath: "/tmp/demo",
			})
		}
	})
	hostPort = port

	d := NewDirectory(nil)
	got := d.Discover(context.Background(), port, port, time.Second)
	if len(got) != 1 {
		t.Fatalf("discovered %d instances, want 1", len(got))
	}
	if got[0].Port != port || got[0].WorkspaceName != "demo" {
		t.Fatalf("instance = %+v", got[0])
	}
}

func TestDiscoverDeadRangeReturnsEmptyQuickly(t *testing.T) {
	d := NewDirectory(nil)

	start := time.Now()
	got := d.Discover(context.Background(), DefaultPortRangeStart, DefaultPortRangeEnd, time.Second)
	elapsed := time.Since(start)

	if len(got) != 0 {
		t.Fatalf("discovered %d instances on a dead range", len(got))
	}
	// Probes run in parallel, so the sweep completes in roughly one
	// per-port timeout, not ten.
	if elapsed > 3*time.Second {
		t.Fatalf("sweep took %v, want ~1s", elapsed)
	}
}

func TestDiscoverIgnoresNonPongTraffic(t *testing.T) {
	port := startHost(t, func(ws *websocket.Conn, msg *protocol.Message) {
		if msg.Type == protocol.TypePing {
			reply(ws, &protocol.Message{Type: protocol.TypeAIResponse, Text: "noise"})
		}
	})

	d := NewDirectory(nil)
	got := d.Discover(context.Background(), port, port, 300*time.Millisecond)
	if len(got) != 0 {
		t.Fatalf("discovered %d instances from non-pong traffic", len(got))
	}
}

func TestDiscoverEmptyRange(t *testing.T) {
	d := NewDirectory(nil)
	if got := d.Discover(context.Background(), 100, 99, time.Second); got != nil {
		t.Fatalf("inverted range returned %v", got)
	}
}

func TestSelectPrefersRememberedPort(t *testing.T) {
	instances := []InstanceRecord{
		{Port: 64923, WorkspaceName: "a"},
		{Port: 64925, WorkspaceName: "b"},
	}

	if got, ok := Select(instances, 64925); !ok || got.WorkspaceName != "b" {
		t.Fatalf("Select(remembered) = %+v, %v", got, ok)
	}
	if got, ok := Select(instances, 60000); !ok || got.WorkspaceName != "a" {
		t.Fatalf("Select(forgotten) = %+v, %v", got, ok)
	}
	if got, ok := Select(instances, 0); !ok || got.WorkspaceName != "a" {
		t.Fatalf("Select(none) = %+v, %v", got, ok)
	}
	if _, ok := Select(nil, 64923); ok {
		t.Fatal("Select(empty) should report no instance")
	}
}
