// Package bridge maintains the client side of the editor-host link: it
// discovers running host instances across a fixed port range, owns the
// single live connection with reconnect backoff, and correlates
// asynchronous requests with their responses.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/techidiots/webaibridge/internal/protocol"
)

// Default discovery port range. Each editor instance binds the first free
// port in the range, so the sweep covers every concurrently running
// instance.
const (
	DefaultPortRangeStart = 64923
	DefaultPortRangeEnd   = 64932
)

// InstanceRecord identifies one reachable editor-host instance. Records
// are ephemeral; every discovery sweep rebuilds the set from scratch.
type InstanceRecord struct {
	Port          int    `json:"port"`
	WorkspaceName string `json:"workspaceName"`
	WorkspacePath string `json:"workspacePath"`
}

// Directory sweeps the port range for live instances.
type Directory struct {
	logger *slog.Logger
	dialer *websocket.Dialer
}

// NewDirectory creates a Directory. A nil logger falls back to
// slog.Default().
func NewDirectory(logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{
		logger: logger,
		dialer: &websocket.Dialer{},
	}
}

// Discover probes every port in [start, end] in parallel and returns the
// instances that answered a PING with a matching PONG, ordered by port.
// Ports that refuse, time out, or answer garbage are excluded silently;
// an empty result means no live instance, which is not an error.
func (d *Directory) Discover(ctx context.Context, start, end int, perPortTimeout time.Duration) []InstanceRecord {
	if end < start {
		return nil
	}

	var (
		mu    sync.Mutex
		found []InstanceRecord
		wg    sync.WaitGroup
	)

	for port := start; port <= end; port++ {
		wg.Add(1)
		go func(port int) {
			defer wg.Done()
			rec, ok := d.probe(ctx, port, perPortTimeout)
			if !ok {
				return
			}
			mu.Lock()
			found = append(found, rec)
			mu.Unlock()
		}(port)
	}
	wg.Wait()

	sort.Slice(found, func(i, j int) bool { return found[i].Port < found[j].Port })

	d.logger.Debug("discovery sweep complete",
		"start", start, "end", end, "found", len(found))
	return found
}

// probe opens a short-lived connection to one port, sends a PING, and
// waits for a PONG carrying the instance's identity.
func (d *Directory) probe(ctx context.Context, port int, timeout time.Duration) (InstanceRecord, bool) {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	addr := fmt.Sprintf("ws://127.0.0.1:%d", port)
	ws, _, err := d.dialer.DialContext(probeCtx, addr, nil)
	if err != nil {
		return InstanceRecord{}, false
	}
	defer ws.Close()

	ping, err := protocol.Encode(&protocol.Message{Type: protocol.TypePing})
	if err != nil {
		return InstanceRecord{}, false
	}
	if err := ws.WriteMessage(websocket.TextMessage, ping); err != nil {
		return InstanceRecord{}, false
	}

	deadline := time.Now().Add(timeout)
	_ = ws.SetReadDeadline(deadline)
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return InstanceRecord{}, false
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			d.logger.Debug("probe got malformed message", "port", port, "error", err)
			continue
		}
		if msg.Type != protocol.TypePong {
			continue
		}
		return InstanceRecord{
			Port:          msg.Port,
			WorkspaceName: msg.WorkspaceName,
			WorkspacePath: msg.WorkspacePath,
		}, true
	}
}

// Select picks the instance to connect to: the remembered port when it is
// still among the discovered instances, otherwise the first one.
func Select(instances []InstanceRecord, rememberedPort int) (InstanceRecord, bool) {
	if len(instances) == 0 {
		return InstanceRecord{}, false
	}
	if rememberedPort > 0 {
		for _, inst := range instances {
			if inst.Port == rememberedPort {
				return inst, true
			}
		}
	}
	return instances[0], true
}
