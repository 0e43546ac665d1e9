package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/techidiots/webaibridge/internal/errors"
	"github.com/techidiots/webaibridge/internal/protocol"
)

// State is the connection lifecycle state, owned exclusively by Conn.
type State int

const (
	Disconnected State = iota
	Connecting
	Open
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	default:
		return "disconnected"
	}
}

// PortStore persists the selected port across sessions. Implemented by
// the store package; nil disables persistence.
type PortStore interface {
	SelectedPort() (int, error)
	SetSelectedPort(port int) error
}

// Default reconnect and keep-alive tuning.
const (
	DefaultKeepAliveInterval    = 20 * time.Second
	DefaultReconnectBaseDelay   = time.Second
	DefaultReconnectMaxDelay    = 30 * time.Second
	DefaultReconnectMaxAttempts = 10
)

// Options configures a Conn. Zero values take the defaults above.
type Options struct {
	KeepAliveInterval    time.Duration
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	ReconnectMaxAttempts int

	// Store persists the selected port on every successful connect.
	Store PortStore

	// OnChips receives every CHIPS_LIST and CHIPS_INSERT payload.
	OnChips func(pushed bool, chips []protocol.Chip)

	// OnInstanceInfo receives the host's post-connect identity announce.
	OnInstanceInfo func(InstanceRecord)

	Logger *slog.Logger
}

// Conn owns the single live connection to an editor host. Switching
// instances always closes the old connection first; at most one
// connection routes requests at any time.
type Conn struct {
	opts   Options
	logger *slog.Logger
	dialer *websocket.Dialer

	correlator *Correlator

	mu             sync.Mutex
	state          State
	port           int
	ws             *websocket.Conn
	gen            int // bumped by every Connect; only the latest generation may install
	attempts       int
	reconnectTimer *time.Timer
	closed         bool
}

// NewConn creates a connection manager in the Disconnected state.
func NewConn(opts Options) *Conn {
	if opts.KeepAliveInterval <= 0 {
		opts.KeepAliveInterval = DefaultKeepAliveInterval
	}
	if opts.ReconnectBaseDelay <= 0 {
		opts.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if opts.ReconnectMaxDelay <= 0 {
		opts.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if opts.ReconnectMaxAttempts <= 0 {
		opts.ReconnectMaxAttempts = DefaultReconnectMaxAttempts
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	c := &Conn{
		opts:   opts,
		logger: opts.Logger,
		dialer: &websocket.Dialer{},
	}
	c.correlator = NewCorrelator(c.writeMessage, opts.Logger)
	return c
}

// State returns the current lifecycle state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Port returns the port of the current or most recent connection.
func (c *Conn) Port() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.port
}

// Connect opens a connection to the host on port. A no-op when already
// Open on the same port; otherwise any existing connection is torn down
// first. On success the reconnect counter resets, the port is persisted,
// and a chip-list refresh is requested.
func (c *Conn) Connect(port int) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.NewTransportUnavailable()
	}
	if c.state == Open && c.port == port {
		c.mu.Unlock()
		return nil
	}
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	if c.ws != nil {
		c.ws.Close()
		c.ws = nil
	}
	c.state = Connecting
	c.port = port
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	addr := fmt.Sprintf("ws://127.0.0.1:%d", port)
	ws, _, err := c.dialer.Dial(addr, nil)
	if err != nil {
		c.logger.Debug("connect failed", "port", port, "error", err)
		c.onDisconnected(gen)
		return errors.NewTransportUnavailable()
	}

	c.mu.Lock()
	if c.closed || c.gen != gen {
		// Closed, or a newer Connect superseded this dial; its socket
		// must not install.
		c.mu.Unlock()
		ws.Close()
		return errors.NewTransportUnavailable()
	}
	if c.ws != nil {
		c.ws.Close()
	}
	c.ws = ws
	c.state = Open
	c.attempts = 0
	c.mu.Unlock()

	c.logger.Info("bridge connected", "port", port)

	if c.opts.Store != nil {
		if err := c.opts.Store.SetSelectedPort(port); err != nil {
			c.logger.Warn("failed to persist selected port", "port", port, "error", err)
		}
	}

	go c.readLoop(ws, gen)

	// Refresh the chip set as soon as the link is up.
	if err := c.writeMessage(&protocol.Message{Type: protocol.TypeGetChips}); err != nil {
		c.logger.Warn("chip refresh request failed", "error", err)
	}
	return nil
}

// Close shuts the connection down permanently; no reconnects follow.
func (c *Conn) Close() {
	c.mu.Lock()
	c.closed = true
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	ws := c.ws
	c.ws = nil
	c.state = Disconnected
	c.mu.Unlock()

	if ws != nil {
		ws.Close()
	}
}

// Send transmits a request and waits for its correlated response.
func (c *Conn) Send(msg *protocol.Message, timeout time.Duration) (*protocol.Message, error) {
	return c.correlator.Send(msg, timeout)
}

// Push transmits a one-way message with no expected response.
func (c *Conn) Push(msg *protocol.Message) error {
	return c.writeMessage(msg)
}

// KeepAlive ticks at the configured interval and re-establishes the
// connection whenever it is down and attempts remain, until ctx is
// cancelled. Runs the liveness obligation of the bridge; call in its own
// goroutine.
func (c *Conn) KeepAlive(ctx context.Context) {
	ticker := time.NewTicker(c.opts.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		c.mu.Lock()
		state, port, closed := c.state, c.port, c.closed
		exhausted := c.attempts >= c.opts.ReconnectMaxAttempts
		c.mu.Unlock()

		if closed {
			return
		}
		// After the attempt cap only a manual Connect or ResetAttempts
		// re-arms reconnection.
		if state != Open && port > 0 && !exhausted {
			c.logger.Debug("keep-alive reconnect", "port", port)
			_ = c.Connect(port)
		}
	}
}

// ResetAttempts re-arms automatic reconnection after the attempt cap was
// reached, typically from a user-initiated re-discovery.
func (c *Conn) ResetAttempts() {
	c.mu.Lock()
	c.attempts = 0
	c.mu.Unlock()
}

// writeMessage serializes and transmits one message. Fails immediately
// when the connection is not Open; messages are never queued.
func (c *Conn) writeMessage(msg *protocol.Message) error {
	c.mu.Lock()
	if c.state != Open || c.ws == nil {
		c.mu.Unlock()
		return errors.NewTransportUnavailable()
	}
	ws := c.ws
	c.mu.Unlock()

	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	// gorilla/websocket allows one concurrent writer; the coarse mutex
	// around the whole write keeps that contract.
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws != ws {
		return errors.NewTransportUnavailable()
	}
	return ws.WriteMessage(websocket.TextMessage, data)
}

// readLoop drains inbound messages until the connection drops, then
// triggers the disconnect path. Malformed messages are logged and
// dropped; they never kill the loop.
func (c *Conn) readLoop(ws *websocket.Conn, gen int) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			c.mu.Lock()
			stale := c.gen != gen || c.ws != ws
			c.mu.Unlock()
			if !stale {
				c.logger.Info("bridge connection lost", "error", err)
				c.onDisconnected(gen)
			}
			return
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			c.logger.Warn("dropping malformed message", "error", err)
			continue
		}
		c.dispatch(msg)
	}
}

// dispatch routes one inbound message by type.
func (c *Conn) dispatch(msg *protocol.Message) {
	switch msg.Type {
	case protocol.TypeChipsList:
		if c.opts.OnChips != nil {
			c.opts.OnChips(false, msg.Chips)
		}
	case protocol.TypeChipsInsert:
		if c.opts.OnChips != nil {
			c.opts.OnChips(true, msg.Chips)
		}
	case protocol.TypeInstanceInfo:
		if c.opts.OnInstanceInfo != nil {
			c.opts.OnInstanceInfo(InstanceRecord{
				Port:          msg.Port,
				WorkspaceName: msg.WorkspaceName,
				WorkspacePath: msg.WorkspacePath,
			})
		}
	case protocol.TypeContextResponse, protocol.TypeContextStream,
		protocol.TypeContextInfoResponse, protocol.TypeFileListResponse:
		c.correlator.Dispatch(msg)
	default:
		c.logger.Debug("dropping unhandled message", "type", msg.Type)
	}
}

// onDisconnected transitions to Disconnected and schedules a backoff
// reconnect, up to the attempt cap. After the cap the state stays
// Disconnected until a manual Connect or ResetAttempts. Calls carrying a
// superseded generation are no-ops: the newer Connect owns the state.
func (c *Conn) onDisconnected(gen int) {
	c.mu.Lock()
	if c.closed || c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.state = Disconnected
	c.ws = nil
	if c.attempts >= c.opts.ReconnectMaxAttempts {
		port := c.port
		c.mu.Unlock()
		c.logger.Warn("reconnect attempts exhausted", "port", port,
			"attempts", c.opts.ReconnectMaxAttempts)
		return
	}

	c.attempts++
	attempt := c.attempts
	port := c.port
	delay := backoffDelay(c.opts.ReconnectBaseDelay, c.opts.ReconnectMaxDelay, attempt)
	c.reconnectTimer = time.AfterFunc(delay, func() {
		_ = c.Connect(port)
	})
	c.mu.Unlock()

	c.logger.Info("reconnect scheduled", "port", port, "attempt", attempt, "delay", delay)
}

// backoffDelay computes min(maxDelay, base * 2^(attempt-1)).
func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
