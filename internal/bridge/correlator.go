package bridge

import (
	"crypto/rand"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/techidiots/webaibridge/internal/errors"
	"github.com/techidiots/webaibridge/internal/protocol"
)

// sendFunc transmits one message over the active connection. It must fail
// immediately with TRANSPORT_UNAVAILABLE when no connection is open;
// requests are never queued.
type sendFunc func(*protocol.Message) error

// pending is one in-flight request. It is removed from the map exactly
// once, by whichever of response delivery or timeout expiry happens
// first; the loser finds the entry gone and does nothing.
type pending struct {
	createdAt time.Time
	timer     *time.Timer
	result    chan result

	// Stream reassembly state: sub-chunks are concatenated in arrival
	// order until totalSize bytes have accumulated.
	stream      strings.Builder
	streamTotal int
}

type result struct {
	msg *protocol.Message
	err error
}

// Correlator matches requests sent over the bridge to their eventual
// responses by requestId, with timeout-based cleanup.
type Correlator struct {
	mu      sync.Mutex
	pending map[string]*pending
	send    sendFunc
	logger  *slog.Logger
}

// NewCorrelator creates a Correlator transmitting through send.
func NewCorrelator(send sendFunc, logger *slog.Logger) *Correlator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Correlator{
		pending: make(map[string]*pending),
		send:    send,
		logger:  logger,
	}
}

// Send stamps msg with a fresh requestId, transmits it, and blocks until
// the matching response arrives or the timeout fires. A send attempted
// with no open connection fails immediately.
func (c *Correlator) Send(msg *protocol.Message, timeout time.Duration) (*protocol.Message, error) {
	id := newRequestID()
	msg.RequestID = id

	p := &pending{
		createdAt: time.Now(),
		result:    make(chan result, 1),
	}
	c.mu.Lock()
	c.pending[id] = p
	p.timer = time.AfterFunc(timeout, func() {
		if c.take(id) == nil {
			return
		}
		p.result <- result{err: errors.NewRequestTimeout(id, timeout.Milliseconds())}
	})
	c.mu.Unlock()

	if err := c.send(msg); err != nil {
		if c.take(id) == nil {
			// Raced with the timeout; the send error still wins for the
			// caller, the queued timeout result is discarded.
			<-p.result
		}
		return nil, err
	}

	r := <-p.result
	return r.msg, r.err
}

// Dispatch routes an inbound response to its pending request. Responses
// with no matching pending entry (late arrivals after timeout, duplicate
// deliveries) are dropped. Returns whether the message was consumed.
func (c *Correlator) Dispatch(msg *protocol.Message) bool {
	if msg.RequestID == "" {
		return false
	}

	if msg.Type == protocol.TypeContextStream {
		return c.dispatchStream(msg)
	}

	p := c.take(msg.RequestID)
	if p == nil {
		c.logger.Debug("dropping uncorrelated response",
			"type", msg.Type, "requestId", msg.RequestID)
		return false
	}
	p.result <- result{msg: msg}
	return true
}

// dispatchStream accumulates sub-chunks for a streamed context response
// and completes the request once totalSize characters have arrived,
// synthesizing a plain CONTEXT_RESPONSE with the reassembled text.
func (c *Correlator) dispatchStream(msg *protocol.Message) bool {
	c.mu.Lock()
	p, ok := c.pending[msg.RequestID]
	if !ok {
		c.mu.Unlock()
		c.logger.Debug("dropping uncorrelated stream chunk", "requestId", msg.RequestID)
		return false
	}
	if msg.TotalSize > 0 {
		p.streamTotal = msg.TotalSize
	}
	for _, chunk := range msg.Chunks {
		p.stream.WriteString(chunk.Text)
	}
	complete := p.streamTotal > 0 && p.stream.Len() >= p.streamTotal
	c.mu.Unlock()

	if !complete {
		return true
	}
	if c.take(msg.RequestID) == nil {
		return true
	}
	p.result <- result{msg: &protocol.Message{
		Type:      protocol.TypeContextResponse,
		RequestID: msg.RequestID,
		Text:      p.stream.String(),
	}}
	return true
}

// Pending reports the number of in-flight requests.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// take removes and returns the pending entry for id, stopping its timer.
// Returns nil when the entry was already taken by the other branch.
func (c *Correlator) take(id string) *pending {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[id]
	if !ok {
		return nil
	}
	delete(c.pending, id)
	if p.timer != nil {
		p.timer.Stop()
	}
	return p
}

// newRequestID builds a session-unique id: base36 millisecond timestamp
// prefix plus a random suffix.
func newRequestID() string {
	var buf [6]byte
	_, _ = rand.Read(buf[:])
	suffix := make([]byte, len(buf))
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	for i, b := range buf {
		suffix[i] = alphabet[int(b)%len(alphabet)]
	}
	return strconv.FormatInt(time.Now().UnixMilli(), 36) + "-" + string(suffix)
}
