package relay

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/streamspace-dev/relay/internal/logger"
	"github.com/streamspace-dev/relay/internal/registry"
)

// Wire and timing constants (spec.md §5, §6).
const (
	maxMessageSize   = 10 * 1024 * 1024
	pingInterval     = 25 * time.Second
	pongWait         = 60 * time.Second
	writeWait        = 10 * time.Second
	reliableQueueLen = 256
	volatileQueueLen = 4
)

// Conn wraps a gorilla/websocket connection as a registry.Sender: a
// reliable buffered channel for ordered events, and a small separately
// buffered channel for volatile frames that is allowed to drop
// (spec.md §5's "volatile" semantics). Grounded on the teacher's
// internal/websocket/hub.go Client writePump/readPump, split into two
// outbound queues instead of one since frames and reliable events need
// different overrun behavior.
type Conn struct {
	id string
	ws *websocket.Conn

	send   chan OutboundMessage
	frames chan OutboundMessage

	closeOnce sync.Once
	closed    chan struct{}
}

// NewConn wraps an upgraded websocket connection.
func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{
		id:     uuid.NewString(),
		ws:     ws,
		send:   make(chan OutboundMessage, reliableQueueLen),
		frames: make(chan OutboundMessage, volatileQueueLen),
		closed: make(chan struct{}),
	}
}

// ID implements registry.Sender.
func (c *Conn) ID() string { return c.id }

// Send implements registry.Sender: enqueues a reliable event. When the
// queue is full it waits for WritePump to drain it rather than dropping the
// event, and gives up only once the connection is closed (WritePump closes
// it after a write exceeds writeWait). No registry lock is held here.
func (c *Conn) Send(ev registry.Event) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.send <- OutboundMessage{Event: ev.Name, Payload: ev.Payload}:
		return true
	case <-c.closed:
		return false
	}
}

// SendVolatile implements registry.Sender: enqueues a frame, dropping it
// silently if the volatile queue is already full.
func (c *Conn) SendVolatile(ev registry.Event) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.frames <- OutboundMessage{Event: ev.Name, Payload: ev.Payload}:
		return true
	default:
		return false
	}
}

// Close shuts the connection down, safe to call more than once.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.ws.Close()
	})
}

// ReadPump reads inbound messages until the connection closes, invoking
// handle for each one. It installs the ping/pong keepalive and the
// maximum-message-size cap before looping. Returns when the connection is
// no longer readable; callers should treat that as a disconnect.
func (c *Conn) ReadPump(handle func(InboundMessage)) {
	defer c.Close()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Dispatcher().Debug().Str("conn", c.id).Err(err).Msg("socket read error")
			}
			return
		}

		var msg InboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			// Malformed payloads are silently dropped (spec.md §7).
			continue
		}
		handle(msg)
	}
}

// WritePump drains both outbound queues to the wire and emits periodic
// pings, until Close is called. Run it in its own goroutine per
// connection.
func (c *Conn) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.closed:
			return

		case msg := <-c.send:
			if err := c.writeJSON(msg); err != nil {
				return
			}

		case msg := <-c.frames:
			if err := c.writeJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Conn) writeJSON(msg OutboundMessage) error {
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(msg)
}
