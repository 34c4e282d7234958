// Package ipc exposes the daemon over HTTP and WebSocket: a REST surface
// frontends poll or call (current insight, registration, force refresh) and
// a WebSocket fan-out for push notifications (insight updated, daemon
// stopping). The hub runs a read pump and a write pump per connection,
// serializes each connection's writes through its send channel to the
// write pump, and pings on a heartbeat ticker.
package ipc

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/heytcass/jasper/internal/model"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
)

// SignalKind identifies a push notification pushed to every attached
// frontend over the WebSocket channel.
type SignalKind string

const (
	SignalInsightUpdated SignalKind = "insight_updated"
	SignalDaemonStopping SignalKind = "daemon_stopping"
)

// Signal is one push message broadcast to every connected frontend.
type Signal struct {
	Kind      SignalKind  `json:"kind"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// preferenceLookup resolves a registered frontend's current notification
// preference; the hub uses it to decide whether a connection should
// receive a given broadcast. Missing/unknown ids are treated as
// NotifySignificant so an unregistered or not-yet-registered socket still
// gets pushed updates.
type preferenceLookup func(frontendID string) (model.NotifyPreference, bool)

type hub struct {
	mu        sync.Mutex
	conns     map[*wsConn]struct{}
	upgrader  websocket.Upgrader
	log       *zap.Logger
	lookupPref preferenceLookup
}

func newHub(log *zap.Logger, lookupPref preferenceLookup) *hub {
	return &hub{
		conns: make(map[*wsConn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Frontends are local processes, not browsers; same-origin
			// checks don't apply here.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log:        log,
		lookupPref: lookupPref,
	}
}

// wsConn wraps one attached frontend's WebSocket connection. Each
// connection owns a single writer goroutine; every other goroutine that
// wants to send writes through the send channel instead of touching the
// socket directly. frontendID is optional: a socket opened before
// RegisterFrontend, or by a frontend that never registers, still receives
// every broadcast (see preferenceLookup).
type wsConn struct {
	ws         *websocket.Conn
	send       chan []byte
	done       chan struct{}
	frontendID string
}

func (h *hub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &wsConn{
		ws:         conn,
		send:       make(chan []byte, 16),
		done:       make(chan struct{}),
		frontendID: r.URL.Query().Get("frontend_id"),
	}
	h.add(c)

	go c.writePump()
	go h.readPump(c)
}

func (h *hub) add(c *wsConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c] = struct{}{}
}

func (h *hub) remove(c *wsConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[c]; ok {
		delete(h.conns, c)
		close(c.send)
	}
}

// readPump drains and discards frontend-initiated frames; frontends never
// send application data over this socket, only pong control frames, but it
// must still run to service those and detect disconnects.
func (h *hub) readPump(c *wsConn) {
	defer func() {
		h.remove(c)
		_ = c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// broadcast fans a signal out to every attached connection that wants it,
// without blocking on any single slow reader; a connection whose send
// buffer is full is dropped rather than stalling the others.
// DaemonStopping always reaches every connection regardless of
// NotifyPreference: it is an administrative signal, not a content
// notification. InsightUpdated is suppressed for connections tied to a
// frontend registered with NotifyNone.
func (h *hub) broadcast(sig Signal) {
	body, err := json.Marshal(sig)
	if err != nil {
		h.log.Error("failed to marshal signal", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns {
		if sig.Kind == SignalInsightUpdated && h.suppressed(c) {
			continue
		}
		select {
		case c.send <- body:
		default:
			h.log.Warn("dropping signal for slow frontend connection")
			delete(h.conns, c)
			close(c.send)
		}
	}
}

func (h *hub) suppressed(c *wsConn) bool {
	if c.frontendID == "" || h.lookupPref == nil {
		return false
	}
	pref, ok := h.lookupPref(c.frontendID)
	return ok && pref == model.NotifyNone
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns {
		close(c.done)
		delete(h.conns, c)
	}
}
