package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"storyreel/internal/story/session"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 512
	sendBuffer     = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The server binds to loopback by default.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans session events out to every connected WebSocket client. A client
// that cannot keep up is dropped rather than blocking the session.
type Hub struct {
	mu          sync.Mutex
	clients     map[*wsClient]struct{}
	closed      bool
	status      func() session.Status
	unsubscribe func()
}

func NewHub(sess *session.Session) *Hub {
	h := &Hub{
		clients: make(map[*wsClient]struct{}),
		status:  sess.Status,
	}
	h.unsubscribe = sess.Subscribe(h.broadcast)
	return h
}

func (h *Hub) broadcast(ev session.Event) {
	msg, err := json.Marshal(ev)
	if err != nil {
		logrus.WithError(err).Warn("Failed to encode session event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			logrus.WithField("remote", c.conn.RemoteAddr().String()).Warn("WebSocket client queue full, dropping client")
			h.removeLocked(c)
		}
	}
}

// ServeWS upgrades the request and streams events until the peer goes away.
// The first message is always a state snapshot.
func (h *Hub) ServeWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	client := &wsClient{conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	st := h.status()
	snapshot, err := json.Marshal(session.Event{Kind: session.EventState, State: &st})
	if err == nil {
		client.send <- snapshot
	}
	h.clients[client] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"remote":  conn.RemoteAddr().String(),
		"clients": count,
	}).Info("WebSocket client connected")

	go h.writeLoop(client)
	h.readLoop(client)
}

// readLoop only services control frames; clients drive the session over
// the REST routes.
func (h *Hub) readLoop(c *wsClient) {
	defer h.remove(c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logrus.WithError(err).Debug("WebSocket read failed")
			}
			return
		}
	}
}

func (h *Hub) writeLoop(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *wsClient) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// Clients reports the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close detaches from the session and disconnects every client.
func (h *Hub) Close() {
	h.unsubscribe()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
}
