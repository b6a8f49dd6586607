package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/angelmondragon/tillq/internal/worker"
	"github.com/angelmondragon/tillq/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 64
)

// ErrNoForeground is returned by Deliver when no socket is connected.
var ErrNoForeground = errors.New("no foreground attached")

type attacher interface {
	Attach(ctx context.Context, sink worker.Sink) error
	Detach(sink worker.Sink)
}

// MessageHandler consumes messages read from a foreground socket.
type MessageHandler func(ctx context.Context, msg worker.Message) error

type HubParams struct {
	Runtime attacher
	Handler MessageHandler
	Logger  *logger.Logger
}

// Hub is the websocket side of the foreground channel. While at least one
// socket is connected the hub is attached to the runtime as its sink.
type Hub struct {
	runtime  attacher
	handler  MessageHandler
	logg     *logger.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client

	// attachMu orders Attach and Detach calls; attached mirrors the runtime.
	attachMu sync.Mutex
	attached bool
}

var _ worker.Sink = (*Hub)(nil)

type client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func NewHub(params HubParams) (*Hub, error) {
	if params.Runtime == nil {
		return nil, errors.New("runtime is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Hub{
		runtime: params.Runtime,
		handler: params.Handler,
		logg:    params.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The local API only listens on the device itself.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[string]*client),
	}, nil
}

// ServeHTTP upgrades the request and attaches the socket as a foreground.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logg.Warn(h.logg.WithField(r.Context(), "error", err.Error()), "websocket upgrade failed")
		return
	}
	c := &client{
		id:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	ctx := h.logg.WithField(context.WithoutCancel(r.Context()), "client_id", c.id)

	go c.writePump()
	h.add(ctx, c)
	go c.readPump(ctx)
}

func (h *Hub) add(ctx context.Context, c *client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	h.logg.Info(ctx, "foreground connected")
	h.syncAttachment(ctx)
}

// syncAttachment attaches or detaches the hub so the runtime matches the
// current client count. Calls are serialized, so a disconnect racing a
// connect cannot leave the runtime detached while a socket is open.
func (h *Hub) syncAttachment(ctx context.Context) {
	h.attachMu.Lock()
	defer h.attachMu.Unlock()

	want := h.Connected() > 0
	switch {
	case want && !h.attached:
		h.attached = true
		if err := h.runtime.Attach(ctx, h); err != nil {
			h.logg.Warn(h.logg.WithField(ctx, "error", err.Error()), "flushing queued messages failed")
		}
	case !want && h.attached:
		h.attached = false
		h.runtime.Detach(h)
	}
}

// Deliver broadcasts msg to every connected socket.
func (h *Hub) Deliver(_ context.Context, msg worker.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.clients) == 0 {
		return ErrNoForeground
	}
	delivered := 0
	for _, c := range h.clients {
		select {
		case c.send <- payload:
			delivered++
		default:
		}
	}
	if delivered == 0 {
		return errors.New("every foreground send buffer is full")
	}
	return nil
}

// Connected returns the number of attached sockets.
func (h *Hub) Connected() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every socket.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		h.remove(context.Background(), c)
	}
}

func (h *Hub) remove(ctx context.Context, c *client) {
	c.once.Do(func() {
		h.mu.Lock()
		delete(h.clients, c.id)
		close(c.send)
		h.mu.Unlock()

		h.syncAttachment(ctx)
		h.logg.Info(ctx, "foreground disconnected")
	})
}

func (c *client) readPump(ctx context.Context) {
	defer func() {
		c.hub.remove(ctx, c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logg.Warn(c.hub.logg.WithField(ctx, "error", err.Error()), "websocket read failed")
			}
			return
		}
		var msg worker.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.hub.logg.Warn(ctx, "ignoring malformed foreground message")
			continue
		}
		if c.hub.handler == nil {
			continue
		}
		if err := c.hub.handler(ctx, msg); err != nil {
			c.hub.logg.Warn(c.hub.logg.WithField(ctx, "error", err.Error()), "foreground message rejected")
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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
