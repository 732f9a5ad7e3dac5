package control

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub fans event broadcasts out to every WebSocket client subscribed to
// a room, adapted from the session-socket hub this module's ancestor
// used for signaling: same register/unregister/broadcast shape, event
// payloads swapped for Event instead of room-chat messages.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*client]bool

	register   chan *client
	unregister chan *client
	broadcast  chan roomEvent

	publish func(room string, payload []byte) // cross-instance fan-out, nil if unused

	logger *zap.Logger
}

type roomEvent struct {
	room    string
	payload []byte
}

// NewHub creates a Hub and starts its run loop. publish, if non-nil, is
// called for every local broadcast so a Bridge can fan it out to other
// instances over Redis.
func NewHub(logger *zap.Logger, publish func(room string, payload []byte)) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		clients:    make(map[string]map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan roomEvent, 256),
		publish:    publish,
		logger:     logger,
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			if h.clients[c.room] == nil {
				h.clients[c.room] = make(map[*client]bool)
			}
			h.clients[c.room][c] = true
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			if set, ok := h.clients[c.room]; ok {
				if _, ok := set[c]; ok {
					delete(set, c)
					close(c.send)
				}
			}
			h.mu.Unlock()

		case ev := <-h.broadcast:
			h.deliverLocal(ev.room, ev.payload)
		}
	}
}

func (h *Hub) deliverLocal(room string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[room] {
		select {
		case c.send <- payload:
		default:
			close(c.send)
			delete(h.clients[room], c)
		}
	}
	// room == "" events (e.g. a stop whose recording carried no room
	// context) go to every connected client.
	if room == "" {
		for _, set := range h.clients {
			for c := range set {
				select {
				case c.send <- payload:
				default:
				}
			}
		}
	}
}

// Broadcast enqueues ev for delivery to every client in room (or every
// client, if room is empty) and, if a cross-instance publisher is
// configured, fans it out to other instances too.
func (h *Hub) Broadcast(room string, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("marshal event", zap.Error(err))
		return
	}
	h.broadcast <- roomEvent{room: room, payload: payload}
	if h.publish != nil {
		h.publish(room, payload)
	}
}

// DeliverRemote injects a payload received from another instance (via a
// Bridge) into this instance's local delivery, without re-publishing it.
func (h *Hub) DeliverRemote(room string, payload []byte) {
	h.broadcast <- roomEvent{room: room, payload: payload}
}

// client is one WebSocket connection subscribed to a room's events.
type client struct {
	id   uuid.UUID
	hub  *Hub
	conn *websocket.Conn
	room string
	send chan []byte
}

// ServeWS upgrades r to a WebSocket connection subscribed to room's
// events and runs its read/write pumps until the connection closes.
// Each connection gets its own uuid so its lifecycle can be traced
// through logs independent of the room it happens to be in.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, room string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &client{id: uuid.New(), hub: h, conn: conn, room: room, send: make(chan []byte, 32)}
	h.register <- c
	h.logger.Debug("websocket client connected", zap.String("client_id", c.id.String()), zap.String("room", room))

	go c.writePump()
	c.readPump()
	return nil
}

// readPump discards inbound client frames (this channel is event-only)
// but must keep reading to process control frames and detect close.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
		c.hub.logger.Debug("websocket client disconnected", zap.String("client_id", c.id.String()))
	}()
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
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
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
