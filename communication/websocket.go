package communication

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/NethermindEth/chaosfeed/core"
)

type WSEvent struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// EventSnapshot is sent once to every new connection with the full state.
const EventSnapshot = "SNAPSHOT"

const (
	writeWait  = 10 * time.Second
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

type wsClient struct {
	conn *websocket.Conn
	send chan WSEvent
}

// Hub fans events out to connected browsers. A client that cannot keep up is
// disconnected; it reconnects and gets a fresh snapshot.
type Hub struct {
	clients    map[*wsClient]bool
	broadcast  chan WSEvent
	register   chan *wsClient
	unregister chan *wsClient
	done       chan struct{}
	mu         sync.RWMutex

	snapshot func() interface{}
	logger   *zap.Logger
}

// NewHub creates a hub. snapshot provides the payload of the first message
// each client receives.
func NewHub(snapshot func() interface{}, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[*wsClient]bool),
		broadcast:  make(chan WSEvent),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		done:       make(chan struct{}),
		snapshot:   snapshot,
		logger:     logger.Named("ws"),
	}
}

// Run serves the hub until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case event := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- event:
				default:
					h.logger.Warn("dropping slow websocket client")
					delete(h.clients, client)
					close(client.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues an event for every client. It returns false once the hub
// has stopped.
func (h *Hub) Broadcast(eventType string, payload interface{}) bool {
	select {
	case h.broadcast <- WSEvent{Type: eventType, Payload: payload}:
		return true
	case <-h.done:
		return false
	}
}

// Forward broadcasts store events until the channel closes or the hub stops.
func (h *Hub) Forward(events <-chan core.Event) {
	for ev := range events {
		if !h.Broadcast(string(ev.Type), ev.Payload) {
			return
		}
	}
}

// ServeWS upgrades the request and attaches the connection to the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &wsClient{conn: conn, send: make(chan WSEvent, sendBuffer)}
	if h.snapshot != nil {
		client.send <- WSEvent{Type: EventSnapshot, Payload: h.snapshot()}
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go h.writePump(client)
	go h.readPump(client)
}

func (h *Hub) writePump(c *wsClient) {
	defer c.conn.Close()
	for event := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(event); err != nil {
			h.logger.Debug("websocket write failed", zap.Error(err))
			h.drop(c)
			// drain until the hub closes send
			for range c.send {
			}
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}

// readPump only exists to notice the peer going away; clients send nothing.
func (h *Hub) readPump(c *wsClient) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.drop(c)
			return
		}
	}
}

func (h *Hub) drop(c *wsClient) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
