package events

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	defaultPingInterval = 30 * time.Second
	writeWait           = 10 * time.Second
	clientBuffer        = 16
)

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *wsClient) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// Hub broadcasts bus events to websocket clients connected on /ws/events.
type Hub struct {
	mu           sync.RWMutex
	clients      map[*wsClient]struct{}
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	logger       zerolog.Logger
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithPingInterval overrides how often idle clients receive a ping.
func WithPingInterval(interval time.Duration) HubOption {
	return func(h *Hub) {
		h.pingInterval = interval
	}
}

// NewHub creates an empty websocket hub.
func NewHub(logger zerolog.Logger, opts ...HubOption) *Hub {
	hub := &Hub{
		clients: make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			// Clients authenticate with a token, so origin is not checked.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		pingInterval: defaultPingInterval,
		logger:       logger.With().Str("component", "ws").Logger(),
	}
	for _, opt := range opts {
		opt(hub)
	}
	return hub
}

// ServeHTTP upgrades the request and registers the connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		return
	}

	client := h.register(conn)
	h.logger.Info().Str("remote", r.RemoteAddr).Int("clients", h.ClientCount()).Msg("websocket client connected")

	go h.writeLoop(client)
	go h.readLoop(client)
}

func (h *Hub) register(conn *websocket.Conn) *wsClient {
	client := &wsClient{
		conn: conn,
		send: make(chan []byte, clientBuffer),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	return client
}

// Run broadcasts events from the bus until ctx is done or the bus closes.
func (h *Hub) Run(ctx context.Context, bus *Bus) {
	ch, cancel := bus.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			h.Broadcast(event)
		}
	}
}

// Broadcast queues the event for every client. A client whose queue is
// full is disconnected.
func (h *Hub) Broadcast(event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("type", string(event.Type)).Msg("failed to encode event")
		return
	}

	var slow []*wsClient
	h.mu.RLock()
	for client := range h.clients {
		select {
		case client.send <- payload:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.logger.Warn().Str("remote", client.conn.RemoteAddr().String()).Msg("dropping slow websocket client")
		h.remove(client)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*wsClient]struct{})
	h.mu.Unlock()

	for client := range clients {
		client.close()
	}
}

func (h *Hub) remove(client *wsClient) {
	h.mu.Lock()
	_, ok := h.clients[client]
	delete(h.clients, client)
	h.mu.Unlock()

	client.close()
	if ok {
		h.logger.Info().Msg("websocket client disconnected")
	}
}

// writeLoop owns all writes on the connection.
func (h *Hub) writeLoop(client *wsClient) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	defer h.remove(client)

	for {
		select {
		case <-client.done:
			return
		case payload := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteJSON(PingMessage{Object: "ping", At: time.Now().UTC()}); err != nil {
				h.logger.Debug().Err(err).Msg("failed to send ping")
				return
			}
		}
	}
}

// readLoop discards client messages and notices disconnects.
func (h *Hub) readLoop(client *wsClient) {
	defer h.remove(client)
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}
