// Package ws streams journal events to WebSocket clients. The hub receives
// events either directly from the engine's sink fan-out or, in multi-replica
// deployments, from the Redis signal bus, and routes them to clients by
// event kind and market subscription.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/veilmarket/veilmarket/internal/domain"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 4096

	// sendBufferSize is the channel buffer for outgoing messages per client.
	sendBufferSize = 256
)

// subscribeAll is the channel name matching every event.
const subscribeAll = "*"

// upgrader configures the WebSocket upgrade parameters. Origin enforcement
// happens in the CORS middleware; the upgrade accepts any origin that made
// it through.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// client represents a single WebSocket connection.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	subs map[string]bool
	mu   sync.RWMutex
}

// subscribeMsg is the JSON message a client sends to manage subscriptions.
// Channels are event kinds ("bet_placed"), per-market streams ("market:3"),
// or "*" for everything.
type subscribeMsg struct {
	Action   string   `json:"action"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

// envelope frames every message the hub sends.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// broadcastMsg carries a serialized event with its routing keys.
type broadcastMsg struct {
	kind     string
	marketID uint64
	data     []byte
}

// Config captures runtime metadata included in the status frame sent to
// clients on connect.
type Config struct {
	Backend   string
	Store     string
	StartedAt time.Time
}

// Hub manages connected WebSocket clients and fans journal events out to
// them. With a SignalBus it consumes the shared event channel so clients on
// any replica see every event; without one it is registered directly as an
// engine event sink.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan broadcastMsg
	register   chan *client
	unregister chan *client
	bus        domain.SignalBus
	channel    string
	mu         sync.RWMutex
	logger     *slog.Logger
	backend    string
	store      string
	startedAt  time.Time
}

// NewHub creates a Hub. bus may be nil; channel names the bus channel to
// consume when it is not.
func NewHub(bus domain.SignalBus, channel string, logger *slog.Logger, cfg Config) *Hub {
	startedAt := cfg.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}

	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan broadcastMsg, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		bus:        bus,
		channel:    channel,
		logger:     logger,
		backend:    cfg.Backend,
		store:      cfg.Store,
		startedAt:  startedAt,
	}
}

var _ domain.EventSink = (*Hub)(nil)

// Deliver implements domain.EventSink for single-replica wiring. Events are
// queued for broadcast; a full queue drops the event rather than stalling
// the caller, the journal remains the source of truth.
func (h *Hub) Deliver(_ context.Context, ev domain.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	h.enqueue(broadcastMsg{kind: string(ev.Kind), marketID: ev.MarketID, data: data})
	return nil
}

// Name identifies the hub in sink logs.
func (h *Hub) Name() string { return "websocket" }

func (h *Hub) enqueue(msg broadcastMsg) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("ws: dropping event, broadcast queue full",
			slog.String("kind", msg.kind),
		)
	}
}

// Run starts the hub's main loop: client registration, unregistration, and
// event broadcast. It exits when the context is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	if h.bus != nil {
		go h.consumeBus(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.logger.Info("ws: client connected",
				slog.Int("total_clients", h.clientCount()),
			)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Info("ws: client disconnected",
				slog.Int("total_clients", h.clientCount()),
			)

		case msg := <-h.broadcast:
			frame, err := json.Marshal(envelope{Type: "event", Payload: msg.data})
			if err != nil {
				continue
			}
			h.mu.RLock()
			for c := range h.clients {
				if c.wants(msg) {
					select {
					case c.send <- frame:
					default:
						// Client's send buffer is full; drop the message.
						h.logger.Warn("ws: dropping message for slow client")
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// consumeBus subscribes to the shared event channel and forwards everything
// it carries into the broadcast loop.
func (h *Hub) consumeBus(ctx context.Context) {
	msgCh, err := h.bus.Subscribe(ctx, h.channel)
	if err != nil {
		h.logger.Error("ws: failed to subscribe to event channel",
			slog.String("channel", h.channel),
			slog.String("error", err.Error()),
		)
		return
	}

	h.logger.Info("ws: subscribed to event channel", slog.String("channel", h.channel))

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgCh:
			if !ok {
				h.logger.Warn("ws: event channel subscription closed")
				return
			}
			var ev domain.Event
			if err := json.Unmarshal(data, &ev); err != nil {
				h.logger.Warn("ws: discarding undecodable bus message",
					slog.String("error", err.Error()),
				)
				continue
			}
			h.enqueue(broadcastMsg{kind: string(ev.Kind), marketID: ev.MarketID, data: data})
		}
	}
}

// HandleWS upgrades an HTTP request to a WebSocket connection and registers
// the client with the hub. Clients start subscribed to everything.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		subs: map[string]bool{subscribeAll: true},
	}

	h.register <- c
	c.sendStatus()

	go c.writePump()
	go c.readPump()
}

// clientCount returns the number of currently connected clients.
func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// readPump reads messages from the WebSocket connection. The only messages
// clients send are subscription changes.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close error",
					slog.String("error", err.Error()),
				)
			}
			return
		}

		var sub subscribeMsg
		if err := json.Unmarshal(message, &sub); err == nil && sub.Action != "" {
			c.handleSubscription(sub)
		}
	}
}

// handleSubscription processes subscribe/unsubscribe requests. A client
// that subscribes to specific channels implicitly leaves the catch-all.
func (c *client) handleSubscription(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch msg.Action {
	case "subscribe":
		if len(msg.Channels) > 0 {
			delete(c.subs, subscribeAll)
		}
		for _, ch := range msg.Channels {
			c.subs[ch] = true
		}
	case "unsubscribe":
		for _, ch := range msg.Channels {
			delete(c.subs, ch)
		}
	}
}

// wants reports whether the client subscribed to the event's kind, its
// market stream, or everything.
func (c *client) wants(msg broadcastMsg) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.subs[subscribeAll] ||
		c.subs[msg.kind] ||
		c.subs["market:"+strconv.FormatUint(msg.marketID, 10)]
}

// sendStatus pushes a status frame so clients can mark the connection
// healthy before any event flows.
func (c *client) sendStatus() {
	uptime := int64(time.Since(c.hub.startedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}

	payload, err := json.Marshal(map[string]any{
		"backend":        c.hub.backend,
		"store":          c.hub.store,
		"uptime_seconds": uptime,
	})
	if err != nil {
		return
	}
	frame, err := json.Marshal(envelope{Type: "status", Payload: payload})
	if err != nil {
		return
	}

	select {
	case c.send <- frame:
	default:
	}
}

// writePump pumps messages from the hub to the WebSocket connection as JSON
// text frames, with periodic pings for keepalive.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
