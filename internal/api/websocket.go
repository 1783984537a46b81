// Package api provides the Brain's HTTP ingress/operator surface and the
// WebSocket observability push channel.
package api

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/benedict-anokye-davies/brain/internal/events"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// MessageType categorises a push message sent to an observability client.
type MessageType string

const (
	MsgTypeDecision         MessageType = "decision"
	MsgTypeBreakerState     MessageType = "breaker_state"
	MsgTypeSweep            MessageType = "sweep"
	MsgTypeRiskSnapshot     MessageType = "risk_snapshot"
	MsgTypeFill             MessageType = "fill"
	MsgTypeHeartbeat        MessageType = "heartbeat"
	MsgTypeSubscribeClient  MessageType = "subscribe"
	MsgTypeUnsubscribeClient MessageType = "unsubscribe"
)

// WSMessage is a single push message framed over the observability socket.
type WSMessage struct {
	Type      MessageType     `json:"type"`
	Channel   string          `json:"channel,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// Client is one connected observability/operator-dashboard WebSocket.
type Client struct {
	id            string
	hub           *Hub
	conn          *websocket.Conn
	send          chan []byte
	subscriptions map[string]bool
	mu            sync.RWMutex
}

// Hub fans decision, breaker, sweep, fill, and risk-snapshot events out to
// every connected dashboard, per §6.6's observability push requirement.
// Grounded on internal/api/websocket.go's register/unregister/broadcast
// channel shape, generalised from order/position/trade broadcasts to the
// Brain's own decision and risk events.
type Hub struct {
	logger     *zap.Logger
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	channels   map[string]map[*Client]bool
	mu         sync.RWMutex
}

// NewHub constructs an empty Hub. Run must be called to start its loop.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:     logger.Named("ws-hub"),
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		channels:   make(map[string]map[*Client]bool),
	}
}

// Run drives client registration, broadcast fan-out, and the heartbeat
// ping until stopCh is closed.
func (h *Hub) Run(stopCh <-chan struct{}) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
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
				for channel := range client.subscriptions {
					if clients, ok := h.channels[channel]; ok {
						delete(clients, client)
						if len(clients) == 0 {
							delete(h.channels, channel)
						}
					}
				}
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
				}
			}
			h.mu.RUnlock()
		case <-ticker.C:
			h.sendHeartbeat()
		}
	}
}

func (h *Hub) sendHeartbeat() {
	msg := WSMessage{Type: MsgTypeHeartbeat, Timestamp: time.Now().UnixMilli()}
	data, _ := json.Marshal(msg)
	h.mu.RLock()
	for client := range h.clients {
		select {
		case client.send <- data:
		default:
		}
	}
	h.mu.RUnlock()
}

func (h *Hub) subscribe(client *Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.channels[channel] == nil {
		h.channels[channel] = make(map[*Client]bool)
	}
	h.channels[channel][client] = true
	client.mu.Lock()
	client.subscriptions[channel] = true
	client.mu.Unlock()
}

func (h *Hub) unsubscribe(client *Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.channels[channel]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.channels, channel)
		}
	}
	client.mu.Lock()
	delete(client.subscriptions, channel)
	client.mu.Unlock()
}

// Broadcast pushes data to every connected client, tagged with msgType.
func (h *Hub) Broadcast(msgType MessageType, data interface{}) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("marshal broadcast payload", zap.Error(err))
		return
	}
	msg := WSMessage{Type: msgType, Data: dataBytes, Timestamp: time.Now().UnixMilli()}
	msgBytes, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast envelope", zap.Error(err))
		return
	}
	select {
	case h.broadcast <- msgBytes:
	default:
		h.logger.Warn("broadcast channel full, dropping message")
	}
}

// ClientCount reports the number of currently connected observability clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SubscribeEventBus forwards every event published on bus to connected
// dashboards, translating the Brain's internal event types into the WS
// message types above. Called once at startup; runs until bus itself stops.
func (h *Hub) SubscribeEventBus(bus *events.EventBus) {
	bus.SubscribeAll(func(evt events.Event) error {
		switch e := evt.(type) {
		case *events.DecisionPersistedEvent:
			h.Broadcast(MsgTypeDecision, e)
		case *events.BreakerTransitionEvent:
			h.Broadcast(MsgTypeBreakerState, e)
		case *events.SweepExecutedEvent:
			h.Broadcast(MsgTypeSweep, e)
		case *events.RiskSnapshotEvent:
			h.Broadcast(MsgTypeRiskSnapshot, e)
		case *events.FillRecordedEvent:
			h.Broadcast(MsgTypeFill, e)
		}
		return nil
	})
}

func newClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		id:            conn.RemoteAddr().String(),
		hub:           hub,
		conn:          conn,
		send:          make(chan []byte, 256),
		subscriptions: make(map[string]bool),
	}
}

// readPump drains inbound subscribe/unsubscribe control frames from the
// client until the socket closes.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("observability socket read error", zap.Error(err))
			}
			return
		}
		var msg WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case MsgTypeSubscribeClient:
			c.hub.subscribe(c, msg.Channel)
		case MsgTypeUnsubscribeClient:
			c.hub.unsubscribe(c, msg.Channel)
		}
	}
}

// writePump delivers broadcast messages and periodic pings to the client.
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
