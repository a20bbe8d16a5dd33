// Package websocket pushes seat occupancy changes to everyone watching a schedule.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/cx-tal-miterani/train-booking-system/internal/logger"
	"github.com/cx-tal-miterani/train-booking-system/shared/models"
)

// MessageType represents the type of WebSocket message
type MessageType string

const (
	MessageTypeSeatsUpdated   MessageType = "seats_updated"
	MessageTypeOrderCompleted MessageType = "order_completed"
	MessageTypeOrderReleased  MessageType = "order_released"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 16
)

// SeatUpdate represents a seat status change
type SeatUpdate struct {
	Seat   string `json:"seat"`
	Status string `json:"status"` // available, held, booked
	HeldBy string `json:"heldBy,omitempty"`
}

// Message represents a WebSocket message
type Message struct {
	Type       MessageType  `json:"type"`
	ScheduleID string       `json:"scheduleId"`
	Seats      []SeatUpdate `json:"seats,omitempty"`
	OrderID    string       `json:"orderId,omitempty"`
	Message    string       `json:"message,omitempty"`
	Timestamp  int64        `json:"timestamp"`
}

// Client represents a WebSocket client connection
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	scheduleID string
}

// Hub manages WebSocket connections per schedule
type Hub struct {
	clients    map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message
	done       chan struct{}
	mu         sync.RWMutex

	hooks    []func(scheduleID string)
	upgrader websocket.Upgrader
	log      *logger.Logger
	now      func() time.Time
}

// NewHub creates a new Hub. allowedOrigins limits which pages may connect;
// an empty list or "*" accepts any origin.
func NewHub(log *logger.Logger, allowedOrigins ...string) *Hub {
	h := &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, 256),
		done:       make(chan struct{}),
		log:        log,
		now:        time.Now,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || len(set) == 0 || set[origin]
	}
}

// OnBroadcast registers fn to run, on the hub goroutine, after every
// broadcast for a schedule. Sessions use it to refresh their occupancy.
// Register hooks before Run.
func (h *Hub) OnBroadcast(fn func(scheduleID string)) {
	h.hooks = append(h.hooks, fn)
}

// Run starts the hub's main loop and returns when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.scheduleID] == nil {
				h.clients[client.scheduleID] = make(map[*Client]bool)
			}
			h.clients[client.scheduleID][client] = true
			n := len(h.clients[client.scheduleID])
			h.mu.Unlock()
			h.log.Debug("WebSocket client registered", "schedule_id", client.scheduleID, "clients", n)

		case client := <-h.unregister:
			h.remove(client)

		case message := <-h.broadcast:
			h.deliver(message)
			for _, fn := range h.hooks {
				fn(message.ScheduleID)
			}
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.clients[client.scheduleID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.clients, client.scheduleID)
	}
	h.log.Debug("WebSocket client unregistered", "schedule_id", client.scheduleID, "remaining", len(clients))
}

func (h *Hub) deliver(message *Message) {
	data, err := json.Marshal(message)
	if err != nil {
		h.log.WithError(err).Error("Failed to marshal WebSocket message")
		return
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients[message.ScheduleID]))
	for c := range h.clients[message.ScheduleID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	h.log.Debug("Broadcasting seat update", "type", message.Type, "schedule_id", message.ScheduleID, "clients", len(clients))

	for _, client := range clients {
		select {
		case client.send <- data:
		default:
			// Slow reader; drop it rather than stall every watcher.
			h.remove(client)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, clients := range h.clients {
		for c := range clients {
			close(c.send)
		}
		delete(h.clients, id)
	}
}

// BroadcastSeatUpdate tells everyone watching the schedule that seats
// changed status. status is one of "held", "booked" or "available".
func (h *Hub) BroadcastSeatUpdate(scheduleID, orderID string, seats []models.SeatLabel, status string) {
	updates := make([]SeatUpdate, len(seats))
	for i, s := range seats {
		updates[i] = SeatUpdate{Seat: s.String(), Status: status}
		if status == "held" {
			updates[i].HeldBy = orderID
		}
	}

	msg := &Message{
		Type:       MessageTypeSeatsUpdated,
		ScheduleID: scheduleID,
		OrderID:    orderID,
		Seats:      updates,
		Timestamp:  h.now().UnixMilli(),
	}
	switch status {
	case "booked":
		msg.Type = MessageTypeOrderCompleted
		msg.Message = "Seats have been booked"
	case "available":
		msg.Type = MessageTypeOrderReleased
		msg.Message = "Seats are available again"
	}

	select {
	case h.broadcast <- msg:
	default:
		h.log.Warn("WebSocket broadcast queue full, dropping update", "schedule_id", scheduleID, "order_id", orderID)
	}
}

// ClientCount returns the number of clients watching a schedule
func (h *Hub) ClientCount(scheduleID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[scheduleID])
}

// HandleWebSocket upgrades the request and subscribes the connection to the
// schedule named by the {id} route variable.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	scheduleID := mux.Vars(r)["id"]
	if scheduleID == "" {
		http.Error(w, "schedule id is required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("WebSocket upgrade failed", "schedule_id", scheduleID)
		return
	}

	client := &Client{hub: h, conn: conn, send: make(chan []byte, sendBuffer), scheduleID: scheduleID}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump drains the connection so pongs and close frames are processed.
// Clients never send anything the hub acts on.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.WithError(err).Debug("WebSocket read failed", "schedule_id", c.scheduleID)
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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
