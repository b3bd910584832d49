package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/HarshJ2508/order-execution-sys/pkg/engine"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins (CORS handled by main server)
		return true
	},
}

// Hub maintains the live sessions and fans engine snapshots out to them.
// It is both the session registry (a connection gets its participant id
// here) and the broadcast gateway: Publish never blocks the engine writer,
// and one dead session never aborts delivery to the rest.
type Hub struct {
	log    *zap.SugaredLogger
	engine *engine.Engine

	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	sendBuffer int
	mu         sync.RWMutex
}

func NewHub(log *zap.SugaredLogger, eng *engine.Engine, sendBuffer int) *Hub {
	return &Hub{
		log:        log,
		engine:     eng,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		sendBuffer: sendBuffer,
	}
}

// Run starts the hub's main loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Infow("session_connected", "participant", client.participantID, "total", total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Infow("session_disconnected", "participant", client.participantID, "total", total)

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Send buffer full; skip this session rather than stall the rest.
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Publish implements engine.Broadcaster: one book message per state change
// plus one message per trade. Drops on a full queue instead of blocking the
// writer.
func (h *Hub) Publish(u engine.Snapshot) {
	h.enqueue(BookMessage{
		Type:           "book",
		Bids:           u.Bids,
		Asks:           u.Asks,
		LastTradePrice: u.LastTradePrice,
		Timestamp:      u.Timestamp,
	})
	for _, ev := range u.Trades {
		h.enqueue(TradeMessage{
			Type:          "trade",
			Trade:         ev.Trade,
			Bids:          u.Bids,
			Asks:          u.Asks,
			CurrentPrice:  ev.Trade.Price,
			RiskTriggered: ev.RiskTriggered,
			Timestamp:     ev.Trade.Timestamp,
		})
	}
}

func (h *Hub) enqueue(msg interface{}) {
	raw, err := json.Marshal(msg)
	if err != nil {
		h.log.Errorw("broadcast_marshal_failed", "err", err)
		return
	}
	select {
	case h.broadcast <- raw:
	default:
		h.log.Warnw("broadcast_queue_full", "dropped", true)
	}
}

// Client is one live WebSocket session bound to a participant identity.
type Client struct {
	hub           *Hub
	conn          *websocket.Conn
	send          chan []byte
	participantID string
}

// readPump decodes inbound commands, applies them through the engine's
// single-writer entry point and delivers the result to this session only.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
		// Disconnection removes the participant's resting orders and position.
		if _, err := c.hub.engine.Do(context.Background(), c.participantID, engine.Disconnect{}); err != nil {
			c.hub.log.Warnw("disconnect_cleanup_failed", "participant", c.participantID, "err", err)
		}
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warnw("session_read_failed", "participant", c.participantID, "err", err)
			}
			break
		}

		cmd, err := engine.Decode(message)
		if err != nil {
			c.reply(ErrorMessage{Type: "error", Error: err.Error(), Code: engine.RejectCode(err), Timestamp: time.Now()})
			continue
		}

		res, err := c.hub.engine.Do(context.Background(), c.participantID, cmd)
		if err != nil {
			c.reply(ErrorMessage{Type: "error", Error: err.Error(), Code: engine.RejectCode(err), Timestamp: time.Now()})
			continue
		}
		c.reply(Ack{Type: "ack", Result: res})
	}
}

func (c *Client) reply(msg interface{}) {
	raw, err := json.Marshal(msg)
	if err != nil {
		c.hub.log.Errorw("reply_marshal_failed", "participant", c.participantID, "err", err)
		return
	}
	select {
	case c.send <- raw:
	default:
		// Session can't keep up with its own acks; drop it.
		c.conn.Close()
	}
}

// writePump pumps queued messages out and keeps the connection alive.
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

// handleWebSocket upgrades the connection, assigns the session its
// participant identity and starts the pumps.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("ws_upgrade_failed", "err", err)
		return
	}

	client := &Client{
		hub:           s.hub,
		conn:          conn,
		send:          make(chan []byte, s.hub.sendBuffer),
		participantID: uuid.NewString(),
	}

	// Queue the identity frame before the session is registered: once the
	// hub knows the client, unregister may close the send channel at any
	// time, and a bare send here would panic. Queued first, it is also
	// guaranteed to be the first frame the session reads.
	hello, _ := json.Marshal(SessionHello{ID: client.participantID})
	client.send <- hello

	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}
