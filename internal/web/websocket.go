package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/Big-debs/jigsawverse-sub000/internal/puzzle"
)

// WebSocket upgrader with reasonable settings
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins for now, tighten in production
		return true
	},
}

// GameUpdate is one message to clients watching a session.
type GameUpdate struct {
	Code string      `json:"code"`
	Type string      `json:"type"` // "state", "hint", "error", "pong", "spectator_count"
	Data interface{} `json:"data"`
}

// Hub maintains the active WebSocket connections per session code.
type Hub struct {
	sessionClients map[string]map[*Client]bool

	broadcast  chan GameUpdate
	register   chan *Client
	unregister chan *Client

	mu sync.RWMutex
}

// Client is one WebSocket connection. Clients holding a join token may
// issue commands; the rest just watch.
type Client struct {
	hub   *Hub
	conn  *websocket.Conn
	send  chan []byte
	sess  *Session
	code  string
	token string

	closeMu sync.Mutex
	closed  bool
}

// NewHub creates a new WebSocket hub.
func NewHub() *Hub {
	return &Hub{
		sessionClients: make(map[string]map[*Client]bool),
		broadcast:      make(chan GameUpdate, 16),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
	}
}

// Run starts the hub's main event loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.sessionClients[client.code] == nil {
				h.sessionClients[client.code] = make(map[*Client]bool)
			}
			h.sessionClients[client.code][client] = true
			count := len(h.sessionClients[client.code])
			h.mu.Unlock()

			log.Info().
				Str("code", client.code).
				Bool("player", client.token != "").
				Msg("Client connected to session")
			h.broadcastPresence(client.code, count)

		case client := <-h.unregister:
			count := -1
			h.mu.Lock()
			if clients, ok := h.sessionClients[client.code]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					client.markClosed()
					count = len(clients)

					// Clean up empty rooms
					if len(clients) == 0 {
						delete(h.sessionClients, client.code)
					}
				}
			}
			h.mu.Unlock()

			log.Info().
				Str("code", client.code).
				Msg("Client disconnected from session")
			if count > 0 {
				h.broadcastPresence(client.code, count)
			}

		case update := <-h.broadcast:
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.sessionClients[update.Code]))
			for client := range h.sessionClients[update.Code] {
				clients = append(clients, client)
			}
			h.mu.RUnlock()

			if len(clients) == 0 {
				continue
			}
			message, err := json.Marshal(update)
			if err != nil {
				log.Error().Err(err).Msg("Failed to marshal game update")
				continue
			}

			for _, client := range clients {
				if !client.enqueue(message) {
					// Client's send buffer is full, drop it
					client.markClosed()
					h.mu.Lock()
					delete(h.sessionClients[update.Code], client)
					h.mu.Unlock()
				}
			}
		}
	}
}

// BroadcastGameUpdate sends an update to all clients watching a session.
func (h *Hub) BroadcastGameUpdate(update GameUpdate) {
	select {
	case h.broadcast <- update:
	default:
		log.Warn().Str("code", update.Code).Msg("Broadcast channel full, dropping update")
	}
}

// broadcastPresence tells a session's watchers how many connections it has.
// Display-only; seats come from join tokens, not connections.
func (h *Hub) broadcastPresence(code string, count int) {
	h.BroadcastGameUpdate(GameUpdate{
		Code: code,
		Type: "spectator_count",
		Data: map[string]interface{}{
			"count": count,
		},
	})
}

// clientCount reports how many connections are watching a session.
func (h *Hub) clientCount(code string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessionClients[code])
}

// enqueue tries to hand a message to the write pump. It is safe against a
// concurrently closed client and reports whether the message was queued.
func (c *Client) enqueue(message []byte) bool {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

// markClosed shuts the send channel exactly once.
func (c *Client) markClosed() {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// WebSocketHandler upgrades /ws/{code} connections. A token query param
// binds the connection to a seat for issuing commands.
func (s *Service) WebSocketHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := mux.Vars(r)["code"]
		sess, ok := s.sessions.Get(code)
		if !ok {
			http.Error(w, "Game not found", http.StatusNotFound)
			return
		}
		token := r.URL.Query().Get("token")
		if token != "" {
			if _, err := sess.SeatOf(token); err != nil {
				http.Error(w, "Unknown join token", http.StatusUnauthorized)
				return
			}
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
			return
		}

		client := &Client{
			hub:   s.hub,
			conn:  conn,
			send:  make(chan []byte, 256),
			sess:  sess,
			code:  code,
			token: token,
		}

		// Queue the current state before registering so it is the first
		// frame out and late joiners don't wait for a move.
		client.reply("state", sess.Snapshot())
		client.hub.register <- client

		go client.writePump()
		go client.readPump()
	}
}

// clientMessage is what players send over the socket.
type clientMessage struct {
	Type     string `json:"type"`
	PieceID  int    `json:"pieceId"`
	Position int    `json:"position"`
	Decision string `json:"decision"`
	Kind     string `json:"kind"`
}

// readPump handles incoming messages from the WebSocket.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
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
				log.Error().Err(err).Msg("WebSocket error")
			}
			break
		}

		var msg clientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.replyError(fmt.Errorf("unparseable message"))
			continue
		}
		c.handle(msg)
	}
}

// handle dispatches one client command. State changes reach every watcher
// through the hub; only errors and hint reveals go back privately.
func (c *Client) handle(msg clientMessage) {
	switch msg.Type {
	case "ping":
		c.reply("pong", nil)

	case "place":
		if c.token == "" {
			c.replyError(puzzle.Errorf(puzzle.KindNotYourTurn, "spectators cannot place pieces"))
			return
		}
		if _, err := c.sess.Place(c.token, msg.PieceID, msg.Position); err != nil {
			c.replyError(err)
		}

	case "decide":
		if c.token == "" {
			c.replyError(puzzle.Errorf(puzzle.KindWrongDecider, "spectators cannot decide"))
			return
		}
		if _, err := c.sess.Decide(c.token, puzzle.Decision(msg.Decision)); err != nil {
			c.replyError(err)
		}

	case "hint":
		if c.token == "" {
			c.replyError(puzzle.Errorf(puzzle.KindNotYourTurn, "spectators cannot buy hints"))
			return
		}
		hint, err := c.sess.Hint(c.token, puzzle.HintKind(msg.Kind))
		if err != nil {
			c.replyError(err)
			return
		}
		c.reply("hint", hint)

	default:
		c.replyError(fmt.Errorf("unknown message type %q", msg.Type))
	}
}

// reply sends a message to this client only.
func (c *Client) reply(updateType string, data interface{}) {
	message, err := json.Marshal(GameUpdate{Code: c.code, Type: updateType, Data: data})
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal reply")
		return
	}
	c.enqueue(message)
}

func (c *Client) replyError(err error) {
	c.reply("error", map[string]string{
		"kind":    string(puzzle.KindOf(err)),
		"message": err.Error(),
	})
}

// writePump handles sending messages to the WebSocket.
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

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current WebSocket message
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
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
