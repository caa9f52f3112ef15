package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/Dosada05/wager-match/models"
	"github.com/gorilla/websocket"
)

const (
	MessageMatchUpdated = "MATCH_UPDATED"

	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 16
)

// Watcher is the subscription half of the match store.
type Watcher interface {
	Subscribe(ctx context.Context, code string) (<-chan *models.MatchRecord, error)
}

type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
	RoomID  string      `json:"room_id,omitempty"`
}

type Client struct {
	Hub  *Hub
	Conn *websocket.Conn
	Send chan []byte
	Room string

	mu     sync.Mutex
	closed bool
}

func NewClient(hub *Hub, conn *websocket.Conn, room string) *Client {
	return &Client{Hub: hub, Conn: conn, Send: make(chan []byte, sendBuffer), Room: room}
}

// room is the set of sockets watching one match plus the store subscription
// feeding them.
type room struct {
	clients map[*Client]bool
	cancel  context.CancelFunc
}

// Hub fans match record changes out to websocket clients, one room per match code.
// A room subscribes to the store when its first client arrives and unsubscribes
// when the last one leaves.
type Hub struct {
	Register   chan *Client
	Unregister chan *Client

	watcher Watcher
	logger  *slog.Logger

	mu    sync.RWMutex
	rooms map[string]*room
	done  chan struct{}
}

func NewHub(watcher Watcher, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		watcher:    watcher,
		logger:     logger,
		rooms:      make(map[string]*room),
		done:       make(chan struct{}),
	}
}

// Join registers client with the hub. It reports false once the hub has stopped.
func (h *Hub) Join(client *Client) bool {
	select {
	case h.Register <- client:
		return true
	case <-h.done:
		return false
	}
}

// JoinWithSnapshot queues snapshot for client before registering it, so every room
// broadcast the client receives is queued behind the snapshot.
func (h *Hub) JoinWithSnapshot(client *Client, snapshot Message) (bool, error) {
	if err := client.SendMessage(snapshot); err != nil {
		return false, err
	}
	return h.Join(client), nil
}

func (h *Hub) leave(client *Client) {
	select {
	case h.Unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			close(h.done)
			return

		case client := <-h.Register:
			h.mu.Lock()
			r, ok := h.rooms[client.Room]
			if !ok {
				roomCtx, cancel := context.WithCancel(ctx)
				r = &room{clients: make(map[*Client]bool), cancel: cancel}
				h.rooms[client.Room] = r
				go h.watchRoom(roomCtx, client.Room)
			}
			r.clients[client] = true
			h.logger.Debug("client registered", slog.String("room", client.Room), slog.Int("clients", len(r.clients)))
			h.mu.Unlock()

		case client := <-h.Unregister:
			h.mu.Lock()
			if r, ok := h.rooms[client.Room]; ok {
				if _, okClient := r.clients[client]; okClient {
					client.close()
					delete(r.clients, client)
					if len(r.clients) == 0 {
						r.cancel()
						delete(h.rooms, client.Room)
						h.logger.Debug("room closed", slog.String("room", client.Room))
					}
				}
			}
			h.mu.Unlock()
		}
	}
}

// watchRoom relays every record delivered by the store subscription to the room.
func (h *Hub) watchRoom(ctx context.Context, code string) {
	updates, err := h.watcher.Subscribe(ctx, code)
	if err != nil {
		h.logger.Error("failed to subscribe room to match", slog.String("room", code), slog.Any("error", err))
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case match, ok := <-updates:
			if !ok {
				return
			}
			h.BroadcastToRoom(code, Message{Type: MessageMatchUpdated, Payload: match, RoomID: code})
		}
	}
}

// BroadcastToRoom отправляет сообщение всем клиентам в указанной комнате.
func (h *Hub) BroadcastToRoom(roomID string, message interface{}) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	r, ok := h.rooms[roomID]
	if !ok {
		return
	}

	messageBytes, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal room message", slog.String("room", roomID), slog.Any("error", err))
		return
	}

	for client := range r.clients {
		client.offer(messageBytes)
	}
}

// RoomSize returns the number of clients watching code.
func (h *Hub) RoomSize(code string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if r, ok := h.rooms[code]; ok {
		return len(r.clients)
	}
	return 0
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for code, r := range h.rooms {
		r.cancel()
		for client := range r.clients {
			client.close()
		}
		delete(h.rooms, code)
	}
}

// SendMessage queues msg for this client only.
func (c *Client) SendMessage(msg Message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.offer(b)
	return nil
}

// offer drops the oldest queued message when the client falls behind; every
// message carries the full record, so only the newest one matters.
func (c *Client) offer(message []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	for {
		select {
		case c.Send <- message:
			return
		default:
		}
		select {
		case <-c.Send:
		default:
		}
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		close(c.Send)
		c.closed = true
	}
}

func (c *Client) ReadPump() {
	defer func() {
		c.Hub.leave(c)
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error { return c.Conn.SetReadDeadline(time.Now().Add(pongWait)) })

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Warn("websocket closed unexpectedly", slog.String("room", c.Room), slog.Any("error", err))
			}
			return
		}
		// Входящие сообщения игнорируются: все изменения идут через HTTP API.
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.Hub.logger.Debug("websocket write failed", slog.String("room", c.Room), slog.Any("error", err))
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
