package hub

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gofiber/contrib/websocket"
)

// Writer is the subset of *websocket.Conn the hub needs; narrowed so tests
// can observe broadcasts without a network connection.
type Writer interface {
	WriteMessage(messageType int, data []byte) error
}

// Envelope is the wire form of every server→client message
type Envelope struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Hub manages the per-whiteboard broadcast groups
type Hub struct {
	boards map[int64]*Board
	mu     sync.RWMutex
}

// Board is one whiteboard's broadcast group
type Board struct {
	ID      int64
	clients map[string]*Client // connection id -> client
	mu      sync.RWMutex
}

// Client is one joined connection
type Client struct {
	ConnID string
	UserID int64
	conn   Writer
	// serializes writes; fasthttp websocket conns are not write-safe
	writeMu sync.Mutex
}

// NewHub Hub constructor
func NewHub() *Hub {
	return &Hub{
		boards: make(map[int64]*Board),
	}
}

// GetOrCreateBoard returns the board's broadcast group, creating it on first join
func (h *Hub) GetOrCreateBoard(whiteboardID int64) *Board {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.getOrCreateBoardLocked(whiteboardID)
}

func (h *Hub) getOrCreateBoardLocked(whiteboardID int64) *Board {
	if board, ok := h.boards[whiteboardID]; ok {
		return board
	}

	board := &Board{
		ID:      whiteboardID,
		clients: make(map[string]*Client),
	}
	h.boards[whiteboardID] = board
	log.Printf("[Hub] Created broadcast group for board %d", whiteboardID)
	return board
}

// Join registers a connection in the board's broadcast group, creating the
// group if needed. Lookup and registration happen under the hub lock: a
// departing last member running RemoveBoardIfEmpty can never drop a group
// between a joiner's lookup and its registration, which would strand the
// joiner on an orphaned group that no later connection can reach.
func (h *Hub) Join(whiteboardID int64, connID string, userID int64, conn Writer) (*Board, *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	board := h.getOrCreateBoardLocked(whiteboardID)
	client := board.Add(connID, userID, conn)
	return board, client
}

// RemoveBoardIfEmpty drops an empty broadcast group
func (h *Hub) RemoveBoardIfEmpty(whiteboardID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if board, ok := h.boards[whiteboardID]; ok {
		board.mu.RLock()
		empty := len(board.clients) == 0
		board.mu.RUnlock()
		if empty {
			delete(h.boards, whiteboardID)
			log.Printf("[Hub] Removed empty broadcast group for board %d", whiteboardID)
		}
	}
}

// Add registers a connection in the group
func (b *Board) Add(connID string, userID int64, conn Writer) *Client {
	b.mu.Lock()
	defer b.mu.Unlock()

	client := &Client{
		ConnID: connID,
		UserID: userID,
		conn:   conn,
	}
	b.clients[connID] = client
	return client
}

// Remove unregisters a connection from the group
func (b *Board) Remove(connID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.clients, connID)
}

// Size number of joined connections
func (b *Board) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.clients)
}

// Broadcast sends an envelope to every joined connection. excludeConnID skips
// exactly one connection (the sender); exclusion is per connection, not per
// user, so a second tab of the same user still receives the message. Pass ""
// to reach everyone.
func (b *Board) Broadcast(env Envelope, excludeConnID string) {
	data, err := json.Marshal(env)
	if err != nil {
		log.Printf("[Hub] Failed to marshal %s broadcast for board %d: %v", env.Type, b.ID, err)
		return
	}

	b.mu.RLock()
	clients := make([]*Client, 0, len(b.clients))
	for connID, c := range b.clients {
		if connID == excludeConnID {
			continue
		}
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	for _, client := range clients {
		client.Send(data)
	}
}

// Send writes raw bytes to one client
func (c *Client) Send(data []byte) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Printf("[Hub] Failed to send to connection %s: %v", c.ConnID, err)
	}
}

// SendEnvelope marshals and writes one envelope to one client
func (c *Client) SendEnvelope(env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		log.Printf("[Hub] Failed to marshal %s message: %v", env.Type, err)
		return
	}
	c.Send(data)
}
