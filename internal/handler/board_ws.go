package handler

import (
	"encoding/json"
	"log"
	"strconv"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"whiteboard-backend/internal/auth"
	"whiteboard-backend/internal/hub"
	"whiteboard-backend/internal/model"
	"whiteboard-backend/internal/presence"
	"whiteboard-backend/internal/session"
	"whiteboard-backend/internal/store"
)

// Dirtier receives the thumbnail-refresh side effect of every mutating
// protocol operation.
type Dirtier interface {
	MarkDirty(whiteboardID int64)
}

// BoardWSHandler owns the whiteboard websocket: the connection lifecycle and
// the synchronization protocol.
type BoardWSHandler struct {
	db       *gorm.DB
	hub      *hub.Hub
	elements *store.ElementStore
	presence *presence.Tracker
	tokens   *auth.TokenManager
	dirty    Dirtier
}

// NewBoardWSHandler BoardWSHandler constructor
func NewBoardWSHandler(db *gorm.DB, h *hub.Hub, elements *store.ElementStore, tracker *presence.Tracker, tokens *auth.TokenManager, dirty Dirtier) *BoardWSHandler {
	return &BoardWSHandler{
		db:       db,
		hub:      h,
		elements: elements,
		presence: tracker,
		tokens:   tokens,
		dirty:    dirty,
	}
}

// wsMessage is the wire form of every client→server message
type wsMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// chatPayload chat message body; accepted as a bare string or an object
type chatPayload struct {
	Message string `json:"message"`
}

// UpgradeGuard runs before the websocket upgrade. The handshake is checked
// entirely here: missing metadata, a bad token, a deleted board or a
// non-member all refuse the connection with a plain HTTP error, before any
// state is touched.
func (h *BoardWSHandler) UpgradeGuard(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{
			"error": "WebSocket upgrade required",
		})
	}

	courseID, err := strconv.ParseInt(c.Params("courseId"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid course id",
		})
	}
	boardID, err := strconv.ParseInt(c.Params("boardId"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid whiteboard id",
		})
	}
	if c.Query("domain") == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Missing domain parameter",
		})
	}

	token := c.Query("token")
	if token == "" {
		token = c.Cookies("session_token")
	}
	if token == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Missing session token",
		})
	}

	claims, err := h.tokens.Validate(token)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid session token",
		})
	}

	board, ok := canAccessBoard(h.db, boardID, claims.UserID)
	if !ok || board.CourseID != courseID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Access denied",
		})
	}

	c.Locals("courseID", courseID)
	c.Locals("boardID", boardID)
	c.Locals("userID", claims.UserID)
	return c.Next()
}

// HandleConnection runs after the upgrade: joins the broadcast group, records
// the session, then pumps protocol messages until the client disconnects.
func (h *BoardWSHandler) HandleConnection(c *websocket.Conn) {
	courseID := c.Locals("courseID").(int64)
	boardID := c.Locals("boardID").(int64)
	userID := c.Locals("userID").(int64)

	sc := session.New()
	sc.Authorize(courseID, boardID, userID)

	board, client := h.hub.Join(boardID, sc.ID, userID, c)

	// A session that cannot be recorded is refused: presence would be wrong
	// for every other member of the board.
	if err := h.presence.RecordSession(sc.ID, boardID, userID); err != nil {
		log.Printf("[WS] Refusing connection %s: %v", sc.ID, err)
		client.SendEnvelope(hub.Envelope{Type: "error", Payload: fiber.Map{
			"message": "Failed to establish session",
		}})
		board.Remove(sc.ID)
		h.hub.RemoveBoardIfEmpty(boardID)
		sc.Close()
		return
	}

	sc.Join()
	log.Printf("[WS] User %d joined board %d (connection %s)", userID, boardID, sc.ID)
	h.broadcastOnline(board, boardID)

	defer h.teardown(board, sc)

	for {
		messageType, data, err := c.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.sendError(client, "Malformed message")
			continue
		}

		if !sc.IsJoined() {
			return
		}

		switch msg.Type {
		case "addActivity":
			h.handleAdd(board, client, sc, msg.Payload)
		case "updateActivity":
			h.handleUpdate(board, client, sc, msg.Payload)
		case "deleteActivity":
			h.handleDelete(board, client, sc, msg.Payload)
		case "chat":
			h.handleChat(board, client, sc, msg.Payload)
		default:
			h.sendError(client, "Unknown message type: "+msg.Type)
		}
	}
}

func (h *BoardWSHandler) teardown(board *hub.Board, sc *session.Conn) {
	sc.Close()
	board.Remove(sc.ID)

	// Disconnect errors never block teardown
	if found, err := h.presence.RemoveSession(sc.ID); err != nil {
		log.Printf("[WS] Failed to remove session %s: %v", sc.ID, err)
	} else if !found {
		log.Printf("[WS] Session %s already removed", sc.ID)
	}

	h.broadcastOnline(board, sc.WhiteboardID)
	h.hub.RemoveBoardIfEmpty(sc.WhiteboardID)
	log.Printf("[WS] User %d left board %d after %s", sc.UserID, sc.WhiteboardID, sc.Duration().Round(time.Second))
}

// broadcastOnline pushes the current presence list to every member, the
// triggering connection included.
func (h *BoardWSHandler) broadcastOnline(board *hub.Board, boardID int64) {
	userIDs, err := h.presence.ListOnlineUsers(boardID)
	if err != nil {
		log.Printf("[WS] Failed to list online users for board %d: %v", boardID, err)
		return
	}

	payload := make([]fiber.Map, 0, len(userIDs))
	for _, id := range userIDs {
		payload = append(payload, fiber.Map{"user_id": id})
	}
	board.Broadcast(hub.Envelope{Type: "online", Payload: payload}, "")
}

// handleAdd persists new elements and broadcasts them to every other
// connection. The sender already holds authoritative local state and must not
// re-receive its own write.
func (h *BoardWSHandler) handleAdd(board *hub.Board, client *hub.Client, sc *session.Conn, raw json.RawMessage) {
	payloads, err := decodeElements(raw)
	if err != nil {
		h.sendError(client, "Malformed element payload")
		return
	}

	persisted := make([]model.ElementPayload, 0, len(payloads))
	for _, p := range payloads {
		if err := p.Validate(); err != nil {
			h.sendError(client, err.Error())
			return
		}

		saved, err := h.elements.Add(sc.WhiteboardID, p)
		if err != nil {
			log.Printf("[WS] Failed to add element %s on board %d: %v", p.ID, sc.WhiteboardID, err)
			h.sendError(client, "Failed to persist element")
			return
		}
		persisted = append(persisted, saved)
	}

	board.Broadcast(hub.Envelope{Type: "addActivity", Payload: persisted}, sc.ID)
	h.dirty.MarkDirty(sc.WhiteboardID)
}

// handleUpdate replaces elements wholesale and broadcasts the new payloads.
func (h *BoardWSHandler) handleUpdate(board *hub.Board, client *hub.Client, sc *session.Conn, raw json.RawMessage) {
	payloads, err := decodeElements(raw)
	if err != nil {
		h.sendError(client, "Malformed element payload")
		return
	}

	for i := range payloads {
		if err := payloads[i].Validate(); err != nil {
			h.sendError(client, err.Error())
			return
		}
		// Members of a multi-element selection arrive with a group-local
		// offset; elements never travel group-relative past this point.
		normalizeGroupCoordinates(&payloads[i])
	}

	for _, p := range payloads {
		if err := h.elements.Update(sc.WhiteboardID, p); err != nil {
			log.Printf("[WS] Failed to update element %s on board %d: %v", p.ID, sc.WhiteboardID, err)
			h.sendError(client, "Failed to persist element")
			return
		}
	}

	board.Broadcast(hub.Envelope{Type: "updateActivity", Payload: payloads}, sc.ID)
	h.dirty.MarkDirty(sc.WhiteboardID)
}

// handleDelete removes elements, broadcasts the removed ids, then rebroadcasts
// any survivor whose layer index moved during compaction as an implicit
// update.
func (h *BoardWSHandler) handleDelete(board *hub.Board, client *hub.Client, sc *session.Conn, raw json.RawMessage) {
	payloads, err := decodeElements(raw)
	if err != nil {
		h.sendError(client, "Malformed element payload")
		return
	}

	ids := make([]string, 0, len(payloads))
	for _, p := range payloads {
		if p.ID == "" {
			h.sendError(client, "Element is missing an id")
			return
		}
		ids = append(ids, p.ID)
	}

	moved, err := h.elements.Delete(sc.WhiteboardID, ids)
	if err != nil {
		log.Printf("[WS] Failed to delete elements on board %d: %v", sc.WhiteboardID, err)
		h.sendError(client, "Failed to delete elements")
		return
	}

	deleted := make([]fiber.Map, 0, len(ids))
	for _, id := range ids {
		deleted = append(deleted, fiber.Map{"id": id})
	}
	board.Broadcast(hub.Envelope{Type: "deleteActivity", Payload: deleted}, sc.ID)

	if len(moved) > 0 {
		board.Broadcast(hub.Envelope{Type: "updateActivity", Payload: moved}, sc.ID)
	}

	h.dirty.MarkDirty(sc.WhiteboardID)
}

// handleChat persists a message and broadcasts it to everyone, sender
// included: the sender's own view of the conversation comes back over the
// wire like anyone else's.
func (h *BoardWSHandler) handleChat(board *hub.Board, client *hub.Client, sc *session.Conn, raw json.RawMessage) {
	body, err := decodeChatBody(raw)
	if err != nil || body == "" {
		h.sendError(client, "Empty chat message")
		return
	}

	message := model.ChatMessage{
		WhiteboardID: sc.WhiteboardID,
		UserID:       sc.UserID,
		Body:         body,
	}
	if err := h.db.Create(&message).Error; err != nil {
		log.Printf("[WS] Failed to persist chat on board %d: %v", sc.WhiteboardID, err)
		h.sendError(client, "Failed to send message")
		return
	}

	board.Broadcast(hub.Envelope{Type: "chat", Payload: fiber.Map{
		"id":         message.ID,
		"user_id":    message.UserID,
		"message":    message.Body,
		"created_at": message.CreatedAt,
	}}, "")
}

func (h *BoardWSHandler) sendError(client *hub.Client, message string) {
	client.SendEnvelope(hub.Envelope{Type: "error", Payload: fiber.Map{
		"message": message,
	}})
}

// decodeElements accepts a single element object or an array of them.
func decodeElements(raw json.RawMessage) ([]model.ElementPayload, error) {
	var many []model.ElementPayload
	if err := json.Unmarshal(raw, &many); err == nil {
		return many, nil
	}

	var one model.ElementPayload
	if err := json.Unmarshal(raw, &one); err != nil {
		return nil, err
	}
	return []model.ElementPayload{one}, nil
}

// decodeChatBody accepts a bare JSON string or a {message} object.
func decodeChatBody(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}

	var p chatPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return "", err
	}
	return p.Message, nil
}

// normalizeGroupCoordinates folds a transient group offset into the element's
// own coordinates and strips it from the payload.
func normalizeGroupCoordinates(p *model.ElementPayload) {
	group, ok := p.Extra["group"].(map[string]any)
	if !ok {
		return
	}

	gx, okX := group["x"].(float64)
	gy, okY := group["y"].(float64)
	if okX {
		if x, ok := p.Extra["x"].(float64); ok {
			p.Extra["x"] = x + gx
		}
	}
	if okY {
		if y, ok := p.Extra["y"].(float64); ok {
			p.Extra["y"] = y + gy
		}
	}
	delete(p.Extra, "group")
}
