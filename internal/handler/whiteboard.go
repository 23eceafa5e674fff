package handler

import (
	"errors"
	"log"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"whiteboard-backend/internal/mailer"
	"whiteboard-backend/internal/model"
	"whiteboard-backend/internal/store"
)

// WhiteboardHandler owns the board management REST surface.
type WhiteboardHandler struct {
	db       *gorm.DB
	elements *store.ElementStore
	mail     mailer.Mailer
}

// NewWhiteboardHandler WhiteboardHandler constructor
func NewWhiteboardHandler(db *gorm.DB, elements *store.ElementStore, mail mailer.Mailer) *WhiteboardHandler {
	return &WhiteboardHandler{db: db, elements: elements, mail: mail}
}

func parseBoardID(c *fiber.Ctx) (int64, error) {
	return strconv.ParseInt(c.Params("id"), 10, 64)
}

// CreateWhiteboard creates a board and makes the creator its first member.
func (h *WhiteboardHandler) CreateWhiteboard(c *fiber.Ctx) error {
	userID := c.Locals("userID").(int64)

	var req struct {
		CourseID int64  `json:"course_id"`
		Title    string `json:"title"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.CourseID == 0 || req.Title == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "course_id and title are required",
		})
	}

	var enrolled int64
	h.db.Model(&model.CourseMember{}).
		Where("course_id = ? AND user_id = ?", req.CourseID, userID).
		Count(&enrolled)
	if enrolled == 0 {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Not enrolled in this course",
		})
	}

	board := model.Whiteboard{
		CourseID: req.CourseID,
		Title:    req.Title,
	}
	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&board).Error; err != nil {
			return err
		}
		member := model.WhiteboardMember{WhiteboardID: board.ID, UserID: userID}
		return tx.Create(&member).Error
	})
	if err != nil {
		log.Printf("[Whiteboard] Failed to create board in course %d: %v", req.CourseID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create whiteboard",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(board)
}

// GetWhiteboard returns one board's metadata.
func (h *WhiteboardHandler) GetWhiteboard(c *fiber.Ctx) error {
	userID := c.Locals("userID").(int64)
	boardID, err := parseBoardID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid whiteboard id"})
	}

	board, ok := canAccessBoard(h.db, boardID, userID)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Whiteboard not found"})
	}

	return c.JSON(board)
}

// UpdateWhiteboard renames a board.
func (h *WhiteboardHandler) UpdateWhiteboard(c *fiber.Ctx) error {
	userID := c.Locals("userID").(int64)
	boardID, err := parseBoardID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid whiteboard id"})
	}

	board, ok := canAccessBoard(h.db, boardID, userID)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Whiteboard not found"})
	}

	var req struct {
		Title string `json:"title"`
	}
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.Title) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "title is required"})
	}

	err = h.db.Model(board).Update("title", strings.TrimSpace(req.Title)).Error
	if err != nil {
		log.Printf("[Whiteboard] Failed to rename board %d: %v", board.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update whiteboard",
		})
	}

	return c.JSON(board)
}

// DeleteWhiteboard soft-deletes a board; admins can restore it later.
func (h *WhiteboardHandler) DeleteWhiteboard(c *fiber.Ctx) error {
	userID := c.Locals("userID").(int64)
	boardID, err := parseBoardID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid whiteboard id"})
	}

	board, ok := canAccessBoard(h.db, boardID, userID)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Whiteboard not found"})
	}

	err = h.db.Model(board).Update("deleted", true).Error
	if err != nil {
		log.Printf("[Whiteboard] Failed to delete board %d: %v", board.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete whiteboard",
		})
	}

	return c.JSON(fiber.Map{"message": "Whiteboard deleted"})
}

// RestoreWhiteboard undoes a soft delete. Course admins only: the deleted
// board is invisible to regular members.
func (h *WhiteboardHandler) RestoreWhiteboard(c *fiber.Ctx) error {
	userID := c.Locals("userID").(int64)
	boardID, err := parseBoardID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid whiteboard id"})
	}

	var board model.Whiteboard
	err = h.db.First(&board, boardID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Whiteboard not found"})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load whiteboard"})
	}

	if !isCourseAdmin(h.db, board.CourseID, userID) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Admin role required"})
	}

	err = h.db.Model(&board).Update("deleted", false).Error
	if err != nil {
		log.Printf("[Whiteboard] Failed to restore board %d: %v", board.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to restore whiteboard",
		})
	}

	return c.JSON(board)
}

// GetElements returns the full element set in draw order. This is the initial
// replica a client renders before live messages start flowing.
func (h *WhiteboardHandler) GetElements(c *fiber.Ctx) error {
	userID := c.Locals("userID").(int64)
	boardID, err := parseBoardID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid whiteboard id"})
	}

	board, ok := canAccessBoard(h.db, boardID, userID)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Whiteboard not found"})
	}

	records, err := h.elements.List(board.ID)
	if err != nil {
		log.Printf("[Whiteboard] Failed to list elements for board %d: %v", board.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load elements",
		})
	}

	payloads := make([]model.ElementPayload, 0, len(records))
	for _, rec := range records {
		p, perr := model.PayloadFromRecord(rec)
		if perr != nil {
			log.Printf("[Whiteboard] Skipping corrupt element %s on board %d: %v", rec.ElementID, board.ID, perr)
			continue
		}
		payloads = append(payloads, p)
	}

	return c.JSON(fiber.Map{"elements": payloads})
}

// GetChatHistory returns the board's chat, oldest first.
func (h *WhiteboardHandler) GetChatHistory(c *fiber.Ctx) error {
	userID := c.Locals("userID").(int64)
	boardID, err := parseBoardID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid whiteboard id"})
	}

	board, ok := canAccessBoard(h.db, boardID, userID)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Whiteboard not found"})
	}

	var messages []model.ChatMessage
	err = h.db.Preload("User").
		Where("whiteboard_id = ?", board.ID).
		Order("created_at ASC, id ASC").
		Find(&messages).Error
	if err != nil {
		log.Printf("[Whiteboard] Failed to load chat for board %d: %v", board.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load chat history",
		})
	}

	return c.JSON(fiber.Map{"messages": messages})
}

// UpdateMembers replaces the board's membership set. Each newly-added member
// gets an invitation; the acting user never receives one for adding
// themselves.
func (h *WhiteboardHandler) UpdateMembers(c *fiber.Ctx) error {
	userID := c.Locals("userID").(int64)
	boardID, err := parseBoardID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid whiteboard id"})
	}

	board, ok := canAccessBoard(h.db, boardID, userID)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Whiteboard not found"})
	}

	var req struct {
		UserIDs []int64 `json:"user_ids"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if len(req.UserIDs) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "user_ids must not be empty"})
	}

	var current []model.WhiteboardMember
	if err := h.db.Where("whiteboard_id = ?", board.ID).Find(&current).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load members"})
	}

	existing := make(map[int64]bool, len(current))
	for _, m := range current {
		existing[m.UserID] = true
	}
	wanted := make(map[int64]bool, len(req.UserIDs))
	for _, id := range req.UserIDs {
		wanted[id] = true
	}

	var added []int64
	err = h.db.Transaction(func(tx *gorm.DB) error {
		for id := range wanted {
			if existing[id] {
				continue
			}
			member := model.WhiteboardMember{WhiteboardID: board.ID, UserID: id}
			if err := tx.Create(&member).Error; err != nil {
				return err
			}
			added = append(added, id)
		}
		for id := range existing {
			if wanted[id] {
				continue
			}
			err := tx.Where("whiteboard_id = ? AND user_id = ?", board.ID, id).
				Delete(&model.WhiteboardMember{}).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Printf("[Whiteboard] Failed to update members on board %d: %v", board.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update members",
		})
	}

	h.sendInvites(board, added, userID)

	return c.JSON(fiber.Map{
		"message": "Members updated",
		"added":   len(added),
	})
}

// sendInvites mails each newly-added member except the acting user. Mail
// failures are logged; the membership change already committed.
func (h *WhiteboardHandler) sendInvites(board *model.Whiteboard, added []int64, actingUserID int64) {
	for _, id := range added {
		if id == actingUserID {
			continue
		}

		var user model.User
		if err := h.db.First(&user, id).Error; err != nil {
			log.Printf("[Whiteboard] Skipping invite for unknown user %d: %v", id, err)
			continue
		}
		if err := h.mail.SendBoardInvite(board, board.Title, &user); err != nil {
			log.Printf("[Whiteboard] Failed to invite user %d to board %d: %v", id, board.ID, err)
		}
	}
}
