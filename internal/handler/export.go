package handler

import (
	"errors"
	"log"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"whiteboard-backend/internal/export"
	"whiteboard-backend/internal/model"
	"whiteboard-backend/internal/render"
)

// ExportHandler owns the render/export REST surface: on-demand PNG export,
// board-to-asset export, asset-to-board import, and the preview-service
// callback.
type ExportHandler struct {
	db             *gorm.DB
	supervisor     *render.Supervisor
	coordinator    *export.Coordinator
	callbackSecret string
}

// NewExportHandler ExportHandler constructor
func NewExportHandler(db *gorm.DB, supervisor *render.Supervisor, coordinator *export.Coordinator, callbackSecret string) *ExportHandler {
	return &ExportHandler{
		db:             db,
		supervisor:     supervisor,
		coordinator:    coordinator,
		callbackSecret: callbackSecret,
	}
}

// renderError maps a render/export failure to its HTTP response. Pending
// assets are a retryable conflict; broken assets and worker failures are
// permanent for the board's current content.
func renderError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, render.ErrEmptyBoard):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Whiteboard has no elements to export",
		})
	case errors.Is(err, render.ErrAssetsPending):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":     "Some assets are still generating previews, try again shortly",
			"retryable": true,
		})
	case errors.Is(err, render.ErrAssetsBroken):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": "Some assets failed preview generation; remove them and retry",
		})
	case errors.Is(err, render.ErrRenderFailed):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": "Rendering failed; if this persists, contact support",
		})
	case errors.Is(err, export.ErrMissingTitle):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "A title is required",
		})
	case errors.Is(err, export.ErrUnknownCategory):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unknown category",
		})
	default:
		log.Printf("[Export] Unexpected failure: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Export failed",
		})
	}
}

// ExportPNG renders the board synchronously and returns the uploaded image.
func (h *ExportHandler) ExportPNG(c *fiber.Ctx) error {
	userID := c.Locals("userID").(int64)
	boardID, err := parseBoardID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid whiteboard id"})
	}

	board, ok := canAccessBoard(h.db, boardID, userID)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Whiteboard not found"})
	}

	result, err := h.supervisor.Render(c.Context(), board)
	if err != nil {
		return renderError(c, err)
	}

	return c.JSON(fiber.Map{
		"url":    result.URL,
		"width":  result.Width,
		"height": result.Height,
	})
}

// ExportAsset freezes the board into a library asset.
func (h *ExportHandler) ExportAsset(c *fiber.Ctx) error {
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
		Title       string  `json:"title"`
		Description *string `json:"description"`
		CategoryIDs []int64 `json:"category_ids"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	asset, err := h.coordinator.ExportAsset(c.Context(), board, req.Title, req.Description, req.CategoryIDs)
	if err != nil {
		return renderError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(asset)
}

// ImportAsset copies a library asset into a fresh whiteboard owned by the
// caller.
func (h *ExportHandler) ImportAsset(c *fiber.Ctx) error {
	userID := c.Locals("userID").(int64)

	assetID, err := strconv.ParseInt(c.Params("assetId"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid asset id"})
	}

	var req struct {
		CourseID int64  `json:"course_id"`
		Title    string `json:"title"`
	}
	if err := c.BodyParser(&req); err != nil || req.CourseID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "course_id is required"})
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

	board, err := h.coordinator.ImportAsset(c.Context(), assetID, req.CourseID, userID, req.Title)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Asset not found"})
	}
	if err != nil {
		log.Printf("[Export] Failed to import asset %d: %v", assetID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to import asset",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(board)
}

// PreviewCallback receives the asynchronous thumbnail result from the preview
// service. Authenticated by a shared secret, not a user token.
func (h *ExportHandler) PreviewCallback(c *fiber.Ctx) error {
	if h.callbackSecret == "" {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Not found"})
	}

	secret := strings.TrimPrefix(c.Get("Authorization"), "Bearer ")
	if secret != h.callbackSecret {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid callback secret"})
	}

	var req struct {
		ID        int64   `json:"id"`
		Status    string  `json:"status"`
		Thumbnail *string `json:"thumbnail"`
		Image     *string `json:"image"`
	}
	if err := c.BodyParser(&req); err != nil || req.ID == 0 || req.Status == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "id and status are required"})
	}

	if req.Status != "done" {
		log.Printf("[Export] Preview for board %d finished with status %q", req.ID, req.Status)
		return c.JSON(fiber.Map{"message": "Acknowledged"})
	}

	updates := map[string]interface{}{}
	if req.Thumbnail != nil {
		updates["thumbnail_url"] = *req.Thumbnail
	}
	if req.Image != nil {
		updates["image_url"] = *req.Image
	}
	if len(updates) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "No image fields in callback"})
	}

	err := h.db.Model(&model.Whiteboard{}).Where("id = ?", req.ID).Updates(updates).Error
	if err != nil {
		log.Printf("[Export] Failed to apply preview callback for board %d: %v", req.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to store thumbnail",
		})
	}

	log.Printf("[Export] Stored preview for board %d", req.ID)
	return c.JSON(fiber.Map{"message": "Thumbnail stored"})
}
