package export

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"gorm.io/gorm"

	"whiteboard-backend/internal/model"
	"whiteboard-backend/internal/render"
	"whiteboard-backend/internal/store"
)

var (
	// ErrMissingTitle rejects an asset export with no usable title.
	ErrMissingTitle = errors.New("export requires a title")
	// ErrUnknownCategory rejects an export referencing a category that does
	// not exist in the library.
	ErrUnknownCategory = errors.New("export references an unknown category")
)

// timestampPrefix matches the unix-millis prefix stamped onto snapshot
// element ids at export time.
var timestampPrefix = regexp.MustCompile(`^\d{10,}-`)

// Coordinator freezes whiteboards into library assets and re-hydrates assets
// back into fresh editable whiteboards.
type Coordinator struct {
	db         *gorm.DB
	elements   *store.ElementStore
	supervisor *render.Supervisor
}

// NewCoordinator Coordinator constructor
func NewCoordinator(db *gorm.DB, elements *store.ElementStore, supervisor *render.Supervisor) *Coordinator {
	return &Coordinator{
		db:         db,
		elements:   elements,
		supervisor: supervisor,
	}
}

// ExportAsset renders the board and delegates creation of a library asset
// carrying the rendered image plus a frozen element snapshot. Render failures
// are surfaced verbatim so callers keep the pending/errored distinction.
func (c *Coordinator) ExportAsset(ctx context.Context, board *model.Whiteboard, title string, description *string, categoryIDs []int64) (*model.LibraryAsset, error) {
	records, err := c.elements.List(board.ID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, render.ErrEmptyBoard
	}

	title = strings.TrimSpace(title)
	if title == "" {
		title = strings.TrimSpace(board.Title)
	}
	if title == "" {
		return nil, ErrMissingTitle
	}

	if err := c.validateCategories(categoryIDs); err != nil {
		return nil, err
	}

	result, err := c.supervisor.Render(ctx, board)
	if err != nil {
		return nil, err
	}

	// Re-read after the render: the exportability pass may have refreshed
	// cached asset URLs on individual elements.
	records, err = c.elements.List(board.ID)
	if err != nil {
		return nil, err
	}

	asset := &model.LibraryAsset{
		Title:         title,
		Description:   description,
		ImageURL:      &result.URL,
		ThumbWidth:    &result.Width,
		PreviewStatus: model.PreviewStatusDone,
	}

	stamp := time.Now().UnixMilli()
	err = c.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(asset).Error; err != nil {
			return fmt.Errorf("failed to create asset for board %d: %w", board.ID, err)
		}

		for _, rec := range records {
			p, perr := model.PayloadFromRecord(rec)
			if perr != nil {
				return perr
			}

			// Snapshot ids are renumbered with a timestamp prefix so they
			// cannot collide with ids in the asset's own identity space.
			snapshot := model.LibraryAssetElement{
				AssetID:    asset.ID,
				ElementID:  fmt.Sprintf("%d-%s", stamp, p.ID),
				Type:       p.Type,
				Layer:      p.Layer,
				RefAssetID: p.AssetID,
				Data:       rec.Data,
			}
			if err := tx.Create(&snapshot).Error; err != nil {
				return fmt.Errorf("failed to snapshot element %s: %w", p.ID, err)
			}
		}

		for _, categoryID := range dedupe(categoryIDs) {
			mapping := model.LibraryAssetCategory{AssetID: asset.ID, CategoryID: categoryID}
			if err := tx.Create(&mapping).Error; err != nil {
				return fmt.Errorf("failed to map asset %d to category %d: %w", asset.ID, categoryID, err)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return asset, nil
}

// ImportAsset creates a new whiteboard seeded with the asset's images, then
// bulk-copies the frozen snapshot. Element ids get the timestamp prefix
// stripped and a fresh prefix assigned so the new board's id space stays
// collision-free; the original backing-asset reference on each element is
// preserved.
func (c *Coordinator) ImportAsset(ctx context.Context, assetID, courseID, userID int64, title string) (*model.Whiteboard, error) {
	var asset model.LibraryAsset
	err := c.db.Preload("Elements").First(&asset, assetID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("asset %d not found: %w", assetID, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load asset %d: %w", assetID, err)
	}

	title = strings.TrimSpace(title)
	if title == "" {
		title = asset.Title
	}

	stamp := time.Now().UnixMilli()
	payloads := make([]model.ElementPayload, 0, len(asset.Elements))
	for _, snap := range asset.Elements {
		p := model.ElementPayload{}
		if err := p.UnmarshalJSON([]byte(snap.Data)); err != nil {
			return nil, fmt.Errorf("asset %d element %s has corrupt payload: %w", assetID, snap.ElementID, err)
		}

		base := timestampPrefix.ReplaceAllString(snap.ElementID, "")
		p.ID = fmt.Sprintf("%d-%s", stamp, base)
		p.Type = snap.Type
		p.Layer = snap.Layer
		// The element's own library reference, not the export linkage.
		p.AssetID = snap.RefAssetID
		payloads = append(payloads, p)
	}

	board := &model.Whiteboard{
		CourseID:     courseID,
		Title:        title,
		ImageURL:     asset.ImageURL,
		ThumbnailURL: asset.ThumbnailURL,
	}

	// Board, membership and the element copy commit together: a failed copy
	// must not leave an empty orphan board visible to the importer.
	err = c.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(board).Error; err != nil {
			return fmt.Errorf("failed to create board from asset %d: %w", assetID, err)
		}
		member := model.WhiteboardMember{WhiteboardID: board.ID, UserID: userID}
		if err := tx.Create(&member).Error; err != nil {
			return fmt.Errorf("failed to add importer to board %d: %w", board.ID, err)
		}
		return c.elements.WithTx(tx).BulkInsert(board.ID, payloads)
	})
	if err != nil {
		return nil, err
	}

	return board, nil
}

func (c *Coordinator) validateCategories(categoryIDs []int64) error {
	ids := dedupe(categoryIDs)
	if len(ids) == 0 {
		return nil
	}

	var count int64
	err := c.db.Model(&model.LibraryCategory{}).Where("id IN ?", ids).Count(&count).Error
	if err != nil {
		return fmt.Errorf("failed to validate categories: %w", err)
	}
	if count != int64(len(ids)) {
		return ErrUnknownCategory
	}
	return nil
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
