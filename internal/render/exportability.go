package render

import (
	"fmt"

	"gorm.io/gorm"

	"whiteboard-backend/internal/model"
)

// Readiness is one element's export-readiness class.
type Readiness int

const (
	ReadinessExportable Readiness = iota
	ReadinessPending
	ReadinessErrored
)

// Exportability is the partition of a board's elements by readiness.
type Exportability struct {
	// Exportable payloads, in draw order, asset URLs refreshed.
	Exportable []model.ElementPayload
	// Pending element ids whose backing asset preview is still generating.
	Pending []string
	// Errored element ids whose backing asset is missing or failed.
	Errored []string
}

// Classify returns the readiness of one element against its backing asset.
// Elements without an asset reference are always exportable.
func Classify(p model.ElementPayload, asset *model.LibraryAsset) Readiness {
	if p.AssetID == nil {
		return ReadinessExportable
	}
	if asset == nil || asset.PreviewStatus == model.PreviewStatusError {
		return ReadinessErrored
	}
	if asset.PreviewStatus == model.PreviewStatusDone &&
		asset.ImageURL != nil && asset.ThumbWidth != nil {
		return ReadinessExportable
	}
	return ReadinessPending
}

// CheckExportability partitions a board's elements. Exportable elements whose
// cached asset URL is stale are lazily updated to the fresh preview URL (both
// in the returned payload and in storage) before inclusion.
func CheckExportability(db *gorm.DB, whiteboardID int64, records []model.WhiteboardElement) (*Exportability, error) {
	assetIDs := make([]int64, 0)
	seen := make(map[int64]bool)
	for _, rec := range records {
		if rec.AssetID != nil && !seen[*rec.AssetID] {
			seen[*rec.AssetID] = true
			assetIDs = append(assetIDs, *rec.AssetID)
		}
	}

	assets := make(map[int64]*model.LibraryAsset)
	if len(assetIDs) > 0 {
		var rows []model.LibraryAsset
		if err := db.Where("id IN ?", assetIDs).Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("failed to resolve assets for board %d: %w", whiteboardID, err)
		}
		for i := range rows {
			assets[rows[i].ID] = &rows[i]
		}
	}

	result := &Exportability{}
	for _, rec := range records {
		p, err := model.PayloadFromRecord(rec)
		if err != nil {
			return nil, err
		}

		var asset *model.LibraryAsset
		if p.AssetID != nil {
			asset = assets[*p.AssetID]
		}

		switch Classify(p, asset) {
		case ReadinessErrored:
			result.Errored = append(result.Errored, p.ID)
		case ReadinessPending:
			result.Pending = append(result.Pending, p.ID)
		default:
			if asset != nil && asset.ImageURL != nil && p.AssetURL() != *asset.ImageURL {
				p.SetAssetURL(*asset.ImageURL)
				data, merr := p.MarshalJSON()
				if merr != nil {
					return nil, merr
				}
				err := db.Model(&model.WhiteboardElement{}).
					Where("id = ?", rec.ID).
					Update("data", string(data)).Error
				if err != nil {
					return nil, fmt.Errorf("failed to refresh asset URL on element %s: %w", p.ID, err)
				}
			}
			result.Exportable = append(result.Exportable, p)
		}
	}

	return result, nil
}

// Gate converts the partition into the render-blocking error, if any.
// Errored wins over pending so the user fixes broken content first.
func (e *Exportability) Gate() error {
	if len(e.Errored) > 0 {
		return fmt.Errorf("%w (elements: %v)", ErrAssetsBroken, e.Errored)
	}
	if len(e.Pending) > 0 {
		return fmt.Errorf("%w (elements: %v)", ErrAssetsPending, e.Pending)
	}
	return nil
}
