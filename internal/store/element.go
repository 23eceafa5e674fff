package store

import (
	"encoding/json"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"whiteboard-backend/internal/model"
)

// ElementStore is the durable keyed element collection per whiteboard.
// Consistency under concurrent writers comes entirely from row-level
// upsert/delete atomicity; the sync protocol accepts last-writer-wins.
type ElementStore struct {
	db *gorm.DB
}

// NewElementStore ElementStore constructor
func NewElementStore(db *gorm.DB) *ElementStore {
	return &ElementStore{db: db}
}

// WithTx returns a store bound to an open transaction
func (s *ElementStore) WithTx(tx *gorm.DB) *ElementStore {
	return &ElementStore{db: tx}
}

// List returns a board's elements in draw order (layer asc, insertion order
// breaking ties).
func (s *ElementStore) List(whiteboardID int64) ([]model.WhiteboardElement, error) {
	var elements []model.WhiteboardElement
	err := s.db.Where("whiteboard_id = ?", whiteboardID).
		Order("layer ASC, id ASC").
		Find(&elements).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list elements for board %d: %w", whiteboardID, err)
	}
	return elements, nil
}

// Count returns the number of elements on a board.
func (s *ElementStore) Count(whiteboardID int64) (int64, error) {
	var count int64
	err := s.db.Model(&model.WhiteboardElement{}).
		Where("whiteboard_id = ?", whiteboardID).
		Count(&count).Error
	return count, err
}

// Add persists a new element. Elements whose id has not been seen before get
// a layer index equal to the current element count; a previously-seen id is
// replaced wholesale. Returns the payload as persisted (layer filled in).
func (s *ElementStore) Add(whiteboardID int64, p model.ElementPayload) (model.ElementPayload, error) {
	var existing model.WhiteboardElement
	err := s.db.Where("whiteboard_id = ? AND element_id = ?", whiteboardID, p.ID).
		First(&existing).Error
	if err != nil && err != gorm.ErrRecordNotFound {
		return p, fmt.Errorf("failed to look up element %s: %w", p.ID, err)
	}

	if err == gorm.ErrRecordNotFound {
		count, cerr := s.Count(whiteboardID)
		if cerr != nil {
			return p, fmt.Errorf("failed to count elements on board %d: %w", whiteboardID, cerr)
		}
		p.Layer = int(count)
	} else {
		p.Layer = existing.Layer
	}

	if err := s.upsert(whiteboardID, p); err != nil {
		return p, err
	}
	return p, nil
}

// Update replaces an element's full payload (whole-element replace, never a
// field patch).
func (s *ElementStore) Update(whiteboardID int64, p model.ElementPayload) error {
	return s.upsert(whiteboardID, p)
}

func (s *ElementStore) upsert(whiteboardID int64, p model.ElementPayload) error {
	rec, err := p.ToRecord(whiteboardID)
	if err != nil {
		return fmt.Errorf("failed to serialize element %s: %w", p.ID, err)
	}

	err = s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "whiteboard_id"}, {Name: "element_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"type", "layer", "asset_id", "data", "updated_at",
		}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("failed to persist element %s on board %d: %w", p.ID, whiteboardID, err)
	}
	return nil
}

// Delete removes elements by id, then recomputes dense layer indices for the
// survivors. The returned payloads are the elements whose index moved, ready
// to be rebroadcast as an implicit update.
func (s *ElementStore) Delete(whiteboardID int64, elementIDs []string) ([]model.ElementPayload, error) {
	if len(elementIDs) == 0 {
		return nil, nil
	}

	err := s.db.Where("whiteboard_id = ? AND element_id IN ?", whiteboardID, elementIDs).
		Delete(&model.WhiteboardElement{}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to delete elements on board %d: %w", whiteboardID, err)
	}

	return s.compact(whiteboardID)
}

// compact reassigns layer indices dense from 0, preserving relative order
// (ties broken by insertion order). Bounded by board element count.
func (s *ElementStore) compact(whiteboardID int64) ([]model.ElementPayload, error) {
	elements, err := s.List(whiteboardID)
	if err != nil {
		return nil, err
	}

	var moved []model.ElementPayload
	for i, rec := range elements {
		if rec.Layer == i {
			continue
		}

		p, perr := model.PayloadFromRecord(rec)
		if perr != nil {
			return nil, perr
		}
		p.Layer = i

		data, merr := json.Marshal(p)
		if merr != nil {
			return nil, merr
		}

		err := s.db.Model(&model.WhiteboardElement{}).
			Where("id = ?", rec.ID).
			Updates(map[string]interface{}{"layer": i, "data": string(data)}).Error
		if err != nil {
			return nil, fmt.Errorf("failed to compact element %s: %w", rec.ElementID, err)
		}
		moved = append(moved, p)
	}

	return moved, nil
}

// BulkInsert writes a batch of elements verbatim (asset re-hydration path).
func (s *ElementStore) BulkInsert(whiteboardID int64, payloads []model.ElementPayload) error {
	if len(payloads) == 0 {
		return nil
	}

	records := make([]model.WhiteboardElement, 0, len(payloads))
	for _, p := range payloads {
		rec, err := p.ToRecord(whiteboardID)
		if err != nil {
			return fmt.Errorf("failed to serialize element %s: %w", p.ID, err)
		}
		records = append(records, rec)
	}

	if err := s.db.Create(&records).Error; err != nil {
		return fmt.Errorf("failed to bulk insert %d elements on board %d: %w",
			len(records), whiteboardID, err)
	}
	return nil
}
