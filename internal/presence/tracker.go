package presence

import (
	"fmt"
	"log"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"whiteboard-backend/internal/model"
)

// Tracker keeps the ephemeral per-connection session records. Sessions only
// have meaning while this process lives; PurgeAll clears leftovers from a
// previous instance at startup. Single-instance deployments only; a
// multi-instance deployment must externalize session state.
type Tracker struct {
	db *gorm.DB
}

// NewTracker Tracker constructor
func NewTracker(db *gorm.DB) *Tracker {
	return &Tracker{db: db}
}

// RecordSession registers a live connection. Idempotent upsert; a storage
// error is fatal for the connection being established.
func (t *Tracker) RecordSession(connectionID string, whiteboardID, userID int64) error {
	session := model.WhiteboardSession{
		ConnectionID: connectionID,
		WhiteboardID: whiteboardID,
		UserID:       userID,
	}

	err := t.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "connection_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"whiteboard_id", "user_id"}),
	}).Create(&session).Error
	if err != nil {
		return fmt.Errorf("failed to record session %s (board %d, user %d): %w",
			connectionID, whiteboardID, userID, err)
	}
	return nil
}

// RemoveSession drops a connection's session. Disconnect races are expected:
// an already-absent session reports found=false and is not an error.
func (t *Tracker) RemoveSession(connectionID string) (bool, error) {
	res := t.db.Where("connection_id = ?", connectionID).
		Delete(&model.WhiteboardSession{})
	if res.Error != nil {
		return false, fmt.Errorf("failed to remove session %s: %w", connectionID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// ListOnlineUsers returns the deduplicated set of users with at least one
// live session on the board. The distinct happens database-side, joined to
// membership so a user who lost membership mid-session disappears from the
// list. Presence is a set; ordering is unspecified.
func (t *Tracker) ListOnlineUsers(whiteboardID int64) ([]int64, error) {
	var userIDs []int64
	err := t.db.Table("whiteboard_sessions").
		Joins("JOIN whiteboard_members ON whiteboard_members.whiteboard_id = whiteboard_sessions.whiteboard_id"+
			" AND whiteboard_members.user_id = whiteboard_sessions.user_id").
		Where("whiteboard_sessions.whiteboard_id = ?", whiteboardID).
		Distinct().
		Pluck("whiteboard_sessions.user_id", &userIDs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list online users for board %d: %w", whiteboardID, err)
	}
	return userIDs, nil
}

// PurgeAll clears every session. Called exactly once at process startup,
// before accepting connections: no in-flight connection can have survived a
// restart.
func (t *Tracker) PurgeAll() error {
	res := t.db.Where("1 = 1").Delete(&model.WhiteboardSession{})
	if res.Error != nil {
		return fmt.Errorf("failed to purge sessions: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		log.Printf("[Presence] Purged %d stale sessions from previous instance", res.RowsAffected)
	}
	return nil
}
