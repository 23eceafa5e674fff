package handler

import (
	"errors"

	"gorm.io/gorm"

	"whiteboard-backend/internal/model"
)

// isBoardMember reports explicit board membership
func isBoardMember(db *gorm.DB, whiteboardID, userID int64) bool {
	var count int64
	db.Model(&model.WhiteboardMember{}).
		Where("whiteboard_id = ? AND user_id = ?", whiteboardID, userID).
		Count(&count)
	return count > 0
}

// isCourseAdmin reports whether the user administers the course; admins are
// implicitly authorized to every board in it
func isCourseAdmin(db *gorm.DB, courseID, userID int64) bool {
	var count int64
	db.Model(&model.CourseMember{}).
		Where("course_id = ? AND user_id = ? AND role = ?", courseID, userID, "ADMIN").
		Count(&count)
	return count > 0
}

// canAccessBoard loads a live (non-deleted) board and checks the caller may
// open it. Returns (nil, false) both for missing boards and denied callers so
// refusals never leak board existence.
func canAccessBoard(db *gorm.DB, whiteboardID, userID int64) (*model.Whiteboard, bool) {
	var board model.Whiteboard
	err := db.Where("id = ? AND deleted = ?", whiteboardID, false).First(&board).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false
	}
	if err != nil {
		return nil, false
	}

	if isBoardMember(db, board.ID, userID) || isCourseAdmin(db, board.CourseID, userID) {
		return &board, true
	}
	return nil, false
}
