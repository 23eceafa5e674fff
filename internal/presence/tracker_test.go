package presence

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"whiteboard-backend/internal/database"
	"whiteboard-backend/internal/model"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func addMember(t *testing.T, db *gorm.DB, boardID, userID int64) {
	t.Helper()
	require.NoError(t, db.Create(&model.WhiteboardMember{WhiteboardID: boardID, UserID: userID}).Error)
}

func TestListOnlineUsersDeduplicatesConnections(t *testing.T) {
	db := newTestDB(t)
	tr := NewTracker(db)
	addMember(t, db, 1, 10)

	require.NoError(t, tr.RecordSession("conn-a", 1, 10))

	users, err := tr.ListOnlineUsers(1)
	require.NoError(t, err)
	require.Len(t, users, 1)

	// a second tab of the same user must not grow the presence list
	require.NoError(t, tr.RecordSession("conn-b", 1, 10))

	users, err = tr.ListOnlineUsers(1)
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, int64(10), users[0])
}

func TestListOnlineUsersExcludesNonMembers(t *testing.T) {
	db := newTestDB(t)
	tr := NewTracker(db)
	addMember(t, db, 1, 10)

	require.NoError(t, tr.RecordSession("conn-a", 1, 10))
	// user 11 has a live session but lost membership
	require.NoError(t, tr.RecordSession("conn-b", 1, 11))

	users, err := tr.ListOnlineUsers(1)
	require.NoError(t, err)
	assert.Equal(t, []int64{10}, users)
}

func TestRecordSessionIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	tr := NewTracker(db)
	addMember(t, db, 1, 10)

	require.NoError(t, tr.RecordSession("conn-a", 1, 10))
	require.NoError(t, tr.RecordSession("conn-a", 1, 10))

	var count int64
	require.NoError(t, db.Model(&model.WhiteboardSession{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRemoveSession(t *testing.T) {
	db := newTestDB(t)
	tr := NewTracker(db)
	addMember(t, db, 1, 10)

	require.NoError(t, tr.RecordSession("conn-a", 1, 10))

	found, err := tr.RemoveSession("conn-a")
	require.NoError(t, err)
	assert.True(t, found)

	// removing an already-absent session is not an error
	found, err = tr.RemoveSession("conn-a")
	require.NoError(t, err)
	assert.False(t, found)

	users, err := tr.ListOnlineUsers(1)
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestPurgeAllClearsEverySession(t *testing.T) {
	db := newTestDB(t)
	tr := NewTracker(db)
	addMember(t, db, 1, 10)
	addMember(t, db, 2, 11)

	require.NoError(t, tr.RecordSession("conn-a", 1, 10))
	require.NoError(t, tr.RecordSession("conn-b", 2, 11))

	require.NoError(t, tr.PurgeAll())

	for _, boardID := range []int64{1, 2} {
		users, err := tr.ListOnlineUsers(boardID)
		require.NoError(t, err)
		assert.Empty(t, users)
	}
}
