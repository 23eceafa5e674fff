package store

import (
	"fmt"
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

func payload(id, typ string) model.ElementPayload {
	return model.ElementPayload{
		ID:    id,
		Type:  typ,
		Extra: map[string]any{"x": float64(1), "y": float64(2)},
	}
}

func TestAddAssignsSequentialLayers(t *testing.T) {
	s := NewElementStore(newTestDB(t))

	for i := 0; i < 3; i++ {
		saved, err := s.Add(1, payload(fmt.Sprintf("el-%d", i), "rect"))
		require.NoError(t, err)
		assert.Equal(t, i, saved.Layer)
	}

	count, err := s.Count(1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestAddWithSeenIDReplacesKeepingLayer(t *testing.T) {
	s := NewElementStore(newTestDB(t))

	_, err := s.Add(1, payload("el-0", "rect"))
	require.NoError(t, err)
	_, err = s.Add(1, payload("el-1", "rect"))
	require.NoError(t, err)

	// re-adding el-0 replaces it wholesale but its layer stays 0
	again := payload("el-0", "sticker")
	again.Extra["x"] = float64(99)
	saved, err := s.Add(1, again)
	require.NoError(t, err)
	assert.Equal(t, 0, saved.Layer)

	count, err := s.Count(1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	records, err := s.List(1)
	require.NoError(t, err)
	p, err := model.PayloadFromRecord(records[0])
	require.NoError(t, err)
	assert.Equal(t, "sticker", p.Type)
	assert.Equal(t, float64(99), p.Extra["x"])
}

func TestUpdateReplacesWholePayload(t *testing.T) {
	s := NewElementStore(newTestDB(t))

	_, err := s.Add(1, payload("el-0", "rect"))
	require.NoError(t, err)

	updated := model.ElementPayload{
		ID:    "el-0",
		Type:  "rect",
		Extra: map[string]any{"rotation": float64(45)},
	}
	require.NoError(t, s.Update(1, updated))

	records, err := s.List(1)
	require.NoError(t, err)
	require.Len(t, records, 1)

	p, err := model.PayloadFromRecord(records[0])
	require.NoError(t, err)
	// whole-element replace: the old x/y fields are gone
	assert.NotContains(t, p.Extra, "x")
	assert.Equal(t, float64(45), p.Extra["rotation"])
}

func TestDeleteCompactsLayers(t *testing.T) {
	s := NewElementStore(newTestDB(t))

	for i := 0; i < 5; i++ {
		_, err := s.Add(1, payload(fmt.Sprintf("el-%d", i), "rect"))
		require.NoError(t, err)
	}

	moved, err := s.Delete(1, []string{"el-1", "el-3"})
	require.NoError(t, err)

	// el-2 (2→1) and el-4 (4→2) moved; el-0 stayed at 0
	require.Len(t, moved, 2)
	movedIDs := []string{moved[0].ID, moved[1].ID}
	assert.ElementsMatch(t, []string{"el-2", "el-4"}, movedIDs)

	records, err := s.List(1)
	require.NoError(t, err)
	require.Len(t, records, 3)
	for i, rec := range records {
		assert.Equal(t, i, rec.Layer, "layers must be dense from 0")
	}
}

func TestDeleteOfTopLayerMovesNothing(t *testing.T) {
	s := NewElementStore(newTestDB(t))

	for i := 0; i < 3; i++ {
		_, err := s.Add(1, payload(fmt.Sprintf("el-%d", i), "rect"))
		require.NoError(t, err)
	}

	moved, err := s.Delete(1, []string{"el-2"})
	require.NoError(t, err)
	assert.Empty(t, moved)
}

func TestOperationReplayMatchesState(t *testing.T) {
	// replaying the persisted set must reconstruct the board: same ids, same
	// draw order, same payload content
	s := NewElementStore(newTestDB(t))

	_, err := s.Add(7, payload("a", "rect"))
	require.NoError(t, err)
	_, err = s.Add(7, payload("b", "path"))
	require.NoError(t, err)
	_, err = s.Add(7, payload("c", "sticker"))
	require.NoError(t, err)
	require.NoError(t, s.Update(7, model.ElementPayload{ID: "b", Type: "path", Layer: 1, Extra: map[string]any{"w": float64(3)}}))
	_, err = s.Delete(7, []string{"a"})
	require.NoError(t, err)

	records, err := s.List(7)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "b", records[0].ElementID)
	assert.Equal(t, "c", records[1].ElementID)

	p, err := model.PayloadFromRecord(records[0])
	require.NoError(t, err)
	assert.Equal(t, float64(3), p.Extra["w"])
}

func TestBoardsAreIsolated(t *testing.T) {
	s := NewElementStore(newTestDB(t))

	_, err := s.Add(1, payload("el-0", "rect"))
	require.NoError(t, err)
	_, err = s.Add(2, payload("el-0", "rect"))
	require.NoError(t, err)

	_, err = s.Delete(1, []string{"el-0"})
	require.NoError(t, err)

	count, err := s.Count(2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestBulkInsertPreservesOrder(t *testing.T) {
	s := NewElementStore(newTestDB(t))

	payloads := []model.ElementPayload{
		{ID: "x", Type: "rect", Layer: 0},
		{ID: "y", Type: "rect", Layer: 1},
	}
	require.NoError(t, s.BulkInsert(3, payloads))

	records, err := s.List(3)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "x", records[0].ElementID)
	assert.Equal(t, "y", records[1].ElementID)
}
