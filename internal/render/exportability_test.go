package render

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"whiteboard-backend/internal/database"
	"whiteboard-backend/internal/model"
	"whiteboard-backend/internal/store"
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

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }
func i64Ptr(i int64) *int64   { return &i }

func TestClassify(t *testing.T) {
	done := &model.LibraryAsset{
		PreviewStatus: model.PreviewStatusDone,
		ImageURL:      strPtr("https://cdn/x.png"),
		ThumbWidth:    intPtr(128),
	}

	tests := []struct {
		name    string
		payload model.ElementPayload
		asset   *model.LibraryAsset
		want    Readiness
	}{
		{"no asset reference", model.ElementPayload{ID: "a"}, nil, ReadinessExportable},
		{"missing asset", model.ElementPayload{ID: "a", AssetID: i64Ptr(1)}, nil, ReadinessErrored},
		{"failed asset", model.ElementPayload{ID: "a", AssetID: i64Ptr(1)},
			&model.LibraryAsset{PreviewStatus: model.PreviewStatusError}, ReadinessErrored},
		{"pending asset", model.ElementPayload{ID: "a", AssetID: i64Ptr(1)},
			&model.LibraryAsset{PreviewStatus: model.PreviewStatusPending}, ReadinessPending},
		{"done without image yet", model.ElementPayload{ID: "a", AssetID: i64Ptr(1)},
			&model.LibraryAsset{PreviewStatus: model.PreviewStatusDone}, ReadinessPending},
		{"ready asset", model.ElementPayload{ID: "a", AssetID: i64Ptr(1)}, done, ReadinessExportable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.payload, tt.asset))
		})
	}
}

func TestCheckExportabilityPartitions(t *testing.T) {
	db := newTestDB(t)
	s := store.NewElementStore(db)

	ready := model.LibraryAsset{
		Title:         "ready",
		PreviewStatus: model.PreviewStatusDone,
		ImageURL:      strPtr("https://cdn/ready.png"),
		ThumbWidth:    intPtr(128),
	}
	pending := model.LibraryAsset{Title: "pending", PreviewStatus: model.PreviewStatusPending}
	broken := model.LibraryAsset{Title: "broken", PreviewStatus: model.PreviewStatusError}
	require.NoError(t, db.Create(&ready).Error)
	require.NoError(t, db.Create(&pending).Error)
	require.NoError(t, db.Create(&broken).Error)

	_, err := s.Add(1, model.ElementPayload{ID: "plain", Type: "rect"})
	require.NoError(t, err)
	_, err = s.Add(1, model.ElementPayload{ID: "ok", Type: "image", AssetID: &ready.ID})
	require.NoError(t, err)
	_, err = s.Add(1, model.ElementPayload{ID: "wait", Type: "image", AssetID: &pending.ID})
	require.NoError(t, err)
	_, err = s.Add(1, model.ElementPayload{ID: "bad", Type: "image", AssetID: &broken.ID})
	require.NoError(t, err)

	records, err := s.List(1)
	require.NoError(t, err)

	result, err := CheckExportability(db, 1, records)
	require.NoError(t, err)

	ids := func(ps []model.ElementPayload) []string {
		out := make([]string, 0, len(ps))
		for _, p := range ps {
			out = append(out, p.ID)
		}
		return out
	}
	assert.ElementsMatch(t, []string{"plain", "ok"}, ids(result.Exportable))
	assert.Equal(t, []string{"wait"}, result.Pending)
	assert.Equal(t, []string{"bad"}, result.Errored)
}

func TestCheckExportabilityRefreshesStaleAssetURL(t *testing.T) {
	db := newTestDB(t)
	s := store.NewElementStore(db)

	asset := model.LibraryAsset{
		Title:         "ready",
		PreviewStatus: model.PreviewStatusDone,
		ImageURL:      strPtr("https://cdn/fresh.png"),
		ThumbWidth:    intPtr(128),
	}
	require.NoError(t, db.Create(&asset).Error)

	p := model.ElementPayload{ID: "el", Type: "image", AssetID: &asset.ID}
	p.SetAssetURL("https://cdn/stale.png")
	_, err := s.Add(1, p)
	require.NoError(t, err)

	records, err := s.List(1)
	require.NoError(t, err)

	result, err := CheckExportability(db, 1, records)
	require.NoError(t, err)
	require.Len(t, result.Exportable, 1)
	assert.Equal(t, "https://cdn/fresh.png", result.Exportable[0].AssetURL())

	// the refresh is persisted, not just returned
	records, err = s.List(1)
	require.NoError(t, err)
	stored, err := model.PayloadFromRecord(records[0])
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/fresh.png", stored.AssetURL())
}

func TestGatePrecedence(t *testing.T) {
	e := &Exportability{Pending: []string{"a"}, Errored: []string{"b"}}
	assert.ErrorIs(t, e.Gate(), ErrAssetsBroken)

	e = &Exportability{Pending: []string{"a"}}
	assert.ErrorIs(t, e.Gate(), ErrAssetsPending)

	e = &Exportability{}
	assert.NoError(t, e.Gate())
}
