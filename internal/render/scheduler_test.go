package render

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whiteboard-backend/internal/config"
	"whiteboard-backend/internal/model"
)

func TestMemoryDirtySetMarkAndDrain(t *testing.T) {
	ctx := context.Background()
	set := NewMemoryDirtySet()

	require.NoError(t, set.Mark(ctx, 1))
	require.NoError(t, set.Mark(ctx, 2))
	require.NoError(t, set.Mark(ctx, 1)) // marking twice is one entry

	ids, err := set.Drain(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 2}, ids)

	// drain empties the set
	ids, err = set.Drain(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestRunBatchIsolatesFailures(t *testing.T) {
	db := newTestDB(t)
	sup, elements := newSupervisor(t, db, writeWorker(t, goodWorker), 5*time.Second)

	// broken renders with a worker failure; healthy succeeds
	broken := seedBoard(t, db, elements, "failme")
	healthy := seedBoard(t, db, elements, "rect")

	dirty := NewMemoryDirtySet()
	sched := NewScheduler(db, sup, dirty, config.RenderConfig{Interval: time.Hour})
	sched.MarkDirty(broken.ID)
	sched.MarkDirty(healthy.ID)

	sched.runBatch()

	var refreshed model.Whiteboard
	require.NoError(t, db.First(&refreshed, healthy.ID).Error)
	require.NotNil(t, refreshed.ImageURL)
	assert.Contains(t, *refreshed.ImageURL, "/uploads/whiteboards/")

	var untouched model.Whiteboard
	require.NoError(t, db.First(&untouched, broken.ID).Error)
	assert.Nil(t, untouched.ImageURL)
}

func TestRunBatchSkipsDeletedAndEmptyBoards(t *testing.T) {
	db := newTestDB(t)
	sup, elements := newSupervisor(t, db, writeWorker(t, goodWorker), 5*time.Second)

	deleted := seedBoard(t, db, elements, "rect")
	require.NoError(t, db.Model(deleted).Update("deleted", true).Error)

	empty := &model.Whiteboard{CourseID: 1, Title: "empty"}
	require.NoError(t, db.Create(empty).Error)

	dirty := NewMemoryDirtySet()
	sched := NewScheduler(db, sup, dirty, config.RenderConfig{Interval: time.Hour})
	sched.MarkDirty(deleted.ID)
	sched.MarkDirty(empty.ID)
	sched.MarkDirty(99999) // vanished entirely

	sched.runBatch()

	var after model.Whiteboard
	require.NoError(t, db.First(&after, deleted.ID).Error)
	assert.Nil(t, after.ImageURL)
}

func TestSchedulerStopWaitsForLoop(t *testing.T) {
	db := newTestDB(t)
	sup, _ := newSupervisor(t, db, writeWorker(t, goodWorker), time.Second)

	sched := NewScheduler(db, sup, NewMemoryDirtySet(), config.RenderConfig{Interval: 10 * time.Millisecond})
	sched.Start()
	time.Sleep(30 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		sched.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}
