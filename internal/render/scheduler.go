package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"gorm.io/gorm"

	"whiteboard-backend/internal/config"
	"whiteboard-backend/internal/model"
)

// Scheduler is the debounced thumbnail job. Mutations mark boards dirty; the
// loop drains the whole set every interval and renders sequentially. The
// timer rearms only after a batch completes, so batches never overlap even
// when one overruns the nominal interval.
type Scheduler struct {
	db         *gorm.DB
	supervisor *Supervisor
	dirty      DirtySet
	interval   time.Duration

	previewServiceURL string
	httpClient        *http.Client

	stop chan struct{}
	done chan struct{}
}

// NewScheduler Scheduler constructor
func NewScheduler(db *gorm.DB, supervisor *Supervisor, dirty DirtySet, cfg config.RenderConfig) *Scheduler {
	return &Scheduler{
		db:                db,
		supervisor:        supervisor,
		dirty:             dirty,
		interval:          cfg.Interval,
		previewServiceURL: cfg.PreviewServiceURL,
		httpClient:        &http.Client{Timeout: 10 * time.Second},
		stop:              make(chan struct{}),
		done:              make(chan struct{}),
	}
}

// MarkDirty flags a board for the next batch. Every mutating protocol
// operation calls this; failures are logged, never surfaced to the writer.
func (s *Scheduler) MarkDirty(whiteboardID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := s.dirty.Mark(ctx, whiteboardID); err != nil {
		log.Printf("[Thumbnails] Failed to mark board %d dirty: %v", whiteboardID, err)
	}
}

// Start launches the scheduler loop
func (s *Scheduler) Start() {
	go s.run()
	log.Printf("[Thumbnails] Scheduler started (interval %s)", s.interval)
}

// Stop terminates the loop and waits for the current batch to finish
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Scheduler) run() {
	defer close(s.done)

	// A one-shot timer rearmed after each batch, not a ticker: a batch that
	// overruns the interval must not be overlapped by the next one.
	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-timer.C:
			s.runBatch()
			timer.Reset(s.interval)
		}
	}
}

// runBatch drains the pending set and renders each board sequentially. One
// board's failure is logged and must not abort the rest of the batch.
func (s *Scheduler) runBatch() {
	ctx := context.Background()

	ids, err := s.dirty.Drain(ctx)
	if err != nil {
		log.Printf("[Thumbnails] Failed to drain pending set: %v", err)
		return
	}
	if len(ids) == 0 {
		return
	}

	log.Printf("[Thumbnails] Refreshing %d board(s)", len(ids))
	for _, id := range ids {
		if err := s.refreshBoard(ctx, id); err != nil {
			log.Printf("[Thumbnails] Board %d refresh failed: %v", id, err)
		}
	}
}

func (s *Scheduler) refreshBoard(ctx context.Context, whiteboardID int64) error {
	var board model.Whiteboard
	err := s.db.Where("id = ? AND deleted = ?", whiteboardID, false).First(&board).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil // deleted since it was marked; nothing to refresh
	}
	if err != nil {
		return err
	}

	result, err := s.supervisor.Render(ctx, &board)
	if errors.Is(err, ErrEmptyBoard) {
		return nil // cleared since it was marked
	}
	if err != nil {
		return err
	}

	err = s.db.Model(&model.Whiteboard{}).
		Where("id = ?", board.ID).
		Update("image_url", result.URL).Error
	if err != nil {
		return err
	}

	// Secondary thumbnail generation is asynchronous and must not block the
	// batch loop; the result arrives later through the callback endpoint.
	if s.previewServiceURL != "" {
		go s.requestPreview(board.ID, result.URL)
	}

	return nil
}

// requestPreview fires the external preview-generation request.
// Fire-and-forget: failures are logged, never retried by this core.
func (s *Scheduler) requestPreview(whiteboardID int64, imageURL string) {
	body, err := json.Marshal(map[string]interface{}{
		"id":    whiteboardID,
		"image": imageURL,
	})
	if err != nil {
		log.Printf("[Thumbnails] Failed to build preview request for board %d: %v", whiteboardID, err)
		return
	}

	resp, err := s.httpClient.Post(s.previewServiceURL, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Printf("[Thumbnails] Preview request for board %d failed: %v", whiteboardID, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		log.Printf("[Thumbnails] Preview service returned %d for board %d", resp.StatusCode, whiteboardID)
	}
}
