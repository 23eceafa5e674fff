package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"

	"gorm.io/gorm"

	"whiteboard-backend/internal/config"
	"whiteboard-backend/internal/model"
	"whiteboard-backend/internal/store"
)

// ImageStorage is the external storage collaborator for rendered images.
type ImageStorage interface {
	// StoreWhiteboardImage uploads a local file and returns the durable
	// object key and its content type.
	StoreWhiteboardImage(ctx context.Context, board *model.Whiteboard, localPath string) (objectKey, contentType string, err error)
	// ObjectURL maps an object key to its public URL.
	ObjectURL(objectKey string) string
}

// Result is one successful render.
type Result struct {
	ObjectKey   string
	ContentType string
	URL         string
	Width       int
	Height      int
}

// workerDims is the trailing line the worker emits after the image bytes.
type workerDims struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Supervisor drives the out-of-process rasterizer. Rasterization is CPU-heavy
// and historically leak-prone, so it runs in a separate worker process with a
// hard wall-clock kill rather than sharing this server's memory space.
type Supervisor struct {
	db       *gorm.DB
	elements *store.ElementStore
	storage  ImageStorage
	cfg      config.RenderConfig
}

// NewSupervisor Supervisor constructor
func NewSupervisor(db *gorm.DB, elements *store.ElementStore, storage ImageStorage, cfg config.RenderConfig) *Supervisor {
	return &Supervisor{
		db:       db,
		elements: elements,
		storage:  storage,
		cfg:      cfg,
	}
}

// Render rasterizes the board's current element set into a PNG and uploads
// it. Readiness gating runs first: errored assets fail permanently, pending
// assets fail retryably. The worker is killed after the configured timeout.
func (s *Supervisor) Render(ctx context.Context, board *model.Whiteboard) (*Result, error) {
	records, err := s.elements.List(board.ID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrEmptyBoard
	}

	exportability, err := CheckExportability(s.db, board.ID, records)
	if err != nil {
		return nil, err
	}
	if err := exportability.Gate(); err != nil {
		return nil, err
	}

	png, dims, err := s.runWorker(ctx, board.ID, exportability.Exportable)
	if err != nil {
		return nil, err
	}

	return s.storeResult(ctx, board, png, dims)
}

// runWorker feeds one JSON line of exportable payloads to the worker's stdin
// and splits its stdout into image bytes plus the trailing dimensions line.
func (s *Supervisor) runWorker(ctx context.Context, whiteboardID int64, payloads []model.ElementPayload) ([]byte, workerDims, error) {
	var dims workerDims

	input, err := json.Marshal(payloads)
	if err != nil {
		return nil, dims, fmt.Errorf("failed to serialize elements for board %d: %w", whiteboardID, err)
	}
	input = append(input, '\n')

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.cfg.WorkerCmd, s.cfg.WorkerArgs...)
	cmd.Stdin = bytes.NewReader(input)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		// Spawn failure: fatal, no retry.
		return nil, dims, fmt.Errorf("%w: could not start worker %q: %v", ErrRenderFailed, s.cfg.WorkerCmd, err)
	}

	waitErr := cmd.Wait()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		// The worker was forcibly killed at the wall-clock limit. The caller
		// only sees a generic failure; the timeout itself is logged here.
		log.Printf("[Render] Worker killed after %s for board %d", s.cfg.Timeout, whiteboardID)
		return nil, dims, fmt.Errorf("%w: worker timed out", ErrRenderFailed)
	}
	if waitErr != nil {
		// Non-zero exit is fatal even without a stderr message.
		log.Printf("[Render] Worker failed for board %d: %v, stderr: %s",
			whiteboardID, waitErr, stderrTail(stderr.Bytes()))
		return nil, dims, fmt.Errorf("%w: worker exited abnormally: %v", ErrRenderFailed, waitErr)
	}

	png, dims, err := splitWorkerOutput(stdout.Bytes())
	if err != nil {
		return nil, dims, fmt.Errorf("%w: %v", ErrRenderFailed, err)
	}
	return png, dims, nil
}

// splitWorkerOutput separates raw PNG bytes from the single trailing
// newline-delimited dimensions object. The split is byte-exact: a chunk that
// carries both image bytes and the trailing line must be divided at the last
// newline, since the JSON line itself contains none.
func splitWorkerOutput(out []byte) ([]byte, workerDims, error) {
	var dims workerDims

	out = bytes.TrimSuffix(out, []byte("\n"))
	idx := bytes.LastIndexByte(out, '\n')
	if idx < 0 {
		return nil, dims, fmt.Errorf("worker output missing dimensions line")
	}

	png := out[:idx]
	if err := json.Unmarshal(out[idx+1:], &dims); err != nil {
		return nil, dims, fmt.Errorf("worker emitted malformed dimensions line: %v", err)
	}
	if len(png) == 0 {
		return nil, dims, fmt.Errorf("worker emitted no image bytes")
	}
	return png, dims, nil
}

// storeResult writes the PNG to a temp file, hands it to the storage
// collaborator and removes the temp file on every exit path.
func (s *Supervisor) storeResult(ctx context.Context, board *model.Whiteboard, png []byte, dims workerDims) (*Result, error) {
	tmp, err := os.CreateTemp("", fmt.Sprintf("whiteboard-%d-*.png", board.ID))
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file for board %d: %w", board.ID, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(png); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to write temp file for board %d: %w", board.ID, err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to close temp file for board %d: %w", board.ID, err)
	}

	objectKey, contentType, err := s.storage.StoreWhiteboardImage(ctx, board, tmpPath)
	if err != nil {
		return nil, fmt.Errorf("failed to upload render for board %d: %w", board.ID, err)
	}

	return &Result{
		ObjectKey:   objectKey,
		ContentType: contentType,
		URL:         s.storage.ObjectURL(objectKey),
		Width:       dims.Width,
		Height:      dims.Height,
	}, nil
}

// stderrTail keeps worker diagnostics readable in the log
func stderrTail(b []byte) []byte {
	const max = 512
	if len(b) > max {
		return b[len(b)-max:]
	}
	return b
}
