package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"whiteboard-backend/internal/model"
)

// LocalService stores rendered images on the local disk, served back through
// the /uploads static route. Fallback for deployments without S3.
type LocalService struct {
	baseDir string
}

// NewLocalService LocalService constructor
func NewLocalService(baseDir string) (*LocalService, error) {
	if err := os.MkdirAll(filepath.Join(baseDir, "whiteboards"), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &LocalService{baseDir: baseDir}, nil
}

// StoreWhiteboardImage copies a rendered PNG under the upload directory.
func (s *LocalService) StoreWhiteboardImage(_ context.Context, board *model.Whiteboard, localPath string) (string, string, error) {
	src, err := os.Open(localPath)
	if err != nil {
		return "", "", fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer src.Close()

	key := fmt.Sprintf("whiteboards/%d-preview-%d.png", board.ID, time.Now().UnixMilli())
	dst, err := os.Create(filepath.Join(s.baseDir, key))
	if err != nil {
		return "", "", fmt.Errorf("failed to create upload file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", "", fmt.Errorf("failed to store render for board %d: %w", board.ID, err)
	}
	return key, "image/png", nil
}

// ObjectURL maps a stored key to its static-route path
func (s *LocalService) ObjectURL(objectKey string) string {
	return "/uploads/" + objectKey
}
