package render

import (
	"context"
	"sync"
)

// DirtySet tracks whiteboards whose preview image is stale. Mutating
// operations only mark a board; the scheduler drains the set. Injectable so
// a multi-instance deployment can swap the in-memory default for the shared
// Redis implementation.
type DirtySet interface {
	Mark(ctx context.Context, whiteboardID int64) error
	// Drain atomically removes and returns the whole pending set.
	Drain(ctx context.Context) ([]int64, error)
}

// MemoryDirtySet is the single-instance default.
type MemoryDirtySet struct {
	pending map[int64]bool
	mu      sync.Mutex
}

// NewMemoryDirtySet MemoryDirtySet constructor
func NewMemoryDirtySet() *MemoryDirtySet {
	return &MemoryDirtySet{
		pending: make(map[int64]bool),
	}
}

// Mark records a board as needing a refreshed preview
func (s *MemoryDirtySet) Mark(_ context.Context, whiteboardID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending[whiteboardID] = true
	return nil
}

// Drain removes and returns every pending board id
func (s *MemoryDirtySet) Drain(_ context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	s.pending = make(map[int64]bool)
	return ids, nil
}
