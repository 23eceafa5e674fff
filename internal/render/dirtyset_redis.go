package render

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisDirtyKey = "whiteboard:thumbnails:dirty"

// RedisDirtySet shares the pending set across instances. Extension point for
// multi-instance deployments; behavior matches MemoryDirtySet.
type RedisDirtySet struct {
	client *redis.Client
}

// NewRedisDirtySet connects and pings the Redis backend
func NewRedisDirtySet(addr, password string, db int) (*RedisDirtySet, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisDirtySet{client: client}, nil
}

// Mark adds the board to the shared pending set
func (s *RedisDirtySet) Mark(ctx context.Context, whiteboardID int64) error {
	return s.client.SAdd(ctx, redisDirtyKey, whiteboardID).Err()
}

// Drain pops the entire pending set
func (s *RedisDirtySet) Drain(ctx context.Context) ([]int64, error) {
	card, err := s.client.SCard(ctx, redisDirtyKey).Result()
	if err != nil {
		return nil, err
	}
	if card == 0 {
		return nil, nil
	}

	members, err := s.client.SPopN(ctx, redisDirtyKey, card).Result()
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(members))
	for _, m := range members {
		if id, err := strconv.ParseInt(m, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
