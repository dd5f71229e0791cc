// Package redisstore backs the job queue with Redis INCR, RPUSH, LPOP and LLEN.
package redisstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/cuongbtq/docharvest/internal/jobqueue"
)

// Store implements jobqueue.Counter and jobqueue.List on a Redis client.
// Each operation is a single Redis command and therefore atomic server-side.
type Store struct {
	client redis.Cmdable
}

var (
	_ jobqueue.Counter = (*Store)(nil)
	_ jobqueue.List    = (*Store)(nil)
)

// New creates a Store on an already connected client
func New(client redis.Cmdable) *Store {
	return &Store{client: client}
}

func (s *Store) Incr(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment %s: %w", key, err)
	}
	return n, nil
}

// Push appends to the tail so Pop from the head yields FIFO order.
func (s *Store) Push(ctx context.Context, key string, value []byte) error {
	if err := s.client.RPush(ctx, key, value).Err(); err != nil {
		return fmt.Errorf("failed to push to %s: %w", key, err)
	}
	return nil
}

func (s *Store) Pop(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.LPop(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, jobqueue.ErrEmptyList
		}
		return nil, fmt.Errorf("failed to pop from %s: %w", key, err)
	}
	return value, nil
}

func (s *Store) Len(ctx context.Context, key string) (int64, error) {
	n, err := s.client.LLen(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get length of %s: %w", key, err)
	}
	return n, nil
}
