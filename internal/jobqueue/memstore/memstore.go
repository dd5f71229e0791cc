// Package memstore is an in-process Counter and List for tests and single-process runs.
package memstore

import (
	"context"
	"sync"

	"github.com/cuongbtq/docharvest/internal/jobqueue"
)

// Store keeps counters and lists in maps guarded by one mutex.
// Values are copied on push and pop.
type Store struct {
	mu       sync.Mutex
	counters map[string]int64
	lists    map[string][][]byte
}

var (
	_ jobqueue.Counter = (*Store)(nil)
	_ jobqueue.List    = (*Store)(nil)
)

// New returns an empty Store
func New() *Store {
	return &Store{
		counters: make(map[string]int64),
		lists:    make(map[string][][]byte),
	}
}

func (s *Store) Incr(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[key]++
	return s.counters[key], nil
}

func (s *Store) Push(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cp := make([]byte, len(value))
	copy(cp, value)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists[key] = append(s.lists[key], cp)
	return nil
}

func (s *Store) Pop(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.lists[key]
	if len(items) == 0 {
		return nil, jobqueue.ErrEmptyList
	}
	head := items[0]
	items[0] = nil
	s.lists[key] = items[1:]
	return head, nil
}

func (s *Store) Len(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.lists[key])), nil
}
