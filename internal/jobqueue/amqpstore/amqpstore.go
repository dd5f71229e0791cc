// Package amqpstore backs the job queue list with RabbitMQ queues.
//
// A queue per list key holds the items; publish appends and basic.get with
// auto-ack removes the head, so every item is handed to exactly one consumer.
// RabbitMQ has no atomic counter, so this package provides only a List.
package amqpstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/cuongbtq/docharvest/internal/jobqueue"
)

// Broker is the subset of the RabbitMQ client the store needs
type Broker interface {
	DeclareQueue(queue string) error
	PublishToQueue(ctx context.Context, queue string, body []byte, contentType string) error
	Get(queue string) ([]byte, bool, error)
	QueueLength(queue string) (int, error)
}

// Store implements jobqueue.List
type Store struct {
	broker Broker

	mu       sync.Mutex
	declared map[string]bool
}

var _ jobqueue.List = (*Store)(nil)

// New creates a new Store instance
func New(broker Broker) *Store {
	return &Store{
		broker:   broker,
		declared: make(map[string]bool),
	}
}

func (s *Store) Push(ctx context.Context, key string, value []byte) error {
	if err := s.ensureQueue(key); err != nil {
		return err
	}
	return s.broker.PublishToQueue(ctx, key, value, "application/json")
}

func (s *Store) Pop(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ensureQueue(key); err != nil {
		return nil, err
	}

	body, ok, err := s.broker.Get(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, jobqueue.ErrEmptyList
	}
	return body, nil
}

func (s *Store) Len(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := s.ensureQueue(key); err != nil {
		return 0, err
	}

	n, err := s.broker.QueueLength(key)
	if err != nil {
		return 0, err
	}
	return int64(n), nil
}

// ensureQueue declares each queue once per Store
func (s *Store) ensureQueue(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.declared[key] {
		return nil
	}
	if err := s.broker.DeclareQueue(key); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", key, err)
	}
	s.declared[key] = true
	return nil
}
