package notifications

import (
	"context"
	"sync"

	"peermesh/pkg/domain"
)

// Queue holds notifications for peers whose relationship is terminated.
// Drain returns them in original enqueue order and removes them.
type Queue interface {
	Enqueue(ctx context.Context, notification *Notification) error
	Drain(ctx context.Context, peer domain.Address) ([]*Notification, error)
	Len(ctx context.Context, peer domain.Address) (int, error)
}

// InMemoryQueue is the default queue. Slices per peer keep FIFO order.
type InMemoryQueue struct {
	mu   sync.Mutex
	held map[domain.Address][]*Notification
}

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{held: make(map[domain.Address][]*Notification)}
}

func (q *InMemoryQueue) Enqueue(_ context.Context, notification *Notification) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.held[notification.Peer] = append(q.held[notification.Peer], notification)
	return nil
}

func (q *InMemoryQueue) Drain(_ context.Context, peer domain.Address) ([]*Notification, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	held := q.held[peer]
	delete(q.held, peer)
	return held, nil
}

func (q *InMemoryQueue) Len(_ context.Context, peer domain.Address) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.held[peer]), nil
}
