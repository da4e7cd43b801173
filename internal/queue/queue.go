// Package queue is the in-memory priority queue feeding the job worker.
package queue

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	ErrQueueClosed = errors.New("queue is closed")
	ErrQueueFull   = errors.New("queue is full")
)

type Task struct {
	ID        string
	Kind      string
	Priority  int
	CreatedAt time.Time
}

type Queue interface {
	Push(task *Task) error
	Pop(ctx context.Context) (*Task, error)
	Size() int
	Close() error
}

// InMemoryQueue pops the highest priority first and keeps FIFO order among
// equal priorities.
type InMemoryQueue struct {
	mu      sync.Mutex
	tasks   []*Task
	maxSize int
	closed  bool
	// ready holds one token while tasks are waiting.
	ready chan struct{}
	done  chan struct{}
}

// NewInMemoryQueue creates a queue holding at most maxSize tasks; zero
// means unbounded.
func NewInMemoryQueue(maxSize int) *InMemoryQueue {
	return &InMemoryQueue{
		maxSize: maxSize,
		ready:   make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

func (q *InMemoryQueue) Push(task *Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if q.maxSize > 0 && len(q.tasks) >= q.maxSize {
		return ErrQueueFull
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}

	q.tasks = append(q.tasks, task)
	sort.SliceStable(q.tasks, func(i, j int) bool {
		return q.tasks[i].Priority > q.tasks[j].Priority
	})
	q.signal()
	return nil
}

func (q *InMemoryQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Pop blocks until a task is available, the queue is closed and drained,
// or ctx is done.
func (q *InMemoryQueue) Pop(ctx context.Context) (*Task, error) {
	for {
		q.mu.Lock()
		if len(q.tasks) > 0 {
			task := q.tasks[0]
			q.tasks = q.tasks[1:]
			if len(q.tasks) > 0 {
				q.signal()
			}
			q.mu.Unlock()
			return task, nil
		}
		if q.closed {
			q.mu.Unlock()
			return nil, ErrQueueClosed
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.ready:
		case <-q.done:
		}
	}
}

func (q *InMemoryQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Close stops accepting tasks. Tasks already queued can still be popped.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.done)
	}
	return nil
}
