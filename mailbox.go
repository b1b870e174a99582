package chanbus

import "sync"

// fifo is an unbounded queue with a level-triggered readiness signal.
// push never blocks, which keeps the dispatcher immune to slow receivers.
// Multiple goroutines may wait on the same queue; each item wakes at most
// one of them, and pop re-arms the signal while items remain.
type fifo[T any] struct {
	mu    sync.Mutex
	items []T
	ready chan struct{}
}

func newFifo[T any]() *fifo[T] {
	return &fifo[T]{ready: make(chan struct{}, 1)}
}

func (q *fifo[T]) push(item T) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
	q.signal()
}

func (q *fifo[T]) pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if len(q.items) == 0 {
		return zero, false
	}

	item := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]

	if len(q.items) > 0 {
		q.signal()
	}
	return item, true
}

// wait returns the readiness channel. A receive from it means the queue was
// non-empty at some point since the last pop; callers must still pop in a loop.
func (q *fifo[T]) wait() <-chan struct{} {
	return q.ready
}

func (q *fifo[T]) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *fifo[T]) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
