// Package queue implements a thread-safe, optionally bounded FIFO queue with
// blocking put/get, non-blocking variants, and a shutdown signal.
package queue

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Put after Shutdown, and by Get once the queue is
// shut down and drained.
var ErrClosed = errors.New("queue: closed")

const minGrow = 16

// Stats is a point-in-time view of queue activity.
type Stats struct {
	Enqueued      uint64 // items accepted by Put/TryPut
	Dequeued      uint64 // items returned by Get/TryGet
	BlockedPuts   uint64 // Put calls that had to wait for space
	HighWatermark int    // largest length observed
}

// Bounded is a FIFO queue. A capacity of zero or less means unbounded.
// All methods are safe for concurrent use by any number of producers and
// consumers.
type Bounded[T any] struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond

	buf      []T // ring buffer, len(buf) is the current allocation
	head     int
	n        int
	capacity int
	closed   bool
	stats    Stats
}

// New creates a queue holding at most capacity items.
func New[T any](capacity int) *Bounded[T] {
	q := &Bounded[T]{capacity: capacity}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Put appends item to the tail. While the queue is full it blocks until a
// consumer makes room, the queue is shut down (ErrClosed) or ctx ends.
func (q *Bounded[T]) Put(ctx context.Context, item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.full() && !q.closed {
		q.stats.BlockedPuts++
		stop := q.wakeOnDone(ctx, q.notFull)
		defer stop()
		for q.full() && !q.closed {
			if err := ctx.Err(); err != nil {
				return err
			}
			q.notFull.Wait()
		}
	}
	if q.closed {
		return ErrClosed
	}

	q.push(item)
	return nil
}

// TryPut appends item if there is room and the queue is open.
func (q *Bounded[T]) TryPut(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || q.full() {
		return false
	}
	q.push(item)
	return true
}

// Get removes and returns the head item. While the queue is empty it blocks
// until an item arrives, the queue is shut down (ErrClosed) or ctx ends.
// Items buffered before Shutdown are still returned.
func (q *Bounded[T]) Get(ctx context.Context) (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if q.n == 0 && !q.closed {
		stop := q.wakeOnDone(ctx, q.notEmpty)
		defer stop()
		for q.n == 0 && !q.closed {
			if err := ctx.Err(); err != nil {
				return zero, err
			}
			q.notEmpty.Wait()
		}
	}
	if q.n == 0 {
		return zero, ErrClosed
	}

	return q.pop(), nil
}

// TryGet removes and returns the head item if there is one.
func (q *Bounded[T]) TryGet() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.n == 0 {
		var zero T
		return zero, false
	}
	return q.pop(), true
}

// Shutdown marks the queue closed and wakes every blocked caller. It is safe
// to call more than once.
func (q *Bounded[T]) Shutdown() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}

// Len returns the number of buffered items.
func (q *Bounded[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.n
}

// Cap returns the configured capacity; zero or less means unbounded.
func (q *Bounded[T]) Cap() int {
	return q.capacity
}

// Closed reports whether Shutdown has been called.
func (q *Bounded[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Stats returns a copy of the activity counters.
func (q *Bounded[T]) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}

// wakeOnDone broadcasts c when ctx ends so waiters can observe ctx.Err.
// Must be called with q.mu held; the callback takes q.mu itself, so the
// broadcast cannot slip in between a waiter's ctx check and its Wait.
func (q *Bounded[T]) wakeOnDone(ctx context.Context, c *sync.Cond) func() bool {
	return context.AfterFunc(ctx, func() {
		q.mu.Lock()
		c.Broadcast()
		q.mu.Unlock()
	})
}

func (q *Bounded[T]) full() bool {
	return q.capacity > 0 && q.n >= q.capacity
}

// push and pop require q.mu.

func (q *Bounded[T]) push(item T) {
	if q.n == len(q.buf) {
		q.grow()
	}
	q.buf[(q.head+q.n)%len(q.buf)] = item
	q.n++

	q.stats.Enqueued++
	if q.n > q.stats.HighWatermark {
		q.stats.HighWatermark = q.n
	}
	q.notEmpty.Broadcast()
}

func (q *Bounded[T]) pop() T {
	var zero T
	item := q.buf[q.head]
	q.buf[q.head] = zero
	q.head = (q.head + 1) % len(q.buf)
	q.n--

	q.stats.Dequeued++
	q.notFull.Broadcast()
	return item
}

func (q *Bounded[T]) grow() {
	size := 2 * len(q.buf)
	if size < minGrow {
		size = minGrow
	}
	if q.capacity > 0 && size > q.capacity {
		size = q.capacity
	}
	buf := make([]T, size)
	for i := 0; i < q.n; i++ {
		buf[i] = q.buf[(q.head+i)%len(q.buf)]
	}
	q.buf = buf
	q.head = 0
}
