package flow

import (
	"container/heap"
	"context"
	"sync"
)

// Frontier is a bounded work queue that hands items out in ascending Order.
//
// The dispatch stage enqueues review tasks ordered by task ID and a pool of
// workers consumes them; the heap guarantees the lowest pending ID is
// dispatched first no matter how goroutines interleave, and the bounded
// token channel provides backpressure when producers outrun consumers.
//
// Thread-safe. Close the frontier after the last Enqueue; Dequeue drains
// remaining items and then reports ErrFrontierClosed.
type Frontier[T any] struct {
	mu        sync.Mutex
	heap      itemHeap[T]
	tokens    chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
}

type frontierItem[T any] struct {
	order int
	value T
}

type itemHeap[T any] []frontierItem[T]

func (h itemHeap[T]) Len() int            { return len(h) }
func (h itemHeap[T]) Less(i, j int) bool  { return h[i].order < h[j].order }
func (h itemHeap[T]) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *itemHeap[T]) Push(x interface{}) { *h = append(*h, x.(frontierItem[T])) }
func (h *itemHeap[T]) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// NewFrontier creates a frontier holding at most capacity items before
// Enqueue blocks.
func NewFrontier[T any](capacity int) *Frontier[T] {
	if capacity < 1 {
		capacity = 1
	}
	f := &Frontier[T]{
		heap:   make(itemHeap[T], 0, capacity),
		tokens: make(chan struct{}, capacity),
		closed: make(chan struct{}),
	}
	heap.Init(&f.heap)
	return f
}

// Enqueue adds an item with the given dispatch order. Blocks while the
// queue is full; returns the context error on cancellation and
// ErrFrontierClosed after Close.
func (f *Frontier[T]) Enqueue(ctx context.Context, order int, value T) error {
	select {
	case <-f.closed:
		return ErrFrontierClosed
	default:
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	f.mu.Lock()
	heap.Push(&f.heap, frontierItem[T]{order: order, value: value})
	f.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.closed:
		return ErrFrontierClosed
	case f.tokens <- struct{}{}:
		return nil
	}
}

// Dequeue removes and returns the item with the smallest order. Blocks
// until an item is available, the context is cancelled, or the frontier is
// closed and drained.
func (f *Frontier[T]) Dequeue(ctx context.Context) (T, error) {
	var zero T

	if ctx.Err() != nil {
		return zero, ctx.Err()
	}

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-f.tokens:
		return f.popMin(), nil
	case <-f.closed:
		// Drain whatever was enqueued before the close.
		select {
		case <-f.tokens:
			return f.popMin(), nil
		default:
			return zero, ErrFrontierClosed
		}
	}
}

func (f *Frontier[T]) popMin() T {
	f.mu.Lock()
	defer f.mu.Unlock()
	item := heap.Pop(&f.heap).(frontierItem[T])
	return item.value
}

// Close marks the frontier complete. Pending items remain dequeueable;
// subsequent Enqueue calls fail with ErrFrontierClosed.
func (f *Frontier[T]) Close() {
	f.closeOnce.Do(func() { close(f.closed) })
}

// Len reports the number of queued items.
func (f *Frontier[T]) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.heap.Len()
}
