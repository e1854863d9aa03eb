// Package scheduler implements the process-wide, bounded-concurrency admission
// queue that fronts package fetches (C1 in the store's design). Registry
// metadata requests made during resolution do not pass through it.
//
// The queue serializes only admission, not the work itself: once a task is
// let through, it runs concurrently with every other admitted task up to the
// configured budget. Priority only affects queue order among tasks still
// waiting for a slot.
package scheduler

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Scheduler admits tasks against a shared concurrency budget, highest
// priority first, FIFO within equal priority.
type Scheduler struct {
	sem     *semaphore.Weighted
	logger  *slog.Logger
	counter atomic.Uint64

	mu       sync.Mutex
	queue    priorityQueue
	sequence uint64
	wake     chan struct{}
}

// New creates a Scheduler admitting up to concurrency tasks at once.
// A concurrency of 0 or less defaults to 16, matching the store's default
// networkConcurrency.
func New(concurrency int, logger *slog.Logger) *Scheduler {
	if concurrency <= 0 {
		concurrency = 16
	}
	s := &Scheduler{
		sem:    semaphore.NewWeighted(int64(concurrency)),
		logger: logger,
		wake:   make(chan struct{}, 1),
	}
	go s.dispatchLoop()
	return s
}

func (s *Scheduler) log() *slog.Logger {
	if s.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.logger
}

// NextCounter returns the scheduler's monotonically increasing submission
// counter, used by the fetch coordinator to compute the priority-rotation
// scheme described in the design notes.
func (s *Scheduler) NextCounter() uint64 {
	return s.counter.Add(1)
}

// queueItem is the type-erased unit of admission. start is invoked once a
// slot is free; it must not block beyond spawning the actual task.
type queueItem struct {
	priority int
	sequence uint64
	start    func()
}

// Submit enqueues task, admitting it once a concurrency slot is free and
// it is the highest-priority item still waiting. Higher priority values run
// sooner; ties break FIFO by submission order.
//
// If ctx is canceled before the task is admitted, the item is dropped from
// the queue and task is never called. Once admitted, cancellation no
// longer stops the task — it runs to completion per the "cancellation" rule
// in the concurrency model.
func Submit[T any](ctx context.Context, s *Scheduler, priority int, task func(ctx context.Context) (T, error)) *Handle[T] {
	h := &Handle[T]{done: make(chan struct{})}

	item := &queueItem{}
	item.start = func() {
		go func() {
			defer s.sem.Release(1)
			v, err := task(ctx)
			h.val, h.err = v, err
			close(h.done)
		}()
	}

	s.mu.Lock()
	s.sequence++
	item.priority = priority
	item.sequence = s.sequence
	heap.Push(&s.queue, item)
	s.mu.Unlock()
	s.signal()

	context.AfterFunc(ctx, func() {
		if s.dequeueIfWaiting(item) {
			h.err = ctx.Err()
			close(h.done)
		}
	})

	return h
}

// Handle is the result of a scheduled task. It is distinct from future.Future
// so this package stays free of a dependency on the coordinator's future
// wiring; callers typically bridge Handle into a future.Future themselves.
type Handle[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Wait blocks until the task completes or ctx is done.
func (h *Handle[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-h.done:
		return h.val, h.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// dequeueIfWaiting removes item from the queue if the dispatch loop has not
// yet popped it. heap.Remove and the dispatch loop's heap.Pop both run under
// s.mu, so whichever happens first is authoritative: if this call finds the
// item still present, the dispatch loop can never see it; if it doesn't,
// the dispatch loop already committed to starting it and will settle the
// handle itself. It reports whether the item was removed.
func (s *Scheduler) dequeueIfWaiting(item *queueItem) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, other := range s.queue {
		if other == item {
			heap.Remove(&s.queue, i)
			return true
		}
	}
	return false
}

// dispatchLoop is the sole consumer of the queue: it blocks for a semaphore
// slot, then pops the highest-priority item still waiting, and launches the
// item's task. Acquiring the slot before popping is what keeps the queue's
// FIFO/priority ordering meaningful — an item submitted while the loop waits
// for a slot can still overtake lower-priority ones, and an item canceled
// while waiting is still in the queue to be dropped.
func (s *Scheduler) dispatchLoop() {
	for range s.wake {
		for {
			s.mu.Lock()
			empty := s.queue.Len() == 0
			s.mu.Unlock()
			if empty {
				break
			}

			if err := s.sem.Acquire(context.Background(), 1); err != nil {
				continue
			}
			s.mu.Lock()
			if s.queue.Len() == 0 {
				s.mu.Unlock()
				s.sem.Release(1)
				break
			}
			item := heap.Pop(&s.queue).(*queueItem)
			s.mu.Unlock()
			item.start()
		}
	}
}

type priorityQueue []*queueItem

func (q priorityQueue) Len() int { return len(q) }
func (q priorityQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority > q[j].priority
	}
	return q[i].sequence < q[j].sequence
}
func (q priorityQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *priorityQueue) Push(x any)   { *q = append(*q, x.(*queueItem)) }
func (q *priorityQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}
