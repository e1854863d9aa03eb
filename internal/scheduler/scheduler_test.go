package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerRunsWithinBudget(t *testing.T) {
	s := New(2, nil)
	var inFlight atomic.Int32
	var maxSeen atomic.Int32

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h := Submit(context.Background(), s, 0, func(ctx context.Context) (int, error) {
				n := inFlight.Add(1)
				for {
					old := maxSeen.Load()
					if n <= old || maxSeen.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				inFlight.Add(-1)
				return 0, nil
			})
			_, err := h.Wait(context.Background())
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, maxSeen.Load(), int32(2))
}

func TestSchedulerPriorityOrdering(t *testing.T) {
	s := New(1, nil)

	// Occupy the single slot so subsequent submissions queue up.
	blocker := make(chan struct{})
	first := Submit(context.Background(), s, 0, func(ctx context.Context) (int, error) {
		<-blocker
		return 0, nil
	})

	time.Sleep(5 * time.Millisecond) // let 'first' be admitted and occupy the slot

	var order []int
	var mu sync.Mutex
	record := func(n int) func(context.Context) (int, error) {
		return func(ctx context.Context) (int, error) {
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
			return n, nil
		}
	}

	low := Submit(context.Background(), s, -1000, record(1))
	high := Submit(context.Background(), s, 1000, record(2))

	close(blocker)
	_, err := first.Wait(context.Background())
	require.NoError(t, err)

	_, err = high.Wait(context.Background())
	require.NoError(t, err)
	_, err = low.Wait(context.Background())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 2)
	assert.Equal(t, 2, order[0], "higher priority item should run first")
	assert.Equal(t, 1, order[1])
}

func TestSchedulerCancellationBeforeAdmission(t *testing.T) {
	s := New(1, nil)
	blocker := make(chan struct{})
	defer close(blocker)
	Submit(context.Background(), s, 0, func(ctx context.Context) (int, error) {
		<-blocker
		return 0, nil
	})
	time.Sleep(5 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	ran := make(chan struct{}, 1)
	h := Submit(ctx, s, 0, func(ctx context.Context) (int, error) {
		ran <- struct{}{}
		return 0, nil
	})
	cancel()

	select {
	case <-ran:
		t.Fatal("canceled task should not have run")
	case <-time.After(20 * time.Millisecond):
	}

	_, err := h.Wait(context.Background())
	assert.Error(t, err)
}

// TestPriorityRotationSettlesApproximatelyOneInConcurrency exercises the
// counter%concurrency deferred-priority scheme coordinator/stage.go's
// doFetchToStore builds on top of NextCounter: roughly 1/concurrency of a
// batch should land on the deferred-priority counter value, and every task
// of the batch, deferred or not, completes once the slots free up.
func TestPriorityRotationSettlesApproximatelyOneInConcurrency(t *testing.T) {
	const concurrency = 4
	s := New(concurrency, nil)

	// Occupy every slot so the batch below queues up under real contention.
	blocker := make(chan struct{})
	occupy := make([]*Handle[int], concurrency)
	for i := range occupy {
		occupy[i] = Submit(context.Background(), s, 1000, func(ctx context.Context) (int, error) {
			<-blocker
			return 0, nil
		})
	}
	time.Sleep(5 * time.Millisecond)

	const n = concurrency * 50
	handles := make([]*Handle[int], n)
	deferredCount := 0
	for i := range n {
		counter := s.NextCounter()
		priority := 1000
		if counter%uint64(concurrency) == 0 {
			priority = -1000
			deferredCount++
		}
		handles[i] = Submit(context.Background(), s, priority, func(ctx context.Context) (int, error) {
			return 0, nil
		})
	}

	close(blocker)
	for _, h := range occupy {
		_, err := h.Wait(context.Background())
		require.NoError(t, err)
	}
	for _, h := range handles {
		_, err := h.Wait(context.Background())
		require.NoError(t, err)
	}

	want := float64(n) / float64(concurrency)
	assert.InDelta(t, want, float64(deferredCount), want*0.3,
		"expected roughly 1/concurrency of submissions to land on the deferred-priority counter")
}

func TestNextCounterMonotonic(t *testing.T) {
	s := New(4, nil)
	prev := uint64(0)
	for range 100 {
		n := s.NextCounter()
		assert.Greater(t, n, prev)
		prev = n
	}
}
