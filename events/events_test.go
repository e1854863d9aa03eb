package events

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestBusDeliversToAllObservers(t *testing.T) {
	var mu sync.Mutex
	var a, b []Event

	bus := NewBus(
		ObserverFunc(func(e Event) { mu.Lock(); a = append(a, e); mu.Unlock() }),
		ObserverFunc(func(e Event) { mu.Lock(); b = append(b, e); mu.Unlock() }),
	)

	id := uuid.New()
	bus.Emit(Event{Status: StatusResolved, RequestID: id, PkgID: "foo@1.0.0"})

	require := func(n int) bool {
		mu.Lock()
		defer mu.Unlock()
		return len(a) == n && len(b) == n
	}
	deadline := time.Now().Add(time.Second)
	for !require(1) && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, a, 1)
	assert.Len(t, b, 1)
	assert.Equal(t, StatusResolved, a[0].Status)
	assert.Equal(t, id, a[0].RequestID)
}

func TestBusNilIsNoop(t *testing.T) {
	var bus *Bus
	assert.NotPanics(t, func() {
		bus.Emit(Event{Status: StatusError})
	})
}

func TestBusDropsWhenObserverBufferFull(t *testing.T) {
	block := make(chan struct{})
	var delivered int
	var mu sync.Mutex
	bus := NewBus(ObserverFunc(func(e Event) {
		<-block
		mu.Lock()
		delivered++
		mu.Unlock()
	}))

	// Flood well past the buffer size; Emit must never block.
	done := make(chan struct{})
	go func() {
		for range observerBuffer * 4 {
			bus.Emit(Event{Status: StatusFetchingProgress})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a full observer buffer")
	}
	close(block)
}
