// Package events implements the store's observability bus (C8): structured,
// fire-and-forget progress events keyed by package identity, delivered to
// registered observers without blocking the fetch pipeline.
package events

import "github.com/google/uuid"

// Status identifies the stage a progress event describes.
type Status string

const (
	StatusResolved         Status = "resolved"
	StatusResolvingContent Status = "resolving_content"
	StatusFoundInStore     Status = "found_in_store"
	StatusFetchingStarted  Status = "fetching_started"
	StatusFetchingProgress Status = "fetching_progress"
	StatusFetched          Status = "fetched"
	StatusError            Status = "error"
)

// Event is a single observability event. RequestID correlates every event
// emitted for one ResolveAndFetch call, the way the teacher truncates
// digests for log display but for trace correlation instead.
type Event struct {
	Status     Status
	RequestID  uuid.UUID
	PkgID      string
	Size       int64
	Attempt    int
	Downloaded int64
	Err        error
}

// Observer receives events. Implementations must not block; the bus treats
// a slow observer as a reason to drop events, never to stall publishers.
type Observer interface {
	Handle(Event)
}

// ObserverFunc adapts a function to an Observer.
type ObserverFunc func(Event)

// Handle calls f(e).
func (f ObserverFunc) Handle(e Event) { f(e) }

const observerBuffer = 64

// Bus fans events out to registered observers on independent buffered
// channels, so one slow or blocked observer cannot hold up another, or the
// caller emitting the event.
type Bus struct {
	sinks []chan Event
}

// NewBus creates a Bus with the given observers already registered.
func NewBus(observers ...Observer) *Bus {
	b := &Bus{}
	for _, o := range observers {
		b.Register(o)
	}
	return b
}

// Register adds an observer and starts its dedicated dispatch goroutine.
func (b *Bus) Register(o Observer) {
	ch := make(chan Event, observerBuffer)
	b.sinks = append(b.sinks, ch)
	go func() {
		for e := range ch {
			o.Handle(e)
		}
	}()
}

// Emit delivers e to every registered observer. Delivery is fire-and-forget:
// if an observer's buffer is full, the event is dropped for that observer
// rather than blocking the caller.
func (b *Bus) Emit(e Event) {
	if b == nil {
		return
	}
	for _, ch := range b.sinks {
		select {
		case ch <- e:
		default:
		}
	}
}
