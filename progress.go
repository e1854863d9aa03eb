package pstore

import "github.com/packlock/pstore/events"

// Re-exported so callers implementing an Observer never need to import
// events directly, mirroring the teacher's top-level progress re-exports.

type Event = events.Event
type Status = events.Status
type Observer = events.Observer
type ObserverFunc = events.ObserverFunc

const (
	StatusResolved         = events.StatusResolved
	StatusResolvingContent = events.StatusResolvingContent
	StatusFoundInStore     = events.StatusFoundInStore
	StatusFetchingStarted  = events.StatusFetchingStarted
	StatusFetchingProgress = events.StatusFetchingProgress
	StatusFetched          = events.StatusFetched
	StatusError            = events.StatusError
)
