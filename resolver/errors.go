package resolver

import "errors"

// ErrNotFound is returned by a resolver when the requested package does
// not exist at the source it consulted.
var ErrNotFound = errors.New("resolver: not found")

// ErrNetwork wraps a transport-level failure encountered while resolving.
var ErrNetwork = errors.New("resolver: network error")

// ErrBadPref is returned when no registered resolver claims a pref.
var ErrBadPref = errors.New("resolver: unrecognized dependency reference")

// ErrOfflineMiss is returned when Options.Offline is set and no cached
// metadata is sufficient to resolve without network access.
var ErrOfflineMiss = errors.New("resolver: offline, not cached")

// ErrResolverFailure wraps any error returned by a claimed resolver.
var ErrResolverFailure = errors.New("resolver: resolver failed")
