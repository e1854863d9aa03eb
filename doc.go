// Package pstore implements a content-addressed package store: resolve a
// dependency reference (name@version, tarball URL, local directory, OCI
// artifact, or a git commit once a git resolver and fetcher are added via
// WithResolverFactory and WithFetcherFactory) to a concrete identity, fetch it across the
// network at most once per identity, and materialize it atomically under a
// local store directory keyed by that identity.
//
// # Quick start
//
//	s, err := pstore.New(pstore.Config{
//		Registry:  "https://registry.npmjs.org",
//		StorePath: "/var/cache/pstore",
//	})
//	if err != nil {
//		return err
//	}
//	handle, _, err := s.ResolveAndFetch(ctx, pstore.WantedDependency{Pref: "left-pad@1.3.0"})
//	if err != nil {
//		return err
//	}
//	pkg, err := handle.FetchingPkg().Wait(ctx)
//
// # Progress
//
// Register an Observer with WithObserver to receive Event notifications for
// every in-flight ResolveAndFetch call, correlated by Event.RequestID.
//
// # Concurrency
//
// A Store dispatches package downloads through a single bounded-concurrency
// admission queue (Config.NetworkConcurrency) and de-duplicates concurrent
// requests for the same identity onto one in-flight fetch. Registry metadata
// requests made during resolution are not queued.
package pstore
