package pstore

import (
	"log/slog"

	"github.com/packlock/pstore/coordinator"
	"github.com/packlock/pstore/events"
	"github.com/packlock/pstore/fetcher"
	"github.com/packlock/pstore/resolver"
)

// Option configures New, mirroring the teacher's functional-option
// construction of its blob/OCI clients.
type Option func(*storeConfig)

type storeConfig struct {
	resolverFactories []resolver.Factory
	fetcherFactories  []fetcher.Factory
	observers         []events.Observer
	logger            *slog.Logger
	locker            *coordinator.Locker
}

// WithResolverFactory appends an additional resolver.Factory to the
// resolvers consulted by ResolveAndFetch, in the order supplied: after the
// built-in tarball and directory resolvers, ahead of the built-in oci:// and
// semver resolvers.
func WithResolverFactory(f resolver.Factory) Option {
	return func(c *storeConfig) { c.resolverFactories = append(c.resolverFactories, f) }
}

// WithFetcherFactory appends an additional fetcher.Factory, registered
// alongside the built-ins (tarball, directory, oci).
func WithFetcherFactory(f fetcher.Factory) Option {
	return func(c *storeConfig) { c.fetcherFactories = append(c.fetcherFactories, f) }
}

// WithObserver registers an observer on the store's event bus (C8).
func WithObserver(o events.Observer) Option {
	return func(c *storeConfig) { c.observers = append(c.observers, o) }
}

// WithLogger sets the structured logger used across the store's
// components.
func WithLogger(l *slog.Logger) Option {
	return func(c *storeConfig) { c.logger = l }
}

// WithLocker overrides the default process-wide in-flight locker, mainly
// useful for test isolation.
func WithLocker(l *coordinator.Locker) Option {
	return func(c *storeConfig) { c.locker = l }
}

// FetchOption configures a single ResolveAndFetch call.
type FetchOption func(*coordinator.FetchOptions)

// WithRegistry overrides Config.Registry for this call.
func WithRegistry(registry string) FetchOption {
	return func(o *coordinator.FetchOptions) { o.Registry = registry }
}

// WithOffline marks this call offline: resolvers that need the network
// (semver, git, oci) fail with ErrOfflineMiss. Fetchers do not consult it, so a
// pref resolved without the network (for example a tarball URL) is still
// downloaded.
func WithOffline(offline bool) FetchOption {
	return func(o *coordinator.FetchOptions) { o.Offline = offline }
}

// WithUpdate forces re-resolution even when a ShrinkwrapResolution is
// supplied.
func WithUpdate(update bool) FetchOption {
	return func(o *coordinator.FetchOptions) { o.Update = update }
}

// WithVerifyStoreIntegrity forces strict per-file digest recomputation
// (§3.1) even on a store-index hit.
func WithVerifyStoreIntegrity(verify bool) FetchOption {
	return func(o *coordinator.FetchOptions) { o.VerifyStoreIntegrity = verify }
}

// WithPkgID threads an explicit scope/name hint to resolvers that need one
// (npm aliasing).
func WithPkgID(pkgID string) FetchOption {
	return func(o *coordinator.FetchOptions) { o.PkgID = pkgID }
}

// WithPrefix sets the directory resolver's base path for relative file:
// prefs.
func WithPrefix(prefix string) FetchOption {
	return func(o *coordinator.FetchOptions) { o.Prefix = prefix }
}

// WithDownloadPriority overrides C1's default admission priority for this
// fetch.
func WithDownloadPriority(priority int) FetchOption {
	return func(o *coordinator.FetchOptions) {
		p := priority
		o.DownloadPriority = &p
	}
}

// WithIgnore supplies a predicate excluding matching relative paths from
// unpacking.
func WithIgnore(ignore func(relpath string) bool) FetchOption {
	return func(o *coordinator.FetchOptions) { o.Ignore = ignore }
}

// WithShrinkwrapResolution reuses a previously-resolved Resolution,
// skipping the resolver registry entirely unless WithUpdate is also set.
func WithShrinkwrapResolution(res Resolution) FetchOption {
	return func(o *coordinator.FetchOptions) { o.ShrinkwrapResolution = &res }
}
