package pstore

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/packlock/pstore/coordinator"
	"github.com/packlock/pstore/events"
	"github.com/packlock/pstore/fetcher"
	fetcheroci "github.com/packlock/pstore/fetcher/oci"
	"github.com/packlock/pstore/internal/httpclient"
	"github.com/packlock/pstore/internal/scheduler"
	"github.com/packlock/pstore/resolver"
	resolveroci "github.com/packlock/pstore/resolver/ociresolver"
	"github.com/packlock/pstore/storeindex"
)

// Store is the package store's public entry point, wiring C1 through C8
// behind a single ResolveAndFetch call.
type Store struct {
	cfg         Config
	coordinator *coordinator.Coordinator
	bus         *events.Bus
	logger      *slog.Logger
	locker      *coordinator.Locker
}

// New builds a Store rooted at cfg.StorePath. It opens (or creates) the
// on-disk store index, builds the default resolver and fetcher registries,
// and applies any additional options before returning.
func New(cfg Config, opts ...Option) (*Store, error) {
	cfg = cfg.withDefaults()
	if cfg.StorePath == "" {
		return nil, fmt.Errorf("pstore: Config.StorePath is required")
	}

	sc := &storeConfig{}
	for _, o := range opts {
		o(sc)
	}

	bus := events.NewBus(sc.observers...)

	httpOpts := []httpclient.Option{
		httpclient.WithRetry(httpclient.RetryConfig{
			Count:      cfg.Retry.Count,
			Factor:     cfg.Retry.Factor,
			MinTimeout: cfg.Retry.MinTimeout,
			MaxTimeout: cfg.Retry.MaxTimeout,
			Randomize:  cfg.Retry.Randomize,
		}),
		httpclient.WithUserAgent(cfg.UserAgent),
		httpclient.WithAlwaysAuth(cfg.AlwaysAuth),
		httpclient.WithRegistry(cfg.Registry),
		httpclient.WithProxy(httpclient.ProxyConfig{
			HTTP:         cfg.Proxy.HTTP,
			HTTPS:        cfg.Proxy.HTTPS,
			LocalAddress: cfg.Proxy.LocalAddress,
		}),
	}
	if cfg.TLS.Cert != "" || cfg.TLS.Key != "" || cfg.TLS.CA != "" {
		httpOpts = append(httpOpts, httpclient.WithTLS([]byte(cfg.TLS.Cert), []byte(cfg.TLS.Key), []byte(cfg.TLS.CA), cfg.TLS.Strict))
	}
	if sc.logger != nil {
		httpOpts = append(httpOpts, httpclient.WithLogger(sc.logger))
	}
	httpc := httpclient.New(httpOpts...)

	indexPath := filepath.Join(cfg.StorePath, "index.jsonl")
	index, err := storeindex.Open(indexPath)
	if err != nil {
		return nil, fmt.Errorf("pstore: opening store index: %w", err)
	}

	resolverFactories := []resolver.Factory{
		resolver.NewTarballFactory(),
		resolver.NewDirectoryFactory(),
	}
	resolverFactories = append(resolverFactories, sc.resolverFactories...)
	resolverFactories = append(resolverFactories, resolverOCIFactory(), resolver.NewSemverFactory(httpc))
	resolvers := resolver.New(resolver.Options{Registry: cfg.Registry}, sc.logger, resolverFactories...)

	cacheDir := filepath.Join(cfg.StorePath, ".cache", "tarballs")
	fetcherFactories := []fetcher.Factory{
		fetcher.NewTarballFactory(httpc, cacheDir),
		fetcher.NewDirectoryFactory(),
		fetcherOCIFactory(),
	}
	fetcherFactories = append(fetcherFactories, sc.fetcherFactories...)
	fetchers := fetcher.New(fetcher.Options{Registry: cfg.Registry}, sc.logger, fetcherFactories...)

	sched := scheduler.New(cfg.NetworkConcurrency, sc.logger)

	coord := coordinator.New(cfg.StorePath, cfg.NetworkConcurrency, resolvers, fetchers, sched, bus, index, sc.logger)

	return &Store{cfg: cfg, coordinator: coord, bus: bus, logger: sc.logger, locker: sc.locker}, nil
}

// resolverOCIFactory builds the default oci:// resolver with anonymous
// registry access. Authenticated pulls need a credentials.Store; build one
// with resolveroci.NewFactory(resolveroci.WithCredentialStore(...)) and
// register it ahead of the rest via WithResolverFactory, or fork this
// function in a vendored copy of Store.
func resolverOCIFactory() resolver.Factory {
	return resolveroci.NewFactory(resolveroci.WithAnonymous())
}

func fetcherOCIFactory() fetcher.Factory {
	return fetcheroci.NewFactory(fetcheroci.WithAnonymous())
}

// ResolveAndFetch resolves wanted and fetches it into the store, exactly
// once per resolved identity for the lifetime of this Store (or the
// injected Locker, if callers share one across Stores). For a directory
// (file:/link:) resolution it returns a LocalHandle instead of a
// FetchHandle, since there is nothing to stage or publish.
func (s *Store) ResolveAndFetch(ctx context.Context, wanted WantedDependency, opts ...FetchOption) (*FetchHandle, *LocalHandle, error) {
	fo := coordinator.FetchOptions{Registry: s.cfg.Registry, RawRegistryConfig: s.cfg.RawRegistryConfig, Locker: s.locker}
	for _, o := range opts {
		o(&fo)
	}
	return s.coordinator.ResolveAndFetch(ctx, wanted, fo)
}

// IdentityToPath exposes the store's path-mangling scheme for callers that
// need to locate an entry on disk directly (e.g. a CLI printing the
// resolved path before the fetch completes).
func (s *Store) IdentityToPath(identity PackageIdentity) string {
	return filepath.Join(s.cfg.StorePath, IdentityToPath(string(identity)))
}
