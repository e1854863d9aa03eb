// Package coordinator implements C7, the store's core algorithm:
// per-identity in-flight de-duplication, staged materialization, atomic
// publication, and split progress-promises, generalizing the teacher's
// singleflight-based read coalescing (core/blob.go) into a custom
// future-returning locker because the store needs three independently
// observable futures per identity rather than singleflight's single shared
// result.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/packlock/pstore/events"
	"github.com/packlock/pstore/fetcher"
	"github.com/packlock/pstore/internal/future"
	"github.com/packlock/pstore/internal/scheduler"
	"github.com/packlock/pstore/integrity"
	"github.com/packlock/pstore/pkgref"
	"github.com/packlock/pstore/resolver"
	"github.com/packlock/pstore/storeindex"
)

// FileIndexResult is what FetchingFiles settles with.
type FileIndexResult struct {
	Index fetcher.FileIndex
	IsNew bool
}

// Handle is what ResolveAndFetch returns to callers for a non-local
// resolution.
type Handle struct {
	Identity       pkgref.PackageIdentity
	Path           string
	Resolution     pkgref.Resolution
	Latest         string
	NormalizedPref string

	fetchingPkg          *future.Future[pkgref.PackageManifest]
	fetchingFiles        *future.Future[FileIndexResult]
	calculatingIntegrity *future.Future[struct{}]
}

// FetchingPkg settles when the manifest is readable.
func (h *Handle) FetchingPkg() *future.Future[pkgref.PackageManifest] { return h.fetchingPkg }

// FetchingFiles settles when unpacking completes.
func (h *Handle) FetchingFiles() *future.Future[FileIndexResult] { return h.fetchingFiles }

// CalculatingIntegrity settles when integrity.json has been written.
func (h *Handle) CalculatingIntegrity() *future.Future[struct{}] { return h.calculatingIntegrity }

// LocalHandle is returned for the directory resolution shortcut.
type LocalHandle struct {
	Identity       pkgref.PackageIdentity
	Resolution     pkgref.Resolution
	Pkg            pkgref.PackageManifest
	NormalizedPref string
}

type lockerEntry struct {
	fetchingPkg          *future.Future[pkgref.PackageManifest]
	fetchingFiles        *future.Future[FileIndexResult]
	calculatingIntegrity *future.Future[struct{}]
}

// Locker is the process-wide in-flight map. The zero value is ready to use;
// callers may also inject a fresh Locker per call via FetchOptions to
// isolate unrelated test runs.
type Locker struct {
	mu      sync.Mutex
	entries map[pkgref.PackageIdentity]*lockerEntry
}

// NewLocker returns a ready-to-use Locker.
func NewLocker() *Locker { return &Locker{entries: make(map[pkgref.PackageIdentity]*lockerEntry)} }

// FetchOptions configures a single ResolveAndFetch call.
type FetchOptions struct {
	Registry             string
	RawRegistryConfig    map[string]string
	Offline              bool
	Update               bool
	VerifyStoreIntegrity bool
	PkgID                string
	Prefix               string
	DownloadPriority      *int
	Ignore               func(relpath string) bool
	Pkg                  *pkgref.PackageManifest
	ShrinkwrapResolution *pkgref.Resolution
	StoreIndex           storeindex.Index
	Locker               *Locker
}

// Coordinator wires C1–C6 and C8 together to implement ResolveAndFetch.
type Coordinator struct {
	storePath   string
	concurrency int

	resolvers *resolver.Registry
	fetchers  *fetcher.Registry
	sched     *scheduler.Scheduler
	bus       *events.Bus

	defaultLocker *Locker
	defaultIndex  storeindex.Index

	generator *integrity.Generator
	logger    *slog.Logger
}

// New builds a Coordinator.
func New(
	storePath string,
	concurrency int,
	resolvers *resolver.Registry,
	fetchers *fetcher.Registry,
	sched *scheduler.Scheduler,
	bus *events.Bus,
	index storeindex.Index,
	logger *slog.Logger,
) *Coordinator {
	return &Coordinator{
		storePath:     storePath,
		concurrency:   concurrency,
		resolvers:     resolvers,
		fetchers:      fetchers,
		sched:         sched,
		bus:           bus,
		defaultLocker: NewLocker(),
		defaultIndex:  index,
		generator:     integrity.NewGenerator(),
		logger:        logger,
	}
}

func (c *Coordinator) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}

// ResolveAndFetch is the store's single public entry point: resolve wanted
// to an identity (unless a ShrinkwrapResolution is supplied), then fetch it
// exactly once per identity across the coordinator's lifetime.
func (c *Coordinator) ResolveAndFetch(ctx context.Context, wanted pkgref.WantedDependency, opts FetchOptions) (*Handle, *LocalHandle, error) {
	requestID := uuid.New()

	identity, resolution, latest, normalizedPref, err := c.resolve(ctx, wanted, opts, requestID)
	if err != nil {
		c.bus.Emit(events.Event{Status: events.StatusError, RequestID: requestID, PkgID: string(wanted.Pref), Err: err})
		return nil, nil, err
	}
	c.bus.Emit(events.Event{Status: events.StatusResolved, RequestID: requestID, PkgID: string(identity)})

	if resolution.Type == pkgref.ResolutionDirectory {
		local, err := c.fetchLocalShortcut(identity, resolution, normalizedPref)
		if err != nil {
			c.bus.Emit(events.Event{Status: events.StatusError, RequestID: requestID, PkgID: string(identity), Err: err})
			return nil, nil, err
		}
		return nil, local, nil
	}

	locker := opts.Locker
	if locker == nil {
		locker = c.defaultLocker
	}
	index := opts.StoreIndex
	if index == nil {
		index = c.defaultIndex
	}

	handle := c.coalesce(ctx, identity, resolution, latest, normalizedPref, opts, locker, index, requestID)
	return handle, nil, nil
}

func (c *Coordinator) resolve(ctx context.Context, wanted pkgref.WantedDependency, opts FetchOptions, requestID uuid.UUID) (pkgref.PackageIdentity, pkgref.Resolution, string, string, error) {
	if opts.ShrinkwrapResolution != nil && !opts.Update {
		// Resolution reuse: skip resolver invocation entirely (§4.7).
		res := *opts.ShrinkwrapResolution
		identity := pkgref.PackageIdentity(wanted.Pref)
		return identity, res, "", wanted.Pref, nil
	}

	c.bus.Emit(events.Event{Status: events.StatusResolvingContent, RequestID: requestID, PkgID: wanted.Pref})
	result, err := c.resolvers.Resolve(ctx, wanted, resolver.Options{
		Registry:          opts.Registry,
		Offline:           opts.Offline,
		PkgID:             opts.PkgID,
		Prefix:            opts.Prefix,
		RawRegistryConfig: opts.RawRegistryConfig,
	})
	if err != nil {
		return "", pkgref.Resolution{}, "", "", err
	}
	return result.Identity, result.Resolution, result.Latest, result.NormalizedPref, nil
}

func (c *Coordinator) fetchLocalShortcut(identity pkgref.PackageIdentity, resolution pkgref.Resolution, normalizedPref string) (*LocalHandle, error) {
	manifestPath := filepath.Join(resolution.Path, "package.json")
	data, err := os.ReadFile(manifestPath) //nolint:gosec // resolution.Path is caller-supplied, matching npm's file:/link: semantics
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingManifest, manifestPath)
	}
	pkg, err := decodeManifest(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMissingManifest, manifestPath, err)
	}
	return &LocalHandle{Identity: identity, Resolution: resolution, Pkg: pkg, NormalizedPref: normalizedPref}, nil
}

// coalesce implements per-identity de-duplication: on a locker hit it
// returns a handle backed by the already-in-flight (or already-settled)
// futures without starting a second fetch; on a miss it inserts a fresh
// triple and launches doFetchToStore.
func (c *Coordinator) coalesce(
	ctx context.Context,
	identity pkgref.PackageIdentity,
	resolution pkgref.Resolution,
	latest, normalizedPref string,
	opts FetchOptions,
	locker *Locker,
	index storeindex.Index,
	requestID uuid.UUID,
) *Handle {
	locker.mu.Lock()
	if locker.entries == nil {
		locker.entries = make(map[pkgref.PackageIdentity]*lockerEntry)
	}
	entry, hit := locker.entries[identity]
	if !hit {
		entry = &lockerEntry{
			fetchingPkg:          future.New[pkgref.PackageManifest](),
			fetchingFiles:        future.New[FileIndexResult](),
			calculatingIntegrity: future.New[struct{}](),
		}
		locker.entries[identity] = entry
	}
	locker.mu.Unlock()

	handle := &Handle{
		Identity:             identity,
		Path:                 filepath.Join(c.storePath, identityToPath(identity), "package"),
		Resolution:           resolution,
		Latest:               latest,
		NormalizedPref:       normalizedPref,
		fetchingPkg:          entry.fetchingPkg,
		fetchingFiles:        entry.fetchingFiles,
		calculatingIntegrity: entry.calculatingIntegrity,
	}

	if hit {
		return handle
	}

	if opts.Pkg != nil {
		entry.fetchingPkg.Resolve(*opts.Pkg)
	}

	go c.doFetchToStore(ctx, identity, resolution, opts, index, entry, requestID)

	return handle
}
