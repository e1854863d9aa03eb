package pstore

import (
	"github.com/packlock/pstore/coordinator"
	"github.com/packlock/pstore/fetcher"
	"github.com/packlock/pstore/resolver"
)

// Re-exported sentinels, so callers can errors.Is against a single package
// without reaching into resolver/fetcher/coordinator directly, mirroring
// the teacher's root errors.go re-exporting core/registry sentinels. These
// are the same error values the subpackages return, not copies, so
// errors.Is matches through whatever %w-wrapping ResolveAndFetch's call
// chain applies.
var (
	ErrUnsupportedResolution = fetcher.ErrUnsupportedResolution
	ErrBadTarball            = fetcher.ErrBadTarball
	ErrIntegrityMismatch     = fetcher.ErrIntegrityMismatch
	ErrMissingManifest       = coordinator.ErrMissingManifest
	ErrStoreCorruption       = coordinator.ErrStoreCorruption

	ErrNetwork         = resolver.ErrNetwork
	ErrOfflineMiss     = resolver.ErrOfflineMiss
	ErrResolverFailure = resolver.ErrResolverFailure
	ErrNotFound        = resolver.ErrNotFound
	ErrBadPref         = resolver.ErrBadPref
)
