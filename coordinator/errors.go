package coordinator

import "errors"

// ErrMissingManifest is returned when a resolved local dependency, or a
// freshly staged fetch, has no package.json.
var ErrMissingManifest = errors.New("coordinator: missing manifest")

// ErrStoreCorruption signals an internal staging/publish failure; the
// coordinator does not attempt partial recovery beyond what the caller
// chooses to do with this error (typically: refetch on next call).
var ErrStoreCorruption = errors.New("coordinator: store entry corrupted")
