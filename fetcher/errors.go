package fetcher

import "errors"

// ErrUnsupportedResolution is returned when no fetcher is registered for a
// resolution's type.
var ErrUnsupportedResolution = errors.New("fetcher: unsupported resolution type")

// ErrMissingManifest is returned by the directory fetcher when the target
// has no package.json.
var ErrMissingManifest = errors.New("fetcher: missing manifest")

// ErrBadTarball is returned when a downloaded tarball cannot be unpacked
// (gzip or tar errors, unsafe paths, filesystem failures). A size mismatch
// surfaces as *httpclient.BadTarballError and an integrity failure as
// ErrIntegrityMismatch instead.
var ErrBadTarball = errors.New("fetcher: bad tarball")

// ErrIntegrityMismatch is returned when a downloaded tarball's content does
// not match its expected integrity value.
var ErrIntegrityMismatch = errors.New("fetcher: integrity mismatch")
