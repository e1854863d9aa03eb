package httpclient

import (
	"errors"
	"fmt"
)

// ErrNetwork is wrapped by every transport-level failure this package
// returns. It is a distinct value from pstore.ErrNetwork, which is the
// resolver package's sentinel; download failures do not match that one.
var ErrNetwork = errors.New("httpclient: network error")

// ErrBadTarball is wrapped when a downloaded tarball's byte count does not
// match its advertised Content-Length.
var ErrBadTarball = errors.New("httpclient: bad tarball")

// ErrNotFound is wrapped when the remote responds 404.
var ErrNotFound = errors.New("httpclient: not found")

// BadTarballError carries the detail behind ErrBadTarball. Attempts counts
// every request Download made for this URL, including the one that
// produced this error.
type BadTarballError struct {
	URL      string
	Expected int64
	Received int64
	Attempts int
}

func (e *BadTarballError) Error() string {
	return fmt.Sprintf("httpclient: bad tarball from %s: size mismatch (expected %d, got %d, attempts %d)", e.URL, e.Expected, e.Received, e.Attempts)
}

func (e *BadTarballError) Unwrap() error { return ErrBadTarball }
