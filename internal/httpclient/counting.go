package httpclient

import (
	"errors"
	"io"
)

// errOverflow indicates a counter exceeded its maximum value.
var errOverflow = errors.New("httpclient: counter overflow")

// countingReader wraps a reader and counts bytes read, the way the store's
// teacher counts bytes flowing through its cache writes.
type countingReader struct {
	R io.Reader
	N uint64
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.R.Read(p)
	if n > 0 {
		//nolint:gosec // n is guaranteed non-negative by io.Reader contract
		if cr.N > ^uint64(0)-uint64(n) {
			return n, errOverflow
		}
		cr.N += uint64(n) //nolint:gosec // overflow checked above
	}
	return n, err
}
