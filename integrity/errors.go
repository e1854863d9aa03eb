package integrity

import "errors"

// ErrMismatch is returned by Verifier.Verify when strict recomputation
// disagrees with the persisted integrity record.
var ErrMismatch = errors.New("integrity: content does not match recorded integrity")
