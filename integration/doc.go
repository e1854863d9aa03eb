//go:build integration

// Package integration exercises the store against a real OCI registry
// (registry:2, via testcontainers) rather than httptest fakes, covering the
// one resolver/fetcher pair (oci://) that a unit test can't meaningfully
// fake: the wire format is ORAS's, not ours.
//
// Run with: go test -tags integration ./integration/...
// Requires a working Docker daemon. Set SKIP_DOCKER_TESTS=1 to skip.
package integration
