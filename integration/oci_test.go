//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packlock/pstore"
	fetcheroci "github.com/packlock/pstore/fetcher/oci"
	resolveroci "github.com/packlock/pstore/resolver/ociresolver"
)

func plainHTTPOCIOptions() (pstore.Option, pstore.Option) {
	return pstore.WithResolverFactory(resolveroci.NewFactory(resolveroci.WithAnonymous(), resolveroci.WithPlainHTTP(true))),
		pstore.WithFetcherFactory(fetcheroci.NewFactory(fetcheroci.WithAnonymous(), fetcheroci.WithPlainHTTP(true)))
}

func TestOCIResolveAndFetch(t *testing.T) {
	registryAddr := getRegistry(t)
	repoRef := fmt.Sprintf("%s/test/oci-fetch", registryAddr)

	layer := buildTarGz(t, map[string]string{
		"package.json": `{"name":"oci-fetch","version":"1.0.0"}`,
		"index.js":     "module.exports = 'hi'",
	})
	pushArtifact(t, repoRef, "latest", layer)

	resolverOpt, fetcherOpt := plainHTTPOCIOptions()
	storePath := t.TempDir()
	s, err := pstore.New(pstore.Config{StorePath: storePath}, resolverOpt, fetcherOpt)
	require.NoError(t, err)

	handle, _, err := s.ResolveAndFetch(context.Background(), pstore.WantedDependency{
		Pref: "oci://" + repoRef + ":latest",
	})
	require.NoError(t, err)

	_, err = handle.FetchingFiles().Wait(context.Background())
	require.NoError(t, err)
	_, err = handle.CalculatingIntegrity().Wait(context.Background())
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(handle.Path, "index.js"))
	require.NoError(t, err)
	assert.Equal(t, "module.exports = 'hi'", string(got))
}

// TestOCIResolveAndFetch_ByDigest verifies that resolving the same tag twice
// yields the same digest-derived oci identity, so both handles point at the
// same content-addressed entry, the property the coordinator's identity
// scheme relies on.
func TestOCIResolveAndFetch_ByDigest(t *testing.T) {
	registryAddr := getRegistry(t)
	repoRef := fmt.Sprintf("%s/test/oci-digest", registryAddr)

	layer := buildTarGz(t, map[string]string{
		"package.json": `{"name":"oci-digest","version":"1.0.0"}`,
	})
	pushArtifact(t, repoRef, "latest", layer)

	resolverOpt, fetcherOpt := plainHTTPOCIOptions()
	storePath := t.TempDir()
	s, err := pstore.New(pstore.Config{StorePath: storePath}, resolverOpt, fetcherOpt)
	require.NoError(t, err)

	h1, _, err := s.ResolveAndFetch(context.Background(), pstore.WantedDependency{Pref: "oci://" + repoRef + ":latest"})
	require.NoError(t, err)
	_, err = h1.FetchingFiles().Wait(context.Background())
	require.NoError(t, err)

	h2, _, err := s.ResolveAndFetch(context.Background(), pstore.WantedDependency{Pref: "oci://" + repoRef + ":latest"})
	require.NoError(t, err)
	_, err = h2.FetchingFiles().Wait(context.Background())
	require.NoError(t, err)

	assert.Equal(t, h1.Path, h2.Path, "repeated resolution of the same tag must land on the same identity path")
}

// TestOCIFetcherUnsupportedReference exercises the oci:// error path against
// a registry that genuinely returns 404, rather than a canned httptest
// response. The failure surfaces from the oci resolver's manifest lookup, so
// ResolveAndFetch returns it before any fetch starts.
func TestOCIFetcherUnsupportedReference(t *testing.T) {
	registryAddr := getRegistry(t)
	repoRef := fmt.Sprintf("%s/test/does-not-exist", registryAddr)

	resolverOpt, fetcherOpt := plainHTTPOCIOptions()
	storePath := t.TempDir()
	s, err := pstore.New(pstore.Config{StorePath: storePath}, resolverOpt, fetcherOpt)
	require.NoError(t, err)

	_, _, err = s.ResolveAndFetch(context.Background(), pstore.WantedDependency{
		Pref: "oci://" + repoRef + ":latest",
	})
	require.Error(t, err)
}
