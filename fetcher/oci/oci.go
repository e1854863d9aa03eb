// Package oci implements the "oci" fetcher named in §4.4: it pulls a
// single-layer OCI artifact's manifest and blob via oras-go and unpacks the
// layer as a tarball, demonstrating the store's extensibility story with a
// real implementation instead of a stub. Grounded on the teacher's
// client/oci.Client (FetchManifest/FetchBlob/Resolve) and registry/pull.go's
// manifest-then-blob staged fetch.
package oci

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/credentials"
	"oras.land/oras-go/v2/registry/remote/retry"

	"github.com/packlock/pstore/fetcher"
	"github.com/packlock/pstore/internal/future"
	"github.com/packlock/pstore/pkgref"
)

// Fetcher pulls an OCI artifact's manifest and single content layer, then
// unpacks the layer as a gzip tarball into targetDir.
type Fetcher struct {
	credStore credentials.Store
	anonymous bool
	plainHTTP bool
	unpacker  *fetcher.DefaultUnpacker
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithCredentialStore sets the credential store consulted for registry
// auth.
func WithCredentialStore(store credentials.Store) Option {
	return func(f *Fetcher) { f.credStore = store }
}

// WithAnonymous disables credential lookups entirely.
func WithAnonymous() Option { return func(f *Fetcher) { f.anonymous = true } }

// WithPlainHTTP enables unencrypted HTTP, for local development registries.
func WithPlainHTTP(enabled bool) Option { return func(f *Fetcher) { f.plainHTTP = enabled } }

// New builds an OCI Fetcher.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NewFactory adapts New into a fetcher.Factory for registration with
// fetcher.New.
func NewFactory(opts ...Option) fetcher.Factory {
	return func(shared fetcher.Options) fetcher.Fetcher {
		f := New(opts...)
		f.unpacker = &fetcher.DefaultUnpacker{Ignore: shared.Ignore}
		return f
	}
}

func (f *Fetcher) Type() pkgref.ResolutionType { return pkgref.ResolutionOCI }

func (f *Fetcher) repository(ref string) (*remote.Repository, error) {
	repo, err := remote.NewRepository(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: parse reference %q: %v", fetcher.ErrUnsupportedResolution, ref, err)
	}
	repo.PlainHTTP = f.plainHTTP
	repo.Client = &auth.Client{
		Client: retry.DefaultClient,
		Cache:  auth.NewCache(),
		Credential: func(ctx context.Context, hostport string) (auth.Credential, error) {
			if f.anonymous || f.credStore == nil {
				return auth.EmptyCredential, nil
			}
			return f.credStore.Get(ctx, hostport)
		},
	}
	return repo, nil
}

func (f *Fetcher) Fetch(ctx context.Context, resolution pkgref.Resolution, targetDir string, opts fetcher.Options) (fetcher.FileIndex, error) {
	repo, err := f.repository(resolution.Ref)
	if err != nil {
		return fetcher.FileIndex{}, err
	}

	descRef := resolution.Digest
	if descRef == "" {
		descRef = "latest"
	}
	manifestDesc, manifestRC, err := repo.FetchReference(ctx, descRef)
	if err != nil {
		return fetcher.FileIndex{}, fmt.Errorf("oci fetch: resolve manifest: %w", err)
	}
	defer manifestRC.Close()

	var manifest ocispec.Manifest
	limited := io.LimitReader(manifestRC, manifestDesc.Size)
	if err := json.NewDecoder(limited).Decode(&manifest); err != nil {
		return fetcher.FileIndex{}, fmt.Errorf("oci fetch: decode manifest: %w", err)
	}
	if len(manifest.Layers) == 0 {
		return fetcher.FileIndex{}, fmt.Errorf("oci fetch: manifest has no layers")
	}

	layer := manifest.Layers[0]
	blobRC, err := repo.Fetch(ctx, layer)
	if err != nil {
		return fetcher.FileIndex{}, fmt.Errorf("oci fetch: fetch layer blob: %w", err)
	}
	defer blobRC.Close()

	if err := f.unpacker.Unpack(ctx, blobRC, targetDir); err != nil {
		return fetcher.FileIndex{}, fmt.Errorf("oci fetch: unpack layer: %w", err)
	}

	promise := future.Resolved(fetcher.Integrity{SRI: ociDigestToSRI(layer.Digest.String())})
	return fetcher.FileIndex{IntegrityPromise: promise}, nil
}

// ociDigestToSRI carries the OCI digest forward as an opaque identifier;
// it is not a real SRI re-encoding (the algorithms differ: OCI digests are
// sha256, SRI here is sha512), it simply makes the IntegrityPromise value
// traceable back to the pulled layer. The coordinator's integrity.json is
// computed separately from the unpacked tree.
func ociDigestToSRI(ociDigest string) string {
	return "oci-digest:" + ociDigest
}
