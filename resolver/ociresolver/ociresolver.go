// Package ociresolver implements the "oci" resolver named in §4.3: it
// claims oci:// references and resolves them to a content digest via
// oras-go, without downloading the artifact itself (that's fetcher/oci's
// job).
package ociresolver

import (
	"context"
	"fmt"
	"strings"

	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/credentials"
	"oras.land/oras-go/v2/registry/remote/retry"

	"github.com/packlock/pstore/pkgref"
	"github.com/packlock/pstore/resolver"
)

// Resolver claims "oci://" prefixed prefs and resolves them to a content
// digest against a real OCI registry via oras-go.
type Resolver struct {
	credStore credentials.Store
	anonymous bool
	plainHTTP bool
	userAgent string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCredentialStore sets the credential store consulted for registry
// auth, mirroring the teacher's oci.Client option of the same name.
func WithCredentialStore(store credentials.Store) Option {
	return func(r *Resolver) { r.credStore = store }
}

// WithAnonymous disables credential lookups entirely.
func WithAnonymous() Option { return func(r *Resolver) { r.anonymous = true } }

// WithPlainHTTP enables unencrypted HTTP, for local development registries.
func WithPlainHTTP(enabled bool) Option { return func(r *Resolver) { r.plainHTTP = enabled } }

// WithUserAgent sets the User-Agent sent on registry requests.
func WithUserAgent(ua string) Option { return func(r *Resolver) { r.userAgent = ua } }

// New builds an OCI Resolver.
func New(opts ...Option) *Resolver {
	r := &Resolver{userAgent: "pstore/1.0"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewFactory adapts New into a resolver.Factory for registration with
// resolver.New.
func NewFactory(opts ...Option) resolver.Factory {
	return func(shared resolver.Options) resolver.Resolver { return New(opts...) }
}

func (r *Resolver) Type() string { return "oci" }

func (r *Resolver) Claims(wanted pkgref.WantedDependency) bool {
	return strings.HasPrefix(wanted.Pref, "oci://")
}

func (r *Resolver) repository(repoRef string) (*remote.Repository, error) {
	repo, err := remote.NewRepository(repoRef)
	if err != nil {
		return nil, fmt.Errorf("%w: parse reference %q: %v", resolver.ErrBadPref, repoRef, err)
	}
	repo.PlainHTTP = r.plainHTTP
	repo.Client = &auth.Client{
		Client: retry.DefaultClient,
		Cache:  auth.NewCache(),
		Credential: func(ctx context.Context, hostport string) (auth.Credential, error) {
			if r.anonymous || r.credStore == nil {
				return auth.EmptyCredential, nil
			}
			return r.credStore.Get(ctx, hostport)
		},
	}
	return repo, nil
}

// Resolve resolves an "oci://<repo-ref>" pref to its manifest digest,
// returning a pkgref.Resolution of type OCI carrying the concrete digest so
// two resolutions of the same tag after a push are distinguishable.
func (r *Resolver) Resolve(ctx context.Context, wanted pkgref.WantedDependency, opts resolver.Options) (resolver.Result, error) {
	if opts.Offline {
		return resolver.Result{}, fmt.Errorf("%w: oci resolution requires a registry round-trip", resolver.ErrOfflineMiss)
	}
	ref := strings.TrimPrefix(wanted.Pref, "oci://")

	repo, err := r.repository(ref)
	if err != nil {
		return resolver.Result{}, err
	}

	tagOrDigest := "latest"
	repoOnly := ref
	if idx := strings.LastIndex(ref, ":"); idx > strings.LastIndex(ref, "/") {
		repoOnly, tagOrDigest = ref[:idx], ref[idx+1:]
	}

	desc, err := repo.Resolve(ctx, tagOrDigest)
	if err != nil {
		return resolver.Result{}, fmt.Errorf("%w: resolve %s: %v", resolver.ErrNotFound, ref, err)
	}

	identity := pkgref.PackageIdentity(fmt.Sprintf("oci/%s@%s", repoOnly, desc.Digest.String()))
	return resolver.Result{
		Identity: identity,
		Resolution: pkgref.Resolution{
			Type:   pkgref.ResolutionOCI,
			Ref:    ref,
			Digest: desc.Digest.String(),
		},
		NormalizedPref: desc.Digest.String(),
	}, nil
}
