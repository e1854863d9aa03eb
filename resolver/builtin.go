package resolver

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/packlock/pstore/pkgref"
)

// JSONGetter is the narrow slice of internal/httpclient.Client the semver
// resolver needs, kept as an interface here so this package never imports
// the concrete HTTP client.
type JSONGetter interface {
	GetJSON(ctx context.Context, url string, registry string) (map[string]any, error)
}

// SemverResolver resolves "name@version" prefs against a registry's
// manifest endpoint. The part after the last "@" is looked up as an exact
// version key, or, when it is empty or "latest", taken from the "latest"
// dist-tag; semver ranges such as "^1.2.0" and other dist-tags are not
// evaluated. It is the default resolver for any pref that isn't claimed by
// a more specific scheme.
type SemverResolver struct {
	client JSONGetter
}

// NewSemverFactory returns a Factory constructing a SemverResolver bound to
// client.
func NewSemverFactory(client JSONGetter) Factory {
	return func(shared Options) Resolver { return &SemverResolver{client: client} }
}

func (r *SemverResolver) Type() string { return "semver" }

// Claims is the fallback resolver: it claims anything not recognized as a
// URL, path, or scheme prefix by a resolver registered ahead of it.
func (r *SemverResolver) Claims(wanted pkgref.WantedDependency) bool {
	pref := wanted.Pref
	return !strings.Contains(pref, "://") &&
		!strings.HasPrefix(pref, "file:") &&
		!strings.HasPrefix(pref, "link:") &&
		!strings.HasPrefix(pref, "git+") &&
		!strings.HasPrefix(pref, "oci://")
}

func (r *SemverResolver) Resolve(ctx context.Context, wanted pkgref.WantedDependency, opts Options) (Result, error) {
	if opts.Offline {
		return Result{}, fmt.Errorf("%w: semver resolution requires a registry fetch", ErrOfflineMiss)
	}
	name, rangeSpec := splitNameRange(wanted.Pref)
	registry := scopedRegistry(name, opts)
	if registry == "" {
		return Result{}, fmt.Errorf("%w: no registry configured for %s", ErrBadPref, wanted.Pref)
	}
	url := strings.TrimRight(registry, "/") + "/" + name
	doc, err := r.client.GetJSON(ctx, url, registry)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	version, tarballURL, err := pickVersion(doc, rangeSpec)
	if err != nil {
		return Result{}, err
	}

	identity := pkgref.PackageIdentity(fmt.Sprintf("%s/%s/%s", strings.TrimPrefix(registry, "https://"), name, version))
	return Result{
		Identity: identity,
		Resolution: pkgref.Resolution{
			Type:     pkgref.ResolutionTarball,
			URL:      tarballURL,
			Registry: registry,
		},
		NormalizedPref: version,
	}, nil
}

// scopedRegistry applies npm's "@scope:registry" override convention:
// RawRegistryConfig["@scope:registry"] wins over opts.Registry for a
// package named "@scope/rest".
func scopedRegistry(name string, opts Options) string {
	registry := opts.Registry
	scope, _, found := strings.Cut(name, "/")
	if !found || !strings.HasPrefix(scope, "@") || opts.RawRegistryConfig == nil {
		return registry
	}
	if scoped, ok := opts.RawRegistryConfig[scope+":registry"]; ok && scoped != "" {
		return scoped
	}
	return registry
}

func splitNameRange(pref string) (name, rangeSpec string) {
	if idx := strings.LastIndex(pref, "@"); idx > 0 {
		return pref[:idx], pref[idx+1:]
	}
	return pref, "latest"
}

// pickVersion extracts a concrete version and its tarball URL from a
// registry manifest document shaped like npm's package metadata:
// {"dist-tags": {"latest": "1.2.3"}, "versions": {"1.2.3": {"dist": {"tarball": "..."}}}}.
func pickVersion(doc map[string]any, rangeSpec string) (version, tarballURL string, err error) {
	version = rangeSpec
	if version == "latest" || version == "" {
		tags, _ := doc["dist-tags"].(map[string]any)
		if tags == nil {
			return "", "", fmt.Errorf("%w: no dist-tags in registry response", ErrNotFound)
		}
		v, _ := tags["latest"].(string)
		if v == "" {
			return "", "", fmt.Errorf("%w: no latest tag in registry response", ErrNotFound)
		}
		version = v
	}
	versions, _ := doc["versions"].(map[string]any)
	if versions == nil {
		return "", "", fmt.Errorf("%w: no versions in registry response", ErrNotFound)
	}
	entry, ok := versions[version].(map[string]any)
	if !ok {
		return "", "", fmt.Errorf("%w: version %s", ErrNotFound, version)
	}
	dist, _ := entry["dist"].(map[string]any)
	tarball, _ := dist["tarball"].(string)
	if tarball == "" {
		return "", "", fmt.Errorf("%w: version %s has no dist.tarball", ErrNotFound, version)
	}
	return version, tarball, nil
}

// TarballResolver claims plain http(s):// prefs that aren't owned by a more
// specific scheme resolver (oci://, git+...).
type TarballResolver struct{}

// NewTarballFactory returns a Factory constructing a TarballResolver.
func NewTarballFactory() Factory {
	return func(shared Options) Resolver { return &TarballResolver{} }
}

func (r *TarballResolver) Type() string { return "tarball" }

func (r *TarballResolver) Claims(wanted pkgref.WantedDependency) bool {
	return strings.HasPrefix(wanted.Pref, "http://") || strings.HasPrefix(wanted.Pref, "https://")
}

func (r *TarballResolver) Resolve(ctx context.Context, wanted pkgref.WantedDependency, opts Options) (Result, error) {
	return Result{
		Identity:   pkgref.PackageIdentity(wanted.Pref),
		Resolution: pkgref.Resolution{Type: pkgref.ResolutionTarball, URL: wanted.Pref},
	}, nil
}

// DirectoryResolver claims file:/link: prefixed local paths.
type DirectoryResolver struct{}

// NewDirectoryFactory returns a Factory constructing a DirectoryResolver.
func NewDirectoryFactory() Factory {
	return func(shared Options) Resolver { return &DirectoryResolver{} }
}

func (r *DirectoryResolver) Type() string { return "directory" }

func (r *DirectoryResolver) Claims(wanted pkgref.WantedDependency) bool {
	return strings.HasPrefix(wanted.Pref, "file:") || strings.HasPrefix(wanted.Pref, "link:")
}

func (r *DirectoryResolver) Resolve(ctx context.Context, wanted pkgref.WantedDependency, opts Options) (Result, error) {
	path := strings.TrimPrefix(strings.TrimPrefix(wanted.Pref, "file:"), "link:")
	if opts.Prefix != "" && !filepath.IsAbs(path) {
		path = filepath.Join(opts.Prefix, path)
	}
	return Result{
		Identity:   pkgref.PackageIdentity("local/" + path),
		Resolution: pkgref.Resolution{Type: pkgref.ResolutionDirectory, Path: path},
	}, nil
}

// GitResolverBackend performs the actual network work (ls-remote / commit
// resolution) a GitResolver needs; this package ships no implementation,
// per §1's non-goals — callers inject one.
type GitResolverBackend interface {
	ResolveCommit(ctx context.Context, repo, spec string) (commit string, err error)
}

// GitResolver claims "git+..." prefs and adapts them onto an injected
// GitResolverBackend.
type GitResolver struct {
	backend GitResolverBackend
}

// NewGitFactory returns a Factory constructing a GitResolver bound to
// backend.
func NewGitFactory(backend GitResolverBackend) Factory {
	return func(shared Options) Resolver { return &GitResolver{backend: backend} }
}

func (r *GitResolver) Type() string { return "git" }

func (r *GitResolver) Claims(wanted pkgref.WantedDependency) bool {
	return strings.HasPrefix(wanted.Pref, "git+")
}

func (r *GitResolver) Resolve(ctx context.Context, wanted pkgref.WantedDependency, opts Options) (Result, error) {
	if r.backend == nil {
		return Result{}, fmt.Errorf("%w: no git backend configured", ErrBadPref)
	}
	if opts.Offline {
		return Result{}, fmt.Errorf("%w: git resolution requires network access", ErrOfflineMiss)
	}
	spec := strings.TrimPrefix(wanted.Pref, "git+")
	repo, ref, _ := strings.Cut(spec, "#")
	commit, err := r.backend.ResolveCommit(ctx, repo, ref)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	return Result{
		Identity:   pkgref.PackageIdentity(fmt.Sprintf("git/%s/%s", repo, commit)),
		Resolution: pkgref.Resolution{Type: pkgref.ResolutionGit, Repo: repo, Commit: commit},
	}, nil
}
