// Package pkgref defines the store's shared vocabulary types — the wanted
// dependency a caller asks for, the resolution a resolver produces, and the
// manifest a fetch surfaces — so resolver, fetcher, and coordinator
// packages can depend on a common, dependency-free core instead of each
// other.
package pkgref

import "fmt"

// WantedDependency is what a caller asks the store to resolve. Immutable
// once constructed.
type WantedDependency struct {
	// Alias is the caller's preferred local name for the dependency, if
	// different from the name the resolver would otherwise pick.
	Alias string
	// Pref is an opaque reference string: a semver range, a tarball URL,
	// a directory path, a git spec, or an oci:// reference. Its syntax is
	// owned entirely by whichever resolver claims it.
	Pref string
}

// ResolutionType names the built-in resolution kinds; any other string is
// a valid, extensible kind as long as a fetcher is registered for it.
type ResolutionType string

const (
	ResolutionTarball   ResolutionType = "tarball"
	ResolutionGit       ResolutionType = "git"
	ResolutionDirectory ResolutionType = "directory"
	ResolutionOCI       ResolutionType = "oci"
)

// Resolution is the tagged-variant result of resolving a WantedDependency.
// Only the fields relevant to Type are meaningful; the zero value of the
// others is ignored.
type Resolution struct {
	Type ResolutionType

	// Tarball / OCI shared.
	URL       string
	Integrity string
	Registry  string

	// Git.
	Repo   string
	Commit string

	// Directory.
	Path string

	// OCI.
	Ref    string
	Digest string
}

// String renders a Resolution for logs, never for parsing.
func (r Resolution) String() string {
	switch r.Type {
	case ResolutionTarball:
		return fmt.Sprintf("tarball(%s)", r.URL)
	case ResolutionGit:
		return fmt.Sprintf("git(%s@%s)", r.Repo, r.Commit)
	case ResolutionDirectory:
		return fmt.Sprintf("directory(%s)", r.Path)
	case ResolutionOCI:
		return fmt.Sprintf("oci(%s)", r.Ref)
	default:
		return fmt.Sprintf("%s(?)", r.Type)
	}
}

// PackageIdentity canonically names a resolved package; it is the sole key
// for store entries and in-flight coalescing. Two successful resolutions
// yielding equal identities must produce byte-equivalent on-disk content.
type PackageIdentity string

// PackageManifest is the parsed package.json of a resolved package.
// Immutable after read.
type PackageManifest struct {
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
	Raw          map[string]any    `json:"-"`
}
