package pstore

import (
	"github.com/packlock/pstore/coordinator"
	"github.com/packlock/pstore/pkgref"
)

// Re-exported domain vocabulary, the way the teacher's root package
// re-exports core/registry types so callers only ever import one package.

type WantedDependency = pkgref.WantedDependency
type Resolution = pkgref.Resolution
type PackageIdentity = pkgref.PackageIdentity
type PackageManifest = pkgref.PackageManifest

const (
	ResolutionTarball   = pkgref.ResolutionTarball
	ResolutionGit       = pkgref.ResolutionGit
	ResolutionDirectory = pkgref.ResolutionDirectory
	ResolutionOCI       = pkgref.ResolutionOCI
)

// FetchHandle is the non-local result of ResolveAndFetch.
type FetchHandle = coordinator.Handle

// LocalHandle is the local (directory) shortcut result of ResolveAndFetch.
type LocalHandle = coordinator.LocalHandle

// FileIndexResult is what FetchHandle.FetchingFiles() settles with.
type FileIndexResult = coordinator.FileIndexResult
