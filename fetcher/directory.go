package fetcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/packlock/pstore/internal/future"
	"github.com/packlock/pstore/pkgref"
)

// DirectoryFetcher handles Resolution{Type: "directory"} by... doing
// nothing: the coordinator's resolution shortcut (§4.7) bypasses fetching
// entirely for directory resolutions. This fetcher exists so the type is
// still registered and usable directly (e.g. from a CLI subcommand that
// wants to validate a local path without going through the coordinator).
type DirectoryFetcher struct{}

// NewDirectoryFactory returns a Factory constructing a DirectoryFetcher.
func NewDirectoryFactory() Factory {
	return func(shared Options) Fetcher { return &DirectoryFetcher{} }
}

func (f *DirectoryFetcher) Type() pkgref.ResolutionType { return pkgref.ResolutionDirectory }

func (f *DirectoryFetcher) Fetch(ctx context.Context, resolution pkgref.Resolution, targetDir string, opts Options) (FileIndex, error) {
	manifestPath := filepath.Join(resolution.Path, "package.json")
	if _, err := os.Stat(manifestPath); err != nil {
		return FileIndex{}, fmt.Errorf("%w: %s", ErrMissingManifest, manifestPath)
	}

	headers, err := walkRelative(resolution.Path)
	if err != nil {
		return FileIndex{}, fmt.Errorf("directory fetch: walk %s: %w", resolution.Path, err)
	}

	promise := future.Resolved(Integrity{})
	return FileIndex{Headers: headers, IntegrityPromise: promise}, nil
}
