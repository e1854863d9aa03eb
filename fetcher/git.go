package fetcher

import (
	"context"
	"fmt"

	"github.com/packlock/pstore/internal/future"
	"github.com/packlock/pstore/pkgref"
)

// GitCheckoutBackend performs the actual checkout work (clone/archive at a
// commit) a GitFetcher needs. This package ships no network git
// implementation, per §1's non-goals; callers inject one.
type GitCheckoutBackend interface {
	Checkout(ctx context.Context, repo, commit, targetDir string) error
}

// GitFetcher adapts a GitCheckoutBackend onto the Fetcher contract.
type GitFetcher struct {
	backend GitCheckoutBackend
}

// NewGitFactory returns a Factory constructing a GitFetcher bound to
// backend.
func NewGitFactory(backend GitCheckoutBackend) Factory {
	return func(shared Options) Fetcher { return &GitFetcher{backend: backend} }
}

func (f *GitFetcher) Type() pkgref.ResolutionType { return pkgref.ResolutionGit }

func (f *GitFetcher) Fetch(ctx context.Context, resolution pkgref.Resolution, targetDir string, opts Options) (FileIndex, error) {
	if f.backend == nil {
		return FileIndex{}, fmt.Errorf("%w: no git backend configured", ErrUnsupportedResolution)
	}
	if err := f.backend.Checkout(ctx, resolution.Repo, resolution.Commit, targetDir); err != nil {
		return FileIndex{}, fmt.Errorf("git fetch: %w", err)
	}

	headers, err := walkRelative(targetDir)
	if err != nil {
		return FileIndex{}, fmt.Errorf("git fetch: walk %s: %w", targetDir, err)
	}

	promise := future.Resolved(Integrity{})
	return FileIndex{Headers: headers, IntegrityPromise: promise}, nil
}
