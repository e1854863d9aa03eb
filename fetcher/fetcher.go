// Package fetcher implements C4: dispatching a Resolution to one of N
// type-specific fetchers, each responsible for streaming bytes into a
// staging directory.
package fetcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/packlock/pstore/internal/future"
	"github.com/packlock/pstore/pkgref"
)

// Integrity is what a fetch produces once its content is fully read,
// settled independently of the unpack itself. The coordinator does not
// wait on it: it computes integrity.json from the staged tree before
// publishing.
type Integrity struct {
	SRI string
}

// FileIndex is the result of a successful Fetch.
type FileIndex struct {
	Headers          []string
	IntegrityPromise *future.Future[Integrity]
}

// Options carries the shared configuration a fetcher may consult.
type Options struct {
	Registry                 string
	AlwaysAuth               bool
	Ignore                   func(relpath string) bool
	GeneratePackageIntegrity bool
	DownloadPriority         int
	// SavePath, when set, is where a tarball-backed fetcher persists the raw
	// downloaded archive (packed.tgz) alongside the published entry. Left
	// empty, fetchers that cache their raw download fall back to their own
	// default location.
	SavePath string
}

// Fetcher owns network I/O and unpacking for one Resolution type. It must
// leave targetDir populated with package content only on success.
type Fetcher interface {
	// Type names the resolution type this fetcher handles.
	Type() pkgref.ResolutionType
	Fetch(ctx context.Context, resolution pkgref.Resolution, targetDir string, opts Options) (FileIndex, error)
}

// Factory builds a Fetcher given shared options.
type Factory func(shared Options) Fetcher

// Registry dispatches to the Fetcher registered for a Resolution's type.
type Registry struct {
	fetchers map[pkgref.ResolutionType]Fetcher
	logger   *slog.Logger
}

// New builds a Registry from an unordered list of factories, keyed by each
// constructed Fetcher's Type().
func New(shared Options, logger *slog.Logger, factories ...Factory) *Registry {
	r := &Registry{fetchers: make(map[pkgref.ResolutionType]Fetcher), logger: logger}
	for _, f := range factories {
		ft := f(shared)
		r.fetchers[ft.Type()] = ft
	}
	return r
}

func (r *Registry) log() *slog.Logger {
	if r.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return r.logger
}

// Fetch dispatches to the fetcher registered for resolution.Type, defaulting
// to "tarball" when Type is empty.
func (r *Registry) Fetch(ctx context.Context, resolution pkgref.Resolution, targetDir string, opts Options) (FileIndex, error) {
	t := resolution.Type
	if t == "" {
		t = pkgref.ResolutionTarball
	}
	f, ok := r.fetchers[t]
	if !ok {
		return FileIndex{}, fmt.Errorf("%w: %s", ErrUnsupportedResolution, t)
	}
	r.log().Debug("fetching", "fetcher", f.Type(), "target", targetDir)
	return f.Fetch(ctx, resolution, targetDir, opts)
}

// walkRelative is a small helper built-in fetchers share for producing
// FileIndex.Headers from an unpacked tree.
func walkRelative(dir string) ([]string, error) {
	var headers []string
	err := fsWalkDir(dir, func(rel string, d fs.DirEntry) error {
		if !d.IsDir() {
			headers = append(headers, rel)
		}
		return nil
	})
	return headers, err
}
