package fetcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/packlock/pstore/internal/future"
	"github.com/packlock/pstore/internal/httpclient"
	"github.com/packlock/pstore/pkgref"
)

// Downloader is the narrow slice of *internal/httpclient.Client the tarball
// fetcher needs, declared as an interface so tests can substitute a fake.
type Downloader interface {
	Download(ctx context.Context, url string, opts httpclient.DownloadOptions) (httpclient.UnpackResult, error)
}

// TarballFetcher fetches a Resolution{Type: "tarball"} by downloading and
// streaming-unpacking it via an injected Downloader (internal/httpclient.Client
// in production).
type TarballFetcher struct {
	downloader Downloader
	cacheDir   string
}

// NewTarballFactory returns a Factory constructing a TarballFetcher bound to
// downloader. cacheDir, if non-empty, is where the cached packed.tgz is
// written alongside the unpack.
func NewTarballFactory(downloader Downloader, cacheDir string) Factory {
	return func(shared Options) Fetcher {
		return &TarballFetcher{downloader: downloader, cacheDir: cacheDir}
	}
}

func (f *TarballFetcher) Type() pkgref.ResolutionType { return pkgref.ResolutionTarball }

func (f *TarballFetcher) Fetch(ctx context.Context, resolution pkgref.Resolution, targetDir string, opts Options) (FileIndex, error) {
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return FileIndex{}, fmt.Errorf("%w: mkdir %s: %v", ErrBadTarball, targetDir, err)
	}

	promise := future.New[Integrity]()
	unpacker := &DefaultUnpacker{Ignore: opts.Ignore}

	var verifier httpclient.Integrity
	if resolution.Integrity != "" {
		verifier = newSRIChecker(resolution.Integrity)
	}

	savePath := opts.SavePath
	if savePath == "" && f.cacheDir != "" {
		savePath = filepath.Join(f.cacheDir, "packed.tgz")
	}

	_, err := f.downloader.Download(ctx, resolution.URL, httpclient.DownloadOptions{
		Registry: resolution.Registry,
		SavePath: savePath,
		DestDir:  targetDir,
		Unpacker: unpacker,
		Verifier: verifier,
	})
	if err != nil {
		promise.Reject(err)
		return FileIndex{}, err
	}

	sri := resolution.Integrity
	if sri == "" && opts.GeneratePackageIntegrity {
		// No expected integrity was supplied; the caller wants one computed
		// from what was actually downloaded. The coordinator's
		// integrity.Generator recomputes it once the tree is staged, so
		// this promise settles with a zero value rather than guessing.
		promise.Resolve(Integrity{})
	} else {
		promise.Resolve(Integrity{SRI: sri})
	}

	headers, err := walkRelative(targetDir)
	if err != nil {
		return FileIndex{}, fmt.Errorf("%w: walk unpacked tree: %v", ErrBadTarball, err)
	}

	return FileIndex{Headers: headers, IntegrityPromise: promise}, nil
}
