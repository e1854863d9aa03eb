package coordinator

import (
	"context"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/packlock/pstore/fetcher"
	"github.com/packlock/pstore/internal/scheduler"
	"github.com/packlock/pstore/pkgref"
)

// submitFetch admits a C4 fetch through C1 at the given priority and
// returns a handle the caller waits on.
func submitFetch(
	ctx context.Context,
	c *Coordinator,
	identity pkgref.PackageIdentity,
	resolution pkgref.Resolution,
	target string,
	targetStage string,
	opts FetchOptions,
	priority int,
	requestID uuid.UUID,
) *scheduler.Handle[fetcher.FileIndex] {
	if opts.DownloadPriority != nil {
		priority = *opts.DownloadPriority
	}
	return scheduler.Submit(ctx, c.sched, priority, func(taskCtx context.Context) (fetcher.FileIndex, error) {
		return c.fetchers.Fetch(taskCtx, resolution, targetStage, fetcher.Options{
			Registry:                 opts.Registry,
			Ignore:                   opts.Ignore,
			GeneratePackageIntegrity: true,
			SavePath:                 filepath.Join(target, "packed.tgz"),
		})
	})
}
