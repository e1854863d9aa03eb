package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/packlock/pstore/events"
	"github.com/packlock/pstore/integrity"
	"github.com/packlock/pstore/pkgref"
	"github.com/packlock/pstore/storeindex"
)

// identityToPath is coordinator's local copy of the root package's pure
// IdentityToPath function; duplicated rather than imported to keep this
// package free of a dependency on the root package (which imports
// coordinator), avoiding an import cycle. Both implementations must stay
// behaviorally identical.
func identityToPath(identity pkgref.PackageIdentity) string {
	segments := strings.Split(string(identity), "/")
	clean := make([]string, 0, len(segments))
	for _, seg := range segments {
		seg = sanitizeSegment(seg)
		if seg == "" || seg == "." || seg == ".." {
			continue
		}
		clean = append(clean, seg)
	}
	return strings.Join(clean, "/")
}

func sanitizeSegment(seg string) string {
	var b strings.Builder
	b.Grow(len(seg))
	for _, r := range seg {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '@' || r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// doFetchToStore runs the staged materialization protocol from §4.7. It
// settles entry's three futures and never returns a value to a caller
// directly; everything observable happens through the futures and the
// observability bus.
func (c *Coordinator) doFetchToStore(
	ctx context.Context,
	identity pkgref.PackageIdentity,
	resolution pkgref.Resolution,
	opts FetchOptions,
	index storeindex.Index,
	entry *lockerEntry,
	requestID uuid.UUID,
) {
	rel := identityToPath(identity)
	target := filepath.Join(c.storePath, rel)
	linkToUnpacked := filepath.Join(target, "package")
	targetStage := target + "_stage"

	verifier := integrity.NewVerifier(opts.VerifyStoreIntegrity)

	// 1. Hit probe.
	if index.Has(rel) {
		if manifestExists(linkToUnpacked) {
			rec, recErr := readIntegrityRecord(target)
			if recErr == nil {
				if verifyErr := verifier.Verify(linkToUnpacked, rec); verifyErr == nil {
					c.reuseEntry(entry, identity, linkToUnpacked, requestID)
					return
				}
			}
			c.log().Info("refetching: modified", "identity", identity)
		}
	}

	// 2. Stage reset.
	refetching := index.Has(rel)
	if err := os.RemoveAll(targetStage); err != nil {
		c.rejectAll(entry, fmt.Errorf("%w: reset stage: %v", ErrStoreCorruption, err))
		c.bus.Emit(events.Event{Status: events.StatusError, RequestID: requestID, PkgID: string(identity), Err: err})
		return
	}
	if refetching {
		if err := os.RemoveAll(filepath.Join(target, "node_modules")); err != nil {
			c.rejectAll(entry, fmt.Errorf("%w: clear stale tree: %v", ErrStoreCorruption, err))
			return
		}
	}

	// 3. Parallel pre-work: fetch through C4, admitted via C1.
	counter := c.sched.NextCounter()
	priority := 1000
	if counter%uint64(max(c.concurrency, 1)) == 0 {
		priority = -1000
	}

	c.bus.Emit(events.Event{Status: events.StatusFetchingStarted, RequestID: requestID, PkgID: string(identity), Attempt: 1})

	fetchHandle := submitFetch(ctx, c, identity, resolution, target, targetStage, opts, priority, requestID)
	fileIndex, fetchErr := fetchHandle.Wait(ctx)
	if fetchErr != nil {
		c.rejectAll(entry, fetchErr)
		c.bus.Emit(events.Event{Status: events.StatusError, RequestID: requestID, PkgID: string(identity), Err: fetchErr})
		return
	}

	// 4. Integrity recording (fresh entries only).
	if !refetching {
		rec, genErr := c.generator.GeneratePerFile(targetStage)
		if genErr != nil {
			c.rejectAll(entry, fmt.Errorf("%w: %v", ErrStoreCorruption, genErr))
			return
		}
		if err := writeIntegrityRecord(target, rec); err != nil {
			c.rejectAll(entry, fmt.Errorf("%w: %v", ErrStoreCorruption, err))
			return
		}
		entry.calculatingIntegrity.Resolve(struct{}{})
	} else {
		entry.calculatingIntegrity.Resolve(struct{}{})
	}

	// 5. Manifest surfacing.
	if !entry.fetchingPkg.Settled() {
		manifestPath := filepath.Join(targetStage, "package.json")
		data, err := os.ReadFile(manifestPath) //nolint:gosec // targetStage is store-controlled
		if err != nil {
			c.rejectAll(entry, fmt.Errorf("%w: %s", ErrMissingManifest, manifestPath))
			return
		}
		pkg, err := decodeManifest(data)
		if err != nil {
			c.rejectAll(entry, fmt.Errorf("%w: %v", ErrMissingManifest, err))
			return
		}
		entry.fetchingPkg.Resolve(pkg)
	}

	pkgName := mustPkgName(entry)

	// 6. Atomic publish.
	nodeModulesDir := filepath.Join(target, "node_modules")
	if err := os.MkdirAll(nodeModulesDir, 0o755); err != nil {
		c.rejectFiles(entry, fmt.Errorf("%w: %v", ErrStoreCorruption, err))
		return
	}
	finalPath := filepath.Join(nodeModulesDir, pkgName)
	if err := os.RemoveAll(finalPath); err != nil {
		c.rejectFiles(entry, fmt.Errorf("%w: %v", ErrStoreCorruption, err))
		return
	}
	if err := os.Rename(targetStage, finalPath); err != nil {
		c.rejectFiles(entry, fmt.Errorf("%w: rename %s -> %s: %v", ErrStoreCorruption, targetStage, finalPath, err))
		return
	}
	_ = os.Remove(linkToUnpacked)
	if err := os.Symlink(finalPath, linkToUnpacked); err != nil {
		c.rejectFiles(entry, fmt.Errorf("%w: symlink: %v", ErrStoreCorruption, err))
		return
	}

	if err := index.Record(rel, storeindex.Meta{
		Identity:               string(identity),
		RecordedAt:             timeNow(),
		IntegritySummary:       resolution.Integrity,
		IntegrityStrictPerFile: opts.VerifyStoreIntegrity,
	}); err != nil {
		c.rejectFiles(entry, fmt.Errorf("%w: update index: %v", ErrStoreCorruption, err))
		return
	}

	// 7. Resolve fetchingFiles.
	entry.fetchingFiles.Resolve(FileIndexResult{Index: fileIndex, IsNew: true})
	c.bus.Emit(events.Event{Status: events.StatusFetched, RequestID: requestID, PkgID: string(identity)})
}

func (c *Coordinator) reuseEntry(entry *lockerEntry, identity pkgref.PackageIdentity, linkToUnpacked string, requestID uuid.UUID) {
	if !entry.fetchingPkg.Settled() {
		data, err := os.ReadFile(filepath.Join(linkToUnpacked, "package.json")) //nolint:gosec // store-controlled path
		if err != nil {
			entry.fetchingPkg.Reject(fmt.Errorf("%w: %v", ErrMissingManifest, err))
		} else if pkg, decErr := decodeManifest(data); decErr != nil {
			entry.fetchingPkg.Reject(fmt.Errorf("%w: %v", ErrMissingManifest, decErr))
		} else {
			entry.fetchingPkg.Resolve(pkg)
		}
	}
	entry.fetchingFiles.Resolve(FileIndexResult{IsNew: false})
	entry.calculatingIntegrity.Resolve(struct{}{})
	c.bus.Emit(events.Event{Status: events.StatusFoundInStore, RequestID: requestID, PkgID: string(identity)})
}

func (c *Coordinator) rejectAll(entry *lockerEntry, err error) {
	if !entry.fetchingPkg.Settled() {
		entry.fetchingPkg.Reject(err)
	}
	c.rejectFiles(entry, err)
}

func (c *Coordinator) rejectFiles(entry *lockerEntry, err error) {
	if !entry.fetchingFiles.Settled() {
		entry.fetchingFiles.Reject(err)
	}
	if !entry.calculatingIntegrity.Settled() {
		entry.calculatingIntegrity.Reject(err)
	}
}

func mustPkgName(entry *lockerEntry) string {
	pkg, err := entry.fetchingPkg.Wait(context.Background())
	if err != nil || pkg.Name == "" {
		return "package"
	}
	return pkg.Name
}

func manifestExists(linkToUnpacked string) bool {
	_, err := os.Stat(filepath.Join(linkToUnpacked, "package.json"))
	return err == nil
}

func readIntegrityRecord(target string) (integrity.Record, error) {
	data, err := os.ReadFile(filepath.Join(target, "integrity.json")) //nolint:gosec // target is store-controlled
	if err != nil {
		return integrity.Record{}, err
	}
	return integrity.UnmarshalRecord(data)
}

func writeIntegrityRecord(target string, rec integrity.Record) error {
	data, err := integrity.MarshalRecord(rec)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(target, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(target, ".integrity-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, filepath.Join(target, "integrity.json"))
}

func decodeManifest(data []byte) (pkgref.PackageManifest, error) {
	var pkg pkgref.PackageManifest
	if err := json.Unmarshal(data, &pkg); err != nil {
		return pkgref.PackageManifest{}, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err == nil {
		pkg.Raw = raw
	}
	return pkg, nil
}

func timeNow() (t time.Time) { return time.Now() }
