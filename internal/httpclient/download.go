package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
)

// Integrity is consulted mid-stream to verify content as it downloads,
// before the tarball is unpacked or cached.
type Integrity interface {
	// Write feeds another chunk of the stream into the running digest.
	Write(p []byte) (int, error)
	// Verify returns ErrIntegrityMismatch-wrapping error if the digest
	// accumulated via Write does not match the expected value.
	Verify() error
}

// Unpacker streams a tarball into a destination directory as it downloads.
type Unpacker interface {
	Unpack(ctx context.Context, r io.Reader, destDir string) error
}

// DownloadOptions configures a single Download call.
type DownloadOptions struct {
	// Registry scopes the auth decision for this particular URL (§4.2).
	Registry string
	// SavePath, if set, additionally persists the raw tarball bytes here
	// via a staged write plus atomic rename.
	SavePath string
	// DestDir, if set together with Unpacker, receives the unpacked tree.
	DestDir  string
	Unpacker Unpacker
	// Verifier, if set, is fed the stream concurrently with the other
	// consumers and checked once the stream is fully read.
	Verifier Integrity
	// OnProgress, if set, is called after every chunk with the cumulative
	// byte count read so far.
	OnProgress func(downloaded int64)
}

// UnpackResult reports the outcome of a Download call.
type UnpackResult struct {
	Size int64
}

// Download retrieves rawURL with retry, tee-ing the body to up to three
// concurrent consumers (integrity check, unpacker, cached tarball write)
// so none of them forces the others to buffer the whole payload.
func (c *Client) Download(ctx context.Context, rawURL string, opts DownloadOptions) (UnpackResult, error) {
	var result UnpackResult
	bo := backoff.WithContext(c.retry.backOff(), ctx)

	attempts := 0
	operation := func() error {
		attempts++
		r, err := c.download(ctx, rawURL, opts, attempts)
		if err == nil {
			result = r
		}
		return err
	}

	var permErr *backoff.PermanentError
	err := backoff.Retry(operation, bo)
	if err != nil {
		if errors.As(err, &permErr) {
			return result, permErr.Unwrap()
		}
		return result, fmt.Errorf("%w: %s after retries: %w", ErrNetwork, rawURL, err)
	}
	return result, nil
}

func (c *Client) download(ctx context.Context, rawURL string, opts DownloadOptions, attempt int) (UnpackResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return UnpackResult{}, backoff.Permanent(fmt.Errorf("%w: build request: %v", ErrNetwork, err))
	}
	c.applyAuth(req, rawURL, opts.Registry)

	resp, err := c.hc.Do(req)
	if err != nil {
		return UnpackResult{}, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode == http.StatusNotFound {
		return UnpackResult{}, backoff.Permanent(fmt.Errorf("%w: %s", ErrNotFound, rawURL))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return UnpackResult{}, fmt.Errorf("%w: unexpected status %s for %s", ErrNetwork, resp.Status, rawURL)
	}

	expected := resp.ContentLength

	cr := &countingReader{R: resp.Body}
	var src io.Reader = cr
	if opts.OnProgress != nil {
		src = &progressReader{r: cr, onRead: opts.OnProgress}
	}

	writers, closers, err := fanOut(src, opts)
	if err != nil {
		return UnpackResult{}, backoff.Permanent(err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range writers {
		w := w
		g.Go(func() error { return w(gctx) })
	}
	if err := g.Wait(); err != nil {
		for _, closeFn := range closers {
			closeFn()
		}
		if expected != -1 && int64(cr.N) != expected && ctx.Err() == nil { //nolint:gosec // N bounded by actual transfer size
			return UnpackResult{}, &BadTarballError{URL: rawURL, Expected: expected, Received: int64(cr.N), Attempts: attempt} //nolint:gosec
		}
		return UnpackResult{}, err
	}
	for _, closeFn := range closers {
		closeFn()
	}

	if expected != -1 && int64(cr.N) != expected { //nolint:gosec // N bounded by actual transfer size
		return UnpackResult{}, &BadTarballError{URL: rawURL, Expected: expected, Received: int64(cr.N), Attempts: attempt} //nolint:gosec
	}

	if opts.Verifier != nil {
		if err := opts.Verifier.Verify(); err != nil {
			return UnpackResult{}, backoff.Permanent(err)
		}
	}

	return UnpackResult{Size: int64(cr.N)}, nil //nolint:gosec
}

// fanOut builds one goroutine body per active consumer, all reading from the
// same source via io.Pipe so none of them has to buffer the full payload
// before the others see it.
func fanOut(src io.Reader, opts DownloadOptions) (funcs []func(context.Context) error, closers []func(), err error) {
	pipes := 0
	if opts.Verifier != nil {
		pipes++
	}
	if opts.Unpacker != nil && opts.DestDir != "" {
		pipes++
	}
	if opts.SavePath != "" {
		pipes++
	}
	if pipes == 0 {
		funcs = append(funcs, func(ctx context.Context) error {
			_, err := io.Copy(io.Discard, src)
			return err
		})
		return funcs, closers, nil
	}

	writers := make([]io.Writer, 0, pipes)
	readers := make([]*io.PipeReader, 0, pipes)
	pipeWriters := make([]*io.PipeWriter, 0, pipes)
	for range pipes {
		pr, pw := io.Pipe()
		readers = append(readers, pr)
		pipeWriters = append(pipeWriters, pw)
		writers = append(writers, pw)
	}

	funcs = append(funcs, func(ctx context.Context) error {
		mw := io.MultiWriter(writers...)
		_, copyErr := io.Copy(mw, src)
		for _, pw := range pipeWriters {
			_ = pw.CloseWithError(copyErr)
		}
		return copyErr
	})

	idx := 0
	if opts.Verifier != nil {
		pr := readers[idx]
		idx++
		funcs = append(funcs, func(ctx context.Context) error {
			_, err := io.Copy(opts.Verifier, pr)
			return err
		})
		closers = append(closers, func() { _ = pr.Close() })
	}
	if opts.Unpacker != nil && opts.DestDir != "" {
		pr := readers[idx]
		idx++
		funcs = append(funcs, func(ctx context.Context) error {
			return opts.Unpacker.Unpack(ctx, pr, opts.DestDir)
		})
		closers = append(closers, func() { _ = pr.Close() })
	}
	if opts.SavePath != "" {
		pr := readers[idx]
		idx++
		funcs = append(funcs, func(ctx context.Context) error {
			return atomicWriteFrom(opts.SavePath, pr)
		})
		closers = append(closers, func() { _ = pr.Close() })
	}

	return funcs, closers, nil
}

// atomicWriteFrom streams r into a temp file beside path, then renames it
// into place, the way the teacher's disk cache publishes entries.
func atomicWriteFrom(path string, r io.Reader) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("httpclient: mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".download-*.tmp")
	if err != nil {
		return fmt.Errorf("httpclient: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("httpclient: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("httpclient: close temp: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("httpclient: rename into place: %w", err)
	}
	return nil
}

type progressReader struct {
	r      io.Reader
	onRead func(int64)
	total  int64
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 {
		p.total += int64(n)
		p.onRead(p.total)
	}
	return n, err
}
