package httpclient

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sha256Verifier struct {
	h        [32]byte
	want     string
	accum    []byte
	mismatch bool
}

func newSHA256Verifier(want string) *sha256Verifier { return &sha256Verifier{want: want} }

func (v *sha256Verifier) Write(p []byte) (int, error) {
	v.accum = append(v.accum, p...)
	return len(p), nil
}

func (v *sha256Verifier) Verify() error {
	sum := sha256.Sum256(v.accum)
	if hex.EncodeToString(sum[:]) != v.want {
		return ErrIntegrityMismatchForTest
	}
	return nil
}

// ErrIntegrityMismatchForTest stands in for the real integrity package's
// sentinel, kept local to avoid a test-only import cycle.
var ErrIntegrityMismatchForTest = assert.AnError

func TestDownloadSavesTarballAtomically(t *testing.T) {
	payload := []byte("tarball-bytes-here")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	dir := t.TempDir()
	savePath := filepath.Join(dir, "pkg.tgz")

	c := New(WithRetry(RetryConfig{Count: 1}))
	res, err := c.Download(context.Background(), srv.URL, DownloadOptions{SavePath: savePath})
	require.NoError(t, err)
	assert.EqualValues(t, len(payload), res.Size)

	got, err := os.ReadFile(savePath)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestDownloadBadTarballSizeMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		w.Write([]byte("short"))
	}))
	defer srv.Close()

	c := New(WithRetry(RetryConfig{Count: 1}))
	_, err := c.Download(context.Background(), srv.URL, DownloadOptions{})
	require.Error(t, err)
}

func TestDownloadRetriesOnFailureThenSucceeds(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := New(WithRetry(RetryConfig{Count: 3, MinTimeout: time.Millisecond, MaxTimeout: 5 * time.Millisecond}))
	res, err := c.Download(context.Background(), srv.URL, DownloadOptions{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.Size)
	assert.Equal(t, 2, attempts)
}

func TestDownloadNotFoundIsPermanent(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(WithRetry(RetryConfig{Count: 5, MinTimeout: time.Millisecond}))
	_, err := c.Download(context.Background(), srv.URL, DownloadOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, attempts)
}

func TestDownloadVerifiesIntegrityConcurrently(t *testing.T) {
	payload := []byte("content to hash")
	sum := sha256.Sum256(payload)
	want := hex.EncodeToString(sum[:])

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	c := New(WithRetry(RetryConfig{Count: 1}))
	v := newSHA256Verifier(want)
	_, err := c.Download(context.Background(), srv.URL, DownloadOptions{Verifier: v})
	require.NoError(t, err)
}
