package storeindex

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskRecordAndHas(t *testing.T) {
	dir := t.TempDir()
	idx, err := Open(filepath.Join(dir, ".store-index.json"))
	require.NoError(t, err)

	assert.False(t, idx.Has("foo/1.0.0"))

	meta := Meta{Identity: "foo/1.0.0", RecordedAt: time.Now(), IntegritySummary: "sha512-abc"}
	require.NoError(t, idx.Record("foo/1.0.0", meta))

	assert.True(t, idx.Has("foo/1.0.0"))
	got, ok := idx.Get("foo/1.0.0")
	require.True(t, ok)
	assert.Equal(t, "foo/1.0.0", got.Identity)
}

func TestDiskPersistsAcrossOpen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".store-index.json")

	idx, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, idx.Record("foo/1.0.0", Meta{Identity: "foo/1.0.0"}))

	reopened, err := Open(path)
	require.NoError(t, err)
	assert.True(t, reopened.Has("foo/1.0.0"))
}

func TestOpenMissingFileIsEmpty(t *testing.T) {
	dir := t.TempDir()
	idx, err := Open(filepath.Join(dir, "does-not-exist.json"))
	require.NoError(t, err)
	assert.False(t, idx.Has("anything"))
}
