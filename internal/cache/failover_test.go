package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileBackendSaveLoadRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "failover")
	backend, err := NewFileBackend(dir)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, backend.Save(ctx, "instance#ns#svc", []byte(`{"revision":"1"}`)))

	data, err := backend.Load(ctx, "instance#ns#svc")
	require.NoError(t, err)
	assert.JSONEq(t, `{"revision":"1"}`, string(data))
}

func TestFileBackendLoadMissingReturnsErrNotFound(t *testing.T) {
	dir := t.TempDir()
	backend, err := NewFileBackend(dir)
	require.NoError(t, err)

	_, err = backend.Load(context.Background(), "missing-key")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileBackendSaveDoesNotLeaveTempFileBehind(t *testing.T) {
	dir := t.TempDir()
	backend, err := NewFileBackend(dir)
	require.NoError(t, err)

	require.NoError(t, backend.Save(context.Background(), "k", []byte("v")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, encodeKey("k"), entries[0].Name())
}

func TestFileBackendDeleteIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	backend, err := NewFileBackend(dir)
	require.NoError(t, err)

	assert.NoError(t, backend.Delete(context.Background(), "never-existed"))
}
