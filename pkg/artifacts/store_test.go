package artifacts

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/canonicalize"
)

func TestNewStoreFromEnv_Default(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("ARTIFACT_STORAGE_TYPE", "")
	t.Setenv("DATA_DIR", tmp)

	store, err := NewStoreFromEnv(context.Background())
	require.NoError(t, err)

	fs, ok := store.(*FileStore)
	require.True(t, ok, "expected *FileStore, got %T", store)
	assert.Equal(t, filepath.Join(tmp, "artifacts"), fs.baseDir)
}

func TestNewStoreFromEnv_S3MissingBucket(t *testing.T) {
	t.Setenv("ARTIFACT_STORAGE_TYPE", "s3")
	t.Setenv("ARTIFACT_S3_BUCKET", "")

	_, err := NewStoreFromEnv(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ARTIFACT_S3_BUCKET is required")
}

func TestNewStoreFromEnv_GCSMissingBucket(t *testing.T) {
	t.Setenv("ARTIFACT_STORAGE_TYPE", "gcs")
	t.Setenv("ARTIFACT_GCS_BUCKET", "")

	_, err := NewStoreFromEnv(context.Background())
	require.Error(t, err)
	// Builds without the gcp tag reject the backend outright.
	if strings.Contains(err.Error(), "GCS storage is not enabled") {
		return
	}
	assert.Contains(t, err.Error(), "ARTIFACT_GCS_BUCKET is required")
}

func TestNewStoreFromEnv_UnsupportedType(t *testing.T) {
	t.Setenv("ARTIFACT_STORAGE_TYPE", "azure")

	_, err := NewStoreFromEnv(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported artifact storage type")
}

func TestFileStore_RoundTrip(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "artifacts"))
	require.NoError(t, err)
	ctx := context.Background()
	data := []byte("name: billing\nversion: 1.0.0\n")

	digest, err := store.Store(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, canonicalize.HashBytes(data), digest)

	again, err := store.Store(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, digest, again)

	got, err := store.Get(ctx, digest)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	ok, err := store.Exists(ctx, digest)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, store.Delete(ctx, digest))
	require.NoError(t, store.Delete(ctx, digest))

	ok, err = store.Exists(ctx, digest)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileStore_GetNotFound(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "sha256:0000000000000000000000000000000000000000000000000000000000000000")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFileStore_InvalidDigest(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	for _, digest := range []string{"invalid", "sha256:zz", "sha256:abcd", "md5:00"} {
		_, err := store.Get(ctx, digest)
		assert.Error(t, err, digest)
		_, err = store.Exists(ctx, digest)
		assert.Error(t, err, digest)
	}
}

func TestThrottledStore(t *testing.T) {
	inner, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	store := NewThrottledStore(inner, 1, 1)

	digest, err := store.Store(context.Background(), []byte("fixture"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = store.Exists(ctx, digest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}
