package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	path, err := store.Put(context.Background(), "lead-1", "home.html", []byte("<html>hi</html>"))
	require.NoError(t, err)
	assert.Equal(t, "lead-1/home.html", path)

	data, err := store.Get(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "<html>hi</html>", string(data))
}

func TestLocalStoreOverwrites(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	_, err = store.Put(ctx, "lead-1", "home.html", []byte("first"))
	require.NoError(t, err)
	path, err := store.Put(ctx, "lead-1", "home.html", []byte("second"))
	require.NoError(t, err)

	data, err := store.Get(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestArtifactKeyFlattensSeparators(t *testing.T) {
	assert.Equal(t, "lead-1/.._.._etc_passwd", artifactKey("lead-1", "../../etc/passwd"))
	assert.Equal(t, "lead-1/a_b", artifactKey("lead-1", `a\b`))
}
