package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStoreWriteAndRead(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	content := []byte("%PDF-1.4 test")
	rel, err := store.Write(ctx, "school-1", "req-1", "pdf", content)
	require.NoError(t, err)

	// path is namespaced by school and request, filename is randomized
	parts := strings.Split(filepath.ToSlash(rel), "/")
	require.Len(t, parts, 3)
	assert.Equal(t, "school-1", parts[0])
	assert.Equal(t, "req-1", parts[1])
	assert.True(t, strings.HasSuffix(parts[2], ".pdf"))
	assert.NotEqual(t, "receipt.pdf", parts[2])

	got, err := store.Read(ctx, rel)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestLocalStoreRandomizesNames(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	a, err := store.Write(ctx, "school-1", "req-1", "pdf", []byte("a"))
	require.NoError(t, err)
	b, err := store.Write(ctx, "school-1", "req-1", "pdf", []byte("b"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestLocalStoreReadRefusesEscape(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalStore(root)
	require.NoError(t, err)

	secret := filepath.Join(filepath.Dir(root), "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("nope"), 0o600))
	defer os.Remove(secret)

	_, err = store.Read(context.Background(), "../secret.txt")
	assert.Error(t, err)
}

func TestNewLocalStoreCreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "evidence")
	_, err := NewLocalStore(root)
	require.NoError(t, err)

	info, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
