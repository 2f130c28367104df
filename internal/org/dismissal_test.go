package org

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDismissalStoreDismiss(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "dismissed.json")
	store := NewDismissalStore(path)
	require.NoError(t, store.Load())
	assert.Empty(t, store.Keys())

	added, err := store.Dismiss("agent:main:subagent:a")
	require.NoError(t, err)
	assert.True(t, added)
	assert.True(t, store.Contains("agent:main:subagent:a"))

	added, err = store.Dismiss("agent:main:subagent:a")
	require.NoError(t, err)
	assert.False(t, added, "second dismissal is a no-op")
	assert.Len(t, store.Keys(), 1)

	_, err = store.Dismiss("")
	assert.Error(t, err)
}

func TestDismissalStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dismissed.json")
	store := NewDismissalStore(path)

	for _, k := range []string{"b", "a", "c"} {
		_, err := store.Dismiss(k)
		require.NoError(t, err)
	}

	reloaded := NewDismissalStore(path)
	require.NoError(t, reloaded.Load())
	assert.Equal(t, []string{"a", "b", "c"}, reloaded.Keys())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestDismissalStoreWriteFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0600))

	store := NewDismissalStore(filepath.Join(blocker, "dismissed.json"))
	added, err := store.Dismiss("agent:main:main")
	assert.Error(t, err)
	assert.False(t, added)
	assert.False(t, store.Contains("agent:main:main"))
	assert.Empty(t, store.Keys())
}

func TestDismissalStoreLoad(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		store := NewDismissalStore(filepath.Join(t.TempDir(), "nope.json"))
		assert.NoError(t, store.Load())
		assert.Empty(t, store.Keys())
	})

	t.Run("corrupt file keeps current set", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "dismissed.json")
		store := NewDismissalStore(path)
		_, err := store.Dismiss("keep")
		require.NoError(t, err)

		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))
		assert.Error(t, store.Load())
		assert.True(t, store.Contains("keep"))
	})

	t.Run("blank entries ignored", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "dismissed.json")
		require.NoError(t, os.WriteFile(path, []byte(`["x", ""]`), 0600))
		store := NewDismissalStore(path)
		require.NoError(t, store.Load())
		assert.Equal(t, []string{"x"}, store.Keys())
	})
}

func TestDismissalStoreConcurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dismissed.json")
	store := NewDismissalStore(path)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.Dismiss(fmt.Sprintf("agent:main:subagent:%02d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	reloaded := NewDismissalStore(path)
	require.NoError(t, reloaded.Load())
	assert.Len(t, reloaded.Keys(), 20)
}
