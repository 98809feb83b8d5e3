package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"holocard/template-gateway/models"
)

func newTestSQLiteStore(t *testing.T, quota int64) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "library.db"), quota)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStoreSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t, 0)

	entries := []models.CachedTemplateEntry{
		testEntry(t, "tpl-1", time.Now().Add(-time.Hour).UTC()),
		testEntry(t, "tpl-2", time.Now().UTC()),
	}
	require.NoError(t, store.Save(ctx, entries))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "tpl-1", loaded[0].TemplateID)
	assert.Equal(t, entries[0].Document.Metadata.Title, loaded[0].Document.Metadata.Title)
	assert.Equal(t, entries[0].SourceMetadata, loaded[0].SourceMetadata)
}

func TestSQLiteStoreSaveReplacesWholeSet(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t, 0)

	first := []models.CachedTemplateEntry{testEntry(t, "tpl-1", time.Now().UTC())}
	require.NoError(t, store.Save(ctx, first))

	second := []models.CachedTemplateEntry{testEntry(t, "tpl-2", time.Now().UTC())}
	require.NoError(t, store.Save(ctx, second))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "tpl-2", loaded[0].TemplateID)
}

func TestSQLiteStoreQuotaRejectionKeepsPreviousSet(t *testing.T) {
	ctx := context.Background()

	entry := testEntry(t, "tpl-1", time.Now().UTC())
	quota := entrySize(t, entry) + 16
	store := newTestSQLiteStore(t, quota)

	require.NoError(t, store.Save(ctx, []models.CachedTemplateEntry{entry}))

	over := []models.CachedTemplateEntry{
		entry,
		testEntry(t, "tpl-2", time.Now().UTC()),
	}
	err := store.Save(ctx, over)
	require.ErrorIs(t, err, ErrQuotaExceeded)

	// The rejected save left the previous set untouched.
	loaded, lerr := store.Load(ctx)
	require.NoError(t, lerr)
	require.Len(t, loaded, 1)
	assert.Equal(t, "tpl-1", loaded[0].TemplateID)
}

func TestSQLiteStoreFootprint(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t, 0)

	size, err := store.Footprint(ctx)
	require.NoError(t, err)
	assert.Zero(t, size)

	entry := testEntry(t, "tpl-1", time.Now().UTC())
	require.NoError(t, store.Save(ctx, []models.CachedTemplateEntry{entry}))

	size, err = store.Footprint(ctx)
	require.NoError(t, err)
	assert.Equal(t, entrySize(t, entry), size)
}
