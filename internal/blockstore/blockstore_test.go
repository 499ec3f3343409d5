package blockstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/wikistore/internal/apperr"
	"github.com/starford/wikistore/internal/cache"
	"github.com/starford/wikistore/internal/cache/cachetest"
	"github.com/starford/wikistore/internal/cache/litecache"
	"github.com/starford/wikistore/internal/cache/sqlcache"
	"github.com/starford/wikistore/internal/filename"
	"github.com/starford/wikistore/internal/models"
	"github.com/starford/wikistore/internal/storage"
)

var engines = []struct {
	name string
	open func(t *testing.T, dir string) cache.Backend
}{
	{"sqlite", func(t *testing.T, dir string) cache.Backend {
		db, err := sqlcache.Open(context.Background(), filepath.Join(dir, sqlcache.FileName), sqlcache.Options{})
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		return db
	}},
	{"lite", func(t *testing.T, dir string) cache.Backend {
		db, err := litecache.Open(context.Background(), filepath.Join(dir, litecache.FileName), litecache.Options{})
		require.NoError(t, err)
		return db
	}},
}

type fixture struct {
	store *Store
	cache cache.Backend
	files storage.Provider
	dir   string
}

func eachEngine(t *testing.T, fn func(t *testing.T, f fixture)) {
	for _, e := range engines {
		t.Run(e.name, func(t *testing.T) {
			dir := t.TempDir()
			files, err := storage.NewFS(dir)
			require.NoError(t, err)
			backend := e.open(t, t.TempDir())
			fn(t, fixture{
				store: New(backend, files, filename.Options{}, nil),
				cache: backend,
				files: files,
				dir:   dir,
			})
		})
	}
}

func TestInternRoundTrip(t *testing.T) {
	eachEngine(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		require.NoError(t, f.store.Put(ctx, "savedsearch/open", []byte("todo:"), models.Intern))
		got, err := f.store.Get(ctx, "savedsearch/open")
		require.NoError(t, err)
		assert.Equal(t, []byte("todo:"), got)

		entries, err := os.ReadDir(f.dir)
		require.NoError(t, err)
		assert.Empty(t, entries, "intern blocks write no files")
	})
}

func TestExternRoundTrip(t *testing.T) {
	eachEngine(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		require.NoError(t, f.store.Put(ctx, "versioning/overview", []byte("line1\r\nline2\r"), models.Extern))

		row, err := f.cache.GetDataBlock(ctx, "versioning/overview")
		require.NoError(t, err)
		assert.Equal(t, models.Extern, row.Placement)
		assert.True(t, strings.HasSuffix(row.FilePath, FileSuffix))
		assert.NotEmpty(t, row.Signature)
		assert.FileExists(t, filepath.Join(f.dir, row.FilePath))

		text, err := f.store.GetText(ctx, "versioning/overview")
		require.NoError(t, err)
		assert.Equal(t, "line1\nline2\n", text)
	})
}

func TestExistingPlacementWins(t *testing.T) {
	eachEngine(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		require.NoError(t, f.store.Put(ctx, "in", []byte("a"), models.Intern))
		require.NoError(t, f.store.Put(ctx, "in", []byte("b"), models.Extern))
		row, err := f.cache.GetDataBlock(ctx, "in")
		require.NoError(t, err)
		assert.Equal(t, models.Intern, row.Placement)
		assert.Equal(t, []byte("b"), row.Data)

		require.NoError(t, f.store.Put(ctx, "out", []byte("a"), models.Extern))
		first, err := f.cache.GetDataBlock(ctx, "out")
		require.NoError(t, err)
		require.NoError(t, f.store.Put(ctx, "out", []byte("bb"), models.Intern))
		second, err := f.cache.GetDataBlock(ctx, "out")
		require.NoError(t, err)
		assert.Equal(t, models.Extern, second.Placement)
		assert.Equal(t, first.FilePath, second.FilePath, "overwritten in place")

		got, err := f.store.Get(ctx, "out")
		require.NoError(t, err)
		assert.Equal(t, []byte("bb"), got)
	})
}

func TestLongNamesGetDistinctFiles(t *testing.T) {
	eachEngine(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		stem := strings.Repeat("x", 200)
		require.NoError(t, f.store.Put(ctx, stem+"1", []byte("one"), models.Extern))
		require.NoError(t, f.store.Put(ctx, stem+"2", []byte("two"), models.Extern))

		a, err := f.cache.GetDataBlock(ctx, stem+"1")
		require.NoError(t, err)
		b, err := f.cache.GetDataBlock(ctx, stem+"2")
		require.NoError(t, err)
		assert.NotEqual(t, a.FilePath, b.FilePath)

		one, err := f.store.Get(ctx, stem+"1")
		require.NoError(t, err)
		two, err := f.store.Get(ctx, stem+"2")
		require.NoError(t, err)
		assert.Equal(t, "one", string(one))
		assert.Equal(t, "two", string(two))
	})
}

func TestDeleteRemovesFile(t *testing.T) {
	eachEngine(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		require.NoError(t, f.store.Put(ctx, "gone", []byte("x"), models.Extern))
		row, err := f.cache.GetDataBlock(ctx, "gone")
		require.NoError(t, err)

		require.NoError(t, f.store.Delete(ctx, "gone"))
		assert.NoFileExists(t, filepath.Join(f.dir, row.FilePath))
		_, err = f.store.Get(ctx, "gone")
		require.ErrorIs(t, err, apperr.ErrNotFound)
		require.NoError(t, f.store.Delete(ctx, "gone"))
	})
}

func TestNamesWithPrefixSpansPlacements(t *testing.T) {
	eachEngine(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		require.NoError(t, f.store.Put(ctx, "savedsearch/b", []byte("1"), models.Extern))
		require.NoError(t, f.store.Put(ctx, "savedsearch/a", []byte("2"), models.Intern))
		require.NoError(t, f.store.Put(ctx, "other/c", []byte("3"), models.Intern))

		names, err := f.store.NamesWithPrefix(ctx, "savedsearch/")
		require.NoError(t, err)
		assert.Equal(t, []string{"savedsearch/a", "savedsearch/b"}, names)
	})
}

func TestChangedDetectsExternalEdit(t *testing.T) {
	eachEngine(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		require.NoError(t, f.store.Put(ctx, "ext", []byte("v1"), models.Extern))
		changed, err := f.store.Changed(ctx, "ext")
		require.NoError(t, err)
		assert.False(t, changed)

		row, err := f.cache.GetDataBlock(ctx, "ext")
		require.NoError(t, err)
		path := filepath.Join(f.dir, row.FilePath)
		require.NoError(t, os.WriteFile(path, []byte("edited elsewhere"), 0o644))
		future := time.Now().Add(time.Hour)
		require.NoError(t, os.Chtimes(path, future, future))

		changed, err = f.store.Changed(ctx, "ext")
		require.NoError(t, err)
		assert.True(t, changed)
	})
}

func TestFailedPutKeepsPreviousPayload(t *testing.T) {
	eachEngine(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		faulty := cachetest.NewFaultyBackend(f.cache)
		store := New(faulty, f.files, filename.Options{}, nil)

		require.NoError(t, store.Put(ctx, "ext", []byte("v1"), models.Extern))
		faulty.FailCommit()
		err := store.Put(ctx, "ext", []byte("v2 is longer"), models.Extern)
		require.ErrorIs(t, err, cachetest.ErrInjected)

		got, err := store.Get(ctx, "ext")
		require.NoError(t, err)
		assert.Equal(t, []byte("v1"), got)
		changed, err := store.Changed(ctx, "ext")
		require.NoError(t, err)
		assert.False(t, changed, "the restored file matches the stored signature")

		err = store.Put(ctx, "fresh", []byte("x"), models.Extern)
		require.ErrorIs(t, err, cachetest.ErrInjected)
		_, err = store.Get(ctx, "fresh")
		require.ErrorIs(t, err, apperr.ErrNotFound)

		entries, err := os.ReadDir(f.dir)
		require.NoError(t, err)
		require.Len(t, entries, 1, "only the first block file remains")

		faulty.Heal()
		require.NoError(t, store.Put(ctx, "ext", []byte("v3"), models.Extern))
		got, err = store.Get(ctx, "ext")
		require.NoError(t, err)
		assert.Equal(t, []byte("v3"), got)
	})
}
