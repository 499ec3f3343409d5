package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/wikistore/internal/cache"
	"github.com/starford/wikistore/internal/models"
	"github.com/starford/wikistore/internal/testutil"
	"github.com/starford/wikistore/internal/wikidata"
)

func TestRefreshStoresParsedMetadata(t *testing.T) {
	testutil.EachBackend(t, func(t *testing.T, backend string) {
		ctx := context.Background()
		wd := testutil.TestWiki(t, backend)
		ix := New(wd, nil)

		require.NoError(t, wd.SetContent(ctx, "Robert", "---\nalias: Bob\n---\n# Robert Smith\n"))
		require.NoError(t, wd.SetContent(ctx, "Reader", "Read about [[Bob]].\ntodo: call Bob\n#people"))
		_, err := ix.RefreshStale(ctx)
		require.NoError(t, err)

		for _, w := range []string{"Robert", "Reader"} {
			page, err := wd.GetPage(ctx, w)
			require.NoError(t, err)
			assert.Equal(t, models.StateUpToDate, page.State, w)
		}

		children, err := wd.GetChildRelationships(ctx, "Reader", cache.ChildQuery{})
		require.NoError(t, err)
		require.Len(t, children, 1)
		assert.Equal(t, "Bob", children[0].Target)
		assert.True(t, children[0].Defined)

		parents, err := wd.GetParentRelationships(ctx, "Robert")
		require.NoError(t, err)
		assert.Equal(t, []string{"Reader"}, parents)

		todos, err := wd.GetTodos(ctx)
		require.NoError(t, err)
		assert.Equal(t, []models.Todo{{Word: "Reader", Key: "todo", Value: "call Bob"}}, todos)

		tagged, err := wd.GetWordsWithPropertyValue(ctx, KeyTag, "people")
		require.NoError(t, err)
		assert.Equal(t, []string{"Reader"}, tagged)

		links, err := wd.GetWikiLinksStartingWith(ctx, "Bo")
		require.NoError(t, err)
		require.Len(t, links, 1)
		assert.Equal(t, "Robert", links[0].Word)
	})
}

func TestRebuildReportsProgressAndStopsOnCancel(t *testing.T) {
	testutil.EachBackend(t, func(t *testing.T, backend string) {
		ctx := context.Background()
		wd := testutil.TestWiki(t, backend)
		for _, w := range []string{"A", "B", "C"} {
			require.NoError(t, wd.SetContent(ctx, w, "[[A]]"))
		}

		var calls [][2]int
		require.NoError(t, New(wd, nil).Rebuild(ctx, func(done, total int) {
			calls = append(calls, [2]int{done, total})
		}))
		assert.Equal(t, [][2]int{{1, 3}, {2, 3}, {3, 3}}, calls)
		upToDate, err := wd.GetWikiWordsForMetaDataState(ctx, models.StateUpToDate)
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "B", "C"}, upToDate)

		cctx, cancel := context.WithCancel(ctx)
		err = New(wd, nil).Rebuild(cctx, func(done, total int) {
			if done == 1 {
				cancel()
			}
		})
		assert.ErrorIs(t, err, context.Canceled)
		dirty, err := wd.GetWikiWordsForMetaDataState(ctx, models.StateDirty)
		require.NoError(t, err)
		assert.Equal(t, []string{"B", "C"}, dirty)
	})
}

func TestSyncImportsChangesAndRemoves(t *testing.T) {
	testutil.EachBackend(t, func(t *testing.T, backend string) {
		ctx := context.Background()
		wd := testutil.TestWiki(t, backend)
		ix := New(wd, nil)
		dir := wd.Config().DataDir

		require.NoError(t, wd.SetContent(ctx, "Kept", "original"))
		require.NoError(t, wd.SetContent(ctx, "Gone", "bye"))
		_, err := ix.RefreshStale(ctx)
		require.NoError(t, err)

		kept := filepath.Join(dir, "Kept.wiki")
		require.NoError(t, os.WriteFile(kept, []byte("edited [[Elsewhere]]"), 0o644))
		later := time.Now().Add(2 * time.Second)
		require.NoError(t, os.Chtimes(kept, later, later))
		require.NoError(t, os.Remove(filepath.Join(dir, "Gone.wiki")))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "New Page.wiki"), []byte("#fresh"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

		rep, err := ix.Sync(ctx)
		require.NoError(t, err)
		assert.Equal(t, SyncReport{Imported: 1, Changed: 1, Removed: 1, Refreshed: 2}, rep)

		words, err := wd.GetAllWords(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"Kept", "New Page"}, words)

		undefined, err := wd.GetUndefinedWords(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"Elsewhere"}, undefined)

		rep, err = ix.Sync(ctx)
		require.NoError(t, err)
		assert.Equal(t, SyncReport{}, rep, "second sync finds nothing to do")
	})
}

func TestSyncKeepsRootWithoutFile(t *testing.T) {
	ctx := context.Background()
	wd := testutil.TestWiki(t, wikidata.BackendLite)
	require.NoError(t, wd.SetContent(ctx, testutil.RootWord, "home"))
	require.NoError(t, os.Remove(filepath.Join(wd.Config().DataDir, testutil.RootWord+".wiki")))

	rep, err := New(wd, nil).Sync(ctx)
	require.NoError(t, err)
	assert.Zero(t, rep.Removed)
	ok, err := wd.Exists(ctx, testutil.RootWord)
	require.NoError(t, err)
	assert.True(t, ok)
}
