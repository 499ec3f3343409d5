package wikidata_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/wikistore/internal/apperr"
	"github.com/starford/wikistore/internal/cache"
	"github.com/starford/wikistore/internal/cache/cachetest"
	"github.com/starford/wikistore/internal/models"
	"github.com/starford/wikistore/internal/testutil"
	"github.com/starford/wikistore/internal/wikidata"
)

func faultyWiki(t *testing.T, backend string) (*wikidata.WikiData, *cachetest.FaultyBackend) {
	t.Helper()
	wd := testutil.TestWiki(t, backend)
	var faulty *cachetest.FaultyBackend
	wikidata.WrapBackend(wd, func(b cache.Backend) cache.Backend {
		faulty = cachetest.NewFaultyBackend(b)
		return faulty
	})
	return wd, faulty
}

// seedPage creates word with an alias, a property, a todo and a link.
func seedPage(t *testing.T, wd *wikidata.WikiData, word string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, wd.SetContent(ctx, word, "content of "+word))
	require.NoError(t, wd.UpdateWikiWordMatchTerms(ctx, word, []models.MatchTerm{{
		Term:          "Alias" + word,
		Source:        models.SourceProperties,
		ExplicitAlias: true,
		LinkTarget:    true,
		FirstCharPos:  -1,
		CharLength:    -1,
	}}, false))
	require.NoError(t, wd.UpdateProperties(ctx, word, map[string][]string{"color": {"red"}}))
	require.NoError(t, wd.UpdateTodos(ctx, word, []models.Todo{{Key: "todo", Value: "finish"}}))
	require.NoError(t, wd.UpdateChildRelations(ctx, word, []models.Relation{link(word, "Elsewhere", 0)}))
}

// requireIntact checks that word still has everything seedPage gave to
// the page seeded as seeded.
func requireIntact(t *testing.T, wd *wikidata.WikiData, word, seeded, file string) {
	t.Helper()
	ctx := context.Background()

	got, err := wd.GetContent(ctx, word)
	require.NoError(t, err)
	assert.Equal(t, "content of "+seeded, got)
	assert.FileExists(t, filepath.Join(wd.Config().DataDir, file))
	assert.True(t, wd.ValidateSignature(ctx, word), "file and row still agree")

	resolved, err := wd.GetUnAliasedWikiWord(ctx, word)
	require.NoError(t, err)
	assert.Equal(t, word, resolved)
	resolved, err = wd.GetUnAliasedWikiWord(ctx, "Alias"+seeded)
	require.NoError(t, err)
	assert.Equal(t, word, resolved)

	attrs, err := wd.GetPropertiesForWord(ctx, word)
	require.NoError(t, err)
	assert.Equal(t, []models.Attribute{{Word: word, Key: "color", Value: "red"}}, attrs)
	todos, err := wd.GetTodosForWord(ctx, word)
	require.NoError(t, err)
	assert.Equal(t, []models.Todo{{Word: word, Key: "todo", Value: "finish"}}, todos)
	children, err := wd.GetChildRelationships(ctx, word, cache.ChildQuery{IncludeSelf: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"Elsewhere"}, targets(children))
}

func requireNoTempFiles(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), ".wikistore-tmp-"), "leftover %s", e.Name())
	}
}

var failurePoints = []struct {
	name string
	arm  func(f *cachetest.FaultyBackend)
}{
	{"rows", func(f *cachetest.FaultyBackend) { f.FailOp("RenameRows"); f.FailOp("DeleteRows") }},
	{"page row", func(f *cachetest.FaultyBackend) { f.FailOp("DeletePage") }},
	{"commit", func(f *cachetest.FaultyBackend) { f.FailCommit() }},
}

func TestRenameWordRollsBackOnFailure(t *testing.T) {
	testutil.EachBackend(t, func(t *testing.T, backend string) {
		for _, fp := range failurePoints {
			t.Run(fp.name, func(t *testing.T) {
				ctx := context.Background()
				wd, faulty := faultyWiki(t, backend)
				seedPage(t, wd, "Old")

				fp.arm(faulty)
				err := wd.RenameWord(ctx, "Old", "New")
				require.ErrorIs(t, err, cachetest.ErrInjected)

				requireIntact(t, wd, "Old", "Old", "Old.wiki")
				_, err = wd.GetContent(ctx, "New")
				assert.ErrorIs(t, err, apperr.ErrNotFound)
				assert.NoFileExists(t, filepath.Join(wd.Config().DataDir, "New.wiki"))

				faulty.Heal()
				require.NoError(t, wd.RenameWord(ctx, "Old", "New"))
				requireIntact(t, wd, "New", "Old", "New.wiki")
			})
		}
	})
}

func TestDeleteWordRollsBackOnFailure(t *testing.T) {
	testutil.EachBackend(t, func(t *testing.T, backend string) {
		for _, fp := range failurePoints {
			t.Run(fp.name, func(t *testing.T) {
				ctx := context.Background()
				wd, faulty := faultyWiki(t, backend)
				seedPage(t, wd, "Keep")

				fp.arm(faulty)
				err := wd.DeleteWord(ctx, "Keep")
				require.ErrorIs(t, err, cachetest.ErrInjected)

				got, err := wd.GetContent(ctx, "Keep")
				require.NoError(t, err)
				assert.Equal(t, "content of Keep", got)
				assert.FileExists(t, filepath.Join(wd.Config().DataDir, "Keep.wiki"))
				resolved, err := wd.GetUnAliasedWikiWord(ctx, "AliasKeep")
				require.NoError(t, err)
				assert.Equal(t, "Keep", resolved)
				attrs, err := wd.GetPropertiesForWord(ctx, "Keep")
				require.NoError(t, err)
				assert.Len(t, attrs, 1)

				faulty.Heal()
				require.NoError(t, wd.DeleteWord(ctx, "Keep"))
				ok, err := wd.Exists(ctx, "Keep")
				require.NoError(t, err)
				assert.False(t, ok)
			})
		}
	})
}

func TestSetContentRollsBackOnFailure(t *testing.T) {
	testutil.EachBackend(t, func(t *testing.T, backend string) {
		ctx := context.Background()
		wd, faulty := faultyWiki(t, backend)
		seedPage(t, wd, "Page")
		before, err := wd.GetPage(ctx, "Page")
		require.NoError(t, err)

		faulty.FailCommit()
		err = wd.SetContent(ctx, "Page", "rewritten and longer")
		require.ErrorIs(t, err, cachetest.ErrInjected)
		err = wd.SetContent(ctx, "Fresh", "new page")
		require.ErrorIs(t, err, cachetest.ErrInjected)

		requireIntact(t, wd, "Page", "Page", "Page.wiki")
		after, err := wd.GetPage(ctx, "Page")
		require.NoError(t, err)
		assert.Equal(t, before.State, after.State)

		ok, err := wd.Exists(ctx, "Fresh")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.NoFileExists(t, filepath.Join(wd.Config().DataDir, "Fresh.wiki"))
		requireNoTempFiles(t, wd.Config().DataDir)
	})
}

func TestConcurrentWritersAndImports(t *testing.T) {
	testutil.EachBackend(t, func(t *testing.T, backend string) {
		ctx := context.Background()
		wd := testutil.TestWiki(t, backend)

		words := []string{"Foo", "foo", "FOO", "Bar", "bar", "Caf\u00e9", "Cafe\u0301"}
		files := []string{"Foo.wiki", "foo.wiki", "FOO.wiki", "Bar.wiki", "bar.wiki", "Caf\u00e9.wiki"}
		const rounds = 3

		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			errs []error
		)
		record := func(err error) {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}
		for _, word := range words {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for r := range rounds {
					if err := wd.SetContent(ctx, word, fmt.Sprintf("%s v%d", word, r)); err != nil {
						record(fmt.Errorf("set %q: %w", word, err))
					}
				}
			}()
		}
		for _, name := range files {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range 20 {
					if _, err := wd.ImportFile(ctx, name); err != nil && !errors.Is(err, apperr.ErrNotFound) {
						record(fmt.Errorf("import %q: %w", name, err))
					}
				}
			}()
		}
		wg.Wait()
		require.Empty(t, errs)

		all, err := wd.GetAllWords(ctx)
		require.NoError(t, err)
		want := slices.Clone(words)
		slices.Sort(want)
		assert.Equal(t, want, all, "imports never add pages of their own")

		seen := make(map[string]string, len(words))
		for _, word := range words {
			got, err := wd.GetContent(ctx, word)
			require.NoError(t, err)
			assert.Equal(t, fmt.Sprintf("%s v%d", word, rounds-1), got)

			page, err := wd.GetPage(ctx, word)
			require.NoError(t, err)
			lower := strings.ToLower(page.FilePath)
			if other, dup := seen[lower]; dup {
				t.Errorf("%q and %q share file %s", word, other, page.FilePath)
			}
			seen[lower] = word
			assert.True(t, wd.ValidateSignature(ctx, word), "signature of %q", word)
		}
		requireNoTempFiles(t, wd.Config().DataDir)
	})
}
