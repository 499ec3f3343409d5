package pageservice

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/wikistore/internal/apperr"
	"github.com/starford/wikistore/internal/indexer"
	"github.com/starford/wikistore/internal/testutil"
	"github.com/starford/wikistore/internal/wikidata"
)

func testService(t *testing.T, backend string) *Service {
	t.Helper()
	wd := testutil.TestWiki(t, backend)
	return NewService(wd, indexer.New(wd, nil))
}

func TestCreatePageIndexesContent(t *testing.T) {
	testutil.EachBackend(t, func(t *testing.T, backend string) {
		ctx := context.Background()
		svc := testService(t, backend)

		page, err := svc.CreatePage(ctx, "Start", "---\ntags: [intro]\n---\nGo to [[Next]].\ntodo: finish")
		require.NoError(t, err)
		assert.Equal(t, "up_to_date", page.State)
		assert.Equal(t, map[string][]string{"tag": {"intro"}}, page.Properties)
		require.Len(t, page.Children, 1)
		assert.Equal(t, "Next", page.Children[0].Target)
		assert.False(t, page.Children[0].Defined)
		require.Len(t, page.Todos, 1)
		assert.Equal(t, "finish", page.Todos[0].Value)
		assert.Equal(t, ETag(page.Content), page.ETag)

		_, err = svc.CreatePage(ctx, "Start", "again")
		assert.ErrorIs(t, err, apperr.ErrNameCollision)
	})
}

func TestSavePageChecksETag(t *testing.T) {
	ctx := context.Background()
	svc := testService(t, wikidata.BackendSQLite)

	first, err := svc.SavePage(ctx, "Doc", "v1", "")
	require.NoError(t, err)

	_, err = svc.SavePage(ctx, "Doc", "v2", "stale")
	assert.ErrorIs(t, err, apperr.ErrConflict)

	second, err := svc.SavePage(ctx, "Doc", "v2", first.ETag)
	require.NoError(t, err)
	assert.Equal(t, "v2", second.Content)
	assert.NotEqual(t, first.ETag, second.ETag)

	_, err = svc.SavePage(ctx, "Missing", "x", "anything")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestGraphFollowsAliases(t *testing.T) {
	ctx := context.Background()
	svc := testService(t, wikidata.BackendLite)

	_, err := svc.CreatePage(ctx, "Robert", "---\nalias: Bob\n---\n[[Robert]]")
	require.NoError(t, err)
	_, err = svc.CreatePage(ctx, "Team", "[[Bob]] and [[Robert]] and [[Nobody]]")
	require.NoError(t, err)

	nodes, links, err := svc.Graph(ctx)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, []GraphLink{{Source: "Team", Target: "Robert"}}, links)

	backlinks, err := svc.Backlinks(ctx, "Robert")
	require.NoError(t, err)
	assert.Equal(t, []string{"Team"}, backlinks)
}

func TestRenameAndDeletePage(t *testing.T) {
	ctx := context.Background()
	svc := testService(t, wikidata.BackendSQLite)

	_, err := svc.CreatePage(ctx, "Draft", "#wip")
	require.NoError(t, err)
	page, err := svc.RenamePage(ctx, "Draft", "Final")
	require.NoError(t, err)
	assert.Equal(t, "Final", page.Word)
	assert.Equal(t, map[string][]string{"tag": {"wip"}}, page.Properties)

	words, err := svc.ListPages(ctx, "Fi", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"Final"}, words)

	require.NoError(t, svc.DeletePage(ctx, "Final"))
	assert.ErrorIs(t, svc.DeletePage(ctx, "Final"), apperr.ErrNotFound)

	words, err = svc.ListPages(ctx, "", "")
	require.NoError(t, err)
	assert.Empty(t, words)
}
