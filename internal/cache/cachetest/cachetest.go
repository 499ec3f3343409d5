// Package cachetest holds the behaviour every cache engine must share.
// Engine packages call Run from their tests.
package cachetest

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/wikistore/internal/apperr"
	"github.com/starford/wikistore/internal/cache"
	"github.com/starford/wikistore/internal/models"
)

// Opener returns a fresh, empty backend. Cleanup is the opener's job.
type Opener func(t *testing.T) cache.Backend

// Run executes the contract suite against open.
func Run(t *testing.T, open Opener) {
	tests := []struct {
		name string
		fn   func(t *testing.T, b cache.Backend)
	}{
		{"Pages", testPages},
		{"FileNameCollision", testFileNameCollision},
		{"Listing", testListing},
		{"Timestamps", testTimestamps},
		{"Relations", testRelations},
		{"ChildRelations", testChildRelations},
		{"ParentsThroughAliases", testParentsThroughAliases},
		{"LinkTermsBeforePages", testLinkTermsBeforePages},
		{"GraphQueriesMatchModel", testGraphModel},
		{"Attributes", testAttributes},
		{"Todos", testTodos},
		{"MatchTermPartitions", testMatchTermPartitions},
		{"MatchTermLookup", testMatchTermLookup},
		{"DataBlocks", testDataBlocks},
		{"Settings", testSettings},
		{"Transactions", testTransactions},
		{"RenameAndDeleteRows", testRenameAndDeleteRows},
		{"Stats", testStats},
		{"FreshFormat", testFreshFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, open(t))
		})
	}
}

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// PutPage stores a minimal page row for word.
func PutPage(t *testing.T, s cache.Store, word string, modified time.Time) {
	t.Helper()
	require.NoError(t, s.PutPage(context.Background(), &models.Page{
		Word:          word,
		Created:       modified,
		Modified:      modified,
		Visited:       modified,
		FilePath:      word + ".wiki",
		FilePathLower: fmt.Sprintf("%x.wiki", word),
		State:         models.StateDirty,
	}))
}

func link(targets ...string) []models.Relation {
	out := make([]models.Relation, 0, len(targets))
	for i, tg := range targets {
		out = append(out, models.Relation{Target: tg, FirstCharPos: i * 10})
	}
	return out
}

func alias(term string) models.MatchTerm {
	return models.MatchTerm{
		Term:          term,
		Source:        models.SourceProperties,
		ExplicitAlias: true,
		LinkTarget:    true,
		FirstCharPos:  -1,
		CharLength:    -1,
	}
}

func testPages(t *testing.T, b cache.Backend) {
	ctx := context.Background()

	_, err := b.GetPage(ctx, "Missing")
	require.ErrorIs(t, err, apperr.ErrNotFound)

	p := &models.Page{
		Word:          "HomePage",
		Created:       epoch,
		Modified:      epoch.Add(time.Hour),
		Visited:       epoch.Add(2 * time.Hour),
		FilePath:      "HomePage.wiki",
		FilePathLower: "homepage.wiki",
		Signature:     []byte{1, 2, 3},
		ReadOnly:      true,
		State:         models.StatePropsProcessed,
		Presentation:  []byte("pos=12"),
	}
	require.NoError(t, b.PutPage(ctx, p))

	got, err := b.GetPage(ctx, "HomePage")
	require.NoError(t, err)
	assert.Equal(t, p.Word, got.Word)
	assert.Equal(t, p.FilePath, got.FilePath)
	assert.Equal(t, p.FilePathLower, got.FilePathLower)
	assert.Equal(t, p.Signature, got.Signature)
	assert.True(t, got.ReadOnly)
	assert.Equal(t, models.StatePropsProcessed, got.State)
	assert.Equal(t, p.Presentation, got.Presentation)
	assert.WithinDuration(t, p.Created, got.Created, time.Millisecond)
	assert.WithinDuration(t, p.Modified, got.Modified, time.Millisecond)
	assert.WithinDuration(t, p.Visited, got.Visited, time.Millisecond)

	word, err := b.WordForFile(ctx, "homepage.wiki")
	require.NoError(t, err)
	assert.Equal(t, "HomePage", word)
	_, err = b.WordForFile(ctx, "other.wiki")
	require.ErrorIs(t, err, apperr.ErrNotFound)

	p.State = models.StateUpToDate
	p.ReadOnly = false
	require.NoError(t, b.PutPage(ctx, p))
	got, err = b.GetPage(ctx, "HomePage")
	require.NoError(t, err)
	assert.Equal(t, models.StateUpToDate, got.State)
	assert.False(t, got.ReadOnly)

	require.NoError(t, b.DeletePage(ctx, "HomePage"))
	_, err = b.GetPage(ctx, "HomePage")
	require.ErrorIs(t, err, apperr.ErrNotFound)
	require.NoError(t, b.DeletePage(ctx, "HomePage"), "deleting an absent page is a no-op")
}

func testFileNameCollision(t *testing.T, b cache.Backend) {
	ctx := context.Background()
	require.NoError(t, b.PutPage(ctx, &models.Page{Word: "Foo", FilePath: "Foo.wiki", FilePathLower: "foo.wiki"}))
	err := b.PutPage(ctx, &models.Page{Word: "foo", FilePath: "foo.wiki", FilePathLower: "foo.wiki"})
	require.ErrorIs(t, err, apperr.ErrNameCollision)
}

func testListing(t *testing.T, b cache.Backend) {
	ctx := context.Background()
	for _, w := range []string{"Beta", "Alpha", "AlphaTwo", "gamma", "Zeta"} {
		PutPage(t, b, w, epoch)
	}

	all, err := b.AllWords(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha", "AlphaTwo", "Beta", "Zeta", "gamma"}, all)

	pre, err := b.WordsWithPrefix(ctx, "Alpha")
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha", "AlphaTwo"}, pre)

	none, err := b.WordsWithPrefix(ctx, "alpha")
	require.NoError(t, err)
	assert.Empty(t, none, "prefix match is case sensitive")

	con, err := b.WordsContaining(ctx, "eta")
	require.NoError(t, err)
	assert.Equal(t, []string{"Beta", "Zeta"}, con)

	var walked []string
	w, err := b.FirstWord(ctx)
	for err == nil {
		walked = append(walked, w)
		w, err = b.NextWord(ctx, w)
	}
	require.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, all, walked)

	dirty, err := b.WordsInState(ctx, models.StateDirty)
	require.NoError(t, err)
	assert.Equal(t, all, dirty)
	done, err := b.WordsInState(ctx, models.StateUpToDate)
	require.NoError(t, err)
	assert.Empty(t, done)
}

func testTimestamps(t *testing.T, b cache.Backend) {
	ctx := context.Background()

	lo, hi, err := b.TimeBounds(ctx, models.FieldModified)
	require.NoError(t, err)
	assert.True(t, lo.IsZero() && hi.IsZero(), "empty cache has no bounds")

	PutPage(t, b, "Old", epoch)
	PutPage(t, b, "Mid", epoch.Add(time.Hour))
	PutPage(t, b, "New", epoch.Add(2*time.Hour))

	lo, hi, err = b.TimeBounds(ctx, models.FieldModified)
	require.NoError(t, err)
	assert.WithinDuration(t, epoch, lo, time.Millisecond)
	assert.WithinDuration(t, epoch.Add(2*time.Hour), hi, time.Millisecond)

	words, err := b.WordsInTimeRange(ctx, models.FieldCreated, epoch.Add(30*time.Minute), epoch.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"Mid", "New"}, words)
}

func testRelations(t *testing.T, b cache.Backend) {
	ctx := context.Background()
	PutPage(t, b, "A", epoch)

	rels := []models.Relation{
		{Target: "B", FirstCharPos: 5},
		{Target: "C", FirstCharPos: 1},
		{Target: "B", FirstCharPos: 9},
	}
	require.NoError(t, b.ReplaceRelations(ctx, "A", rels))
	require.NoError(t, b.ReplaceRelations(ctx, "A", rels))

	children, err := b.ChildRelations(ctx, "A", cache.ChildQuery{Order: cache.OrderByTarget})
	require.NoError(t, err)
	want := []models.ChildRelation{
		{Target: "B", FirstCharPos: 5},
		{Target: "C", FirstCharPos: 1},
	}
	assert.Empty(t, cmp.Diff(want, children))

	require.NoError(t, b.ReplaceRelations(ctx, "A", nil))
	children, err = b.ChildRelations(ctx, "A", cache.ChildQuery{})
	require.NoError(t, err)
	assert.Empty(t, children)
}

func testChildRelations(t *testing.T, b cache.Backend) {
	ctx := context.Background()
	PutPage(t, b, "Home", epoch)
	PutPage(t, b, "Recent", epoch.Add(2*time.Hour))
	PutPage(t, b, "Older", epoch.Add(time.Hour))
	PutPage(t, b, "Person", epoch.Add(3*time.Hour))
	require.NoError(t, b.ReplaceMatchTerms(ctx, "Person", []models.MatchTerm{alias("Bob")}, false))
	require.NoError(t, b.ReplaceRelations(ctx, "Home", []models.Relation{
		{Target: "Older", FirstCharPos: 30},
		{Target: "Nowhere", FirstCharPos: 10},
		{Target: "Home", FirstCharPos: 20},
		{Target: "Recent", FirstCharPos: 40},
		{Target: "Bob", FirstCharPos: 0},
	}))

	targets := func(rs []models.ChildRelation) []string {
		out := make([]string, 0, len(rs))
		for _, r := range rs {
			out = append(out, r.Target)
		}
		return out
	}

	all, err := b.ChildRelations(ctx, "Home", cache.ChildQuery{IncludeSelf: true, Order: cache.OrderByPosition})
	require.NoError(t, err)
	assert.Equal(t, []string{"Bob", "Nowhere", "Home", "Older", "Recent"}, targets(all))

	existing, err := b.ChildRelations(ctx, "Home", cache.ChildQuery{ExistingOnly: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"Bob", "Older", "Recent"}, targets(existing))
	for _, c := range existing {
		assert.True(t, c.Defined, c.Target)
	}

	byMod, err := b.ChildRelations(ctx, "Home", cache.ChildQuery{ExistingOnly: true, Order: cache.OrderByModified})
	require.NoError(t, err)
	assert.Equal(t, []string{"Bob", "Recent", "Older"}, targets(byMod))
	assert.WithinDuration(t, epoch.Add(3*time.Hour), byMod[0].Modified, time.Millisecond)

	withUndefined, err := b.ChildRelations(ctx, "Home", cache.ChildQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Bob", "Nowhere", "Older", "Recent"}, targets(withUndefined))
	assert.False(t, withUndefined[1].Defined)
}

func testParentsThroughAliases(t *testing.T, b cache.Backend) {
	ctx := context.Background()
	for _, w := range []string{"Person", "Diary", "Notes", "Loner"} {
		PutPage(t, b, w, epoch)
	}
	require.NoError(t, b.ReplaceMatchTerms(ctx, "Person", []models.MatchTerm{alias("Bob")}, false))
	require.NoError(t, b.ReplaceRelations(ctx, "Diary", link("Bob")))
	require.NoError(t, b.ReplaceRelations(ctx, "Notes", link("Person", "Ghost")))
	require.NoError(t, b.ReplaceRelations(ctx, "Loner", link("Loner")))

	parents, err := b.ParentWords(ctx, "Person")
	require.NoError(t, err)
	assert.Equal(t, []string{"Diary", "Notes"}, parents)

	parentless, err := b.ParentlessWords(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Diary", "Loner", "Notes"}, parentless, "self links do not count")

	undefined, err := b.UndefinedWords(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Ghost"}, undefined)

	// Content-derived terms that are not link targets never resolve links.
	require.NoError(t, b.ReplaceMatchTerms(ctx, "Notes", []models.MatchTerm{{
		Term: "Ghost", Source: models.SourceContent, FirstCharPos: 3, CharLength: 5,
	}}, false))
	undefined, err = b.UndefinedWords(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Ghost"}, undefined)
}

// testLinkTermsBeforePages checks that a link term naming an existing
// page without a self term resolves to the term's owner.
func testLinkTermsBeforePages(t *testing.T, b cache.Backend) {
	ctx := context.Background()
	PutPage(t, b, "Home", epoch)
	PutPage(t, b, "Shadow", epoch.Add(time.Hour))
	PutPage(t, b, "Owner", epoch.Add(5*time.Hour))
	require.NoError(t, b.ReplaceMatchTerms(ctx, "Owner", []models.MatchTerm{alias("Shadow")}, false))
	require.NoError(t, b.ReplaceRelations(ctx, "Home", link("Shadow")))

	terms, err := b.LookupMatchTerm(ctx, "Shadow", true)
	require.NoError(t, err)
	require.Len(t, terms, 1)
	assert.Equal(t, "Owner", terms[0].Word)

	children, err := b.ChildRelations(ctx, "Home", cache.ChildQuery{ExistingOnly: true})
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "Shadow", children[0].Target)
	assert.WithinDuration(t, epoch.Add(5*time.Hour), children[0].Modified, time.Millisecond,
		"child carries the modification time of the alias owner")

	// Linking from the owner to its own alias is a self link.
	require.NoError(t, b.ReplaceRelations(ctx, "Owner", link("Shadow")))
	children, err = b.ChildRelations(ctx, "Owner", cache.ChildQuery{})
	require.NoError(t, err)
	assert.Empty(t, children)
}

// testGraphModel builds a random graph and checks the graph queries
// against a direct computation over the same edges.
func testGraphModel(t *testing.T, b cache.Backend) {
	ctx := context.Background()
	rng := rand.New(rand.NewPCG(7, 11))

	var pages []string
	for i := range 25 {
		pages = append(pages, fmt.Sprintf("Page%02d", i))
	}
	names := append(slices.Clone(pages), "Undef1", "Undef2", "Undef3", "Nick1", "Nick2")
	aliases := map[string]string{"Nick1": "Page03", "Nick2": "Page17"}

	for _, p := range pages {
		PutPage(t, b, p, epoch)
	}
	for term, owner := range aliases {
		require.NoError(t, b.ReplaceMatchTerms(ctx, owner, []models.MatchTerm{alias(term)}, false))
	}
	edges := map[string][]string{}
	for _, p := range pages {
		n := rng.IntN(4)
		var targets []string
		for range n {
			targets = append(targets, names[rng.IntN(len(names))])
		}
		edges[p] = targets
		require.NoError(t, b.ReplaceRelations(ctx, p, link(targets...)))
	}

	isPage := func(s string) bool { return slices.Contains(pages, s) }
	resolve := func(target string) string {
		if isPage(target) {
			return target
		}
		return aliases[target]
	}

	hasParent := map[string]bool{}
	undefinedSet := map[string]bool{}
	for from, targets := range edges {
		for _, tg := range targets {
			if r := resolve(tg); r == "" {
				undefinedSet[tg] = true
			} else if r != from {
				hasParent[r] = true
			}
		}
	}
	var wantParentless, wantUndefined []string
	for _, p := range pages {
		if !hasParent[p] {
			wantParentless = append(wantParentless, p)
		}
	}
	for u := range undefinedSet {
		wantUndefined = append(wantUndefined, u)
	}
	slices.Sort(wantUndefined)

	gotParentless, err := b.ParentlessWords(ctx)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(wantParentless, gotParentless, cmpopts.EquateEmpty()))

	gotUndefined, err := b.UndefinedWords(ctx)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(wantUndefined, gotUndefined, cmpopts.EquateEmpty()))

	for _, p := range pages {
		var want []string
		for from, targets := range edges {
			if from == p {
				continue
			}
			for _, tg := range targets {
				if resolve(tg) == p {
					want = append(want, from)
					break
				}
			}
		}
		slices.Sort(want)
		got, err := b.ParentWords(ctx, p)
		require.NoError(t, err)
		assert.Empty(t, cmp.Diff(want, got, cmpopts.EquateEmpty()), p)
	}
}

func testAttributes(t *testing.T, b cache.Backend) {
	ctx := context.Background()
	PutPage(t, b, "A", epoch)
	PutPage(t, b, "B", epoch)
	attrs := []models.Attribute{
		{Key: "tag", Value: "project"},
		{Key: "tag", Value: "active"},
		{Key: "tag", Value: "project"},
		{Key: "global.theme", Value: "dark"},
	}
	require.NoError(t, b.ReplaceAttributes(ctx, "A", attrs))
	require.NoError(t, b.ReplaceAttributes(ctx, "A", attrs))
	require.NoError(t, b.ReplaceAttributes(ctx, "B", []models.Attribute{
		{Key: "tag", Value: "archive"},
		{Key: "template", Value: "daily"},
	}))

	got, err := b.AttributesForWord(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, []models.Attribute{
		{Word: "A", Key: "tag", Value: "project"},
		{Word: "A", Key: "tag", Value: "active"},
		{Word: "A", Key: "global.theme", Value: "dark"},
	}, got)

	keys, err := b.AttributeKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"tag", "template"}, keys)

	keys, err = b.AttributeKeysWithPrefix(ctx, "te")
	require.NoError(t, err)
	assert.Equal(t, []string{"template"}, keys)

	values, err := b.AttributeValues(ctx, "tag")
	require.NoError(t, err)
	assert.Equal(t, []string{"active", "archive", "project"}, values)

	words, err := b.WordsWithAttribute(ctx, "tag", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, words)
	words, err = b.WordsWithAttribute(ctx, "tag", "archive")
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, words)

	globals, err := b.GlobalAttributes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.Attribute{{Word: "A", Key: "global.theme", Value: "dark"}}, globals)
}

func testTodos(t *testing.T, b cache.Backend) {
	ctx := context.Background()
	require.NoError(t, b.ReplaceTodos(ctx, "B", []models.Todo{{Key: "todo", Value: "second"}}))
	require.NoError(t, b.ReplaceTodos(ctx, "A", []models.Todo{
		{Key: "todo", Value: "write tests"},
		{Key: "done", Value: "ship"},
		{Key: "todo", Value: "write tests"},
	}))

	got, err := b.TodosForWord(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, []models.Todo{
		{Word: "A", Key: "todo", Value: "write tests"},
		{Word: "A", Key: "done", Value: "ship"},
	}, got)

	all, err := b.AllTodos(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "A", all[0].Word)
	assert.Equal(t, "B", all[2].Word)
}

func testMatchTermPartitions(t *testing.T, b cache.Backend) {
	ctx := context.Background()
	PutPage(t, b, "Person", epoch)
	self := models.SelfTerm("Person")
	require.NoError(t, b.ReplaceMatchTerms(ctx, "Person", []models.MatchTerm{self}, true))
	require.NoError(t, b.ReplaceMatchTerms(ctx, "Person", []models.MatchTerm{alias("Bob"), alias("Robert")}, false))

	got, err := b.MatchTermsForWord(ctx, "Person")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, self, got[0])

	// Replacing the asynchronous partition keeps the sync-managed term.
	require.NoError(t, b.ReplaceMatchTerms(ctx, "Person", []models.MatchTerm{alias("Bobby")}, false))
	got, err = b.MatchTermsForWord(ctx, "Person")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Person", got[0].Term)
	assert.True(t, got[0].SyncManaged)
	assert.Equal(t, "Bobby", got[1].Term)
	assert.False(t, got[1].SyncManaged)

	// And the other way round.
	require.NoError(t, b.ReplaceMatchTerms(ctx, "Person", nil, true))
	got, err = b.MatchTermsForWord(ctx, "Person")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Bobby", got[0].Term)
}

func testMatchTermLookup(t *testing.T, b cache.Backend) {
	ctx := context.Background()
	require.NoError(t, b.ReplaceMatchTerms(ctx, "Zed", []models.MatchTerm{alias("Shared")}, false))
	require.NoError(t, b.ReplaceMatchTerms(ctx, "Shared", []models.MatchTerm{models.SelfTerm("Shared")}, true))
	require.NoError(t, b.ReplaceMatchTerms(ctx, "Amy", []models.MatchTerm{
		{Term: "Shared", Source: models.SourceContent, FirstCharPos: 4, CharLength: 6},
	}, false))

	got, err := b.LookupMatchTerm(ctx, "Shared", false)
	require.NoError(t, err)
	var owners []string
	for _, m := range got {
		owners = append(owners, m.Word)
	}
	assert.Equal(t, []string{"Shared", "Zed", "Amy"}, owners)

	links, err := b.LookupMatchTerm(ctx, "Shared", true)
	require.NoError(t, err)
	assert.Len(t, links, 2)

	found, err := b.SearchMatchTerms(ctx, "har", false)
	require.NoError(t, err)
	assert.Len(t, found, 3)
	found, err = b.SearchMatchTerms(ctx, "HAR", false)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func testDataBlocks(t *testing.T, b cache.Backend) {
	ctx := context.Background()

	_, err := b.GetDataBlock(ctx, "savedsearch/missing")
	require.ErrorIs(t, err, apperr.ErrNotFound)

	require.NoError(t, b.PutDataBlock(ctx, &cache.DataBlockRow{Name: "savedsearch/todo", Placement: models.Intern, Data: []byte("query")}))
	row, err := b.GetDataBlock(ctx, "savedsearch/todo")
	require.NoError(t, err)
	assert.Equal(t, models.Intern, row.Placement)
	assert.Equal(t, []byte("query"), row.Data)

	require.NoError(t, b.PutDataBlock(ctx, &cache.DataBlockRow{
		Name: "savedsearch/todo", Placement: models.Extern, FilePath: "todo.data", Signature: []byte{9},
	}))
	row, err = b.GetDataBlock(ctx, "savedsearch/todo")
	require.NoError(t, err)
	assert.Equal(t, models.Extern, row.Placement)
	assert.Equal(t, "todo.data", row.FilePath)
	assert.Empty(t, row.Data)

	require.NoError(t, b.PutDataBlock(ctx, &cache.DataBlockRow{Name: "savedsearch/done", Data: []byte("q2")}))
	require.NoError(t, b.PutDataBlock(ctx, &cache.DataBlockRow{Name: "template/daily", Data: []byte("t")}))

	names, err := b.DataBlockNamesWithPrefix(ctx, "savedsearch/")
	require.NoError(t, err)
	assert.Equal(t, []string{"savedsearch/done", "savedsearch/todo"}, names)

	require.NoError(t, b.DeleteDataBlock(ctx, "savedsearch/todo"))
	_, err = b.GetDataBlock(ctx, "savedsearch/todo")
	require.ErrorIs(t, err, apperr.ErrNotFound)
	require.NoError(t, b.DeleteDataBlock(ctx, "savedsearch/todo"))
}

func testSettings(t *testing.T, b cache.Backend) {
	ctx := context.Background()
	v, err := b.Setting(ctx, "lastopened", "never")
	require.NoError(t, err)
	assert.Equal(t, "never", v)

	require.NoError(t, b.SetSetting(ctx, "lastopened", "HomePage"))
	require.NoError(t, b.SetSetting(ctx, "lastopened", "Diary"))
	v, err = b.Setting(ctx, "lastopened", "never")
	require.NoError(t, err)
	assert.Equal(t, "Diary", v)
}

func testTransactions(t *testing.T, b cache.Backend) {
	ctx := context.Background()
	boom := errors.New("boom")

	err := b.InTx(ctx, func(tx cache.Store) error {
		PutPage(t, tx, "Ghost", epoch)
		require.NoError(t, tx.ReplaceRelations(ctx, "Ghost", link("A")))
		got, err := tx.GetPage(ctx, "Ghost")
		require.NoError(t, err)
		assert.Equal(t, "Ghost", got.Word)
		return boom
	})
	require.ErrorIs(t, err, boom)
	_, err = b.GetPage(ctx, "Ghost")
	require.ErrorIs(t, err, apperr.ErrNotFound)
	undefined, err := b.UndefinedWords(ctx)
	require.NoError(t, err)
	assert.Empty(t, undefined)

	require.NoError(t, b.InTx(ctx, func(tx cache.Store) error {
		PutPage(t, tx, "Kept", epoch)
		return tx.ReplaceRelations(ctx, "Kept", link("B"))
	}))
	_, err = b.GetPage(ctx, "Kept")
	require.NoError(t, err)

	require.NoError(t, b.TestWrite(ctx))
	v, err := b.Setting(ctx, "writecheck", "")
	require.NoError(t, err)
	assert.Empty(t, v, "a write check leaves no trace")
}

func testRenameAndDeleteRows(t *testing.T, b cache.Backend) {
	ctx := context.Background()
	PutPage(t, b, "Old", epoch)
	PutPage(t, b, "Other", epoch)
	require.NoError(t, b.ReplaceRelations(ctx, "Old", link("Other")))
	require.NoError(t, b.ReplaceRelations(ctx, "Other", link("Old")))
	require.NoError(t, b.ReplaceAttributes(ctx, "Old", []models.Attribute{{Key: "tag", Value: "x"}}))
	require.NoError(t, b.ReplaceTodos(ctx, "Old", []models.Todo{{Key: "todo", Value: "y"}}))
	require.NoError(t, b.ReplaceMatchTerms(ctx, "Old", []models.MatchTerm{alias("Alias")}, false))

	// Orphan rows already owned by the target are replaced, not merged.
	require.NoError(t, b.ReplaceRelations(ctx, "New", link("Other", "Stale")))
	require.NoError(t, b.ReplaceAttributes(ctx, "New", []models.Attribute{{Key: "tag", Value: "stale"}}))
	require.NoError(t, b.ReplaceTodos(ctx, "New", []models.Todo{{Key: "todo", Value: "stale"}}))
	require.NoError(t, b.ReplaceMatchTerms(ctx, "New", []models.MatchTerm{alias("Stale")}, false))

	require.NoError(t, b.RenameRows(ctx, "Old", "New"))

	children, err := b.ChildRelations(ctx, "New", cache.ChildQuery{})
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "Other", children[0].Target)

	attrs, err := b.AttributesForWord(ctx, "New")
	require.NoError(t, err)
	require.Len(t, attrs, 1)
	assert.Equal(t, "x", attrs[0].Value)
	todos, err := b.TodosForWord(ctx, "New")
	require.NoError(t, err)
	require.Len(t, todos, 1)
	assert.Equal(t, "y", todos[0].Value)
	terms, err := b.MatchTermsForWord(ctx, "New")
	require.NoError(t, err)
	require.Len(t, terms, 1)
	assert.Equal(t, "Alias", terms[0].Term)

	// Links naming the old word are text and stay as they were.
	children, err = b.ChildRelations(ctx, "Other", cache.ChildQuery{IncludeSelf: true})
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "Old", children[0].Target)

	old, err := b.AttributesForWord(ctx, "Old")
	require.NoError(t, err)
	assert.Empty(t, old)

	require.NoError(t, b.DeleteRows(ctx, "New"))
	children, err = b.ChildRelations(ctx, "New", cache.ChildQuery{})
	require.NoError(t, err)
	assert.Empty(t, children)
	terms, err = b.MatchTermsForWord(ctx, "New")
	require.NoError(t, err)
	assert.Empty(t, terms)
}

func testStats(t *testing.T, b cache.Backend) {
	ctx := context.Background()
	PutPage(t, b, "A", epoch)
	require.NoError(t, b.ReplaceRelations(ctx, "A", link("B", "C")))
	require.NoError(t, b.PutDataBlock(ctx, &cache.DataBlockRow{Name: "x", Data: []byte("12345")}))

	s, err := b.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Pages)
	assert.Equal(t, 2, s.Relations)
	assert.Equal(t, 1, s.DataBlocks)
	assert.Equal(t, int64(5), s.InternBytes)
}

func testFreshFormat(t *testing.T, b cache.Backend) {
	status, _, err := b.FormatStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.FormatUpToDate, status)
}
