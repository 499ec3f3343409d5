package litecache

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/starford/wikistore/internal/apperr"
	"github.com/starford/wikistore/internal/cache"
	"github.com/starford/wikistore/internal/models"
)

// view implements cache.Store over one generation of tables. Views
// handed out by DB reads are never written; a transaction view clones
// each table before touching it.
type view struct {
	t     *tables
	owned map[tableID]bool
}

var _ cache.Store = (*view)(nil)

func (v *view) GetPage(_ context.Context, word string) (*models.Page, error) {
	r, ok := v.t.Pages[word]
	if !ok {
		return nil, fmt.Errorf("page %q: %w", word, apperr.ErrNotFound)
	}
	return r.page(word), nil
}

func (v *view) PutPage(_ context.Context, p *models.Page) error {
	if p.FilePathLower != "" {
		for w, r := range v.t.Pages {
			if w != p.Word && r.FilePathLower == p.FilePathLower {
				return apperr.Write("put page", fmt.Errorf("file %q: %w", p.FilePath, apperr.ErrNameCollision))
			}
		}
	}
	own(v, tPages, &v.t.Pages)[p.Word] = pageToRecord(p)
	return nil
}

func (v *view) DeletePage(_ context.Context, word string) error {
	if _, ok := v.t.Pages[word]; ok {
		delete(own(v, tPages, &v.t.Pages), word)
	}
	return nil
}

func (v *view) WordForFile(_ context.Context, fileNameLower string) (string, error) {
	for w, r := range v.t.Pages {
		if r.FilePathLower == fileNameLower {
			return w, nil
		}
	}
	return "", fmt.Errorf("file %q: %w", fileNameLower, apperr.ErrNotFound)
}

func (v *view) wordsWhere(keep func(word string, r pageRecord) bool) []string {
	out := []string{}
	for w, r := range v.t.Pages {
		if keep(w, r) {
			out = append(out, w)
		}
	}
	slices.Sort(out)
	return out
}

func (v *view) AllWords(context.Context) ([]string, error) {
	return v.wordsWhere(func(string, pageRecord) bool { return true }), nil
}

func (v *view) WordsWithPrefix(_ context.Context, prefix string) ([]string, error) {
	return v.wordsWhere(func(w string, _ pageRecord) bool { return strings.HasPrefix(w, prefix) }), nil
}

func (v *view) WordsContaining(_ context.Context, substr string) ([]string, error) {
	return v.wordsWhere(func(w string, _ pageRecord) bool { return strings.Contains(w, substr) }), nil
}

func (v *view) FirstWord(context.Context) (string, error) {
	first, found := "", false
	for w := range v.t.Pages {
		if !found || w < first {
			first, found = w, true
		}
	}
	if !found {
		return "", fmt.Errorf("first word: %w", apperr.ErrNotFound)
	}
	return first, nil
}

func (v *view) NextWord(_ context.Context, after string) (string, error) {
	next, found := "", false
	for w := range v.t.Pages {
		if w > after && (!found || w < next) {
			next, found = w, true
		}
	}
	if !found {
		return "", fmt.Errorf("word after %q: %w", after, apperr.ErrNotFound)
	}
	return next, nil
}

func (v *view) WordsInState(_ context.Context, state models.MetadataState) ([]string, error) {
	return v.wordsWhere(func(_ string, r pageRecord) bool { return r.State == int(state) }), nil
}

func pageTime(r pageRecord, f models.TimeField) time.Time {
	switch f {
	case models.FieldCreated:
		return r.Created
	case models.FieldVisited:
		return r.Visited
	}
	return r.Modified
}

func (v *view) TimeBounds(_ context.Context, field models.TimeField) (time.Time, time.Time, error) {
	var lo, hi time.Time
	first := true
	for _, r := range v.t.Pages {
		t := pageTime(r, field)
		if first || t.Before(lo) {
			lo = t
		}
		if first || t.After(hi) {
			hi = t
		}
		first = false
	}
	return lo, hi, nil
}

func (v *view) WordsInTimeRange(_ context.Context, field models.TimeField, from, to time.Time) ([]string, error) {
	return v.wordsWhere(func(_ string, r pageRecord) bool {
		t := pageTime(r, field)
		return !t.Before(from) && t.Before(to)
	}), nil
}

func (v *view) RenameRows(ctx context.Context, oldWord, newWord string) error {
	if err := v.DeleteRows(ctx, newWord); err != nil {
		return err
	}
	moveRows(v, tRelations, &v.t.Relations, oldWord, newWord)
	moveRows(v, tAttributes, &v.t.Attributes, oldWord, newWord)
	moveRows(v, tTodos, &v.t.Todos, oldWord, newWord)
	moveRows(v, tMatchTerms, &v.t.MatchTerms, oldWord, newWord)
	return nil
}

func moveRows[V any](v *view, id tableID, m *map[string][]V, oldWord, newWord string) {
	rows, ok := (*m)[oldWord]
	if !ok {
		return
	}
	t := own(v, id, m)
	t[newWord] = rows
	delete(t, oldWord)
}

func (v *view) DeleteRows(_ context.Context, word string) error {
	if _, ok := v.t.Relations[word]; ok {
		delete(own(v, tRelations, &v.t.Relations), word)
	}
	if _, ok := v.t.Attributes[word]; ok {
		delete(own(v, tAttributes, &v.t.Attributes), word)
	}
	if _, ok := v.t.Todos[word]; ok {
		delete(own(v, tTodos, &v.t.Todos), word)
	}
	if _, ok := v.t.MatchTerms[word]; ok {
		delete(own(v, tMatchTerms, &v.t.MatchTerms), word)
	}
	return nil
}

func (v *view) Stats(context.Context) (cache.Stats, error) {
	s := cache.Stats{Pages: len(v.t.Pages), DataBlocks: len(v.t.Blocks)}
	for _, rs := range v.t.Relations {
		s.Relations += len(rs)
	}
	for _, as := range v.t.Attributes {
		s.Attributes += len(as)
	}
	for _, ts := range v.t.Todos {
		s.Todos += len(ts)
	}
	for _, ms := range v.t.MatchTerms {
		s.MatchTerms += len(ms)
	}
	for _, b := range v.t.Blocks {
		if !b.Extern {
			s.InternBytes += int64(len(b.Data))
		}
	}
	return s, nil
}

func (v *view) Setting(_ context.Context, key, def string) (string, error) {
	if s, ok := v.t.Settings[key]; ok {
		return s, nil
	}
	return def, nil
}

func (v *view) SetSetting(_ context.Context, key, value string) error {
	own(v, tSettings, &v.t.Settings)[key] = value
	return nil
}
