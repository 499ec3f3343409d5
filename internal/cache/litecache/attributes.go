package litecache

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/starford/wikistore/internal/apperr"
	"github.com/starford/wikistore/internal/cache"
	"github.com/starford/wikistore/internal/models"
)

func (v *view) ReplaceAttributes(_ context.Context, word string, attrs []models.Attribute) error {
	attrs = cache.DedupeAttributes(word, attrs)
	m := own(v, tAttributes, &v.t.Attributes)
	if len(attrs) == 0 {
		delete(m, word)
		return nil
	}
	rows := make([]pairRecord, 0, len(attrs))
	for _, a := range attrs {
		rows = append(rows, pairRecord{Key: a.Key, Value: a.Value})
	}
	m[word] = rows
	return nil
}

func (v *view) AttributesForWord(_ context.Context, word string) ([]models.Attribute, error) {
	out := []models.Attribute{}
	for _, r := range v.t.Attributes[word] {
		out = append(out, models.Attribute{Word: word, Key: r.Key, Value: r.Value})
	}
	return out, nil
}

// distinct collects f over every attribute row and returns the sorted set.
func (v *view) distinct(f func(word string, r pairRecord) (string, bool)) []string {
	set := make(map[string]struct{})
	for w, rows := range v.t.Attributes {
		for _, r := range rows {
			if s, ok := f(w, r); ok {
				set[s] = struct{}{}
			}
		}
	}
	return slices.Sorted(maps.Keys(set))
}

func (v *view) AttributeKeys(context.Context) ([]string, error) {
	return v.distinct(func(_ string, r pairRecord) (string, bool) {
		return r.Key, !strings.HasPrefix(r.Key, models.GlobalPrefix)
	}), nil
}

func (v *view) AttributeKeysWithPrefix(_ context.Context, prefix string) ([]string, error) {
	return v.distinct(func(_ string, r pairRecord) (string, bool) {
		return r.Key, strings.HasPrefix(r.Key, prefix)
	}), nil
}

func (v *view) AttributeValues(_ context.Context, key string) ([]string, error) {
	return v.distinct(func(_ string, r pairRecord) (string, bool) {
		return r.Value, r.Key == key
	}), nil
}

func (v *view) WordsWithAttribute(_ context.Context, key, value string) ([]string, error) {
	return v.distinct(func(w string, r pairRecord) (string, bool) {
		return w, r.Key == key && (value == "" || r.Value == value)
	}), nil
}

func (v *view) GlobalAttributes(context.Context) ([]models.Attribute, error) {
	out := []models.Attribute{}
	for _, w := range slices.Sorted(maps.Keys(v.t.Attributes)) {
		for _, r := range v.t.Attributes[w] {
			if strings.HasPrefix(r.Key, models.GlobalPrefix) {
				out = append(out, models.Attribute{Word: w, Key: r.Key, Value: r.Value})
			}
		}
	}
	return out, nil
}

func (v *view) ReplaceTodos(_ context.Context, word string, todos []models.Todo) error {
	todos = cache.DedupeTodos(word, todos)
	m := own(v, tTodos, &v.t.Todos)
	if len(todos) == 0 {
		delete(m, word)
		return nil
	}
	rows := make([]pairRecord, 0, len(todos))
	for _, t := range todos {
		rows = append(rows, pairRecord{Key: t.Key, Value: t.Value})
	}
	m[word] = rows
	return nil
}

func (v *view) AllTodos(context.Context) ([]models.Todo, error) {
	out := []models.Todo{}
	for _, w := range slices.Sorted(maps.Keys(v.t.Todos)) {
		for _, r := range v.t.Todos[w] {
			out = append(out, models.Todo{Word: w, Key: r.Key, Value: r.Value})
		}
	}
	return out, nil
}

func (v *view) TodosForWord(_ context.Context, word string) ([]models.Todo, error) {
	out := []models.Todo{}
	for _, r := range v.t.Todos[word] {
		out = append(out, models.Todo{Word: word, Key: r.Key, Value: r.Value})
	}
	return out, nil
}

func (v *view) ReplaceMatchTerms(_ context.Context, word string, terms []models.MatchTerm, syncManaged bool) error {
	terms = cache.PrepareMatchTerms(word, terms, syncManaged)
	m := own(v, tMatchTerms, &v.t.MatchTerms)
	rows := make([]matchTermRecord, 0, len(m[word])+len(terms))
	for _, r := range m[word] {
		if r.SyncManaged != syncManaged {
			rows = append(rows, r)
		}
	}
	for _, t := range terms {
		rows = append(rows, termToRecord(t))
	}
	if len(rows) == 0 {
		delete(m, word)
		return nil
	}
	m[word] = rows
	return nil
}

func (v *view) MatchTermsForWord(_ context.Context, word string) ([]models.MatchTerm, error) {
	out := []models.MatchTerm{}
	for _, r := range v.t.MatchTerms[word] {
		out = append(out, r.term(word))
	}
	return out, nil
}

func (v *view) collectTerms(keep func(r matchTermRecord) bool) []models.MatchTerm {
	out := []models.MatchTerm{}
	for _, w := range slices.Sorted(maps.Keys(v.t.MatchTerms)) {
		for _, r := range v.t.MatchTerms[w] {
			if keep(r) {
				out = append(out, r.term(w))
			}
		}
	}
	return out
}

func (v *view) LookupMatchTerm(_ context.Context, term string, linkOnly bool) ([]models.MatchTerm, error) {
	out := v.collectTerms(func(r matchTermRecord) bool {
		return r.Term == term && (!linkOnly || r.LinkTarget)
	})
	slices.SortStableFunc(out, cache.CompareTerms)
	return out, nil
}

func (v *view) SearchMatchTerms(_ context.Context, substr string, linkOnly bool) ([]models.MatchTerm, error) {
	out := v.collectTerms(func(r matchTermRecord) bool {
		return strings.Contains(r.Term, substr) && (!linkOnly || r.LinkTarget)
	})
	slices.SortStableFunc(out, func(a, b models.MatchTerm) int {
		return cmp.Or(strings.Compare(a.Term, b.Term), strings.Compare(a.Word, b.Word))
	})
	return out, nil
}

func (v *view) GetDataBlock(_ context.Context, name string) (*cache.DataBlockRow, error) {
	b, ok := v.t.Blocks[name]
	if !ok {
		return nil, fmt.Errorf("data block %q: %w", name, apperr.ErrNotFound)
	}
	row := &cache.DataBlockRow{Name: name, Placement: models.Intern, Data: cloneBytes(b.Data)}
	if b.Extern {
		row = &cache.DataBlockRow{
			Name:      name,
			Placement: models.Extern,
			FilePath:  b.FilePath,
			Signature: cloneBytes(b.Signature),
		}
	}
	return row, nil
}

func (v *view) PutDataBlock(_ context.Context, row *cache.DataBlockRow) error {
	b := blockRecord{Data: cloneBytes(row.Data)}
	if row.Placement == models.Extern {
		b = blockRecord{Extern: true, FilePath: row.FilePath, Signature: cloneBytes(row.Signature)}
	} else if b.Data == nil {
		b.Data = []byte{}
	}
	own(v, tBlocks, &v.t.Blocks)[row.Name] = b
	return nil
}

func (v *view) DeleteDataBlock(_ context.Context, name string) error {
	if _, ok := v.t.Blocks[name]; ok {
		delete(own(v, tBlocks, &v.t.Blocks), name)
	}
	return nil
}

func (v *view) DataBlockNamesWithPrefix(_ context.Context, prefix string) ([]string, error) {
	out := []string{}
	for name := range v.t.Blocks {
		if strings.HasPrefix(name, prefix) {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out, nil
}
