package litecache

import (
	"context"
	"slices"

	"github.com/starford/wikistore/internal/cache"
	"github.com/starford/wikistore/internal/models"
)

func (v *view) ReplaceRelations(_ context.Context, word string, rels []models.Relation) error {
	rels = cache.DedupeRelations(word, rels)
	m := own(v, tRelations, &v.t.Relations)
	if len(rels) == 0 {
		delete(m, word)
		return nil
	}
	rows := make([]relationRecord, 0, len(rels))
	for _, r := range rels {
		rows = append(rows, relationRecord{Target: r.Target, FirstCharPos: r.FirstCharPos})
	}
	m[word] = rows
	return nil
}

// linkTerms indexes link-target match terms by term string.
func (v *view) linkTerms() map[string][]models.MatchTerm {
	idx := make(map[string][]models.MatchTerm)
	for w, terms := range v.t.MatchTerms {
		for _, r := range terms {
			if r.LinkTarget {
				idx[r.Term] = append(idx[r.Term], r.term(w))
			}
		}
	}
	for _, ts := range idx {
		slices.SortStableFunc(ts, cache.CompareTerms)
	}
	return idx
}

// resolve maps a link target to the page it names, or "". Link terms win
// over a page of the same name.
func (v *view) resolve(target string, terms map[string][]models.MatchTerm) string {
	if ts := terms[target]; len(ts) > 0 {
		return ts[0].Word
	}
	if _, ok := v.t.Pages[target]; ok {
		return target
	}
	return ""
}

func (v *view) ChildRelations(_ context.Context, word string, q cache.ChildQuery) ([]models.ChildRelation, error) {
	terms := v.linkTerms()
	rels := v.t.Relations[word]
	rows := make([]cache.ResolvedChild, 0, len(rels))
	for _, r := range rels {
		c := cache.ResolvedChild{
			ChildRelation: models.ChildRelation{Target: r.Target, FirstCharPos: r.FirstCharPos},
			Resolved:      v.resolve(r.Target, terms),
		}
		if p, ok := v.t.Pages[c.Resolved]; ok {
			c.Modified = p.Modified
		}
		rows = append(rows, c)
	}
	return cache.FinishChildren(word, rows, q), nil
}

// touched returns every page a link to target counts as pointing at: the
// page named target and the owners of link terms equal to target.
func (v *view) touched(target string, terms map[string][]models.MatchTerm) []string {
	var out []string
	if _, ok := v.t.Pages[target]; ok {
		out = append(out, target)
	}
	for _, t := range terms[target] {
		out = append(out, t.Word)
	}
	return out
}

func (v *view) ParentWords(_ context.Context, word string) ([]string, error) {
	terms := v.linkTerms()
	parents := []string{}
	for from, rels := range v.t.Relations {
		if from == word {
			continue
		}
		for _, r := range rels {
			if r.Target == word || slices.Contains(v.touched(r.Target, terms), word) {
				parents = append(parents, from)
				break
			}
		}
	}
	slices.Sort(parents)
	return parents, nil
}

func (v *view) ParentlessWords(context.Context) ([]string, error) {
	terms := v.linkTerms()
	hasParent := make(map[string]bool, len(v.t.Pages))
	for from, rels := range v.t.Relations {
		for _, r := range rels {
			if r.Target != from {
				hasParent[r.Target] = true
			}
			for _, t := range terms[r.Target] {
				if t.Word != from {
					hasParent[t.Word] = true
				}
			}
		}
	}
	out := []string{}
	for w := range v.t.Pages {
		if !hasParent[w] {
			out = append(out, w)
		}
	}
	slices.Sort(out)
	return out, nil
}

func (v *view) UndefinedWords(context.Context) ([]string, error) {
	terms := v.linkTerms()
	seen := make(map[string]struct{})
	out := []string{}
	for _, rels := range v.t.Relations {
		for _, r := range rels {
			if _, ok := seen[r.Target]; ok {
				continue
			}
			seen[r.Target] = struct{}{}
			if v.resolve(r.Target, terms) == "" {
				out = append(out, r.Target)
			}
		}
	}
	slices.Sort(out)
	return out, nil
}
