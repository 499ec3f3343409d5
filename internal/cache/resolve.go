package cache

import (
	"cmp"
	"slices"
	"strings"

	"github.com/starford/wikistore/internal/models"
)

// CompareTerms orders candidate match terms when several resolve the same
// string: terms derived from a page name first, then explicit aliases, then
// by owning word.
func CompareTerms(a, b models.MatchTerm) int {
	if c := cmp.Compare(sourceRank(a), sourceRank(b)); c != 0 {
		return c
	}
	if a.ExplicitAlias != b.ExplicitAlias {
		if a.ExplicitAlias {
			return -1
		}
		return 1
	}
	return strings.Compare(a.Word, b.Word)
}

func sourceRank(m models.MatchTerm) int {
	if m.Source == models.SourceWord {
		return 0
	}
	return 1
}

// ResolvedChild is a child relation together with the page it resolves to.
type ResolvedChild struct {
	models.ChildRelation
	Resolved string
}

// FinishChildren applies the ExistingOnly/IncludeSelf filters and the
// requested ordering. Engines call it on their raw resolution results.
func FinishChildren(word string, rows []ResolvedChild, q ChildQuery) []models.ChildRelation {
	out := make([]models.ChildRelation, 0, len(rows))
	for _, r := range rows {
		r.Defined = r.Resolved != ""
		if q.ExistingOnly && !r.Defined {
			continue
		}
		if !q.IncludeSelf && (r.Target == word || r.Resolved == word) {
			continue
		}
		out = append(out, r.ChildRelation)
	}
	switch q.Order {
	case OrderByPosition:
		slices.SortStableFunc(out, func(a, b models.ChildRelation) int {
			if c := cmp.Compare(a.FirstCharPos, b.FirstCharPos); c != 0 {
				return c
			}
			return strings.Compare(a.Target, b.Target)
		})
	case OrderByModified:
		slices.SortStableFunc(out, func(a, b models.ChildRelation) int {
			if c := b.Modified.Compare(a.Modified); c != 0 {
				return c
			}
			return strings.Compare(a.Target, b.Target)
		})
	default:
		slices.SortStableFunc(out, func(a, b models.ChildRelation) int {
			return strings.Compare(a.Target, b.Target)
		})
	}
	return out
}

// DedupeRelations keeps the first relation per target and stamps word on each.
func DedupeRelations(word string, rels []models.Relation) []models.Relation {
	seen := make(map[string]struct{}, len(rels))
	out := make([]models.Relation, 0, len(rels))
	for _, r := range rels {
		if _, ok := seen[r.Target]; ok {
			continue
		}
		seen[r.Target] = struct{}{}
		r.Word = word
		out = append(out, r)
	}
	return out
}

// DedupeAttributes drops repeated key/value pairs and stamps word on each.
func DedupeAttributes(word string, attrs []models.Attribute) []models.Attribute {
	type kv struct{ k, v string }
	seen := make(map[kv]struct{}, len(attrs))
	out := make([]models.Attribute, 0, len(attrs))
	for _, a := range attrs {
		if _, ok := seen[kv{a.Key, a.Value}]; ok {
			continue
		}
		seen[kv{a.Key, a.Value}] = struct{}{}
		a.Word = word
		out = append(out, a)
	}
	return out
}

// DedupeTodos drops repeated key/value pairs and stamps word on each.
func DedupeTodos(word string, todos []models.Todo) []models.Todo {
	type kv struct{ k, v string }
	seen := make(map[kv]struct{}, len(todos))
	out := make([]models.Todo, 0, len(todos))
	for _, t := range todos {
		if _, ok := seen[kv{t.Key, t.Value}]; ok {
			continue
		}
		seen[kv{t.Key, t.Value}] = struct{}{}
		t.Word = word
		out = append(out, t)
	}
	return out
}

// PrepareMatchTerms stamps word and the partition flag on each term and
// drops exact duplicates.
func PrepareMatchTerms(word string, terms []models.MatchTerm, syncManaged bool) []models.MatchTerm {
	seen := make(map[models.MatchTerm]struct{}, len(terms))
	out := make([]models.MatchTerm, 0, len(terms))
	for _, t := range terms {
		t.Word = word
		t.SyncManaged = syncManaged
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
