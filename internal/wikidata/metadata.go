package wikidata

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"golang.org/x/text/collate"

	"github.com/starford/wikistore/internal/apperr"
	"github.com/starford/wikistore/internal/cache"
	"github.com/starford/wikistore/internal/models"
)

// UpdateChildRelations replaces the outgoing links of word.
func (w *WikiData) UpdateChildRelations(ctx context.Context, word string, rels []models.Relation) error {
	unlock, err := w.beginWrite()
	if err != nil {
		return err
	}
	defer unlock()

	if err := w.backend.ReplaceRelations(ctx, word, rels); err != nil {
		return err
	}
	w.emit(Event{Kind: EventGraphUpdated, Word: word})
	return nil
}

// GetChildRelationships returns the outgoing links of word shaped by q.
func (w *WikiData) GetChildRelationships(ctx context.Context, word string, q cache.ChildQuery) ([]models.ChildRelation, error) {
	return w.backend.ChildRelations(ctx, word, q)
}

// GetParentRelationships returns the pages linking to word directly or
// through one of its link aliases.
func (w *WikiData) GetParentRelationships(ctx context.Context, word string) ([]string, error) {
	return w.backend.ParentWords(ctx, word)
}

// GetParentlessWikiWords returns the pages no other page links to.
func (w *WikiData) GetParentlessWikiWords(ctx context.Context) ([]string, error) {
	return w.backend.ParentlessWords(ctx)
}

// GetUndefinedWords returns link targets that resolve to no page.
func (w *WikiData) GetUndefinedWords(ctx context.Context) ([]string, error) {
	return w.backend.UndefinedWords(ctx)
}

// UpdateProperties replaces the attributes of word. Keys are stored in
// ascending order, values in the order given.
func (w *WikiData) UpdateProperties(ctx context.Context, word string, props map[string][]string) error {
	unlock, err := w.beginWrite()
	if err != nil {
		return err
	}
	defer unlock()

	err = w.backend.ReplaceAttributes(ctx, word, attributesFromMap(word, props))
	w.invalidateGlobals()
	return err
}

func attributesFromMap(word string, props map[string][]string) []models.Attribute {
	var attrs []models.Attribute
	for _, k := range slices.Sorted(maps.Keys(props)) {
		for _, v := range props[k] {
			attrs = append(attrs, models.Attribute{Word: word, Key: k, Value: v})
		}
	}
	return attrs
}

// GetPropertiesForWord returns the attributes of word in insertion order.
func (w *WikiData) GetPropertiesForWord(ctx context.Context, word string) ([]models.Attribute, error) {
	return w.backend.AttributesForWord(ctx, word)
}

// GetPropertyKeys returns the distinct attribute keys, global ones excluded.
func (w *WikiData) GetPropertyKeys(ctx context.Context) ([]string, error) {
	return w.backend.AttributeKeys(ctx)
}

// GetPropertyKeysStartingWith returns the distinct keys with the given prefix.
func (w *WikiData) GetPropertyKeysStartingWith(ctx context.Context, prefix string) ([]string, error) {
	return w.backend.AttributeKeysWithPrefix(ctx, prefix)
}

// GetDistinctPropertyValues returns the distinct values of key.
func (w *WikiData) GetDistinctPropertyValues(ctx context.Context, key string) ([]string, error) {
	return w.backend.AttributeValues(ctx, key)
}

// GetWordsWithPropertyValue returns the pages carrying key, or key=value
// when value is not empty.
func (w *WikiData) GetWordsWithPropertyValue(ctx context.Context, key, value string) ([]string, error) {
	return w.backend.WordsWithAttribute(ctx, key, value)
}

// GetGlobalProperties returns the global.* attributes of the wiki. When a
// key is set on several pages the last page in name order wins. The result
// is cached until the next attribute write.
func (w *WikiData) GetGlobalProperties(ctx context.Context) (map[string]string, error) {
	w.globalsMu.Lock()
	defer w.globalsMu.Unlock()
	if w.globals != nil {
		return maps.Clone(w.globals), nil
	}
	attrs, err := w.backend.GlobalAttributes(ctx)
	if err != nil {
		return nil, err
	}
	globals := make(map[string]string, len(attrs))
	for _, a := range attrs {
		globals[a.Key] = a.Value
	}
	w.globals = globals
	return maps.Clone(globals), nil
}

func (w *WikiData) invalidateGlobals() {
	w.globalsMu.Lock()
	w.globals = nil
	w.globalsMu.Unlock()
}

// UpdateTodos replaces the todos of word.
func (w *WikiData) UpdateTodos(ctx context.Context, word string, todos []models.Todo) error {
	unlock, err := w.beginWrite()
	if err != nil {
		return err
	}
	defer unlock()

	return w.backend.ReplaceTodos(ctx, word, todos)
}

// GetTodos returns every todo of the wiki ordered by page.
func (w *WikiData) GetTodos(ctx context.Context) ([]models.Todo, error) {
	return w.backend.AllTodos(ctx)
}

// GetTodosForWord returns the todos of word in insertion order.
func (w *WikiData) GetTodosForWord(ctx context.Context, word string) ([]models.Todo, error) {
	return w.backend.TodosForWord(ctx, word)
}

// UpdateWikiWordMatchTerms replaces one partition of the match terms of
// word: the synchronously managed one when syncUpdate is set, the
// asynchronously refreshed one otherwise.
func (w *WikiData) UpdateWikiWordMatchTerms(ctx context.Context, word string, terms []models.MatchTerm, syncUpdate bool) error {
	unlock, err := w.beginWrite()
	if err != nil {
		return err
	}
	defer unlock()

	return w.backend.ReplaceMatchTerms(ctx, word, terms, syncUpdate)
}

// GetMatchTermsForWord returns the match terms owned by word.
func (w *WikiData) GetMatchTermsForWord(ctx context.Context, word string) ([]models.MatchTerm, error) {
	return w.backend.MatchTermsForWord(ctx, word)
}

// GetUnAliasedWikiWord resolves a link target to the page it names. Link
// terms are looked up first and the page index is the fallback, the same
// order child relations resolve in.
func (w *WikiData) GetUnAliasedWikiWord(ctx context.Context, term string) (string, error) {
	terms, err := w.backend.LookupMatchTerm(ctx, term, true)
	if err != nil {
		return "", err
	}
	if len(terms) > 0 {
		return terms[0].Word, nil
	}
	exists, err := w.Exists(ctx, term)
	if err != nil {
		return "", err
	}
	if exists {
		return term, nil
	}
	return "", fmt.Errorf("resolve %q: %w", term, apperr.ErrNotFound)
}

// GetWikiLinksStartingWith returns link match terms containing text.
// Terms starting with text come first; each group is ordered by the
// configured collation, then by owning page.
func (w *WikiData) GetWikiLinksStartingWith(ctx context.Context, text string) ([]models.MatchTerm, error) {
	terms, err := w.backend.SearchMatchTerms(ctx, text, true)
	if err != nil {
		return nil, err
	}
	col := collate.New(w.lang)
	seen := make(map[[2]string]bool, len(terms))
	out := terms[:0]
	for _, t := range terms {
		k := [2]string{t.Term, t.Word}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, t)
	}
	slices.SortStableFunc(out, func(a, b models.MatchTerm) int {
		pa, pb := strings.HasPrefix(a.Term, text), strings.HasPrefix(b.Term, text)
		if pa != pb {
			if pa {
				return -1
			}
			return 1
		}
		return cmp.Or(col.CompareString(a.Term, b.Term), strings.Compare(a.Word, b.Word))
	})
	return out, nil
}

// SetMetaDataState sets the metadata state of word.
func (w *WikiData) SetMetaDataState(ctx context.Context, word string, state models.MetadataState) error {
	return w.updatePage(ctx, word, func(p *models.Page) error {
		p.State = state
		return nil
	})
}

// GetWikiWordsForMetaDataState returns the pages in state.
func (w *WikiData) GetWikiWordsForMetaDataState(ctx context.Context, state models.MetadataState) ([]string, error) {
	return w.backend.WordsInState(ctx, state)
}

// RefreshAttributesFromParse stores the attributes and the asynchronously
// managed match terms derived from the content of word, and advances the
// page to at least PROPS_PROCESSED.
func (w *WikiData) RefreshAttributesFromParse(ctx context.Context, word string, attrs []models.Attribute, terms []models.MatchTerm) error {
	unlock, err := w.beginWrite()
	if err != nil {
		return err
	}
	defer unlock()

	err = w.backend.InTx(ctx, func(tx cache.Store) error {
		page, err := tx.GetPage(ctx, word)
		if err != nil {
			return err
		}
		if err := tx.ReplaceAttributes(ctx, word, attrs); err != nil {
			return err
		}
		if err := tx.ReplaceMatchTerms(ctx, word, terms, false); err != nil {
			return err
		}
		if page.State < models.StatePropsProcessed {
			page.State = models.StatePropsProcessed
			return tx.PutPage(ctx, page)
		}
		return nil
	})
	w.invalidateGlobals()
	if err != nil {
		return err
	}
	w.emit(Event{Kind: EventGraphUpdated, Word: word})
	return nil
}

// RefreshRelationsAndTodosFromParse stores the links and todos derived
// from the content of word and marks it UP_TO_DATE. Attributes must have
// been refreshed first; a DIRTY page fails with apperr.ErrInvalidState.
func (w *WikiData) RefreshRelationsAndTodosFromParse(ctx context.Context, word string, rels []models.Relation, todos []models.Todo) error {
	unlock, err := w.beginWrite()
	if err != nil {
		return err
	}
	defer unlock()

	err = w.backend.InTx(ctx, func(tx cache.Store) error {
		page, err := tx.GetPage(ctx, word)
		if err != nil {
			return err
		}
		if page.State < models.StatePropsProcessed {
			return fmt.Errorf("refresh relations of %q in state %s: %w", word, page.State, apperr.ErrInvalidState)
		}
		if err := tx.ReplaceRelations(ctx, word, rels); err != nil {
			return err
		}
		if err := tx.ReplaceTodos(ctx, word, todos); err != nil {
			return err
		}
		page.State = models.StateUpToDate
		return tx.PutPage(ctx, page)
	})
	if err != nil {
		return err
	}
	w.emit(Event{Kind: EventGraphUpdated, Word: word})
	return nil
}
