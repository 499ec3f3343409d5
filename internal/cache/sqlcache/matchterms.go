package sqlcache

import (
	"context"
	"fmt"

	"github.com/starford/wikistore/internal/apperr"
	"github.com/starford/wikistore/internal/cache"
	"github.com/starford/wikistore/internal/models"
)

func (q queries) ReplaceMatchTerms(ctx context.Context, word string, terms []models.MatchTerm, syncManaged bool) error {
	partition := "(type & ?) = 0"
	if syncManaged {
		partition = "(type & ?) != 0"
	}
	_, err := q.db.NewDelete().Model((*matchTermModel)(nil)).
		Where("word = ?", word).
		Where(partition, models.TypeBitsSyncUpdate).
		Exec(ctx)
	if err != nil {
		return apperr.Write("replace match terms", err)
	}
	terms = cache.PrepareMatchTerms(word, terms, syncManaged)
	if len(terms) == 0 {
		return nil
	}
	rows := make([]matchTermModel, 0, len(terms))
	for _, t := range terms {
		rows = append(rows, matchTermToModel(t))
	}
	_, err = q.db.NewInsert().Model(&rows).Exec(ctx)
	return apperr.Write("replace match terms", err)
}

func (q queries) MatchTermsForWord(ctx context.Context, word string) ([]models.MatchTerm, error) {
	var rows []matchTermModel
	if err := q.db.NewSelect().Model(&rows).Where("word = ?", word).OrderExpr("rowid").Scan(ctx); err != nil {
		return nil, apperr.Read("match terms for word", err)
	}
	return matchTermsFromModels(rows), nil
}

func (q queries) LookupMatchTerm(ctx context.Context, term string, linkOnly bool) ([]models.MatchTerm, error) {
	var rows []matchTermModel
	sel := q.db.NewSelect().Model(&rows).Where("matchterm = ?", term)
	if linkOnly {
		sel = sel.Where("(type & ?) != 0", models.TypeBitsLinkTarget)
	}
	err := sel.OrderExpr("(type & 1) DESC, (type & 8) DESC, word, rowid").Scan(ctx)
	if err != nil {
		return nil, apperr.Read("lookup match term", err)
	}
	return matchTermsFromModels(rows), nil
}

func (q queries) SearchMatchTerms(ctx context.Context, substr string, linkOnly bool) ([]models.MatchTerm, error) {
	var rows []matchTermModel
	sel := q.db.NewSelect().Model(&rows).Where("instr(matchterm, ?) > 0", substr)
	if linkOnly {
		sel = sel.Where("(type & ?) != 0", models.TypeBitsLinkTarget)
	}
	if err := sel.OrderExpr("matchterm, word, rowid").Scan(ctx); err != nil {
		return nil, apperr.Read(fmt.Sprintf("search match terms %q", substr), err)
	}
	return matchTermsFromModels(rows), nil
}

func matchTermsFromModels(rows []matchTermModel) []models.MatchTerm {
	out := make([]models.MatchTerm, 0, len(rows))
	for i := range rows {
		out = append(out, matchTermFromModel(&rows[i]))
	}
	return out
}
