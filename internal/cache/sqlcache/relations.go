package sqlcache

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/starford/wikistore/internal/apperr"
	"github.com/starford/wikistore/internal/cache"
	"github.com/starford/wikistore/internal/models"
)

// linkTermPredicate selects match terms that take part in link resolution.
var linkTermPredicate = fmt.Sprintf("(m.type & %d) != 0", models.TypeBitsLinkTarget)

// termPreference orders candidate terms like cache.CompareTerms.
const termPreference = "(m.type & 1) DESC, (m.type & 8) DESC, m.word"

func (q queries) ReplaceRelations(ctx context.Context, word string, rels []models.Relation) error {
	if _, err := q.db.NewDelete().Model((*relationModel)(nil)).Where("word = ?", word).Exec(ctx); err != nil {
		return apperr.Write("replace relations", err)
	}
	rels = cache.DedupeRelations(word, rels)
	if len(rels) == 0 {
		return nil
	}
	rows := make([]relationModel, 0, len(rels))
	for _, r := range rels {
		rows = append(rows, relationModel{Word: word, Relation: r.Target, FirstCharPos: int64(r.FirstCharPos)})
	}
	_, err := q.db.NewInsert().Model(&rows).Exec(ctx)
	return apperr.Write("replace relations", err)
}

type childRow struct {
	Relation     string          `bun:"relation"`
	FirstCharPos int64           `bun:"firstcharpos"`
	Resolved     sql.NullString  `bun:"resolved"`
	Modified     sql.NullFloat64 `bun:"modified"`
}

var childRelationsSQL = fmt.Sprintf(`
	SELECT c.relation, c.firstcharpos, c.resolved, w.modified
	FROM (
		SELECT r.relation, r.firstcharpos,
			COALESCE(
				(SELECT m.word FROM wikiwordmatchterms m
				 WHERE m.matchterm = r.relation AND %s
				 ORDER BY %s LIMIT 1),
				(SELECT p.word FROM wikiwords p WHERE p.word = r.relation)
			) AS resolved
		FROM wikirelations r
		WHERE r.word = ?
	) c
	LEFT JOIN wikiwords w ON w.word = c.resolved`, linkTermPredicate, termPreference)

func (q queries) ChildRelations(ctx context.Context, word string, cq cache.ChildQuery) ([]models.ChildRelation, error) {
	var rows []childRow
	if err := q.db.NewRaw(childRelationsSQL, word).Scan(ctx, &rows); err != nil {
		return nil, apperr.Read("child relations", err)
	}
	resolved := make([]cache.ResolvedChild, 0, len(rows))
	for _, r := range rows {
		resolved = append(resolved, cache.ResolvedChild{
			ChildRelation: models.ChildRelation{
				Target:       r.Relation,
				FirstCharPos: int(r.FirstCharPos),
				Modified:     fromUnix(r.Modified.Float64),
			},
			Resolved: r.Resolved.String,
		})
	}
	return cache.FinishChildren(word, resolved, cq), nil
}

var parentWordsSQL = fmt.Sprintf(`
	SELECT DISTINCT r.word FROM wikirelations r
	WHERE r.word != ? AND (r.relation = ? OR r.relation IN (
		SELECT m.matchterm FROM wikiwordmatchterms m WHERE m.word = ? AND %s))
	ORDER BY r.word`, linkTermPredicate)

func (q queries) ParentWords(ctx context.Context, word string) ([]string, error) {
	return q.words(ctx, "parent words", parentWordsSQL, word, word, word)
}

var parentlessSQL = fmt.Sprintf(`
	SELECT w.word FROM wikiwords w
	WHERE NOT EXISTS (
		SELECT 1 FROM wikirelations r
		WHERE r.word != w.word AND (r.relation = w.word OR r.relation IN (
			SELECT m.matchterm FROM wikiwordmatchterms m WHERE m.word = w.word AND %s)))
	ORDER BY w.word`, linkTermPredicate)

func (q queries) ParentlessWords(ctx context.Context) ([]string, error) {
	return q.words(ctx, "parentless words", parentlessSQL)
}

var undefinedSQL = fmt.Sprintf(`
	SELECT DISTINCT r.relation FROM wikirelations r
	WHERE NOT EXISTS (SELECT 1 FROM wikiwords w WHERE w.word = r.relation)
	  AND NOT EXISTS (SELECT 1 FROM wikiwordmatchterms m WHERE m.matchterm = r.relation AND %s)
	ORDER BY r.relation`, linkTermPredicate)

func (q queries) UndefinedWords(ctx context.Context) ([]string, error) {
	return q.words(ctx, "undefined words", undefinedSQL)
}
