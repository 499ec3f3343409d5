package sqlcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"

	"github.com/starford/wikistore/internal/apperr"
	"github.com/starford/wikistore/internal/cache"
	"github.com/starford/wikistore/internal/models"
)

// queries implements cache.Store over either the database or a transaction.
type queries struct {
	db bun.IDB
}

var _ cache.Store = queries{}

func (q queries) GetPage(ctx context.Context, word string) (*models.Page, error) {
	var m pageModel
	err := q.db.NewSelect().Model(&m).Where("word = ?", word).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("page %q: %w", word, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, apperr.Read("get page", err)
	}
	return pageFromModel(&m), nil
}

func (q queries) PutPage(ctx context.Context, p *models.Page) error {
	_, err := q.db.NewInsert().
		Model(pageToModel(p)).
		On("CONFLICT (word) DO UPDATE").
		Set("created = EXCLUDED.created").
		Set("modified = EXCLUDED.modified").
		Set("visited = EXCLUDED.visited").
		Set("filepath = EXCLUDED.filepath").
		Set("filenamelowercase = EXCLUDED.filenamelowercase").
		Set("filesignature = EXCLUDED.filesignature").
		Set("readonly = EXCLUDED.readonly").
		Set("metadataprocessed = EXCLUDED.metadataprocessed").
		Set("presentationdatablock = EXCLUDED.presentationdatablock").
		Exec(ctx)
	if isUniqueViolation(err) {
		return apperr.Write("put page", fmt.Errorf("file %q: %w", p.FilePath, apperr.ErrNameCollision))
	}
	return apperr.Write("put page", err)
}

func (q queries) DeletePage(ctx context.Context, word string) error {
	_, err := q.db.NewDelete().Model((*pageModel)(nil)).Where("word = ?", word).Exec(ctx)
	return apperr.Write("delete page", err)
}

func (q queries) WordForFile(ctx context.Context, fileNameLower string) (string, error) {
	var words []string
	err := q.db.NewRaw(`SELECT word FROM wikiwords WHERE filenamelowercase = ? LIMIT 1`, fileNameLower).Scan(ctx, &words)
	if err != nil {
		return "", apperr.Read("word for file", err)
	}
	if len(words) == 0 {
		return "", fmt.Errorf("file %q: %w", fileNameLower, apperr.ErrNotFound)
	}
	return words[0], nil
}

func (q queries) AllWords(ctx context.Context) ([]string, error) {
	return q.words(ctx, "all words", `SELECT word FROM wikiwords ORDER BY word`)
}

func (q queries) WordsWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	return q.words(ctx, "words with prefix",
		`SELECT word FROM wikiwords WHERE substr(word, 1, length(?)) = ? ORDER BY word`, prefix, prefix)
}

func (q queries) WordsContaining(ctx context.Context, substr string) ([]string, error) {
	return q.words(ctx, "words containing",
		`SELECT word FROM wikiwords WHERE instr(word, ?) > 0 ORDER BY word`, substr)
}

func (q queries) FirstWord(ctx context.Context) (string, error) {
	words, err := q.words(ctx, "first word", `SELECT word FROM wikiwords ORDER BY word LIMIT 1`)
	if err != nil {
		return "", err
	}
	if len(words) == 0 {
		return "", fmt.Errorf("first word: %w", apperr.ErrNotFound)
	}
	return words[0], nil
}

func (q queries) NextWord(ctx context.Context, after string) (string, error) {
	words, err := q.words(ctx, "next word", `SELECT word FROM wikiwords WHERE word > ? ORDER BY word LIMIT 1`, after)
	if err != nil {
		return "", err
	}
	if len(words) == 0 {
		return "", fmt.Errorf("word after %q: %w", after, apperr.ErrNotFound)
	}
	return words[0], nil
}

func (q queries) WordsInState(ctx context.Context, state models.MetadataState) ([]string, error) {
	return q.words(ctx, "words in state",
		`SELECT word FROM wikiwords WHERE metadataprocessed = ? ORDER BY word`, int64(state))
}

func timeColumn(f models.TimeField) string {
	switch f {
	case models.FieldCreated:
		return "created"
	case models.FieldVisited:
		return "visited"
	}
	return "modified"
}

func (q queries) TimeBounds(ctx context.Context, field models.TimeField) (time.Time, time.Time, error) {
	col := timeColumn(field)
	var lo, hi sql.NullFloat64
	err := q.db.NewRaw(fmt.Sprintf(`SELECT MIN(%[1]s), MAX(%[1]s) FROM wikiwords`, col)).Scan(ctx, &lo, &hi)
	if err != nil {
		return time.Time{}, time.Time{}, apperr.Read("time bounds", err)
	}
	return fromUnix(lo.Float64), fromUnix(hi.Float64), nil
}

func (q queries) WordsInTimeRange(ctx context.Context, field models.TimeField, from, to time.Time) ([]string, error) {
	col := timeColumn(field)
	return q.words(ctx, "words in time range",
		fmt.Sprintf(`SELECT word FROM wikiwords WHERE %[1]s >= ? AND %[1]s < ? ORDER BY word`, col),
		toUnix(from), toUnix(to))
}

func (q queries) words(ctx context.Context, op, query string, args ...any) ([]string, error) {
	words := []string{}
	if err := q.db.NewRaw(query, args...).Scan(ctx, &words); err != nil {
		return nil, apperr.Read(op, err)
	}
	return words, nil
}

func (q queries) RenameRows(ctx context.Context, oldWord, newWord string) error {
	if err := q.DeleteRows(ctx, newWord); err != nil {
		return err
	}
	for _, table := range []string{"wikirelations", "wikiwordattrs", "todos", "wikiwordmatchterms"} {
		stmt := fmt.Sprintf(`UPDATE %s SET word = ? WHERE word = ?`, table)
		if _, err := q.db.ExecContext(ctx, stmt, newWord, oldWord); err != nil {
			return apperr.Write("rename rows", err)
		}
	}
	return nil
}

func (q queries) DeleteRows(ctx context.Context, word string) error {
	for _, table := range []string{"wikirelations", "wikiwordattrs", "todos", "wikiwordmatchterms"} {
		stmt := fmt.Sprintf(`DELETE FROM %s WHERE word = ?`, table)
		if _, err := q.db.ExecContext(ctx, stmt, word); err != nil {
			return apperr.Write("delete rows", err)
		}
	}
	return nil
}

func (q queries) Stats(ctx context.Context) (cache.Stats, error) {
	var s cache.Stats
	counts := []struct {
		dst   *int
		query string
	}{
		{&s.Pages, `SELECT COUNT(*) FROM wikiwords`},
		{&s.Relations, `SELECT COUNT(*) FROM wikirelations`},
		{&s.Attributes, `SELECT COUNT(*) FROM wikiwordattrs`},
		{&s.Todos, `SELECT COUNT(*) FROM todos`},
		{&s.MatchTerms, `SELECT COUNT(*) FROM wikiwordmatchterms`},
		{&s.DataBlocks, `SELECT (SELECT COUNT(*) FROM datablocks) + (SELECT COUNT(*) FROM datablocksexternal)`},
	}
	for _, c := range counts {
		if err := q.db.NewRaw(c.query).Scan(ctx, c.dst); err != nil {
			return s, apperr.Read("stats", err)
		}
	}
	if err := q.db.NewRaw(`SELECT COALESCE(SUM(length(data)), 0) FROM datablocks`).Scan(ctx, &s.InternBytes); err != nil {
		return s, apperr.Read("stats", err)
	}
	return s, nil
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
