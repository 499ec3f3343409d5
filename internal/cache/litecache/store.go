package litecache

import (
	"context"
	"time"

	"github.com/starford/wikistore/internal/cache"
	"github.com/starford/wikistore/internal/models"
)

// Reads outside a transaction see the last committed generation; writes
// outside a transaction commit on their own.

func (db *DB) GetPage(ctx context.Context, word string) (*models.Page, error) {
	return db.read().GetPage(ctx, word)
}

func (db *DB) PutPage(ctx context.Context, p *models.Page) error {
	return db.update(ctx, func(v *view) error { return v.PutPage(ctx, p) })
}

func (db *DB) DeletePage(ctx context.Context, word string) error {
	return db.update(ctx, func(v *view) error { return v.DeletePage(ctx, word) })
}

func (db *DB) WordForFile(ctx context.Context, fileNameLower string) (string, error) {
	return db.read().WordForFile(ctx, fileNameLower)
}

func (db *DB) AllWords(ctx context.Context) ([]string, error) {
	return db.read().AllWords(ctx)
}

func (db *DB) WordsWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	return db.read().WordsWithPrefix(ctx, prefix)
}

func (db *DB) WordsContaining(ctx context.Context, substr string) ([]string, error) {
	return db.read().WordsContaining(ctx, substr)
}

func (db *DB) FirstWord(ctx context.Context) (string, error) {
	return db.read().FirstWord(ctx)
}

func (db *DB) NextWord(ctx context.Context, after string) (string, error) {
	return db.read().NextWord(ctx, after)
}

func (db *DB) WordsInState(ctx context.Context, state models.MetadataState) ([]string, error) {
	return db.read().WordsInState(ctx, state)
}

func (db *DB) TimeBounds(ctx context.Context, field models.TimeField) (time.Time, time.Time, error) {
	return db.read().TimeBounds(ctx, field)
}

func (db *DB) WordsInTimeRange(ctx context.Context, field models.TimeField, from, to time.Time) ([]string, error) {
	return db.read().WordsInTimeRange(ctx, field, from, to)
}

func (db *DB) RenameRows(ctx context.Context, oldWord, newWord string) error {
	return db.update(ctx, func(v *view) error { return v.RenameRows(ctx, oldWord, newWord) })
}

func (db *DB) DeleteRows(ctx context.Context, word string) error {
	return db.update(ctx, func(v *view) error { return v.DeleteRows(ctx, word) })
}

func (db *DB) ReplaceRelations(ctx context.Context, word string, rels []models.Relation) error {
	return db.update(ctx, func(v *view) error { return v.ReplaceRelations(ctx, word, rels) })
}

func (db *DB) ChildRelations(ctx context.Context, word string, q cache.ChildQuery) ([]models.ChildRelation, error) {
	return db.read().ChildRelations(ctx, word, q)
}

func (db *DB) ParentWords(ctx context.Context, word string) ([]string, error) {
	return db.read().ParentWords(ctx, word)
}

func (db *DB) ParentlessWords(ctx context.Context) ([]string, error) {
	return db.read().ParentlessWords(ctx)
}

func (db *DB) UndefinedWords(ctx context.Context) ([]string, error) {
	return db.read().UndefinedWords(ctx)
}

func (db *DB) ReplaceAttributes(ctx context.Context, word string, attrs []models.Attribute) error {
	return db.update(ctx, func(v *view) error { return v.ReplaceAttributes(ctx, word, attrs) })
}

func (db *DB) AttributesForWord(ctx context.Context, word string) ([]models.Attribute, error) {
	return db.read().AttributesForWord(ctx, word)
}

func (db *DB) AttributeKeys(ctx context.Context) ([]string, error) {
	return db.read().AttributeKeys(ctx)
}

func (db *DB) AttributeKeysWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	return db.read().AttributeKeysWithPrefix(ctx, prefix)
}

func (db *DB) AttributeValues(ctx context.Context, key string) ([]string, error) {
	return db.read().AttributeValues(ctx, key)
}

func (db *DB) GlobalAttributes(ctx context.Context) ([]models.Attribute, error) {
	return db.read().GlobalAttributes(ctx)
}

func (db *DB) WordsWithAttribute(ctx context.Context, key, value string) ([]string, error) {
	return db.read().WordsWithAttribute(ctx, key, value)
}

func (db *DB) ReplaceTodos(ctx context.Context, word string, todos []models.Todo) error {
	return db.update(ctx, func(v *view) error { return v.ReplaceTodos(ctx, word, todos) })
}

func (db *DB) AllTodos(ctx context.Context) ([]models.Todo, error) {
	return db.read().AllTodos(ctx)
}

func (db *DB) TodosForWord(ctx context.Context, word string) ([]models.Todo, error) {
	return db.read().TodosForWord(ctx, word)
}

func (db *DB) ReplaceMatchTerms(ctx context.Context, word string, terms []models.MatchTerm, syncManaged bool) error {
	return db.update(ctx, func(v *view) error { return v.ReplaceMatchTerms(ctx, word, terms, syncManaged) })
}

func (db *DB) MatchTermsForWord(ctx context.Context, word string) ([]models.MatchTerm, error) {
	return db.read().MatchTermsForWord(ctx, word)
}

func (db *DB) LookupMatchTerm(ctx context.Context, term string, linkOnly bool) ([]models.MatchTerm, error) {
	return db.read().LookupMatchTerm(ctx, term, linkOnly)
}

func (db *DB) SearchMatchTerms(ctx context.Context, substr string, linkOnly bool) ([]models.MatchTerm, error) {
	return db.read().SearchMatchTerms(ctx, substr, linkOnly)
}

func (db *DB) GetDataBlock(ctx context.Context, name string) (*cache.DataBlockRow, error) {
	return db.read().GetDataBlock(ctx, name)
}

func (db *DB) PutDataBlock(ctx context.Context, row *cache.DataBlockRow) error {
	return db.update(ctx, func(v *view) error { return v.PutDataBlock(ctx, row) })
}

func (db *DB) DeleteDataBlock(ctx context.Context, name string) error {
	return db.update(ctx, func(v *view) error { return v.DeleteDataBlock(ctx, name) })
}

func (db *DB) DataBlockNamesWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	return db.read().DataBlockNamesWithPrefix(ctx, prefix)
}

func (db *DB) Setting(ctx context.Context, key, def string) (string, error) {
	return db.read().Setting(ctx, key, def)
}

func (db *DB) SetSetting(ctx context.Context, key, value string) error {
	return db.update(ctx, func(v *view) error { return v.SetSetting(ctx, key, value) })
}

func (db *DB) Stats(ctx context.Context) (cache.Stats, error) {
	return db.read().Stats(ctx)
}
