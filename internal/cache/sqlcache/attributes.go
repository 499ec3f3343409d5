package sqlcache

import (
	"context"

	"github.com/starford/wikistore/internal/apperr"
	"github.com/starford/wikistore/internal/cache"
	"github.com/starford/wikistore/internal/models"
)

func (q queries) ReplaceAttributes(ctx context.Context, word string, attrs []models.Attribute) error {
	if _, err := q.db.NewDelete().Model((*attributeModel)(nil)).Where("word = ?", word).Exec(ctx); err != nil {
		return apperr.Write("replace attributes", err)
	}
	attrs = cache.DedupeAttributes(word, attrs)
	if len(attrs) == 0 {
		return nil
	}
	rows := make([]attributeModel, 0, len(attrs))
	for _, a := range attrs {
		rows = append(rows, attributeModel{Word: word, Key: a.Key, Value: a.Value})
	}
	_, err := q.db.NewInsert().Model(&rows).Exec(ctx)
	return apperr.Write("replace attributes", err)
}

func (q queries) AttributesForWord(ctx context.Context, word string) ([]models.Attribute, error) {
	var rows []attributeModel
	err := q.db.NewSelect().Model(&rows).Where("word = ?", word).OrderExpr("rowid").Scan(ctx)
	if err != nil {
		return nil, apperr.Read("attributes for word", err)
	}
	return attributesFromModels(rows), nil
}

func (q queries) AttributeKeys(ctx context.Context) ([]string, error) {
	return q.words(ctx, "attribute keys",
		`SELECT DISTINCT key FROM wikiwordattrs WHERE substr(key, 1, length(?)) != ? ORDER BY key`,
		models.GlobalPrefix, models.GlobalPrefix)
}

func (q queries) AttributeKeysWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	return q.words(ctx, "attribute keys with prefix",
		`SELECT DISTINCT key FROM wikiwordattrs WHERE substr(key, 1, length(?)) = ? ORDER BY key`,
		prefix, prefix)
}

func (q queries) AttributeValues(ctx context.Context, key string) ([]string, error) {
	return q.words(ctx, "attribute values",
		`SELECT DISTINCT value FROM wikiwordattrs WHERE key = ? ORDER BY value`, key)
}

func (q queries) GlobalAttributes(ctx context.Context) ([]models.Attribute, error) {
	var rows []attributeModel
	err := q.db.NewSelect().Model(&rows).
		Where("substr(key, 1, length(?)) = ?", models.GlobalPrefix, models.GlobalPrefix).
		OrderExpr("word, rowid").
		Scan(ctx)
	if err != nil {
		return nil, apperr.Read("global attributes", err)
	}
	return attributesFromModels(rows), nil
}

func (q queries) WordsWithAttribute(ctx context.Context, key, value string) ([]string, error) {
	if value == "" {
		return q.words(ctx, "words with attribute",
			`SELECT DISTINCT word FROM wikiwordattrs WHERE key = ? ORDER BY word`, key)
	}
	return q.words(ctx, "words with attribute",
		`SELECT DISTINCT word FROM wikiwordattrs WHERE key = ? AND value = ? ORDER BY word`, key, value)
}

func attributesFromModels(rows []attributeModel) []models.Attribute {
	out := make([]models.Attribute, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.Attribute{Word: r.Word, Key: r.Key, Value: r.Value})
	}
	return out
}

func (q queries) ReplaceTodos(ctx context.Context, word string, todos []models.Todo) error {
	if _, err := q.db.NewDelete().Model((*todoModel)(nil)).Where("word = ?", word).Exec(ctx); err != nil {
		return apperr.Write("replace todos", err)
	}
	todos = cache.DedupeTodos(word, todos)
	if len(todos) == 0 {
		return nil
	}
	rows := make([]todoModel, 0, len(todos))
	for _, t := range todos {
		rows = append(rows, todoModel{Word: word, Key: t.Key, Value: t.Value})
	}
	_, err := q.db.NewInsert().Model(&rows).Exec(ctx)
	return apperr.Write("replace todos", err)
}

func (q queries) AllTodos(ctx context.Context) ([]models.Todo, error) {
	var rows []todoModel
	if err := q.db.NewSelect().Model(&rows).OrderExpr("word, rowid").Scan(ctx); err != nil {
		return nil, apperr.Read("all todos", err)
	}
	return todosFromModels(rows), nil
}

func (q queries) TodosForWord(ctx context.Context, word string) ([]models.Todo, error) {
	var rows []todoModel
	if err := q.db.NewSelect().Model(&rows).Where("word = ?", word).OrderExpr("rowid").Scan(ctx); err != nil {
		return nil, apperr.Read("todos for word", err)
	}
	return todosFromModels(rows), nil
}

func todosFromModels(rows []todoModel) []models.Todo {
	out := make([]models.Todo, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.Todo{Word: r.Word, Key: r.Key, Value: r.Value})
	}
	return out
}
