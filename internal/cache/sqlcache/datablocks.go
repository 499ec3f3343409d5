package sqlcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/starford/wikistore/internal/apperr"
	"github.com/starford/wikistore/internal/cache"
	"github.com/starford/wikistore/internal/models"
)

func (q queries) GetDataBlock(ctx context.Context, name string) (*cache.DataBlockRow, error) {
	var in dataBlockModel
	err := q.db.NewSelect().Model(&in).Where("unifiedname = ?", name).Scan(ctx)
	if err == nil {
		return blockFromModels(&in, nil), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Read("get data block", err)
	}

	var ex externalBlockModel
	err = q.db.NewSelect().Model(&ex).Where("unifiedname = ?", name).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("data block %q: %w", name, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, apperr.Read("get data block", err)
	}
	return blockFromModels(nil, &ex), nil
}

// PutDataBlock upserts row in the table of its placement and removes any
// row of the same name from the other table.
func (q queries) PutDataBlock(ctx context.Context, row *cache.DataBlockRow) error {
	var err error
	if row.Placement == models.Extern {
		if _, err = q.db.NewDelete().Model((*dataBlockModel)(nil)).Where("unifiedname = ?", row.Name).Exec(ctx); err != nil {
			return apperr.Write("put data block", err)
		}
		_, err = q.db.NewInsert().
			Model(&externalBlockModel{
				UnifiedName:   row.Name,
				FilePath:      row.FilePath,
				FileNameLower: strings.ToLower(row.FilePath),
				FileSignature: row.Signature,
			}).
			On("CONFLICT (unifiedname) DO UPDATE").
			Set("filepath = EXCLUDED.filepath").
			Set("filenamelowercase = EXCLUDED.filenamelowercase").
			Set("filesignature = EXCLUDED.filesignature").
			Exec(ctx)
		return apperr.Write("put data block", err)
	}

	if _, err = q.db.NewDelete().Model((*externalBlockModel)(nil)).Where("unifiedname = ?", row.Name).Exec(ctx); err != nil {
		return apperr.Write("put data block", err)
	}
	data := row.Data
	if data == nil {
		data = []byte{}
	}
	_, err = q.db.NewInsert().
		Model(&dataBlockModel{UnifiedName: row.Name, Data: data}).
		On("CONFLICT (unifiedname) DO UPDATE").
		Set("data = EXCLUDED.data").
		Exec(ctx)
	return apperr.Write("put data block", err)
}

func (q queries) DeleteDataBlock(ctx context.Context, name string) error {
	if _, err := q.db.NewDelete().Model((*dataBlockModel)(nil)).Where("unifiedname = ?", name).Exec(ctx); err != nil {
		return apperr.Write("delete data block", err)
	}
	_, err := q.db.NewDelete().Model((*externalBlockModel)(nil)).Where("unifiedname = ?", name).Exec(ctx)
	return apperr.Write("delete data block", err)
}

func (q queries) DataBlockNamesWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	return q.words(ctx, "data block names", `
		SELECT unifiedname FROM datablocks WHERE substr(unifiedname, 1, length(?)) = ?
		UNION
		SELECT unifiedname FROM datablocksexternal WHERE substr(unifiedname, 1, length(?)) = ?
		ORDER BY unifiedname`, prefix, prefix, prefix, prefix)
}

func (q queries) Setting(ctx context.Context, key, def string) (string, error) {
	var m settingModel
	err := q.db.NewSelect().Model(&m).Where("key = ?", key).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return def, nil
	}
	if err != nil {
		return "", apperr.Read("setting", err)
	}
	return m.Value, nil
}

func (q queries) SetSetting(ctx context.Context, key, value string) error {
	_, err := q.db.NewInsert().
		Model(&settingModel{Key: key, Value: value}).
		On("CONFLICT (key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Exec(ctx)
	return apperr.Write("set setting", err)
}
