package sqlcache

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/uptrace/bun"

	"github.com/starford/wikistore/internal/apperr"
	"github.com/starford/wikistore/internal/filename"
	"github.com/starford/wikistore/internal/migrate"
	"github.com/starford/wikistore/internal/models"
	"github.com/starford/wikistore/internal/signature"
)

// plan is the format history of the SQL cache. Version 0 is the legacy
// layout: wikiwords(word, created, modified), wikirelations(word, relation,
// created), wikiwordprops, todos(word, todo), search_views, settings.
var plan = migrate.Plan[bun.IDB]{
	Current:    FormatVersion,
	ReadCompat: ReadCompatVersion,
	Steps: []migrate.Step[bun.IDB]{
		{From: 0, To: 1, Name: "page file paths", Apply: migratePageFiles},
		{From: 1, To: 2, Name: "relation positions and keyed todos", Apply: migrateRelationsTodos},
		{From: 2, To: 3, Name: "attributes and match terms", Apply: migrateMatchTerms},
		{From: 3, To: 4, Name: "data blocks", Apply: migrateDataBlocks},
		{From: 4, To: 5, Name: "signatures and metadata state", Apply: migrateSignatures},
	},
}

type legacyTodoRow struct {
	RowID int64  `bun:"rowid"`
	Value string `bun:"value"`
}

type pageFileRow struct {
	Word     string `bun:"word"`
	FilePath string `bun:"filepath"`
}

const pageTableV1 = `CREATE TABLE %s (
	word              TEXT PRIMARY KEY,
	created           REAL NOT NULL DEFAULT 0,
	modified          REAL NOT NULL DEFAULT 0,
	filepath          TEXT NOT NULL DEFAULT '',
	filenamelowercase TEXT NOT NULL DEFAULT ''
)`

func migratePageFiles(ctx context.Context, tx bun.IDB, env migrate.Env) error {
	if err := rebuildTable(ctx, tx, "wikiwords", pageTableV1); err != nil {
		return err
	}
	var words []string
	if err := tx.NewRaw(`SELECT word FROM wikiwords WHERE filepath = '' ORDER BY word`).Scan(ctx, &words); err != nil {
		return apperr.Read("list pages", err)
	}
	var used []string
	if err := tx.NewRaw(`SELECT filenamelowercase FROM wikiwords WHERE filenamelowercase != ''`).Scan(ctx, &used); err != nil {
		return apperr.Read("list files", err)
	}
	taken := make(map[string]struct{}, len(used)+len(words))
	for _, u := range used {
		taken[u] = struct{}{}
	}
	for _, w := range words {
		name := legacyFileName(env, w)
		if _, dup := taken[strings.ToLower(name)]; dup {
			// Pages differing only in case shared a name on case-folding disks.
			var err error
			name, err = filename.Allocate(w, filename.Options{Suffix: env.PageSuffix}, func(c string) (bool, error) {
				_, ok := taken[strings.ToLower(c)]
				return ok, nil
			})
			if err != nil {
				return err
			}
		}
		taken[strings.ToLower(name)] = struct{}{}
		_, err := tx.ExecContext(ctx,
			`UPDATE wikiwords SET filepath = ?, filenamelowercase = ? WHERE word = ?`,
			name, strings.ToLower(name), w)
		if err != nil {
			return apperr.Write("set file path", err)
		}
	}
	return nil
}

// legacyFileName picks the file an old cache implied for word: the escaped
// name if present on disk, else the raw name, else the escaped name.
func legacyFileName(env migrate.Env, word string) string {
	escaped := filename.Escape(word, false) + env.PageSuffix
	if env.ContentDir == "" {
		return escaped
	}
	for _, name := range []string{escaped, word + env.PageSuffix} {
		if _, err := os.Stat(filepath.Join(env.ContentDir, name)); err == nil {
			return name
		}
	}
	return escaped
}

const relationTableV2 = `CREATE TABLE %s (
	word         TEXT NOT NULL,
	relation     TEXT NOT NULL,
	firstcharpos INTEGER NOT NULL DEFAULT -1,
	PRIMARY KEY (word, relation)
)`

const todoTableV2 = `CREATE TABLE %s (
	word  TEXT NOT NULL,
	key   TEXT NOT NULL,
	value TEXT NOT NULL DEFAULT ''
)`

func migrateRelationsTodos(ctx context.Context, tx bun.IDB, _ migrate.Env) error {
	if err := rebuildTable(ctx, tx, "wikirelations", relationTableV2); err != nil {
		return err
	}
	if err := rebuildTable(ctx, tx, "todos", todoTableV2); err != nil {
		return err
	}

	// Legacy todos held "key: value" in one column; the rebuild copied it
	// into value with key 'todo'.
	var rows []legacyTodoRow
	if err := tx.NewRaw(`SELECT rowid, value FROM todos WHERE key = 'todo'`).Scan(ctx, &rows); err != nil {
		return apperr.Read("list todos", err)
	}
	for _, r := range rows {
		key, value, ok := strings.Cut(r.Value, ":")
		if !ok {
			continue
		}
		_, err := tx.ExecContext(ctx, `UPDATE todos SET key = ?, value = ? WHERE rowid = ?`,
			strings.TrimSpace(key), strings.TrimSpace(value), r.RowID)
		if err != nil {
			return apperr.Write("split todo", err)
		}
	}
	return nil
}

const matchTermTable = `CREATE TABLE IF NOT EXISTS wikiwordmatchterms (
	matchterm    TEXT NOT NULL,
	type         INTEGER NOT NULL,
	word         TEXT NOT NULL,
	firstcharpos INTEGER NOT NULL DEFAULT -1,
	charlength   INTEGER NOT NULL DEFAULT -1
)`

func migrateMatchTerms(ctx context.Context, tx bun.IDB, _ migrate.Env) error {
	hasProps, err := tableExists(ctx, tx, "wikiwordprops")
	if err != nil {
		return err
	}
	if hasProps {
		if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS wikiwordattrs`); err != nil {
			return apperr.Write("drop attrs", err)
		}
		if _, err := tx.ExecContext(ctx, `ALTER TABLE wikiwordprops RENAME TO wikiwordattrs`); err != nil {
			return apperr.Write("rename props", err)
		}
	} else {
		_, err := tx.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS wikiwordattrs (
			word TEXT NOT NULL, key TEXT NOT NULL, value TEXT NOT NULL DEFAULT '')`)
		if err != nil {
			return apperr.Write("create attrs", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS wikiwordmatchterms`); err != nil {
		return apperr.Write("drop match terms", err)
	}
	if _, err := tx.ExecContext(ctx, matchTermTable); err != nil {
		return apperr.Write("create match terms", err)
	}

	self := models.SelfTerm("")
	_, err = tx.ExecContext(ctx,
		`INSERT INTO wikiwordmatchterms (matchterm, type, word, firstcharpos, charlength)
		 SELECT word, ?, word, -1, -1 FROM wikiwords`, self.TypeBits())
	if err != nil {
		return apperr.Write("seed page terms", err)
	}
	alias := models.MatchTerm{Source: models.SourceProperties, ExplicitAlias: true, LinkTarget: true}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO wikiwordmatchterms (matchterm, type, word, firstcharpos, charlength)
		 SELECT value, ?, word, -1, -1 FROM wikiwordattrs WHERE key = 'alias' AND value != ''`, alias.TypeBits())
	if err != nil {
		return apperr.Write("seed alias terms", err)
	}
	return nil
}

func migrateDataBlocks(ctx context.Context, tx bun.IDB, _ migrate.Env) error {
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS datablocks (
			unifiedname TEXT PRIMARY KEY,
			data        BLOB
		);
		CREATE TABLE IF NOT EXISTS datablocksexternal (
			unifiedname       TEXT PRIMARY KEY,
			filepath          TEXT NOT NULL,
			filenamelowercase TEXT NOT NULL,
			filesignature     BLOB
		);`)
	if err != nil {
		return apperr.Write("create data blocks", err)
	}

	hasViews, err := tableExists(ctx, tx, "search_views")
	if err != nil || !hasViews {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO datablocks (unifiedname, data)
		SELECT 'savedsearch/' || title, datablock FROM search_views`)
	if err != nil {
		return apperr.Write("move saved searches", err)
	}
	if _, err := tx.ExecContext(ctx, `DROP TABLE search_views`); err != nil {
		return apperr.Write("drop search views", err)
	}
	return nil
}

const pageTableV5 = `CREATE TABLE %s (
	word                  TEXT PRIMARY KEY,
	created               REAL NOT NULL DEFAULT 0,
	modified              REAL NOT NULL DEFAULT 0,
	visited               REAL NOT NULL DEFAULT 0,
	filepath              TEXT NOT NULL DEFAULT '',
	filenamelowercase     TEXT NOT NULL DEFAULT '',
	filesignature         BLOB,
	readonly              INTEGER NOT NULL DEFAULT 0,
	metadataprocessed     INTEGER NOT NULL DEFAULT 0,
	presentationdatablock BLOB
)`

func migrateSignatures(ctx context.Context, tx bun.IDB, env migrate.Env) error {
	if err := rebuildTable(ctx, tx, "wikiwords", pageTableV5); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, indexesSQL); err != nil {
		return apperr.Write("create indexes", err)
	}

	var pages []pageFileRow
	if err := tx.NewRaw(`SELECT word, filepath FROM wikiwords`).Scan(ctx, &pages); err != nil {
		return apperr.Read("list pages", err)
	}
	for _, p := range pages {
		var sig []byte
		if env.ContentDir != "" && p.FilePath != "" {
			if info, err := os.Stat(filepath.Join(env.ContentDir, p.FilePath)); err == nil {
				sig = signature.Of(info)
			} else if env.Logger != nil {
				env.Logger.Warn("migrate: page file missing",
					slog.String("word", p.Word),
					slog.String("file", p.FilePath))
			}
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE wikiwords SET filesignature = ?, metadataprocessed = ? WHERE word = ?`,
			sig, int64(models.StateDirty), p.Word)
		if err != nil {
			return apperr.Write("set signature", err)
		}
	}
	return nil
}

// rebuildTable replaces table with one created from createSQL (a format
// string taking the table name), copying every column both layouts share
// and filling added columns from columnDefaults. A missing table is simply
// created.
func rebuildTable(ctx context.Context, tx bun.IDB, table, createSQL string) error {
	oldCols, err := tableColumns(ctx, tx, table)
	if err != nil {
		return err
	}
	if len(oldCols) == 0 {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(createSQL, table)); err != nil {
			return apperr.Write("create "+table, err)
		}
		return nil
	}

	tmp := table + "_rebuild"
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+tmp); err != nil {
		return apperr.Write("rebuild "+table, err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(createSQL, tmp)); err != nil {
		return apperr.Write("rebuild "+table, err)
	}
	newCols, err := tableColumns(ctx, tx, tmp)
	if err != nil {
		return err
	}

	have := make(map[string]struct{}, len(oldCols))
	for _, c := range oldCols {
		have[c] = struct{}{}
	}
	var cols, exprs []string
	for _, c := range newCols {
		if _, ok := have[c]; ok {
			cols = append(cols, c)
			exprs = append(exprs, c)
			continue
		}
		if def, ok := columnDefaults[table][c]; ok && defaultUsable(def, have) {
			cols = append(cols, c)
			exprs = append(exprs, def)
		}
	}

	copySQL := fmt.Sprintf("INSERT OR IGNORE INTO %s (%s) SELECT %s FROM %s",
		tmp, strings.Join(cols, ", "), strings.Join(exprs, ", "), table)
	for _, stmt := range []string{
		copySQL,
		"DROP TABLE " + table,
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", tmp, table),
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return apperr.Write("rebuild "+table, err)
		}
	}
	return nil
}

// defaultUsable reports whether a default expression only references
// literals or columns of the old table.
func defaultUsable(expr string, oldCols map[string]struct{}) bool {
	if expr == "" || strings.HasPrefix(expr, "'") || strings.TrimLeft(expr, "-0123456789.") == "" {
		return true
	}
	_, ok := oldCols[expr]
	return ok
}

func tableColumns(ctx context.Context, tx bun.IDB, table string) ([]string, error) {
	var names []string
	err := tx.NewRaw(fmt.Sprintf("SELECT name FROM pragma_table_info('%s') ORDER BY cid", table)).Scan(ctx, &names)
	if err != nil {
		return nil, apperr.Read("table info "+table, err)
	}
	return names, nil
}
