package sqlcache

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/starford/wikistore/internal/apperr"
	"github.com/starford/wikistore/internal/cache"
	"github.com/starford/wikistore/internal/cache/cachetest"
	"github.com/starford/wikistore/internal/migrate"
	"github.com/starford/wikistore/internal/models"
)

func openTemp(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), FileName), Options{})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestContract(t *testing.T) {
	cachetest.Run(t, func(t *testing.T) cache.Backend { return openTemp(t) })
}

func TestUnixRoundTrip(t *testing.T) {
	ts := time.Date(2023, 11, 5, 8, 30, 15, 123456000, time.UTC)
	assert.True(t, fromUnix(toUnix(ts)).Equal(ts))
	assert.True(t, fromUnix(toUnix(time.Time{})).IsZero())
}

const legacySchema = `
CREATE TABLE settings (key TEXT PRIMARY KEY, value TEXT);
CREATE TABLE wikiwords (word TEXT PRIMARY KEY, created REAL, modified REAL);
CREATE TABLE wikirelations (word TEXT, relation TEXT, created REAL);
CREATE TABLE wikiwordprops (word TEXT, key TEXT, value TEXT);
CREATE TABLE todos (word TEXT, todo TEXT);
CREATE TABLE search_views (title TEXT PRIMARY KEY, datablock BLOB);
INSERT INTO settings VALUES ('formatver', '0'), ('writecompatver', '0'), ('readcompatver', '0');
INSERT INTO wikiwords VALUES ('HomePage', 1700000000, 1700000500), ('Person', 1700000000, 1700000100), ('person', 1700000000, 1700000100);
INSERT INTO wikirelations VALUES ('HomePage', 'Bob', 1700000000), ('HomePage', 'Bob', 1700000001), ('HomePage', 'Missing', 1700000000);
INSERT INTO wikiwordprops VALUES ('Person', 'alias', 'Bob');
INSERT INTO todos VALUES ('HomePage', 'todo: buy milk'), ('HomePage', 'done: paint fence'), ('HomePage', 'no marker');
INSERT INTO search_views VALUES ('open tasks', X'6F70656E');
`

func writeLegacy(t *testing.T, path string) {
	t.Helper()
	raw, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer raw.Close()
	_, err = raw.Exec(legacySchema)
	require.NoError(t, err)
}

func TestMigrateFromLegacyFormat(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	content := filepath.Join(dir, "data")
	require.NoError(t, os.MkdirAll(content, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(content, "HomePage.wiki"), []byte("[[Bob]]"), 0o644))

	path := filepath.Join(dir, FileName)
	writeLegacy(t, path)

	db, err := Open(ctx, path, Options{})
	require.NoError(t, err)
	defer db.Close()

	status, msg, err := db.FormatStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.FormatNeedsMigration, status)
	assert.Contains(t, msg, "format version 0")

	require.NoError(t, db.Migrate(ctx, migrate.Env{ContentDir: content, PageSuffix: ".wiki"}))

	status, _, err = db.FormatStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.FormatUpToDate, status)

	home, err := db.GetPage(ctx, "HomePage")
	require.NoError(t, err)
	assert.Equal(t, "HomePage.wiki", home.FilePath)
	assert.Equal(t, "homepage.wiki", home.FilePathLower)
	assert.NotEmpty(t, home.Signature)
	assert.Equal(t, models.StateDirty, home.State)
	assert.Equal(t, home.Modified, home.Visited)
	assert.Equal(t, int64(1700000500), home.Modified.Unix())

	// Pages differing only in case get distinct files.
	upper, err := db.GetPage(ctx, "Person")
	require.NoError(t, err)
	lower, err := db.GetPage(ctx, "person")
	require.NoError(t, err)
	assert.NotEqual(t, upper.FilePathLower, lower.FilePathLower)
	assert.Empty(t, upper.Signature, "no file on disk")

	children, err := db.ChildRelations(ctx, "HomePage", cache.ChildQuery{Order: cache.OrderByTarget})
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, "Bob", children[0].Target)
	assert.True(t, children[0].Defined, "alias attribute became a link term")
	assert.Equal(t, -1, children[0].FirstCharPos)
	assert.False(t, children[1].Defined)

	attrs, err := db.AttributesForWord(ctx, "Person")
	require.NoError(t, err)
	assert.Equal(t, []models.Attribute{{Word: "Person", Key: "alias", Value: "Bob"}}, attrs)

	terms, err := db.LookupMatchTerm(ctx, "HomePage", true)
	require.NoError(t, err)
	require.Len(t, terms, 1)
	assert.True(t, terms[0].SyncManaged)

	todos, err := db.TodosForWord(ctx, "HomePage")
	require.NoError(t, err)
	assert.Equal(t, []models.Todo{
		{Word: "HomePage", Key: "todo", Value: "buy milk"},
		{Word: "HomePage", Key: "done", Value: "paint fence"},
		{Word: "HomePage", Key: "todo", Value: "no marker"},
	}, todos)

	block, err := db.GetDataBlock(ctx, "savedsearch/open tasks")
	require.NoError(t, err)
	assert.Equal(t, []byte("open"), block.Data)

	ok, err := tableExists(ctx, db.bun, "search_views")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUnsupportedFormat(t *testing.T) {
	ctx := context.Background()
	db := openTemp(t)
	require.NoError(t, db.SetSetting(ctx, migrate.KeyWriteCompat, "99"))

	status, msg, err := db.FormatStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.FormatUnsupported, status)
	assert.Contains(t, msg, "newer engine")

	err = db.Migrate(ctx, migrate.Env{})
	require.ErrorIs(t, err, apperr.ErrUnsupportedFormat)
}

func TestReadOnlyRejectsWrites(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), FileName)
	rw, err := Open(ctx, path, Options{})
	require.NoError(t, err)
	defer rw.Close()
	require.NoError(t, rw.PutPage(ctx, &models.Page{Word: "A", FilePath: "A.wiki", FilePathLower: "a.wiki"}))

	ro, err := Open(ctx, path, Options{ReadOnly: true})
	require.NoError(t, err)
	defer ro.Close()

	words, err := ro.AllWords(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, words)

	err = ro.InTx(ctx, func(tx cache.Store) error { return nil })
	require.ErrorIs(t, err, apperr.ErrReadOnly)
	require.Error(t, ro.TestWrite(ctx))
}

func TestVacuum(t *testing.T) {
	ctx := context.Background()
	db := openTemp(t)
	for _, w := range []string{"A", "B", "C"} {
		require.NoError(t, db.PutPage(ctx, &models.Page{Word: w, FilePath: w + ".wiki", FilePathLower: strings.ToLower(w) + ".wiki"}))
		require.NoError(t, db.DeletePage(ctx, w))
	}
	require.NoError(t, db.Vacuum(ctx))
}

func TestRebuildTableKeepsRowsAndFillsDefaults(t *testing.T) {
	ctx := context.Background()
	db := openTemp(t)
	_, err := db.bun.ExecContext(ctx, `
		DROP TABLE wikiwords;
		CREATE TABLE wikiwords (word TEXT PRIMARY KEY, created REAL, modified REAL);
		INSERT INTO wikiwords VALUES ('A', 10, 20);`)
	require.NoError(t, err)

	for range 2 {
		err = db.inTx(ctx, func(tx bun.IDB) error {
			return rebuildTable(ctx, tx, "wikiwords", pageTableV5)
		})
		require.NoError(t, err)
	}

	cols, err := tableColumns(ctx, db.bun, "wikiwords")
	require.NoError(t, err)
	assert.Contains(t, cols, "visited")
	assert.Contains(t, cols, "presentationdatablock")

	p, err := db.GetPage(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, int64(20), p.Visited.Unix(), "visited defaults to modified")
	assert.Equal(t, "", p.FilePath)
}

func TestIsDatabaseLocked(t *testing.T) {
	assert.False(t, isDatabaseLocked(nil))
	assert.False(t, isDatabaseLocked(assert.AnError))
	assert.True(t, isDatabaseLocked(errors.New("database is locked (5) (SQLITE_BUSY)")))
}
