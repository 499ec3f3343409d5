// Package sqlcache is the file-backed SQL engine of the relational cache,
// built on SQLite through mattn/go-sqlite3 with bun for the simple tables.
package sqlcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/avast/retry-go/v4"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/starford/wikistore/internal/apperr"
	"github.com/starford/wikistore/internal/cache"
	"github.com/starford/wikistore/internal/migrate"
	"github.com/starford/wikistore/internal/models"
)

// FileName is the cache file created inside the wiki data directory.
const FileName = "wikiovw.sli"

// Options configure Open.
type Options struct {
	// ReadOnly opens the database with mode=ro and never creates it.
	ReadOnly bool
}

// DB is an open SQL cache.
type DB struct {
	queries

	bun      *bun.DB
	path     string
	readOnly bool
}

var (
	_ cache.Backend  = (*DB)(nil)
	_ cache.Vacuumer = (*DB)(nil)
)

// Open opens (or creates) the cache at path. A new file gets the current
// schema and version markers; an existing one is left as found so the
// caller can check its format.
func Open(ctx context.Context, path string, opts Options) (*DB, error) {
	dsn := "file:" + path + "?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate"
	if opts.ReadOnly {
		dsn += "&mode=ro"
	}
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, apperr.Read("open", fmt.Errorf("sqlcache: open db: %w", err))
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, apperr.Read("open", fmt.Errorf("sqlcache: ping: %w", err))
	}

	bunDB := bun.NewDB(sqlDB, sqlitedialect.New())
	db := &DB{
		queries:  queries{db: bunDB},
		bun:      bunDB,
		path:     path,
		readOnly: opts.ReadOnly,
	}

	if !opts.ReadOnly {
		empty, err := db.isEmpty(ctx)
		if err != nil {
			bunDB.Close()
			return nil, err
		}
		if empty {
			if err := db.create(ctx); err != nil {
				bunDB.Close()
				return nil, err
			}
		}
	}
	return db, nil
}

func (db *DB) isEmpty(ctx context.Context) (bool, error) {
	var n int
	err := db.bun.NewRaw(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table'`).Scan(ctx, &n)
	if err != nil {
		return false, apperr.Read("inspect schema", err)
	}
	return n == 0, nil
}

func (db *DB) create(ctx context.Context) error {
	return db.inTx(ctx, func(tx bun.IDB) error {
		if _, err := tx.ExecContext(ctx, tablesSQL); err != nil {
			return apperr.Write("create schema", err)
		}
		if _, err := tx.ExecContext(ctx, indexesSQL); err != nil {
			return apperr.Write("create indexes", err)
		}
		return writeVersions(ctx, tx, migrate.Versions{
			Format:      FormatVersion,
			WriteCompat: FormatVersion,
			ReadCompat:  ReadCompatVersion,
		})
	})
}

// Path returns the database file path.
func (db *DB) Path() string { return db.path }

// Close closes the underlying database.
func (db *DB) Close() error {
	return db.bun.Close()
}

// InTx runs fn in a write transaction. BEGIN IMMEDIATE takes the write lock
// up front, so lock contention surfaces here and is retried.
func (db *DB) InTx(ctx context.Context, fn func(tx cache.Store) error) error {
	return db.inTx(ctx, func(tx bun.IDB) error { return fn(queries{db: tx}) })
}

func (db *DB) inTx(ctx context.Context, fn func(tx bun.IDB) error) error {
	if db.readOnly {
		return apperr.Write("begin", apperr.ErrReadOnly)
	}
	tx, err := retry.DoWithData(func() (bun.Tx, error) {
		return db.bun.BeginTx(ctx, nil)
	}, databaseRetryOptions(ctx)...)
	if err != nil {
		return apperr.Write("begin", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperr.Write("commit", err)
	}
	return nil
}

// Vacuum rebuilds the database file, reclaiming free pages.
func (db *DB) Vacuum(ctx context.Context) error {
	if db.readOnly {
		return apperr.Write("vacuum", apperr.ErrReadOnly)
	}
	if _, err := db.bun.ExecContext(ctx, "VACUUM"); err != nil {
		return apperr.Write("vacuum", err)
	}
	return nil
}

var errWriteCheck = errors.New("sqlcache: write check")

// TestWrite writes a settings row inside a transaction that is then rolled back.
func (db *DB) TestWrite(ctx context.Context) error {
	err := db.InTx(ctx, func(tx cache.Store) error {
		if err := tx.SetSetting(ctx, "writecheck", strconv.FormatInt(time.Now().UnixNano(), 10)); err != nil {
			return err
		}
		return errWriteCheck
	})
	if errors.Is(err, errWriteCheck) {
		return nil
	}
	return err
}

// FormatStatus reports whether the stored format can be used as is.
func (db *DB) FormatStatus(ctx context.Context) (models.FormatStatus, string, error) {
	return migrate.Check(ctx, migrationTarget{db}, plan)
}

// Migrate upgrades the cache to FormatVersion.
func (db *DB) Migrate(ctx context.Context, env migrate.Env) error {
	return migrate.Run(ctx, migrationTarget{db}, plan, env)
}

// migrationTarget adapts DB to migrate.Target over bun.IDB.
type migrationTarget struct{ db *DB }

func (t migrationTarget) Versions(ctx context.Context) (migrate.Versions, error) {
	return readVersions(ctx, t.db.bun)
}

func (t migrationTarget) InTx(ctx context.Context, fn func(tx bun.IDB) error) error {
	return t.db.inTx(ctx, fn)
}

func (t migrationTarget) WriteVersions(ctx context.Context, tx bun.IDB, v migrate.Versions) error {
	return writeVersions(ctx, tx, v)
}

func readVersions(ctx context.Context, idb bun.IDB) (migrate.Versions, error) {
	var v migrate.Versions
	ok, err := tableExists(ctx, idb, "settings")
	if err != nil || !ok {
		return v, err
	}
	q := queries{db: idb}
	for key, dst := range map[string]*int{
		migrate.KeyFormatVersion: &v.Format,
		migrate.KeyWriteCompat:   &v.WriteCompat,
		migrate.KeyReadCompat:    &v.ReadCompat,
	} {
		s, err := q.Setting(ctx, key, "0")
		if err != nil {
			return v, err
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return v, apperr.Read("versions", fmt.Errorf("sqlcache: bad %s %q: %w", key, s, err))
		}
		*dst = n
	}
	return v, nil
}

func writeVersions(ctx context.Context, idb bun.IDB, v migrate.Versions) error {
	q := queries{db: idb}
	for _, kv := range []struct {
		key string
		val int
	}{
		{migrate.KeyFormatVersion, v.Format},
		{migrate.KeyWriteCompat, v.WriteCompat},
		{migrate.KeyReadCompat, v.ReadCompat},
	} {
		if err := q.SetSetting(ctx, kv.key, strconv.Itoa(kv.val)); err != nil {
			return err
		}
	}
	return nil
}

func tableExists(ctx context.Context, idb bun.IDB, name string) (bool, error) {
	var n int
	err := idb.NewRaw(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(ctx, &n)
	if err != nil {
		return false, apperr.Read("inspect schema", err)
	}
	return n > 0, nil
}
