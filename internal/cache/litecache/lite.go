// Package litecache is the lightweight embedded engine of the relational
// cache: tables live in memory and every committed transaction is written
// out as a msgpack snapshot.
package litecache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	natomic "github.com/natefinch/atomic"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/starford/wikistore/internal/apperr"
	"github.com/starford/wikistore/internal/cache"
	"github.com/starford/wikistore/internal/migrate"
	"github.com/starford/wikistore/internal/models"
)

// FileName is the snapshot file created inside the wiki data directory.
const FileName = "wikicache.mpk"

// Options configure Open.
type Options struct {
	ReadOnly bool
}

// DB is an open lightweight cache. Readers see the last committed
// generation; writers are serialised by txMu.
type DB struct {
	path     string
	readOnly bool

	cur  atomic.Pointer[tables]
	txMu sync.Mutex
}

var _ cache.Backend = (*DB)(nil)

// Open loads the snapshot at path, creating an empty cache if it does not
// exist. An empty path keeps the cache in memory only.
func Open(_ context.Context, path string, opts Options) (*DB, error) {
	db := &DB{path: path, readOnly: opts.ReadOnly}

	t, err := load(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if opts.ReadOnly {
			return nil, apperr.Read("open", fmt.Errorf("litecache: %s: %w", path, apperr.ErrNotFound))
		}
		t = newTables()
		setVersions(t.Settings, migrate.Versions{
			Format:      FormatVersion,
			WriteCompat: FormatVersion,
			ReadCompat:  FormatVersion,
		})
		if err := db.persist(t); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	}
	db.cur.Store(t)
	return db, nil
}

func load(path string) (*tables, error) {
	if path == "" {
		return nil, fs.ErrNotExist
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return nil, apperr.Read("load snapshot", err)
	}
	t := &tables{}
	if err := msgpack.Unmarshal(data, t); err != nil {
		return nil, apperr.Read("decode snapshot", err)
	}
	t.fill()
	return t, nil
}

func (db *DB) persist(t *tables) error {
	if db.path == "" {
		return nil
	}
	data, err := msgpack.Marshal(t)
	if err != nil {
		return apperr.Write("encode snapshot", err)
	}
	if err := natomic.WriteFile(db.path, bytes.NewReader(data)); err != nil {
		return apperr.Write("write snapshot", err)
	}
	return nil
}

// Path returns the snapshot file path.
func (db *DB) Path() string { return db.path }

// Close releases nothing; committed state is already on disk.
func (db *DB) Close() error { return nil }

func (db *DB) read() *view {
	return &view{t: db.cur.Load()}
}

// InTx runs fn against a private copy of the tables and publishes it,
// after writing the snapshot, if fn succeeds.
func (db *DB) InTx(ctx context.Context, fn func(tx cache.Store) error) error {
	return db.update(ctx, func(v *view) error { return fn(v) })
}

func (db *DB) update(ctx context.Context, fn func(v *view) error) error {
	if db.readOnly {
		return apperr.Write("begin", apperr.ErrReadOnly)
	}
	db.txMu.Lock()
	defer db.txMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	next := *db.cur.Load()
	v := &view{t: &next, owned: make(map[tableID]bool)}
	if err := fn(v); err != nil {
		return err
	}
	if len(v.owned) == 0 {
		return nil
	}
	if err := db.persist(v.t); err != nil {
		return err
	}
	db.cur.Store(v.t)
	return nil
}

var errWriteCheck = errors.New("litecache: write check")

// TestWrite checks the snapshot location accepts writes.
func (db *DB) TestWrite(ctx context.Context) error {
	if db.readOnly {
		return apperr.Write("test write", apperr.ErrReadOnly)
	}
	if db.path != "" {
		marker := db.path + ".writecheck"
		if err := natomic.WriteFile(marker, bytes.NewReader([]byte(time.Now().String()))); err != nil {
			return apperr.Write("test write", err)
		}
		_ = os.Remove(marker)
	}
	err := db.update(ctx, func(v *view) error {
		if err := v.SetSetting(ctx, "writecheck", strconv.FormatInt(time.Now().UnixNano(), 10)); err != nil {
			return err
		}
		return errWriteCheck
	})
	if errors.Is(err, errWriteCheck) {
		return nil
	}
	return err
}

// FormatStatus reports whether the snapshot format can be used as is.
func (db *DB) FormatStatus(ctx context.Context) (models.FormatStatus, string, error) {
	return migrate.Check(ctx, migrationTarget{db}, plan)
}

// Migrate upgrades the snapshot to FormatVersion.
func (db *DB) Migrate(ctx context.Context, env migrate.Env) error {
	return migrate.Run(ctx, migrationTarget{db}, plan, env)
}

type migrationTarget struct{ db *DB }

func (t migrationTarget) Versions(context.Context) (migrate.Versions, error) {
	return getVersions(t.db.cur.Load().Settings)
}

func (t migrationTarget) InTx(ctx context.Context, fn func(tx *view) error) error {
	return t.db.update(ctx, fn)
}

func (t migrationTarget) WriteVersions(_ context.Context, tx *view, v migrate.Versions) error {
	setVersions(own(tx, tSettings, &tx.t.Settings), v)
	return nil
}

func getVersions(settings map[string]string) (migrate.Versions, error) {
	var v migrate.Versions
	for key, dst := range map[string]*int{
		migrate.KeyFormatVersion: &v.Format,
		migrate.KeyWriteCompat:   &v.WriteCompat,
		migrate.KeyReadCompat:    &v.ReadCompat,
	} {
		s, ok := settings[key]
		if !ok {
			continue
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return v, apperr.Read("versions", fmt.Errorf("litecache: bad %s %q: %w", key, s, err))
		}
		*dst = n
	}
	return v, nil
}

func setVersions(settings map[string]string, v migrate.Versions) {
	settings[migrate.KeyFormatVersion] = strconv.Itoa(v.Format)
	settings[migrate.KeyWriteCompat] = strconv.Itoa(v.WriteCompat)
	settings[migrate.KeyReadCompat] = strconv.Itoa(v.ReadCompat)
}
