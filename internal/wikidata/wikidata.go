// Package wikidata is the single entry point to a wiki's stored data. It
// composes the content store, the relational cache and the data block
// store, and keeps them consistent across renames and deletes.
package wikidata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	"golang.org/x/text/language"

	"github.com/starford/wikistore/internal/apperr"
	"github.com/starford/wikistore/internal/blockstore"
	"github.com/starford/wikistore/internal/cache"
	"github.com/starford/wikistore/internal/cache/litecache"
	"github.com/starford/wikistore/internal/cache/sqlcache"
	"github.com/starford/wikistore/internal/filename"
	"github.com/starford/wikistore/internal/migrate"
	"github.com/starford/wikistore/internal/models"
	"github.com/starford/wikistore/internal/storage"
)

// Backend names accepted in Config.Backend.
const (
	BackendSQLite = "sqlite"
	BackendLite   = "lite"
)

// LockFileName guards the data directory against a second writer.
const LockFileName = ".wikistore.lock"

// ErrLocked is returned by Open when another process holds the wiki for writing.
var ErrLocked = errors.New("wiki is locked by another process")

// Config selects the data directory and storage flavour of a wiki.
type Config struct {
	DataDir           string
	PageSuffix        string
	RootWord          string
	Backend           string
	ASCIIFilenames    bool
	MaxFilenameLength int
	ReadOnly          bool
	AutoMigrate       bool
}

func (c Config) withDefaults() Config {
	if c.PageSuffix == "" {
		c.PageSuffix = ".wiki"
	}
	if c.Backend == "" {
		c.Backend = BackendSQLite
	}
	if c.MaxFilenameLength <= 0 {
		c.MaxFilenameLength = filename.DefaultMaxLength
	}
	return c
}

func (c Config) pageNames() filename.Options {
	return filename.Options{Suffix: c.PageSuffix, ASCIIOnly: c.ASCIIFilenames, MaxLength: c.MaxFilenameLength}
}

func (c Config) migrateEnv(logger *slog.Logger) migrate.Env {
	return migrate.Env{ContentDir: c.DataDir, PageSuffix: c.PageSuffix, Logger: logger}
}

// WikiData is an open wiki.
type WikiData struct {
	cfg      Config
	backend  cache.Backend
	files    storage.Provider
	blocks   *blockstore.Store
	lock     *flock.Flock
	logger   *slog.Logger
	listener func(Event)
	lang     language.Tag

	// writeMu serialises mutations; pending holds the events they emit
	// until it is released.
	writeMu sync.Mutex
	pending []Event

	globalsMu sync.Mutex
	globals   map[string]string
}

// Option configures a WikiData.
type Option func(*WikiData)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(w *WikiData) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithListener registers fn to receive change events. fn is called after
// the change has been committed and before the mutating call returns, with
// no lock held, so it may read from the wiki.
func WithListener(fn func(Event)) Option {
	return func(w *WikiData) {
		w.listener = fn
	}
}

// WithCollation sets the language used to order link search results.
func WithCollation(tag language.Tag) Option {
	return func(w *WikiData) {
		w.lang = tag
	}
}

// Open opens the wiki in cfg.DataDir, creating the directory and an empty
// cache if needed. A cache in an older format is migrated when
// cfg.AutoMigrate is set; otherwise Open fails with apperr.ErrUnsupportedFormat.
func Open(ctx context.Context, cfg Config, opts ...Option) (*WikiData, error) {
	cfg = cfg.withDefaults()
	w := &WikiData{cfg: cfg, logger: slog.Default(), lang: language.Und}
	for _, opt := range opts {
		opt(w)
	}
	if cfg.DataDir == "" {
		return nil, errors.New("wikidata: data directory is required")
	}

	if !cfg.ReadOnly {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, apperr.Write("create data directory", err)
		}
		w.lock = flock.New(filepath.Join(cfg.DataDir, LockFileName))
		locked, err := w.lock.TryLock()
		if err != nil {
			return nil, apperr.Write("lock data directory", err)
		}
		if !locked {
			return nil, fmt.Errorf("%w: %s", ErrLocked, cfg.DataDir)
		}
	}

	if err := w.open(ctx); err != nil {
		_ = w.Close()
		return nil, err
	}
	return w, nil
}

func (w *WikiData) open(ctx context.Context) error {
	files, err := storage.NewFS(w.cfg.DataDir)
	if err != nil {
		return apperr.Read("open data directory", err)
	}
	w.files = files

	backend, err := openBackend(ctx, w.cfg)
	if err != nil {
		return err
	}
	w.backend = backend
	w.blocks = blockstore.New(backend, files, w.cfg.pageNames(), w.logger)

	status, msg, err := backend.FormatStatus(ctx)
	if err != nil {
		return err
	}
	switch status {
	case models.FormatUnsupported:
		return fmt.Errorf("%w: %s", apperr.ErrUnsupportedFormat, msg)
	case models.FormatNeedsMigration:
		if !w.cfg.AutoMigrate || w.cfg.ReadOnly {
			return fmt.Errorf("%w: %s (migration required)", apperr.ErrUnsupportedFormat, msg)
		}
		w.logger.Info("migrating wiki cache", slog.String("reason", msg))
		return backend.Migrate(ctx, w.cfg.migrateEnv(w.logger))
	}
	return nil
}

func openBackend(ctx context.Context, cfg Config) (cache.Backend, error) {
	switch cfg.Backend {
	case BackendSQLite:
		return sqlcache.Open(ctx, filepath.Join(cfg.DataDir, sqlcache.FileName), sqlcache.Options{ReadOnly: cfg.ReadOnly})
	case BackendLite:
		return litecache.Open(ctx, filepath.Join(cfg.DataDir, litecache.FileName), litecache.Options{ReadOnly: cfg.ReadOnly})
	}
	return nil, fmt.Errorf("wikidata: unknown backend %q", cfg.Backend)
}

// CheckFormat reports the cache format of the wiki in cfg without
// migrating or locking it.
func CheckFormat(ctx context.Context, cfg Config) (models.FormatStatus, string, error) {
	cfg = cfg.withDefaults()
	cfg.ReadOnly = true
	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return models.FormatUnsupported, "", err
	}
	defer backend.Close()
	return backend.FormatStatus(ctx)
}

// Close releases the cache and the directory lock.
func (w *WikiData) Close() error {
	var err error
	if w.backend != nil {
		err = w.backend.Close()
	}
	if w.lock != nil {
		_ = w.lock.Unlock()
	}
	return err
}

// Config returns the effective configuration.
func (w *WikiData) Config() Config { return w.cfg }

// ReadOnly reports whether mutations are rejected.
func (w *WikiData) ReadOnly() bool { return w.cfg.ReadOnly }

// RootWord is the page that cannot be deleted.
func (w *WikiData) RootWord() string { return w.cfg.RootWord }

// Files exposes the content store, for collaborators that scan the data directory.
func (w *WikiData) Files() storage.Provider { return w.files }

// beginWrite rejects mutations of a read-only wiki and otherwise takes the
// write lock. Every mutating method holds it for its whole duration, so a
// file written by one call is registered before another call (the watcher
// included) can look at it. The returned func releases the lock.
func (w *WikiData) beginWrite() (func(), error) {
	if w.cfg.ReadOnly {
		return nil, apperr.ErrReadOnly
	}
	w.writeMu.Lock()
	return w.endWrite, nil
}

// endWrite releases the write lock, then delivers the queued events.
func (w *WikiData) endWrite() {
	events := w.pending
	w.pending = nil
	w.writeMu.Unlock()
	if w.listener == nil {
		return
	}
	for _, ev := range events {
		w.listener(ev)
	}
}

// emit queues ev for delivery by endWrite. Callers hold writeMu.
func (w *WikiData) emit(ev Event) {
	w.pending = append(w.pending, ev)
}
