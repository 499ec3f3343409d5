package wikidata

import (
	"context"
	"errors"
	"time"

	"github.com/starford/wikistore/internal/cache"
	"github.com/starford/wikistore/internal/models"
)

// GetAllWords returns every page name in ascending byte order.
func (w *WikiData) GetAllWords(ctx context.Context) ([]string, error) {
	return w.backend.AllWords(ctx)
}

// GetWordsStartingWith returns the page names with the given prefix.
func (w *WikiData) GetWordsStartingWith(ctx context.Context, prefix string) ([]string, error) {
	return w.backend.WordsWithPrefix(ctx, prefix)
}

// GetWordsContaining returns the page names containing substr.
func (w *WikiData) GetWordsContaining(ctx context.Context, substr string) ([]string, error) {
	return w.backend.WordsContaining(ctx, substr)
}

// FirstWord returns the smallest page name, or apperr.ErrNotFound for an empty wiki.
func (w *WikiData) FirstWord(ctx context.Context) (string, error) {
	return w.backend.FirstWord(ctx)
}

// NextWord returns the page name following after, or apperr.ErrNotFound at the end.
func (w *WikiData) NextWord(ctx context.Context, after string) (string, error) {
	return w.backend.NextWord(ctx, after)
}

// TimeBounds returns the smallest and largest value of field over all pages.
func (w *WikiData) TimeBounds(ctx context.Context, field models.TimeField) (time.Time, time.Time, error) {
	return w.backend.TimeBounds(ctx, field)
}

// GetWordsModifiedBetween returns the pages whose field lies in [from, to).
func (w *WikiData) GetWordsModifiedBetween(ctx context.Context, field models.TimeField, from, to time.Time) ([]string, error) {
	return w.backend.WordsInTimeRange(ctx, field, from, to)
}

// CheckFormat compares the cache format with the engine.
func (w *WikiData) CheckFormat(ctx context.Context) (models.FormatStatus, string, error) {
	return w.backend.FormatStatus(ctx)
}

// Migrate upgrades the cache to the current format.
func (w *WikiData) Migrate(ctx context.Context) error {
	unlock, err := w.beginWrite()
	if err != nil {
		return err
	}
	defer unlock()

	err = w.backend.Migrate(ctx, w.cfg.migrateEnv(w.logger))
	w.invalidateGlobals()
	return err
}

// Vacuum compacts the cache. Engines without compaction report
// errors.ErrUnsupported.
func (w *WikiData) Vacuum(ctx context.Context) error {
	unlock, err := w.beginWrite()
	if err != nil {
		return err
	}
	defer unlock()

	v, ok := w.backend.(cache.Vacuumer)
	if !ok {
		return errors.ErrUnsupported
	}
	return v.Vacuum(ctx)
}

// CanVacuum reports whether the engine supports Vacuum.
func (w *WikiData) CanVacuum() bool {
	_, ok := w.backend.(cache.Vacuumer)
	return ok
}

// TestWrite reports whether the cache accepts writes.
func (w *WikiData) TestWrite(ctx context.Context) error {
	unlock, err := w.beginWrite()
	if err != nil {
		return err
	}
	defer unlock()

	return w.backend.TestWrite(ctx)
}

// Stats summarises the cache tables.
func (w *WikiData) Stats(ctx context.Context) (cache.Stats, error) {
	return w.backend.Stats(ctx)
}
