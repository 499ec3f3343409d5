package indexer

import (
	"context"
	"errors"
	"log/slog"

	"github.com/starford/wikistore/internal/apperr"
	"github.com/starford/wikistore/internal/models"
	"github.com/starford/wikistore/internal/wikidata"
)

// Progress is called after each page of a rebuild with the number of
// pages done and the total.
type Progress func(done, total int)

// Indexer refreshes derived metadata of a wiki.
type Indexer struct {
	wd     *wikidata.WikiData
	logger *slog.Logger
}

// New creates an Indexer over wd.
func New(wd *wikidata.WikiData, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{wd: wd, logger: logger}
}

// Refresh parses the current content of word and stores what it derives,
// moving the page through PROPS_PROCESSED to UP_TO_DATE.
func (ix *Indexer) Refresh(ctx context.Context, word string) error {
	text, err := ix.wd.GetContent(ctx, word)
	if err != nil {
		return err
	}
	p := Parse(word, text)
	if err := ix.wd.RefreshAttributesFromParse(ctx, word, p.Attributes, p.MatchTerms); err != nil {
		return err
	}
	return ix.wd.RefreshRelationsAndTodosFromParse(ctx, word, p.Relations, p.Todos)
}

// RefreshStale refreshes every page that is not UP_TO_DATE and returns
// how many were refreshed. Pages that fail are logged and skipped.
func (ix *Indexer) RefreshStale(ctx context.Context) (int, error) {
	var words []string
	for _, st := range []models.MetadataState{models.StateDirty, models.StatePropsProcessed} {
		ws, err := ix.wd.GetWikiWordsForMetaDataState(ctx, st)
		if err != nil {
			return 0, err
		}
		words = append(words, ws...)
	}
	n := 0
	for _, word := range words {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if err := ix.Refresh(ctx, word); err != nil {
			ix.logger.Warn("indexer: refresh failed", slog.String("word", word), slog.String("error", err.Error()))
			continue
		}
		n++
	}
	return n, nil
}

// Rebuild marks every page DIRTY and refreshes them all. Cancelling ctx
// stops the rebuild between pages; pages not reached stay DIRTY.
func (ix *Indexer) Rebuild(ctx context.Context, progress Progress) error {
	words, err := ix.wd.GetAllWords(ctx)
	if err != nil {
		return err
	}
	for _, word := range words {
		if err := ix.wd.SetMetaDataState(ctx, word, models.StateDirty); err != nil {
			return err
		}
	}
	ix.logger.Info("indexer: rebuild started", slog.Int("pages", len(words)))
	for i, word := range words {
		if err := ctx.Err(); err != nil {
			ix.logger.Info("indexer: rebuild cancelled", slog.Int("done", i), slog.Int("pages", len(words)))
			return err
		}
		if err := ix.Refresh(ctx, word); err != nil {
			ix.logger.Warn("indexer: refresh failed", slog.String("word", word), slog.String("error", err.Error()))
		}
		if progress != nil {
			progress(i+1, len(words))
		}
	}
	ix.logger.Info("indexer: rebuild finished", slog.Int("pages", len(words)))
	return nil
}

// SyncReport counts what Sync changed.
type SyncReport struct {
	Imported  int `json:"imported"`
	Changed   int `json:"changed"`
	Removed   int `json:"removed"`
	Refreshed int `json:"refreshed"`
}

// Sync brings the cache up to date with the data directory:
//   - page files unknown to the cache are imported
//   - pages whose file signature changed are marked DIRTY
//   - pages whose file disappeared are deleted
//   - every stale page is refreshed
func (ix *Indexer) Sync(ctx context.Context) (SyncReport, error) {
	var rep SyncReport
	suffix := ix.wd.Config().PageSuffix
	metas, err := ix.wd.Files().List(suffix)
	if err != nil {
		return rep, err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		word, err := ix.wd.WordForFile(ctx, m.Name)
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			word, err = ix.wd.ImportFile(ctx, m.Name)
			if err != nil {
				ix.logger.Warn("sync: import failed", slog.String("file", m.Name), slog.String("error", err.Error()))
				continue
			}
			rep.Imported++
			ix.logger.Debug("sync: imported", slog.String("file", m.Name), slog.String("word", word))
		case err != nil:
			return rep, err
		case !ix.wd.ValidateSignature(ctx, word):
			if err := ix.wd.RefreshFileSignature(ctx, word); err != nil {
				ix.logger.Warn("sync: signature refresh failed", slog.String("word", word), slog.String("error", err.Error()))
				continue
			}
			rep.Changed++
			ix.logger.Debug("sync: changed", slog.String("word", word))
		}
		disk[word] = struct{}{}
	}

	words, err := ix.wd.GetAllWords(ctx)
	if err != nil {
		return rep, err
	}
	for _, word := range words {
		if _, ok := disk[word]; ok {
			continue
		}
		if err := ix.wd.DeleteWord(ctx, word); err != nil {
			ix.logger.Warn("sync: delete failed", slog.String("word", word), slog.String("error", err.Error()))
			continue
		}
		rep.Removed++
		ix.logger.Debug("sync: removed stale", slog.String("word", word))
	}

	rep.Refreshed, err = ix.RefreshStale(ctx)
	return rep, err
}
