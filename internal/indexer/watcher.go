package indexer

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/wikistore/internal/apperr"
	"github.com/starford/wikistore/internal/models"
)

// EventCallback is called after a watcher-driven cache change.
// kind is one of "created", "updated", "deleted".
type EventCallback func(kind string, word string)

const reconcileDelay = 200 * time.Millisecond

// Watch follows changes to page files in the data directory until ctx is
// cancelled. Edits made outside the wiki are picked up and refreshed;
// renames trigger a debounced Sync that reconciles both names.
func (ix *Indexer) Watch(ctx context.Context, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	root := ix.wd.Files().Root()
	if err := w.Add(root); err != nil {
		return err
	}
	suffix := ix.wd.Config().PageSuffix
	ix.logger.Info("watcher: started", slog.String("root", root))

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time
	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			ix.logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			rep, err := ix.Sync(ctx)
			if err != nil {
				ix.logger.Warn("watcher: reconcile failed", slog.String("error", err.Error()))
				continue
			}
			ix.logger.Debug("watcher: reconciled",
				slog.Int("imported", rep.Imported),
				slog.Int("removed", rep.Removed))
			if cb != nil && (rep.Imported > 0 || rep.Removed > 0) {
				cb("updated", "")
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			name := filepath.Base(ev.Name)
			if !strings.HasSuffix(name, suffix) || filepath.Dir(ev.Name) != root {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				word, kind, err := ix.syncFile(ctx, name)
				if err != nil {
					ix.logger.Warn("watcher: index failed", slog.String("file", name), slog.String("error", err.Error()))
					continue
				}
				if kind == "" {
					continue
				}
				ix.logger.Debug("watcher: indexed", slog.String("word", word), slog.String("op", kind))
				if cb != nil {
					cb(kind, word)
				}

			case ev.Op&fsnotify.Remove != 0:
				word, err := ix.removeFile(ctx, name)
				if err != nil {
					ix.logger.Warn("watcher: delete failed", slog.String("file", name), slog.String("error", err.Error()))
					continue
				}
				if word == "" {
					continue
				}
				ix.logger.Debug("watcher: deleted", slog.String("word", word))
				if cb != nil {
					cb("deleted", word)
				}

			case ev.Op&fsnotify.Rename != 0:
				// The new name arrives as a separate Create when it stays
				// in the directory; Sync settles whatever is left.
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			ix.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// syncFile brings the page stored in name up to date. kind is empty when
// nothing needed doing.
func (ix *Indexer) syncFile(ctx context.Context, name string) (word, kind string, err error) {
	word, err = ix.wd.WordForFile(ctx, name)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		word, err = ix.wd.ImportFile(ctx, name)
		if err != nil {
			return "", "", err
		}
		kind = "created"
	case err != nil:
		return "", "", err
	case !ix.wd.ValidateSignature(ctx, word):
		if err := ix.wd.RefreshFileSignature(ctx, word); err != nil {
			return word, "", err
		}
		kind = "updated"
	default:
		page, err := ix.wd.GetPage(ctx, word)
		if err != nil {
			return word, "", err
		}
		if page.State == models.StateUpToDate {
			return word, "", nil
		}
		kind = "updated"
	}
	return word, kind, ix.Refresh(ctx, word)
}

// removeFile drops the page stored in name when the file is really gone.
func (ix *Indexer) removeFile(ctx context.Context, name string) (string, error) {
	word, err := ix.wd.WordForFile(ctx, name)
	if errors.Is(err, apperr.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if exists, err := ix.wd.Files().Exists(name); err != nil || exists {
		return "", err
	}
	return word, ix.wd.DeleteWord(ctx, word)
}
