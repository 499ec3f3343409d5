package wikidata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/starford/wikistore/internal/apperr"
	"github.com/starford/wikistore/internal/cache"
	"github.com/starford/wikistore/internal/filename"
	"github.com/starford/wikistore/internal/models"
	"github.com/starford/wikistore/internal/signature"
	"github.com/starford/wikistore/internal/storage"
)

// ContentOption adjusts a SetContent call.
type ContentOption func(*contentOptions)

type contentOptions struct {
	modified time.Time
	created  time.Time
}

// ModifiedAt records t as the modification time instead of now.
func ModifiedAt(t time.Time) ContentOption {
	return func(o *contentOptions) { o.modified = t }
}

// CreatedAt records t as the creation time of a new page instead of now.
func CreatedAt(t time.Time) ContentOption {
	return func(o *contentOptions) { o.created = t }
}

// GetPage returns the index row of word.
func (w *WikiData) GetPage(ctx context.Context, word string) (*models.Page, error) {
	return w.backend.GetPage(ctx, word)
}

// Exists reports whether word is a page.
func (w *WikiData) Exists(ctx context.Context, word string) (bool, error) {
	_, err := w.backend.GetPage(ctx, word)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, apperr.ErrNotFound):
		return false, nil
	}
	return false, err
}

// GetContent returns the text of word with line endings normalised to LF.
func (w *WikiData) GetContent(ctx context.Context, word string) (string, error) {
	page, err := w.backend.GetPage(ctx, word)
	if err != nil {
		return "", err
	}
	data, err := w.files.Read(page.FilePath)
	if err != nil {
		return "", fmt.Errorf("page %q: %w", word, err)
	}
	return storage.NormalizeText(data), nil
}

// SetContent writes text as the content of word, creating the page if
// needed. The page becomes DIRTY until its metadata is refreshed.
func (w *WikiData) SetContent(ctx context.Context, word, text string, opts ...ContentOption) error {
	unlock, err := w.beginWrite()
	if err != nil {
		return err
	}
	defer unlock()

	var o contentOptions
	for _, opt := range opts {
		opt(&o)
	}
	now := time.Now()

	page, err := w.backend.GetPage(ctx, word)
	isNew := errors.Is(err, apperr.ErrNotFound)
	switch {
	case isNew:
		path, err := w.allocatePageFile(ctx, word, "")
		if err != nil {
			return err
		}
		created := o.created
		if created.IsZero() {
			created = now
		}
		page = &models.Page{
			Word:          word,
			Created:       created,
			Visited:       now,
			FilePath:      path,
			FilePathLower: strings.ToLower(path),
		}
	case err != nil:
		return err
	case page.ReadOnly:
		return fmt.Errorf("page %q: %w", word, apperr.ErrReadOnly)
	}

	staged, err := w.files.Stage(page.FilePath, []byte(text))
	if err != nil {
		return err
	}
	page.Signature = staged.Signature
	page.Modified = o.modified
	if page.Modified.IsZero() {
		page.Modified = now
	}
	page.State = models.StateDirty

	err = w.backend.InTx(ctx, func(tx cache.Store) error {
		if err := tx.PutPage(ctx, page); err != nil {
			return err
		}
		if isNew {
			if err := tx.ReplaceMatchTerms(ctx, word, []models.MatchTerm{models.SelfTerm(word)}, true); err != nil {
				return err
			}
		}
		return staged.Commit()
	})
	if err != nil {
		if rErr := staged.Restore(); rErr != nil {
			w.logger.Error("wikidata: restore page file",
				slog.String("word", word),
				slog.String("error", rErr.Error()))
		}
		return err
	}
	staged.Release()
	w.emit(Event{Kind: EventPageSaved, Word: word})
	return nil
}

// allocatePageFile picks a file name for word. A name owned by the page
// named self is considered free.
func (w *WikiData) allocatePageFile(ctx context.Context, word, self string) (string, error) {
	return filename.Allocate(word, w.cfg.pageNames(), func(name string) (bool, error) {
		owner, err := w.backend.WordForFile(ctx, strings.ToLower(name))
		switch {
		case err == nil:
			return owner != self, nil
		case !errors.Is(err, apperr.ErrNotFound):
			return false, err
		}
		return w.files.Exists(name)
	})
}

// RenameWord renames oldWord to newWord together with every row it owns
// and its content file. Links from other pages still name oldWord.
func (w *WikiData) RenameWord(ctx context.Context, oldWord, newWord string) error {
	unlock, err := w.beginWrite()
	if err != nil {
		return err
	}
	defer unlock()

	if oldWord == newWord {
		return nil
	}
	page, err := w.backend.GetPage(ctx, oldWord)
	if err != nil {
		return err
	}
	switch exists, err := w.Exists(ctx, newWord); {
	case err != nil:
		return err
	case exists:
		return fmt.Errorf("rename %q to %q: %w", oldWord, newWord, apperr.ErrNameCollision)
	}

	newPath, err := w.allocatePageFile(ctx, newWord, oldWord)
	if err != nil {
		return err
	}
	oldPath := page.FilePath
	moved := false

	err = w.backend.InTx(ctx, func(tx cache.Store) error {
		if err := tx.RenameRows(ctx, oldWord, newWord); err != nil {
			return err
		}
		if err := tx.DeletePage(ctx, oldWord); err != nil {
			return err
		}
		renamed := *page
		renamed.Word = newWord
		renamed.FilePath = newPath
		renamed.FilePathLower = strings.ToLower(newPath)
		if err := tx.PutPage(ctx, &renamed); err != nil {
			return err
		}
		if err := w.renameSyncTerms(ctx, tx, oldWord, newWord); err != nil {
			return err
		}
		if newPath != oldPath {
			if err := w.files.Move(oldPath, newPath); err != nil {
				return err
			}
			moved = true
		}
		return nil
	})
	if err != nil {
		if moved {
			if mvErr := w.files.Move(newPath, oldPath); mvErr != nil {
				w.logger.Error("wikidata: restore renamed file",
					slog.String("word", oldWord),
					slog.String("error", mvErr.Error()))
			}
		}
		return err
	}
	w.invalidateGlobals()
	w.emit(Event{Kind: EventPageRenamed, Word: newWord, OldWord: oldWord})
	return nil
}

// renameSyncTerms rewrites the self term that followed the rows of
// oldWord so that it names newWord.
func (w *WikiData) renameSyncTerms(ctx context.Context, tx cache.Store, oldWord, newWord string) error {
	terms, err := tx.MatchTermsForWord(ctx, newWord)
	if err != nil {
		return err
	}
	var synced []models.MatchTerm
	hasSelf := false
	for _, t := range terms {
		if !t.SyncManaged {
			continue
		}
		if t.Source == models.SourceWord && t.Term == oldWord {
			t.Term = newWord
		}
		if t.Source == models.SourceWord && t.Term == newWord {
			hasSelf = true
		}
		synced = append(synced, t)
	}
	if !hasSelf {
		synced = append(synced, models.SelfTerm(newWord))
	}
	return tx.ReplaceMatchTerms(ctx, newWord, synced, true)
}

// RenameContent is RenameWord; content and metadata always move together.
func (w *WikiData) RenameContent(ctx context.Context, oldWord, newWord string) error {
	return w.RenameWord(ctx, oldWord, newWord)
}

// DeleteWord removes word, every row it owns and its content file. The
// root page cannot be deleted. Deleting an absent page is not an error.
func (w *WikiData) DeleteWord(ctx context.Context, word string) error {
	unlock, err := w.beginWrite()
	if err != nil {
		return err
	}
	defer unlock()

	if word == w.cfg.RootWord {
		return fmt.Errorf("delete %q: %w", word, apperr.ErrCannotDeleteRoot)
	}
	page, err := w.backend.GetPage(ctx, word)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	backup, err := w.files.Read(page.FilePath)
	hadFile := err == nil
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return err
	}
	removed := false

	err = w.backend.InTx(ctx, func(tx cache.Store) error {
		if err := tx.DeleteRows(ctx, word); err != nil {
			return err
		}
		if err := tx.DeletePage(ctx, word); err != nil {
			return err
		}
		if !hadFile {
			return nil
		}
		if err := w.files.Delete(page.FilePath); err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return err
		}
		removed = true
		return nil
	})
	if err != nil {
		if removed {
			if _, wErr := w.files.Write(page.FilePath, backup); wErr != nil {
				w.logger.Error("wikidata: restore deleted file",
					slog.String("word", word),
					slog.String("error", wErr.Error()))
			}
		}
		return err
	}
	w.invalidateGlobals()
	w.emit(Event{Kind: EventPageDeleted, Word: word})
	return nil
}

// DeleteContent is DeleteWord.
func (w *WikiData) DeleteContent(ctx context.Context, word string) error {
	return w.DeleteWord(ctx, word)
}

// GetTimestamps returns the three timestamps of word.
func (w *WikiData) GetTimestamps(ctx context.Context, word string) (models.Timestamps, error) {
	page, err := w.backend.GetPage(ctx, word)
	if err != nil {
		return models.Timestamps{}, err
	}
	return models.Timestamps{Modified: page.Modified, Created: page.Created, Visited: page.Visited}, nil
}

// SetTimestamps overwrites the timestamps of word. Zero fields are left unchanged.
func (w *WikiData) SetTimestamps(ctx context.Context, word string, ts models.Timestamps) error {
	return w.updatePage(ctx, word, func(p *models.Page) error {
		if !ts.Modified.IsZero() {
			p.Modified = ts.Modified
		}
		if !ts.Created.IsZero() {
			p.Created = ts.Created
		}
		if !ts.Visited.IsZero() {
			p.Visited = ts.Visited
		}
		return nil
	})
}

// TouchVisited sets the visited time of word to now.
func (w *WikiData) TouchVisited(ctx context.Context, word string) error {
	now := time.Now()
	return w.updatePage(ctx, word, func(p *models.Page) error {
		p.Visited = now
		return nil
	})
}

// SetPageReadOnly marks word as protected against content writes.
func (w *WikiData) SetPageReadOnly(ctx context.Context, word string, readOnly bool) error {
	return w.updatePage(ctx, word, func(p *models.Page) error {
		p.ReadOnly = readOnly
		return nil
	})
}

// GetPresentation returns the opaque presentation block of word.
func (w *WikiData) GetPresentation(ctx context.Context, word string) ([]byte, error) {
	page, err := w.backend.GetPage(ctx, word)
	if err != nil {
		return nil, err
	}
	return page.Presentation, nil
}

// SetPresentation stores the opaque presentation block of word.
func (w *WikiData) SetPresentation(ctx context.Context, word string, data []byte) error {
	return w.updatePage(ctx, word, func(p *models.Page) error {
		p.Presentation = data
		return nil
	})
}

// updatePage applies fn to the row of word inside a transaction.
func (w *WikiData) updatePage(ctx context.Context, word string, fn func(*models.Page) error) error {
	unlock, err := w.beginWrite()
	if err != nil {
		return err
	}
	defer unlock()

	return w.backend.InTx(ctx, func(tx cache.Store) error {
		page, err := tx.GetPage(ctx, word)
		if err != nil {
			return err
		}
		if err := fn(page); err != nil {
			return err
		}
		return tx.PutPage(ctx, page)
	})
}

// WordForFile maps a content file name back to the page it belongs to.
func (w *WikiData) WordForFile(ctx context.Context, name string) (string, error) {
	return w.backend.WordForFile(ctx, strings.ToLower(name))
}

// ImportFile registers a page file found in the data directory that the
// index does not know yet. The page name is derived from the file name.
func (w *WikiData) ImportFile(ctx context.Context, name string) (string, error) {
	unlock, err := w.beginWrite()
	if err != nil {
		return "", err
	}
	defer unlock()

	if word, err := w.WordForFile(ctx, name); err == nil {
		return word, nil
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return "", err
	}
	if !strings.HasSuffix(name, w.cfg.PageSuffix) {
		return "", fmt.Errorf("import %q: not a page file", name)
	}
	word, ok := filename.Unescape(strings.TrimSuffix(name, w.cfg.PageSuffix))
	if !ok || word == "" {
		return "", fmt.Errorf("import %q: file name does not encode a page name", name)
	}
	switch exists, err := w.Exists(ctx, word); {
	case err != nil:
		return "", err
	case exists:
		return "", fmt.Errorf("import %q as %q: %w", name, word, apperr.ErrNameCollision)
	}

	meta, err := w.files.Stat(name)
	if err != nil {
		return "", err
	}
	modified := meta.ModTime
	page := &models.Page{
		Word:          word,
		Created:       modified,
		Modified:      modified,
		Visited:       modified,
		FilePath:      name,
		FilePathLower: strings.ToLower(name),
		Signature:     meta.Signature,
		State:         models.StateDirty,
	}
	err = w.backend.InTx(ctx, func(tx cache.Store) error {
		if err := tx.PutPage(ctx, page); err != nil {
			return err
		}
		return tx.ReplaceMatchTerms(ctx, word, []models.MatchTerm{models.SelfTerm(word)}, true)
	})
	if err != nil {
		return "", err
	}
	w.emit(Event{Kind: EventPageSaved, Word: word})
	return word, nil
}

// ValidateSignature reports whether the content file of word is unchanged
// since the index last saw it. Failures read as "changed".
func (w *WikiData) ValidateSignature(ctx context.Context, word string) bool {
	page, err := w.backend.GetPage(ctx, word)
	if err != nil {
		return false
	}
	current, err := w.files.Signature(page.FilePath)
	if err != nil {
		return false
	}
	return signature.Equal(current, page.Signature)
}

// RefreshFileSignature records the current signature of the content file
// of word and marks the page DIRTY when it differs.
func (w *WikiData) RefreshFileSignature(ctx context.Context, word string) error {
	return w.updatePage(ctx, word, func(p *models.Page) error {
		current, err := w.files.Signature(p.FilePath)
		if err != nil {
			return err
		}
		if !signature.Equal(current, p.Signature) {
			p.Signature = current
			p.State = models.StateDirty
		}
		return nil
	})
}
