// Package blockstore keeps small named blobs either inside the relational
// cache or as files next to the page files.
package blockstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/starford/wikistore/internal/apperr"
	"github.com/starford/wikistore/internal/cache"
	"github.com/starford/wikistore/internal/filename"
	"github.com/starford/wikistore/internal/models"
	"github.com/starford/wikistore/internal/signature"
	"github.com/starford/wikistore/internal/storage"
)

// FileSuffix is appended to external block file names.
const FileSuffix = ".data"

// Store places data blocks according to a placement hint.
type Store struct {
	backend cache.Backend
	files   storage.Provider
	names   filename.Options
	logger  *slog.Logger
}

// New creates a Store. names configures external file naming; its Suffix
// is forced to FileSuffix.
func New(backend cache.Backend, files storage.Provider, names filename.Options, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	names.Suffix = FileSuffix
	return &Store{backend: backend, files: files, names: names, logger: logger}
}

// Put stores payload under name. An existing block keeps its placement
// and is overwritten in place; hint only decides where a new block goes.
func (s *Store) Put(ctx context.Context, name string, payload []byte, hint models.Placement) error {
	var staged *storage.Staged
	err := s.backend.InTx(ctx, func(tx cache.Store) error {
		row, err := tx.GetDataBlock(ctx, name)
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			row = &cache.DataBlockRow{Name: name, Placement: hint}
		case err != nil:
			return err
		}

		if row.Placement == models.Intern {
			row.Data = payload
			return tx.PutDataBlock(ctx, row)
		}

		if row.FilePath == "" {
			path, err := filename.Allocate(name, s.names, s.files.Exists)
			if err != nil {
				return err
			}
			row.FilePath = path
		}
		staged, err = s.files.Stage(row.FilePath, payload)
		if err != nil {
			return apperr.Write("store data block", err)
		}
		row.Signature = staged.Signature
		row.Data = nil
		if err := tx.PutDataBlock(ctx, row); err != nil {
			return err
		}
		return staged.Commit()
	})
	if staged == nil {
		return err
	}
	if err != nil {
		if rErr := staged.Restore(); rErr != nil {
			s.logger.Warn("blockstore: restore block file",
				slog.String("block", name),
				slog.String("error", rErr.Error()))
		}
		return err
	}
	staged.Release()
	return nil
}

// Get returns the payload of name, or an error wrapping apperr.ErrNotFound.
func (s *Store) Get(ctx context.Context, name string) ([]byte, error) {
	row, err := s.backend.GetDataBlock(ctx, name)
	if err != nil {
		return nil, err
	}
	if row.Placement == models.Intern {
		return row.Data, nil
	}
	data, err := s.files.Read(row.FilePath)
	if err != nil {
		return nil, fmt.Errorf("data block %q: %w", name, err)
	}
	return data, nil
}

// GetText returns the payload of name as text with line endings normalised.
func (s *Store) GetText(ctx context.Context, name string) (string, error) {
	data, err := s.Get(ctx, name)
	if err != nil {
		return "", err
	}
	return storage.NormalizeText(data), nil
}

// Delete removes name from either placement. Deleting an absent block is
// not an error.
func (s *Store) Delete(ctx context.Context, name string) error {
	var file string
	err := s.backend.InTx(ctx, func(tx cache.Store) error {
		row, err := tx.GetDataBlock(ctx, name)
		if errors.Is(err, apperr.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if row.Placement == models.Extern {
			file = row.FilePath
		}
		return tx.DeleteDataBlock(ctx, name)
	})
	if err != nil || file == "" {
		return err
	}
	if err := s.files.Delete(file); err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return apperr.Write("delete data block file", err)
	}
	return nil
}

// NamesWithPrefix lists block names across both placements.
func (s *Store) NamesWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	return s.backend.DataBlockNamesWithPrefix(ctx, prefix)
}

// Changed reports whether the file behind an external block was modified
// since it was stored. Internal blocks never change behind our back.
func (s *Store) Changed(ctx context.Context, name string) (bool, error) {
	row, err := s.backend.GetDataBlock(ctx, name)
	if err != nil {
		return false, err
	}
	if row.Placement == models.Intern {
		return false, nil
	}
	current, err := s.files.Signature(row.FilePath)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return true, nil
		}
		return false, err
	}
	return !signature.Equal(current, row.Signature), nil
}
