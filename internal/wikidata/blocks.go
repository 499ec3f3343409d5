package wikidata

import (
	"context"

	"github.com/starford/wikistore/internal/models"
)

// StoreDataBlock stores payload under name. An existing block keeps its
// placement; hint decides the placement of a new one.
func (w *WikiData) StoreDataBlock(ctx context.Context, name string, payload []byte, hint models.Placement) error {
	unlock, err := w.beginWrite()
	if err != nil {
		return err
	}
	defer unlock()

	if err := w.blocks.Put(ctx, name, payload, hint); err != nil {
		return err
	}
	w.emit(Event{Kind: EventBlockStored, Name: name})
	return nil
}

// RetrieveDataBlock returns the payload stored under name.
func (w *WikiData) RetrieveDataBlock(ctx context.Context, name string) ([]byte, error) {
	return w.blocks.Get(ctx, name)
}

// RetrieveDataBlockAsText returns the payload under name as text.
func (w *WikiData) RetrieveDataBlockAsText(ctx context.Context, name string) (string, error) {
	return w.blocks.GetText(ctx, name)
}

// DeleteDataBlock removes name. Deleting an absent block is not an error.
func (w *WikiData) DeleteDataBlock(ctx context.Context, name string) error {
	unlock, err := w.beginWrite()
	if err != nil {
		return err
	}
	defer unlock()

	if err := w.blocks.Delete(ctx, name); err != nil {
		return err
	}
	w.emit(Event{Kind: EventBlockDeleted, Name: name})
	return nil
}

// GetDataBlockUnifNamesStartingWith lists block names with the given prefix.
func (w *WikiData) GetDataBlockUnifNamesStartingWith(ctx context.Context, prefix string) ([]string, error) {
	return w.blocks.NamesWithPrefix(ctx, prefix)
}

// DataBlockChanged reports whether an external block was edited outside the wiki.
func (w *WikiData) DataBlockChanged(ctx context.Context, name string) (bool, error) {
	return w.blocks.Changed(ctx, name)
}
