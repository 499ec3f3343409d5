package cachetest

import (
	"context"
	"errors"
	"sync"

	"github.com/starford/wikistore/internal/cache"
	"github.com/starford/wikistore/internal/models"
)

// ErrInjected is the failure produced by a FaultyBackend.
var ErrInjected = errors.New("cachetest: injected failure")

// FaultyBackend wraps an engine so that its transactions fail on demand.
// Reads and writes outside transactions pass through untouched.
type FaultyBackend struct {
	cache.Backend

	mu         sync.Mutex
	failOps    map[string]bool
	failCommit bool
}

// NewFaultyBackend wraps b with no failures armed.
func NewFaultyBackend(b cache.Backend) *FaultyBackend {
	return &FaultyBackend{Backend: b, failOps: make(map[string]bool)}
}

// FailOp makes the named Store method fail inside transactions. Armed
// methods: PutPage, DeletePage, RenameRows, DeleteRows, PutDataBlock.
func (f *FaultyBackend) FailOp(op string) {
	f.mu.Lock()
	f.failOps[op] = true
	f.mu.Unlock()
}

// FailCommit makes every transaction fail after its body succeeded, so
// that side effects of the body have already happened.
func (f *FaultyBackend) FailCommit() {
	f.mu.Lock()
	f.failCommit = true
	f.mu.Unlock()
}

// Heal disarms every failure.
func (f *FaultyBackend) Heal() {
	f.mu.Lock()
	f.failOps = make(map[string]bool)
	f.failCommit = false
	f.mu.Unlock()
}

func (f *FaultyBackend) fails(op string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failOps[op]
}

// InTx runs fn against a view whose armed methods fail.
func (f *FaultyBackend) InTx(ctx context.Context, fn func(tx cache.Store) error) error {
	return f.Backend.InTx(ctx, func(tx cache.Store) error {
		if err := fn(faultyStore{Store: tx, f: f}); err != nil {
			return err
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.failCommit {
			return ErrInjected
		}
		return nil
	})
}

type faultyStore struct {
	cache.Store
	f *FaultyBackend
}

func (s faultyStore) PutPage(ctx context.Context, p *models.Page) error {
	if s.f.fails("PutPage") {
		return ErrInjected
	}
	return s.Store.PutPage(ctx, p)
}

func (s faultyStore) DeletePage(ctx context.Context, word string) error {
	if s.f.fails("DeletePage") {
		return ErrInjected
	}
	return s.Store.DeletePage(ctx, word)
}

func (s faultyStore) RenameRows(ctx context.Context, oldWord, newWord string) error {
	if s.f.fails("RenameRows") {
		return ErrInjected
	}
	return s.Store.RenameRows(ctx, oldWord, newWord)
}

func (s faultyStore) DeleteRows(ctx context.Context, word string) error {
	if s.f.fails("DeleteRows") {
		return ErrInjected
	}
	return s.Store.DeleteRows(ctx, word)
}

func (s faultyStore) PutDataBlock(ctx context.Context, row *cache.DataBlockRow) error {
	if s.f.fails("PutDataBlock") {
		return ErrInjected
	}
	return s.Store.PutDataBlock(ctx, row)
}
