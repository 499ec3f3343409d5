package wikidata

import (
	"github.com/starford/wikistore/internal/blockstore"
	"github.com/starford/wikistore/internal/cache"
)

// WrapBackend replaces the cache engine of w with wrap(engine).
func WrapBackend(w *WikiData, wrap func(cache.Backend) cache.Backend) {
	w.backend = wrap(w.backend)
	w.blocks = blockstore.New(w.backend, w.files, w.cfg.pageNames(), w.logger)
}
