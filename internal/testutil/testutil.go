// Package testutil provides shared helpers for opening wikis in tests.
package testutil

import (
	"context"
	"testing"

	"github.com/starford/wikistore/internal/wikidata"
)

// Backends lists the cache engines that behaviour tests run against.
var Backends = []string{wikidata.BackendSQLite, wikidata.BackendLite}

// RootWord is the root page of wikis opened by TestWiki.
const RootWord = "WikiHome"

// TestWiki opens a writable wiki on backend in a temporary directory. The
// wiki is closed when the test ends.
func TestWiki(t *testing.T, backend string, opts ...wikidata.Option) *wikidata.WikiData {
	t.Helper()
	cfg := wikidata.Config{
		DataDir:  t.TempDir(),
		RootWord: RootWord,
		Backend:  backend,
	}
	return OpenWiki(t, cfg, opts...)
}

// OpenWiki opens cfg and closes it when the test ends.
func OpenWiki(t *testing.T, cfg wikidata.Config, opts ...wikidata.Option) *wikidata.WikiData {
	t.Helper()
	wd, err := wikidata.Open(context.Background(), cfg, opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { wd.Close() })
	return wd
}

// EachBackend runs fn as a subtest per cache engine.
func EachBackend(t *testing.T, fn func(t *testing.T, backend string)) {
	t.Helper()
	for _, b := range Backends {
		t.Run(b, func(t *testing.T) { fn(t, b) })
	}
}
