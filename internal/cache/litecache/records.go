package litecache

import (
	"maps"
	"time"

	"github.com/starford/wikistore/internal/models"
)

// Snapshot records. Field tags are the on-disk names; changing them needs a
// format step in migrations.go.

type pageRecord struct {
	Created       time.Time `msgpack:"created"`
	Modified      time.Time `msgpack:"modified"`
	Visited       time.Time `msgpack:"visited"`
	FilePath      string    `msgpack:"filepath"`
	FilePathLower string    `msgpack:"filepathlower,omitempty"`
	Signature     []byte    `msgpack:"signature,omitempty"`
	ReadOnly      bool      `msgpack:"readonly,omitempty"`
	State         int       `msgpack:"state"`
	Presentation  []byte    `msgpack:"presentation,omitempty"`
}

type relationRecord struct {
	Target       string `msgpack:"target"`
	FirstCharPos int    `msgpack:"pos"`
}

type pairRecord struct {
	Key   string `msgpack:"key"`
	Value string `msgpack:"value"`
}

type matchTermRecord struct {
	Term string `msgpack:"term"`
	// Type is the format 0 bitmask; later formats use the flag fields.
	Type          int  `msgpack:"type,omitempty"`
	Source        int  `msgpack:"source"`
	ExplicitAlias bool `msgpack:"alias,omitempty"`
	LinkTarget    bool `msgpack:"link,omitempty"`
	SyncManaged   bool `msgpack:"sync,omitempty"`
	FirstCharPos  int  `msgpack:"pos"`
	CharLength    int  `msgpack:"len"`
}

type blockRecord struct {
	Extern    bool   `msgpack:"extern,omitempty"`
	Data      []byte `msgpack:"data,omitempty"`
	FilePath  string `msgpack:"filepath,omitempty"`
	Signature []byte `msgpack:"signature,omitempty"`
}

// tables is one immutable generation of the cache. A transaction works on
// a copy whose maps are cloned before their first write; records and
// slices are replaced, never modified in place.
type tables struct {
	Settings   map[string]string            `msgpack:"settings"`
	Pages      map[string]pageRecord        `msgpack:"pages"`
	Relations  map[string][]relationRecord  `msgpack:"relations"`
	Attributes map[string][]pairRecord      `msgpack:"attributes"`
	Todos      map[string][]pairRecord      `msgpack:"todos"`
	MatchTerms map[string][]matchTermRecord `msgpack:"matchterms"`
	Blocks     map[string]blockRecord       `msgpack:"blocks"`
}

func newTables() *tables {
	t := &tables{}
	t.fill()
	return t
}

// fill replaces nil maps left by decoding an older snapshot.
func (t *tables) fill() {
	if t.Settings == nil {
		t.Settings = map[string]string{}
	}
	if t.Pages == nil {
		t.Pages = map[string]pageRecord{}
	}
	if t.Relations == nil {
		t.Relations = map[string][]relationRecord{}
	}
	if t.Attributes == nil {
		t.Attributes = map[string][]pairRecord{}
	}
	if t.Todos == nil {
		t.Todos = map[string][]pairRecord{}
	}
	if t.MatchTerms == nil {
		t.MatchTerms = map[string][]matchTermRecord{}
	}
	if t.Blocks == nil {
		t.Blocks = map[string]blockRecord{}
	}
}

type tableID int

const (
	tSettings tableID = iota
	tPages
	tRelations
	tAttributes
	tTodos
	tMatchTerms
	tBlocks
)

// own clones *m the first time a transaction writes to it.
func own[K comparable, V any](v *view, id tableID, m *map[K]V) map[K]V {
	if !v.owned[id] {
		*m = maps.Clone(*m)
		v.owned[id] = true
	}
	return *m
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

func (r pageRecord) page(word string) *models.Page {
	return &models.Page{
		Word:          word,
		Created:       r.Created,
		Modified:      r.Modified,
		Visited:       r.Visited,
		FilePath:      r.FilePath,
		FilePathLower: r.FilePathLower,
		Signature:     cloneBytes(r.Signature),
		ReadOnly:      r.ReadOnly,
		State:         models.MetadataState(r.State),
		Presentation:  cloneBytes(r.Presentation),
	}
}

func pageToRecord(p *models.Page) pageRecord {
	return pageRecord{
		Created:       p.Created,
		Modified:      p.Modified,
		Visited:       p.Visited,
		FilePath:      p.FilePath,
		FilePathLower: p.FilePathLower,
		Signature:     cloneBytes(p.Signature),
		ReadOnly:      p.ReadOnly,
		State:         int(p.State),
		Presentation:  cloneBytes(p.Presentation),
	}
}

func (r matchTermRecord) term(word string) models.MatchTerm {
	return models.MatchTerm{
		Term:          r.Term,
		Word:          word,
		Source:        models.TermSource(r.Source),
		ExplicitAlias: r.ExplicitAlias,
		LinkTarget:    r.LinkTarget,
		SyncManaged:   r.SyncManaged,
		FirstCharPos:  r.FirstCharPos,
		CharLength:    r.CharLength,
	}
}

func termToRecord(m models.MatchTerm) matchTermRecord {
	return matchTermRecord{
		Term:          m.Term,
		Source:        int(m.Source),
		ExplicitAlias: m.ExplicitAlias,
		LinkTarget:    m.LinkTarget,
		SyncManaged:   m.SyncManaged,
		FirstCharPos:  m.FirstCharPos,
		CharLength:    m.CharLength,
	}
}
