package wikidata

// EventKind names a committed change.
type EventKind string

const (
	EventPageSaved    EventKind = "page.saved"
	EventPageRenamed  EventKind = "page.renamed"
	EventPageDeleted  EventKind = "page.deleted"
	EventBlockStored  EventKind = "block.stored"
	EventBlockDeleted EventKind = "block.deleted"
	EventGraphUpdated EventKind = "graph.updated"
)

// Event describes a committed change. OldWord is set for renames, Name
// for data block events.
type Event struct {
	Kind    EventKind `json:"kind"`
	Word    string    `json:"word,omitempty"`
	OldWord string    `json:"old_word,omitempty"`
	Name    string    `json:"name,omitempty"`
}
