// Package models defines the domain types shared by the wiki storage engine.
package models

import "time"

// MetadataState records how much derived data of a page is in sync with its content.
type MetadataState int

const (
	// StateDirty means content changed since the last metadata refresh.
	StateDirty MetadataState = iota
	// StatePropsProcessed means attributes and match terms are current,
	// relations and todos are not.
	StatePropsProcessed
	// StateUpToDate means all derived metadata matches the content.
	StateUpToDate
)

func (s MetadataState) String() string {
	switch s {
	case StateDirty:
		return "dirty"
	case StatePropsProcessed:
		return "props_processed"
	case StateUpToDate:
		return "up_to_date"
	}
	return "unknown"
}

// ParseMetadataState maps the String form back to a state.
func ParseMetadataState(s string) (MetadataState, bool) {
	for _, st := range []MetadataState{StateDirty, StatePropsProcessed, StateUpToDate} {
		if st.String() == s {
			return st, true
		}
	}
	return 0, false
}

// Page is a row of the page index.
type Page struct {
	Word          string        `json:"word"`
	Created       time.Time     `json:"created"`
	Modified      time.Time     `json:"modified"`
	Visited       time.Time     `json:"visited"`
	FilePath      string        `json:"file_path"`
	FilePathLower string        `json:"-"`
	Signature     []byte        `json:"-"`
	ReadOnly      bool          `json:"read_only"`
	State         MetadataState `json:"metadata_state"`
	Presentation  []byte        `json:"-"`
}

// Timestamps groups the three page timestamps.
type Timestamps struct {
	Modified time.Time `json:"modified"`
	Created  time.Time `json:"created"`
	Visited  time.Time `json:"visited"`
}

// TimeField selects one of the page timestamp columns.
type TimeField int

const (
	FieldModified TimeField = iota
	FieldCreated
	FieldVisited
)

// Relation is a directed literal-text link from Word to Target.
type Relation struct {
	Word         string `json:"word"`
	Target       string `json:"target"`
	FirstCharPos int    `json:"first_char_pos"`
}

// ChildRelation is one outgoing link of a page, optionally enriched with
// the modification time of the page it resolves to.
type ChildRelation struct {
	Target       string    `json:"target"`
	FirstCharPos int       `json:"first_char_pos"`
	Modified     time.Time `json:"modified,omitzero"`
	Defined      bool      `json:"defined"`
}

// Attribute is one key/value property of a page.
type Attribute struct {
	Word  string `json:"word"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

// GlobalPrefix marks attribute keys that describe the whole wiki.
const GlobalPrefix = "global."

// Todo is a task marker extracted from a page.
type Todo struct {
	Word  string `json:"word"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Placement selects where a data block payload lives.
type Placement int

const (
	// Intern stores the payload in the relational cache.
	Intern Placement = iota
	// Extern stores the payload in its own file next to the page files.
	Extern
)

func (p Placement) String() string {
	if p == Extern {
		return "extern"
	}
	return "intern"
}

// FormatStatus is the outcome of comparing a cache's format version with the engine.
type FormatStatus int

const (
	FormatUpToDate FormatStatus = iota
	FormatNeedsMigration
	FormatUnsupported
)

func (s FormatStatus) String() string {
	switch s {
	case FormatUpToDate:
		return "up_to_date"
	case FormatNeedsMigration:
		return "needs_migration"
	}
	return "unsupported"
}
