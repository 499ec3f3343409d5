package models

// TermSource says where a match term was derived from.
type TermSource int

const (
	SourceWord TermSource = iota
	SourceProperties
	SourceContent
)

func (s TermSource) String() string {
	switch s {
	case SourceWord:
		return "word"
	case SourceProperties:
		return "properties"
	}
	return "content"
}

// MatchTerm is an alternate string that resolves to Word.
type MatchTerm struct {
	Term          string     `json:"term"`
	Word          string     `json:"word"`
	Source        TermSource `json:"source"`
	ExplicitAlias bool       `json:"explicit_alias"`
	// LinkTarget terms take part in link resolution.
	LinkTarget bool `json:"link_target"`
	// SyncManaged terms are maintained synchronously by the engine and
	// survive the asynchronous metadata refresh.
	SyncManaged  bool `json:"sync_managed"`
	FirstCharPos int  `json:"first_char_pos"`
	CharLength   int  `json:"char_length"`
}

// Legacy column encoding of the match term type.
const (
	bitFromWord       = 1
	bitFromProperties = 2
	bitFromContent    = 4
	bitExplicitAlias  = 8
	bitAsLink         = 16
	bitSyncUpdate     = 32
)

// TypeBits encodes the flags for storage in an integer column.
func (m MatchTerm) TypeBits() int {
	var b int
	switch m.Source {
	case SourceWord:
		b |= bitFromWord
	case SourceProperties:
		b |= bitFromProperties
	case SourceContent:
		b |= bitFromContent
	}
	if m.ExplicitAlias {
		b |= bitExplicitAlias
	}
	if m.LinkTarget {
		b |= bitAsLink
	}
	if m.SyncManaged {
		b |= bitSyncUpdate
	}
	return b
}

// SetTypeBits decodes a stored integer column into the flag fields.
func (m *MatchTerm) SetTypeBits(b int) {
	switch {
	case b&bitFromProperties != 0:
		m.Source = SourceProperties
	case b&bitFromContent != 0:
		m.Source = SourceContent
	default:
		m.Source = SourceWord
	}
	m.ExplicitAlias = b&bitExplicitAlias != 0
	m.LinkTarget = b&bitAsLink != 0
	m.SyncManaged = b&bitSyncUpdate != 0
}

// TypeBitsLinkTarget and TypeBitsSyncUpdate are exported for SQL predicates.
const (
	TypeBitsLinkTarget = bitAsLink
	TypeBitsSyncUpdate = bitSyncUpdate
)

// SelfTerm is the synchronously managed match term for a page's own name.
func SelfTerm(word string) MatchTerm {
	return MatchTerm{
		Term:         word,
		Word:         word,
		Source:       SourceWord,
		LinkTarget:   true,
		SyncManaged:  true,
		FirstCharPos: -1,
		CharLength:   -1,
	}
}
