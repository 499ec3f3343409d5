// Package cache defines the relational cache contract. Engines live in
// subpackages; callers depend only on Store and Backend.
package cache

import (
	"context"
	"time"

	"github.com/starford/wikistore/internal/migrate"
	"github.com/starford/wikistore/internal/models"
)

// ChildOrder selects the ordering of ChildRelations results.
type ChildOrder int

const (
	OrderByTarget ChildOrder = iota
	OrderByPosition
	OrderByModified
)

// ChildQuery shapes a child-relation lookup.
type ChildQuery struct {
	// ExistingOnly drops targets that resolve to no page.
	ExistingOnly bool
	// IncludeSelf keeps links resolving to the page itself.
	IncludeSelf bool
	Order       ChildOrder
}

// DataBlockRow is a stored data block. Data is set for Intern rows;
// FilePath and Signature for Extern rows.
type DataBlockRow struct {
	Name      string
	Placement models.Placement
	Data      []byte
	FilePath  string
	Signature []byte
}

// Stats summarises table sizes.
type Stats struct {
	Pages       int
	Relations   int
	Attributes  int
	Todos       int
	MatchTerms  int
	DataBlocks  int
	InternBytes int64
}

// Store is the operation set of a relational cache. Every method may fail
// with apperr.ReadAccessError or apperr.WriteAccessError; lookups of absent
// rows fail with apperr.ErrNotFound.
type Store interface {
	// Page index.
	GetPage(ctx context.Context, word string) (*models.Page, error)
	PutPage(ctx context.Context, p *models.Page) error
	DeletePage(ctx context.Context, word string) error
	WordForFile(ctx context.Context, fileNameLower string) (string, error)
	AllWords(ctx context.Context) ([]string, error)
	WordsWithPrefix(ctx context.Context, prefix string) ([]string, error)
	WordsContaining(ctx context.Context, substr string) ([]string, error)
	FirstWord(ctx context.Context) (string, error)
	NextWord(ctx context.Context, after string) (string, error)
	WordsInState(ctx context.Context, state models.MetadataState) ([]string, error)
	TimeBounds(ctx context.Context, field models.TimeField) (minT, maxT time.Time, err error)
	WordsInTimeRange(ctx context.Context, field models.TimeField, from, to time.Time) ([]string, error)

	// RenameRows moves every relation, attribute, todo and match-term row
	// owned by oldWord to newWord, replacing any rows newWord already owned.
	// Rows naming oldWord as a target are untouched.
	RenameRows(ctx context.Context, oldWord, newWord string) error
	// DeleteRows removes every relation, attribute, todo and match-term row owned by word.
	DeleteRows(ctx context.Context, word string) error

	// Relations.
	ReplaceRelations(ctx context.Context, word string, rels []models.Relation) error
	ChildRelations(ctx context.Context, word string, q ChildQuery) ([]models.ChildRelation, error)
	ParentWords(ctx context.Context, word string) ([]string, error)
	ParentlessWords(ctx context.Context) ([]string, error)
	UndefinedWords(ctx context.Context) ([]string, error)

	// Attributes.
	ReplaceAttributes(ctx context.Context, word string, attrs []models.Attribute) error
	AttributesForWord(ctx context.Context, word string) ([]models.Attribute, error)
	AttributeKeys(ctx context.Context) ([]string, error)
	AttributeKeysWithPrefix(ctx context.Context, prefix string) ([]string, error)
	AttributeValues(ctx context.Context, key string) ([]string, error)
	GlobalAttributes(ctx context.Context) ([]models.Attribute, error)
	WordsWithAttribute(ctx context.Context, key, value string) ([]string, error)

	// Todos.
	ReplaceTodos(ctx context.Context, word string, todos []models.Todo) error
	AllTodos(ctx context.Context) ([]models.Todo, error)
	TodosForWord(ctx context.Context, word string) ([]models.Todo, error)

	// Match terms. ReplaceMatchTerms only touches the partition selected
	// by syncManaged.
	ReplaceMatchTerms(ctx context.Context, word string, terms []models.MatchTerm, syncManaged bool) error
	MatchTermsForWord(ctx context.Context, word string) ([]models.MatchTerm, error)
	LookupMatchTerm(ctx context.Context, term string, linkOnly bool) ([]models.MatchTerm, error)
	SearchMatchTerms(ctx context.Context, substr string, linkOnly bool) ([]models.MatchTerm, error)

	// Data blocks.
	GetDataBlock(ctx context.Context, name string) (*DataBlockRow, error)
	PutDataBlock(ctx context.Context, row *DataBlockRow) error
	DeleteDataBlock(ctx context.Context, name string) error
	DataBlockNamesWithPrefix(ctx context.Context, prefix string) ([]string, error)

	// Settings.
	Setting(ctx context.Context, key, def string) (string, error)
	SetSetting(ctx context.Context, key, value string) error

	Stats(ctx context.Context) (Stats, error)
}

// Backend is a relational cache engine.
type Backend interface {
	Store
	// InTx runs fn against a transactional view. Changes made through the
	// view are committed if fn returns nil and discarded otherwise.
	InTx(ctx context.Context, fn func(tx Store) error) error
	FormatStatus(ctx context.Context) (models.FormatStatus, string, error)
	Migrate(ctx context.Context, env migrate.Env) error
	// TestWrite reports whether the cache accepts writes.
	TestWrite(ctx context.Context) error
	Close() error
}

// Vacuumer is implemented by engines that can compact their storage.
type Vacuumer interface {
	Vacuum(ctx context.Context) error
}
