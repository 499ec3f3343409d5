// Package pageservice combines the wiki store and the indexer into the
// page-level operations used by the HTTP API and the MCP server.
package pageservice

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/starford/wikistore/internal/apperr"
	"github.com/starford/wikistore/internal/cache"
	"github.com/starford/wikistore/internal/indexer"
	"github.com/starford/wikistore/internal/models"
	"github.com/starford/wikistore/internal/wikidata"
)

// PageDetail is the full representation of a page.
type PageDetail struct {
	Word       string                 `json:"word"`
	Content    string                 `json:"content"`
	ETag       string                 `json:"etag"`
	Created    time.Time              `json:"created"`
	Modified   time.Time              `json:"modified"`
	ReadOnly   bool                   `json:"read_only"`
	State      string                 `json:"metadata_state"`
	Properties map[string][]string    `json:"properties"`
	Children   []models.ChildRelation `json:"children"`
	Parents    []string               `json:"parents"`
	Todos      []models.Todo          `json:"todos"`
}

// GraphNode is a page in the link graph.
type GraphNode struct {
	ID       string    `json:"id"`
	Modified time.Time `json:"modified"`
}

// GraphLink is a resolved link between two pages.
type GraphLink struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Service coordinates the wiki store and the indexer.
type Service struct {
	wd *wikidata.WikiData
	ix *indexer.Indexer
}

// NewService creates a new page service.
func NewService(wd *wikidata.WikiData, ix *indexer.Indexer) *Service {
	return &Service{wd: wd, ix: ix}
}

// Wiki returns the underlying store.
func (s *Service) Wiki() *wikidata.WikiData { return s.wd }

// GetPage reads a page and enriches it with its derived metadata.
func (s *Service) GetPage(ctx context.Context, word string) (*PageDetail, error) {
	text, err := s.wd.GetContent(ctx, word)
	if err != nil {
		return nil, err
	}
	return s.buildPageDetail(ctx, word, text)
}

// CreatePage stores a page that must not exist yet and indexes it.
func (s *Service) CreatePage(ctx context.Context, word, content string) (*PageDetail, error) {
	ok, err := s.wd.Exists(ctx, word)
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, apperr.ErrNameCollision
	}
	return s.store(ctx, word, content)
}

// SavePage stores content under word, creating the page when needed.
// A non-empty ifMatch must equal the ETag of the current content.
func (s *Service) SavePage(ctx context.Context, word, content, ifMatch string) (*PageDetail, error) {
	if ifMatch != "" {
		current, err := s.wd.GetContent(ctx, word)
		if err != nil {
			return nil, err
		}
		if ETag(current) != ifMatch {
			return nil, apperr.ErrConflict
		}
	}
	return s.store(ctx, word, content)
}

func (s *Service) store(ctx context.Context, word, content string) (*PageDetail, error) {
	if err := s.wd.SetContent(ctx, word, content); err != nil {
		return nil, err
	}
	if err := s.ix.Refresh(ctx, word); err != nil {
		return nil, err
	}
	return s.buildPageDetail(ctx, word, content)
}

// RenamePage moves a page and its metadata to a new word.
func (s *Service) RenamePage(ctx context.Context, oldWord, newWord string) (*PageDetail, error) {
	if err := s.wd.RenameWord(ctx, oldWord, newWord); err != nil {
		return nil, err
	}
	return s.GetPage(ctx, newWord)
}

// DeletePage removes a page with its file and metadata.
func (s *Service) DeletePage(ctx context.Context, word string) error {
	ok, err := s.wd.Exists(ctx, word)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.ErrNotFound
	}
	return s.wd.DeleteWord(ctx, word)
}

// ListPages returns page names, filtered by prefix or substring when given.
func (s *Service) ListPages(ctx context.Context, prefix, contains string) ([]string, error) {
	var (
		words []string
		err   error
	)
	switch {
	case prefix != "":
		words, err = s.wd.GetWordsStartingWith(ctx, prefix)
	case contains != "":
		words, err = s.wd.GetWordsContaining(ctx, contains)
	default:
		words, err = s.wd.GetAllWords(ctx)
	}
	return nonNilSlice(words), err
}

// Backlinks returns the pages linking to word.
func (s *Service) Backlinks(ctx context.Context, word string) ([]string, error) {
	parents, err := s.wd.GetParentRelationships(ctx, word)
	return nonNilSlice(parents), err
}

// Graph returns every page and every link that resolves to a page.
func (s *Service) Graph(ctx context.Context) ([]GraphNode, []GraphLink, error) {
	words, err := s.wd.GetAllWords(ctx)
	if err != nil {
		return nil, nil, err
	}
	nodes := make([]GraphNode, 0, len(words))
	links := []GraphLink{}
	for _, word := range words {
		page, err := s.wd.GetPage(ctx, word)
		if err != nil {
			return nil, nil, err
		}
		nodes = append(nodes, GraphNode{ID: word, Modified: page.Modified})

		children, err := s.wd.GetChildRelationships(ctx, word, cache.ChildQuery{ExistingOnly: true})
		if err != nil {
			return nil, nil, err
		}
		seen := make(map[string]struct{}, len(children))
		for _, c := range children {
			target, err := s.wd.GetUnAliasedWikiWord(ctx, c.Target)
			if err != nil {
				continue
			}
			if _, dup := seen[target]; dup {
				continue
			}
			seen[target] = struct{}{}
			links = append(links, GraphLink{Source: word, Target: target})
		}
	}
	return nodes, links, nil
}

// ETag fingerprints page content for optimistic concurrency.
func ETag(content string) string {
	h := sha256.Sum256([]byte(content))
	return hex.EncodeToString(h[:])
}

func (s *Service) buildPageDetail(ctx context.Context, word, text string) (*PageDetail, error) {
	page, err := s.wd.GetPage(ctx, word)
	if err != nil {
		return nil, err
	}
	attrs, err := s.wd.GetPropertiesForWord(ctx, word)
	if err != nil {
		return nil, err
	}
	props := make(map[string][]string, len(attrs))
	for _, a := range attrs {
		props[a.Key] = append(props[a.Key], a.Value)
	}
	children, err := s.wd.GetChildRelationships(ctx, word, cache.ChildQuery{Order: cache.OrderByPosition})
	if err != nil {
		return nil, err
	}
	parents, err := s.wd.GetParentRelationships(ctx, word)
	if err != nil {
		return nil, err
	}
	todos, err := s.wd.GetTodosForWord(ctx, word)
	if err != nil {
		return nil, err
	}
	return &PageDetail{
		Word:       word,
		Content:    text,
		ETag:       ETag(text),
		Created:    page.Created,
		Modified:   page.Modified,
		ReadOnly:   page.ReadOnly,
		State:      page.State.String(),
		Properties: props,
		Children:   nonNilSlice(children),
		Parents:    nonNilSlice(parents),
		Todos:      nonNilSlice(todos),
	}, nil
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
