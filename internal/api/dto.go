package api

import (
	"github.com/starford/wikistore/internal/models"
	"github.com/starford/wikistore/internal/pageservice"
)

// CreatePageRequest is the request body for creating a page.
type CreatePageRequest struct {
	Word    string `json:"word" example:"WikiHome" validate:"required"`
	Content string `json:"content" example:"# Welcome\nSee [[Help]]." validate:"required"`
}

// UpdatePageRequest is the request body for saving a page.
type UpdatePageRequest struct {
	Content string `json:"content" example:"# Updated\nContent" validate:"required"`
}

// RenameRequest is the request body for renaming a page.
type RenameRequest struct {
	From string `json:"from" example:"Draft" validate:"required"`
	To   string `json:"to" example:"Final" validate:"required"`
}

// PageDetail is the full page response type (aliased from the domain layer).
type PageDetail = pageservice.PageDetail

// WordListResponse wraps a list of page names.
type WordListResponse struct {
	Words []string `json:"words" validate:"required"`
}

// ChildrenResponse wraps the outgoing links of a page.
type ChildrenResponse struct {
	Children []models.ChildRelation `json:"children" validate:"required"`
}

// LinksResponse wraps link completion candidates.
type LinksResponse struct {
	Links []models.MatchTerm `json:"links" validate:"required"`
}

// ResolveResponse names the page a link target resolves to.
type ResolveResponse struct {
	Term string `json:"term" example:"Bob" validate:"required"`
	Word string `json:"word" example:"Robert" validate:"required"`
}

// TodosResponse wraps todo entries.
type TodosResponse struct {
	Todos []models.Todo `json:"todos" validate:"required"`
}

// ValuesResponse wraps distinct property values or keys.
type ValuesResponse struct {
	Values []string `json:"values" validate:"required"`
}

// GraphResponse wraps the link graph.
type GraphResponse struct {
	Nodes []pageservice.GraphNode `json:"nodes" validate:"required"`
	Links []pageservice.GraphLink `json:"links" validate:"required"`
}

// BlockStoredResponse is returned after a data block was stored.
type BlockStoredResponse struct {
	Name string `json:"name" example:"images/logo" validate:"required"`
	Size int    `json:"size" example:"12345" validate:"required"`
}

// StatsResponse reports row counts of the cache.
type StatsResponse struct {
	Backend     string `json:"backend" example:"sqlite"`
	ReadOnly    bool   `json:"read_only"`
	Pages       int    `json:"pages"`
	Relations   int    `json:"relations"`
	Attributes  int    `json:"attributes"`
	Todos       int    `json:"todos"`
	MatchTerms  int    `json:"match_terms"`
	DataBlocks  int    `json:"data_blocks"`
	InternBytes int64  `json:"intern_bytes"`
}
