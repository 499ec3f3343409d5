package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/wikistore/internal/cache"
	"github.com/starford/wikistore/internal/models"
	"github.com/starford/wikistore/internal/pageservice"
)

const maxPageBytes = 10 << 20

// Handler holds API route handlers.
type Handler struct {
	svc *pageservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *pageservice.Service) *Handler {
	return &Handler{svc: svc}
}

// wildcardParam extracts the trailing wildcard of the route.
// Supports encoded slashes from OpenAPI clients (e.g. Projects%2FAlpha).
func wildcardParam(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// ListPages handles GET /api/pages.
//
//	@Summary		List pages, optionally filtered
//	@Tags			pages
//	@Produce		json
//	@Param			prefix		query		string	false	"Only words starting with prefix"
//	@Param			contains	query		string	false	"Only words containing the substring"
//	@Success		200			{object}	WordListResponse
//	@Security		BearerAuth
//	@Router			/pages [get]
func (h *Handler) ListPages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	words, err := h.svc.ListPages(r.Context(), q.Get("prefix"), q.Get("contains"))
	if err != nil {
		writeError(w, err, "list pages failed")
		return
	}
	writeJSON(w, http.StatusOK, WordListResponse{Words: words})
}

// GetPage handles GET /api/pages/*.
//
//	@Summary		Get a single page by word
//	@Tags			pages
//	@Produce		json
//	@Param			word	path		string	true	"Wiki word"
//	@Success		200		{object}	PageDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/pages/{word} [get]
func (h *Handler) GetPage(w http.ResponseWriter, r *http.Request) {
	word := wildcardParam(r)
	if word == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("word is required"))
		return
	}
	page, err := h.svc.GetPage(r.Context(), word)
	if err != nil {
		writeError(w, err, "get page failed", slog.String("word", word))
		return
	}
	w.Header().Set("ETag", `"`+page.ETag+`"`)
	writeJSON(w, http.StatusOK, page)
}

// CreatePage handles POST /api/pages.
//
//	@Summary		Create a new page
//	@Tags			pages
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreatePageRequest	true	"Page to create"
//	@Success		201		{object}	PageDetail
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/pages [post]
func (h *Handler) CreatePage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxPageBytes)
	var req CreatePageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Word == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("word is required"))
		return
	}
	page, err := h.svc.CreatePage(r.Context(), req.Word, req.Content)
	if err != nil {
		writeError(w, err, "create page failed", slog.String("word", req.Word))
		return
	}
	writeJSON(w, http.StatusCreated, page)
}

// UpdatePage handles PUT /api/pages/*.
//
//	@Summary		Save a page, creating it when missing
//	@Tags			pages
//	@Accept			json
//	@Produce		json
//	@Param			word		path		string				true	"Wiki word"
//	@Param			If-Match	header		string				false	"ETag of the content being replaced"
//	@Param			body		body		UpdatePageRequest	true	"New content"
//	@Success		200			{object}	PageDetail
//	@Failure		400			{object}	errResponse
//	@Failure		403			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/pages/{word} [put]
func (h *Handler) UpdatePage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxPageBytes)
	word := wildcardParam(r)
	if word == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("word is required"))
		return
	}
	var req UpdatePageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	// Strip surrounding quotes if present (standard ETag format).
	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)

	page, err := h.svc.SavePage(r.Context(), word, req.Content, ifMatch)
	if err != nil {
		writeError(w, err, "update page failed", slog.String("word", word))
		return
	}
	w.Header().Set("ETag", `"`+page.ETag+`"`)
	writeJSON(w, http.StatusOK, page)
}

// DeletePage handles DELETE /api/pages/*.
//
//	@Summary		Delete a page
//	@Tags			pages
//	@Param			word	path	string	true	"Wiki word"
//	@Success		204		"Page deleted"
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/pages/{word} [delete]
func (h *Handler) DeletePage(w http.ResponseWriter, r *http.Request) {
	word := wildcardParam(r)
	if word == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("word is required"))
		return
	}
	if err := h.svc.DeletePage(r.Context(), word); err != nil {
		writeError(w, err, "delete page failed", slog.String("word", word))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RenamePage handles POST /api/rename.
//
//	@Summary		Rename a page with its metadata
//	@Tags			pages
//	@Accept			json
//	@Produce		json
//	@Param			body	body		RenameRequest	true	"Old and new word"
//	@Success		200		{object}	PageDetail
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/rename [post]
func (h *Handler) RenamePage(w http.ResponseWriter, r *http.Request) {
	var req RenameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.From == "" || req.To == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("from and to are required"))
		return
	}
	page, err := h.svc.RenamePage(r.Context(), req.From, req.To)
	if err != nil {
		writeError(w, err, "rename page failed", slog.String("from", req.From), slog.String("to", req.To))
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// Backlinks handles GET /api/backlinks/*.
//
//	@Summary		Pages linking to a page
//	@Tags			graph
//	@Produce		json
//	@Param			word	path		string	true	"Wiki word"
//	@Success		200		{object}	WordListResponse
//	@Security		BearerAuth
//	@Router			/backlinks/{word} [get]
func (h *Handler) Backlinks(w http.ResponseWriter, r *http.Request) {
	word := wildcardParam(r)
	words, err := h.svc.Backlinks(r.Context(), word)
	if err != nil {
		writeError(w, err, "backlinks failed", slog.String("word", word))
		return
	}
	writeJSON(w, http.StatusOK, WordListResponse{Words: words})
}

// Children handles GET /api/children/*.
//
//	@Summary		Outgoing links of a page
//	@Tags			graph
//	@Produce		json
//	@Param			word		path		string	true	"Wiki word"
//	@Param			existing	query		bool	false	"Only links resolving to a page"
//	@Param			self		query		bool	false	"Keep links to the page itself"
//	@Param			order		query		string	false	"Sort order"	Enums(target, position, modified)
//	@Success		200			{object}	ChildrenResponse
//	@Security		BearerAuth
//	@Router			/children/{word} [get]
func (h *Handler) Children(w http.ResponseWriter, r *http.Request) {
	word := wildcardParam(r)
	q := r.URL.Query()
	existing, _ := strconv.ParseBool(q.Get("existing"))
	self, _ := strconv.ParseBool(q.Get("self"))
	cq := cache.ChildQuery{ExistingOnly: existing, IncludeSelf: self}
	switch q.Get("order") {
	case "position":
		cq.Order = cache.OrderByPosition
	case "modified":
		cq.Order = cache.OrderByModified
	}
	children, err := h.svc.Wiki().GetChildRelationships(r.Context(), word, cq)
	if err != nil {
		writeError(w, err, "children failed", slog.String("word", word))
		return
	}
	writeJSON(w, http.StatusOK, ChildrenResponse{Children: nonNil(children)})
}

// Graph handles GET /api/graph.
//
//	@Summary		Get the resolved link graph
//	@Tags			graph
//	@Produce		json
//	@Success		200	{object}	GraphResponse
//	@Security		BearerAuth
//	@Router			/graph [get]
func (h *Handler) Graph(w http.ResponseWriter, r *http.Request) {
	nodes, links, err := h.svc.Graph(r.Context())
	if err != nil {
		writeError(w, err, "graph failed")
		return
	}
	writeJSON(w, http.StatusOK, GraphResponse{Nodes: nodes, Links: links})
}

// Parentless handles GET /api/graph/parentless.
//
//	@Summary		Pages nothing links to
//	@Tags			graph
//	@Produce		json
//	@Success		200	{object}	WordListResponse
//	@Security		BearerAuth
//	@Router			/graph/parentless [get]
func (h *Handler) Parentless(w http.ResponseWriter, r *http.Request) {
	words, err := h.svc.Wiki().GetParentlessWikiWords(r.Context())
	if err != nil {
		writeError(w, err, "parentless failed")
		return
	}
	writeJSON(w, http.StatusOK, WordListResponse{Words: nonNil(words)})
}

// Undefined handles GET /api/graph/undefined.
//
//	@Summary		Link targets that resolve to no page
//	@Tags			graph
//	@Produce		json
//	@Success		200	{object}	WordListResponse
//	@Security		BearerAuth
//	@Router			/graph/undefined [get]
func (h *Handler) Undefined(w http.ResponseWriter, r *http.Request) {
	words, err := h.svc.Wiki().GetUndefinedWords(r.Context())
	if err != nil {
		writeError(w, err, "undefined words failed")
		return
	}
	writeJSON(w, http.StatusOK, WordListResponse{Words: nonNil(words)})
}

// Links handles GET /api/links.
//
//	@Summary		Link completion candidates
//	@Tags			graph
//	@Produce		json
//	@Param			prefix	query		string	true	"Typed text"
//	@Success		200		{object}	LinksResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/links [get]
func (h *Handler) Links(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	if prefix == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'prefix' is required"))
		return
	}
	links, err := h.svc.Wiki().GetWikiLinksStartingWith(r.Context(), prefix)
	if err != nil {
		writeError(w, err, "links failed", slog.String("prefix", prefix))
		return
	}
	writeJSON(w, http.StatusOK, LinksResponse{Links: nonNil(links)})
}

// Resolve handles GET /api/resolve/*.
//
//	@Summary		Resolve a link target to its page
//	@Tags			graph
//	@Produce		json
//	@Param			term	path		string	true	"Link text"
//	@Success		200		{object}	ResolveResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/resolve/{term} [get]
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	term := wildcardParam(r)
	word, err := h.svc.Wiki().GetUnAliasedWikiWord(r.Context(), term)
	if err != nil {
		writeError(w, err, "resolve failed", slog.String("term", term))
		return
	}
	writeJSON(w, http.StatusOK, ResolveResponse{Term: term, Word: word})
}

// PropertyKeys handles GET /api/properties.
//
//	@Summary		List property keys
//	@Tags			properties
//	@Produce		json
//	@Param			prefix	query		string	false	"Only keys starting with prefix"
//	@Success		200		{object}	ValuesResponse
//	@Security		BearerAuth
//	@Router			/properties [get]
func (h *Handler) PropertyKeys(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	keys, err := h.svc.Wiki().GetPropertyKeysStartingWith(r.Context(), prefix)
	if err != nil {
		writeError(w, err, "property keys failed")
		return
	}
	writeJSON(w, http.StatusOK, ValuesResponse{Values: nonNil(keys)})
}

// GlobalProperties handles GET /api/properties/global.
//
//	@Summary		Wiki-wide properties
//	@Tags			properties
//	@Produce		json
//	@Success		200	{object}	map[string]string
//	@Security		BearerAuth
//	@Router			/properties/global [get]
func (h *Handler) GlobalProperties(w http.ResponseWriter, r *http.Request) {
	props, err := h.svc.Wiki().GetGlobalProperties(r.Context())
	if err != nil {
		writeError(w, err, "global properties failed")
		return
	}
	writeJSON(w, http.StatusOK, props)
}

// PropertyValues handles GET /api/properties/{key}/values.
//
//	@Summary		Distinct values of a property
//	@Tags			properties
//	@Produce		json
//	@Param			key	path		string	true	"Property key"
//	@Success		200	{object}	ValuesResponse
//	@Security		BearerAuth
//	@Router			/properties/{key}/values [get]
func (h *Handler) PropertyValues(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	values, err := h.svc.Wiki().GetDistinctPropertyValues(r.Context(), key)
	if err != nil {
		writeError(w, err, "property values failed", slog.String("key", key))
		return
	}
	writeJSON(w, http.StatusOK, ValuesResponse{Values: nonNil(values)})
}

// WordsWithProperty handles GET /api/properties/{key}/words.
//
//	@Summary		Pages carrying a property value
//	@Tags			properties
//	@Produce		json
//	@Param			key		path		string	true	"Property key"
//	@Param			value	query		string	true	"Property value"
//	@Success		200		{object}	WordListResponse
//	@Security		BearerAuth
//	@Router			/properties/{key}/words [get]
func (h *Handler) WordsWithProperty(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	value := r.URL.Query().Get("value")
	words, err := h.svc.Wiki().GetWordsWithPropertyValue(r.Context(), key, value)
	if err != nil {
		writeError(w, err, "words with property failed", slog.String("key", key))
		return
	}
	writeJSON(w, http.StatusOK, WordListResponse{Words: nonNil(words)})
}

// Todos handles GET /api/todos.
//
//	@Summary		Todo entries of all pages or of one page
//	@Tags			properties
//	@Produce		json
//	@Param			word	query		string	false	"Only todos of this page"
//	@Success		200		{object}	TodosResponse
//	@Security		BearerAuth
//	@Router			/todos [get]
func (h *Handler) Todos(w http.ResponseWriter, r *http.Request) {
	wd := h.svc.Wiki()
	var err error
	var todos []models.Todo
	if word := r.URL.Query().Get("word"); word != "" {
		todos, err = wd.GetTodosForWord(r.Context(), word)
	} else {
		todos, err = wd.GetTodos(r.Context())
	}
	if err != nil {
		writeError(w, err, "todos failed")
		return
	}
	writeJSON(w, http.StatusOK, TodosResponse{Todos: nonNil(todos)})
}

// Stats handles GET /api/stats.
//
//	@Summary		Cache statistics
//	@Tags			maintenance
//	@Produce		json
//	@Success		200	{object}	StatsResponse
//	@Security		BearerAuth
//	@Router			/stats [get]
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	wd := h.svc.Wiki()
	st, err := wd.Stats(r.Context())
	if err != nil {
		writeError(w, err, "stats failed")
		return
	}
	writeJSON(w, http.StatusOK, StatsResponse{
		Backend:     wd.Config().Backend,
		ReadOnly:    wd.ReadOnly(),
		Pages:       st.Pages,
		Relations:   st.Relations,
		Attributes:  st.Attributes,
		Todos:       st.Todos,
		MatchTerms:  st.MatchTerms,
		DataBlocks:  st.DataBlocks,
		InternBytes: st.InternBytes,
	})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
