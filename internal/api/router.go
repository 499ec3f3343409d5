package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/wikistore/internal/pageservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *pageservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)
	bh := NewBlockHandler(svc.Wiki())

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Pages.
	r.Get("/pages", h.ListPages)
	r.Post("/pages", h.CreatePage)
	r.Get("/pages/*", h.GetPage)
	r.Put("/pages/*", h.UpdatePage)
	r.Delete("/pages/*", h.DeletePage)
	r.Post("/rename", h.RenamePage)

	// Relations and link resolution.
	r.Get("/backlinks/*", h.Backlinks)
	r.Get("/children/*", h.Children)
	r.Get("/graph", h.Graph)
	r.Get("/graph/parentless", h.Parentless)
	r.Get("/graph/undefined", h.Undefined)
	r.Get("/links", h.Links)
	r.Get("/resolve/*", h.Resolve)

	// Properties and todos.
	r.Get("/properties", h.PropertyKeys)
	r.Get("/properties/global", h.GlobalProperties)
	r.Get("/properties/{key}/values", h.PropertyValues)
	r.Get("/properties/{key}/words", h.WordsWithProperty)
	r.Get("/todos", h.Todos)

	// Data blocks.
	r.Get("/blocks", bh.List)
	r.Get("/blocks/*", bh.Get)
	r.Put("/blocks/*", bh.Put)
	r.Delete("/blocks/*", bh.Delete)

	r.Get("/stats", h.Stats)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
