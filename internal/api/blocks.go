package api

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/starford/wikistore/internal/models"
	"github.com/starford/wikistore/internal/wikidata"
)

const maxBlockBytes = 50 << 20 // 50 MB

// BlockHandler serves and stores data blocks.
type BlockHandler struct {
	wd *wikidata.WikiData
}

// NewBlockHandler creates a handler over the data blocks of wd.
func NewBlockHandler(wd *wikidata.WikiData) *BlockHandler {
	return &BlockHandler{wd: wd}
}

// List handles GET /api/blocks.
//
//	@Summary		List data block names
//	@Tags			blocks
//	@Produce		json
//	@Param			prefix	query		string	false	"Only names starting with prefix"
//	@Success		200		{object}	ValuesResponse
//	@Security		BearerAuth
//	@Router			/blocks [get]
func (h *BlockHandler) List(w http.ResponseWriter, r *http.Request) {
	names, err := h.wd.GetDataBlockUnifNamesStartingWith(r.Context(), r.URL.Query().Get("prefix"))
	if err != nil {
		writeError(w, err, "list blocks failed")
		return
	}
	writeJSON(w, http.StatusOK, ValuesResponse{Values: nonNil(names)})
}

// Get handles GET /api/blocks/*. The payload is returned as-is.
//
//	@Summary		Read a data block
//	@Tags			blocks
//	@Produce		octet-stream
//	@Param			name	path		string	true	"Block name"
//	@Success		200		{file}		binary
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/blocks/{name} [get]
func (h *BlockHandler) Get(w http.ResponseWriter, r *http.Request) {
	name := wildcardParam(r)
	data, err := h.wd.RetrieveDataBlock(r.Context(), name)
	if err != nil {
		writeError(w, err, "get block failed", slog.String("name", name))
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Put handles PUT /api/blocks/* with the raw payload as body.
//
//	@Summary		Store a data block
//	@Tags			blocks
//	@Accept			octet-stream
//	@Produce		json
//	@Param			name		path		string	true	"Block name"
//	@Param			placement	query		string	false	"Placement of a new block"	Enums(intern, extern)
//	@Success		201			{object}	BlockStoredResponse
//	@Failure		400			{object}	errResponse
//	@Failure		403			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/blocks/{name} [put]
func (h *BlockHandler) Put(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBlockBytes)
	name := wildcardParam(r)
	if name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("name is required"))
		return
	}
	hint := models.Intern
	switch r.URL.Query().Get("placement") {
	case "", "intern":
	case "extern":
		hint = models.Extern
	default:
		writeJSON(w, http.StatusBadRequest, errorBody("placement must be intern or extern"))
		return
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("payload too large or unreadable"))
		return
	}
	if err := h.wd.StoreDataBlock(r.Context(), name, data, hint); err != nil {
		writeError(w, err, "store block failed", slog.String("name", name))
		return
	}
	writeJSON(w, http.StatusCreated, BlockStoredResponse{Name: name, Size: len(data)})
}

// Delete handles DELETE /api/blocks/*.
//
//	@Summary		Delete a data block
//	@Tags			blocks
//	@Param			name	path	string	true	"Block name"
//	@Success		204		"Block deleted"
//	@Security		BearerAuth
//	@Router			/blocks/{name} [delete]
func (h *BlockHandler) Delete(w http.ResponseWriter, r *http.Request) {
	name := wildcardParam(r)
	if err := h.wd.DeleteDataBlock(r.Context(), name); err != nil {
		writeError(w, err, "delete block failed", slog.String("name", name))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
