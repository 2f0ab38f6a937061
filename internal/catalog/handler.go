// internal/catalog/handler.go
package catalog

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"libraloans/internal/http/response"
)

type Handler struct {
	service Service
	logger  *slog.Logger
}

func NewHandler(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger.With("component", "catalog")}
}

// HandleSearch serves GET /api/books/search?query=. A blank query lists the
// whole catalog.
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	term := strings.TrimSpace(r.URL.Query().Get("query"))

	var (
		books []Book
		err   error
	)
	if term == "" {
		books, err = h.service.All(r.Context())
	} else {
		books, err = h.service.Search(r.Context(), term)
	}
	if err != nil {
		response.HandleError(w, err, h.logger)
		return
	}

	h.logger.Debug("books searched", "query", term, "count", len(books))
	response.Success(w, books, h.logger)
}

// HandleGetBook serves GET /api/books/{id}.
func (h *Handler) HandleGetBook(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "invalid book ID", h.logger)
		return
	}

	book, err := h.service.FindByID(r.Context(), id)
	if err != nil {
		response.HandleError(w, err, h.logger)
		return
	}
	if book == nil {
		response.NotFound(w, "book not found", h.logger)
		return
	}

	response.Success(w, book, h.logger)
}
