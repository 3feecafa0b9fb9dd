package book

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"bookcatalog/internal/httpx"
)

const (
	defaultPage  = 1
	defaultLimit = 10
)

type HTTPHandler struct {
	service *Service
}

func NewHTTPHandler(service *Service) *HTTPHandler {
	return &HTTPHandler{service: service}
}

// List handles GET /api/books
// @Summary List books
// @Description Page through the catalog in insertion order
// @Tags books
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Items per page" default(10)
// @Success 200 {array} Book
// @Failure 429 {object} httpx.ErrorResponse
// @Router /api/books [get]
func (h *HTTPHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	q := Query{
		Page:  intParam(query.Get("page"), defaultPage),
		Limit: intParam(query.Get("limit"), defaultLimit),
	}

	books, total, err := h.service.List(r.Context(), q)
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	httpx.WriteJSON(w, http.StatusOK, books)
}

// Create handles POST /api/books
// @Summary Create book
// @Description Add a book; title and author are required, other fields are stored as sent
// @Tags books
// @Accept json
// @Produce json
// @Success 201 {object} Book
// @Failure 400 {object} httpx.ErrorResponse
// @Failure 429 {object} httpx.ErrorResponse
// @Router /api/books [post]
func (h *HTTPHandler) Create(w http.ResponseWriter, r *http.Request) {
	fields, ok := decodeFields(w, r)
	if !ok {
		return
	}

	b, err := h.service.Create(r.Context(), fields)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			invalidBookData(w, verr.Fields)
			return
		}
		h.internalError(w, r, err)
		return
	}

	slog.InfoContext(r.Context(), "book created", slog.Int("id", b.ID))
	httpx.WriteJSON(w, http.StatusCreated, b)
}

// Update handles PUT /api/books/{id}
// @Summary Update book
// @Description Overwrite the supplied fields of a book, keeping the rest
// @Tags books
// @Accept json
// @Produce json
// @Param id path int true "Book ID"
// @Success 200 {object} Book
// @Failure 400 {object} httpx.ErrorResponse
// @Failure 404
// @Router /api/books/{id} [put]
func (h *HTTPHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.NotFound(w, r)
		return
	}

	// An unknown id wins over a bad body.
	if _, err := h.service.Get(r.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.internalError(w, r, err)
		return
	}

	fields, ok := decodeFields(w, r)
	if !ok {
		return
	}

	b, err := h.service.Update(r.Context(), id, fields)
	if err != nil {
		var verr *ValidationError
		switch {
		case errors.As(err, &verr):
			invalidBookData(w, verr.Fields)
		case errors.Is(err, ErrNotFound):
			w.WriteHeader(http.StatusNotFound)
		default:
			h.internalError(w, r, err)
		}
		return
	}

	httpx.WriteJSON(w, http.StatusOK, b)
}

// Delete handles DELETE /api/books/{id}
// @Summary Delete book
// @Description Remove a book and return its last contents
// @Tags books
// @Produce json
// @Param id path int true "Book ID"
// @Success 200 {object} Book
// @Failure 404
// @Router /api/books/{id} [delete]
func (h *HTTPHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.NotFound(w, r)
		return
	}

	b, err := h.service.Delete(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.internalError(w, r, err)
		return
	}

	slog.InfoContext(r.Context(), "book deleted", slog.Int("id", b.ID))
	httpx.WriteJSON(w, http.StatusOK, b)
}

func (h *HTTPHandler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	slog.ErrorContext(r.Context(), "book handler failed",
		slog.String("path", r.URL.Path),
		slog.String("request_id", httpx.RequestIDFrom(r)),
		slog.String("error", err.Error()),
	)
	httpx.JSONError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError), nil)
}

func decodeFields(w http.ResponseWriter, r *http.Request) (Fields, bool) {
	var fields Fields
	err := json.NewDecoder(r.Body).Decode(&fields)
	if maxErr := new(http.MaxBytesError); errors.As(err, &maxErr) {
		httpx.JSONError(w, http.StatusRequestEntityTooLarge, http.StatusText(http.StatusRequestEntityTooLarge), nil)
		return nil, false
	}
	if err != nil || fields == nil {
		invalidBookData(w, []FieldError{{Field: "body", Message: "body must be a JSON object"}})
		return nil, false
	}
	return fields, true
}

func invalidBookData(w http.ResponseWriter, fields []FieldError) {
	details := make([]httpx.ErrorDetail, 0, len(fields))
	for _, f := range fields {
		details = append(details, httpx.ErrorDetail{Field: f.Field, Message: f.Message})
	}
	httpx.JSONError(w, http.StatusBadRequest, "Invalid book data", details)
}

// pathID accepts only unsigned decimal ids; anything else is an unknown route.
func pathID(r *http.Request) (int, bool) {
	s := r.PathValue("id")
	if s == "" {
		return 0, false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	id, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return id, true
}

// intParam parses a query value, falling back to def when absent or malformed.
func intParam(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
