package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "libraloans/internal/errors"
	"libraloans/internal/logger"
)

type fakeService struct {
	books     map[int64]Book
	searched  string
	listedAll bool
	err       error
}

func (f *fakeService) FindByID(_ context.Context, id int64) (*Book, error) {
	if f.err != nil {
		return nil, f.err
	}
	if b, ok := f.books[id]; ok {
		return &b, nil
	}
	return nil, nil
}

func (f *fakeService) Search(_ context.Context, term string) ([]Book, error) {
	f.searched = term
	if f.err != nil {
		return nil, f.err
	}
	return []Book{f.books[1]}, nil
}

func (f *fakeService) All(_ context.Context) ([]Book, error) {
	f.listedAll = true
	if f.err != nil {
		return nil, f.err
	}
	return []Book{f.books[1], f.books[2]}, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func newTestRouter(svc Service) http.Handler {
	h := NewHandler(svc, logger.Discard())
	r := chi.NewRouter()
	r.Get("/api/books/search", h.HandleSearch)
	r.Get("/api/books/{id}", h.HandleGetBook)
	return r
}

func serve(t *testing.T, handler http.Handler, target string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w, env
}

func sampleBooks() map[int64]Book {
	return map[int64]Book{
		1: {ID: 1, Title: "Cien años de soledad", Author: "Gabriel García Márquez", Code: "LIT-001", Available: true},
		2: {ID: 2, Title: "Rayuela", Author: "Julio Cortázar", Code: "LIT-002", Available: false},
	}
}

func TestHandleSearch_BlankQueryListsCatalog(t *testing.T) {
	svc := &fakeService{books: sampleBooks()}

	w, env := serve(t, newTestRouter(svc), "/api/books/search?query=%20%20")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)
	assert.True(t, svc.listedAll)
	assert.Empty(t, svc.searched)

	var books []Book
	require.NoError(t, json.Unmarshal(env.Data, &books))
	assert.Len(t, books, 2)
}

func TestHandleSearch_TrimsTerm(t *testing.T) {
	svc := &fakeService{books: sampleBooks()}

	w, env := serve(t, newTestRouter(svc), "/api/books/search?query=%20soledad%20")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)
	assert.Equal(t, "soledad", svc.searched)
	assert.False(t, svc.listedAll)
}

func TestHandleSearch_StoreFailure(t *testing.T) {
	svc := &fakeService{err: domainerrors.Store(sql.ErrConnDone, "failed to search books")}

	w, env := serve(t, newTestRouter(svc), "/api/books/search?query=x")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.False(t, env.Success)
	assert.Equal(t, "internal server error", env.Message)
}

func TestHandleGetBook(t *testing.T) {
	svc := &fakeService{books: sampleBooks()}
	router := newTestRouter(svc)

	t.Run("found", func(t *testing.T) {
		w, env := serve(t, router, "/api/books/2")

		assert.Equal(t, http.StatusOK, w.Code)
		var book Book
		require.NoError(t, json.Unmarshal(env.Data, &book))
		assert.Equal(t, "Rayuela", book.Title)
		assert.False(t, book.Available)
	})

	t.Run("missing", func(t *testing.T) {
		w, env := serve(t, router, "/api/books/99")

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.False(t, env.Success)
		assert.Equal(t, "book not found", env.Message)
	})

	t.Run("zero and negative ids are absent", func(t *testing.T) {
		for _, path := range []string{"/api/books/0", "/api/books/-3"} {
			w, env := serve(t, router, path)

			assert.Equal(t, http.StatusNotFound, w.Code, path)
			assert.Equal(t, "book not found", env.Message, path)
		}
	})

	t.Run("not numeric", func(t *testing.T) {
		w, env := serve(t, router, "/api/books/abc")

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.False(t, env.Success)
	})
}
