package services

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/campuslib/backend/internal/config"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBookRouter(t *testing.T) (http.Handler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := NewBookService(NewPostgresCatalog(db), &config.CirculationConfig{DefaultPageSize: 10, MaxPageSize: 100})
	r := chi.NewRouter()
	r.Get("/books", s.ListBooks)
	r.Post("/books", s.CreateBook)
	r.Put("/books/{id}", s.UpdateBook)
	r.Delete("/books/{id}", s.DeleteBook)
	return r, mock
}

func TestBookService_CreateBook(t *testing.T) {
	created := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	t.Run("created", func(t *testing.T) {
		router, mock := newBookRouter(t)
		mock.ExpectQuery("INSERT INTO books").WithArgs("B1", "go-book", "", "", "", 2).
			WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/books", bytes.NewBufferString(`{"id":"B1","name":"go-book","copies":2}`)))

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Contains(t, w.Body.String(), `"copies":2`)
	})

	t.Run("negative copies", func(t *testing.T) {
		router, _ := newBookRouter(t)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/books", bytes.NewBufferString(`{"id":"B1","name":"go-book","copies":-1}`)))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t, `{"message":"copies must be a non-negative number"}`, w.Body.String())
	})

	t.Run("zero copies is allowed", func(t *testing.T) {
		router, mock := newBookRouter(t)
		mock.ExpectQuery("INSERT INTO books").WithArgs("B2", "sql-book", "", "", "", 0).
			WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/books", bytes.NewBufferString(`{"id":"B2","name":"sql-book","copies":0}`)))

		assert.Equal(t, http.StatusCreated, w.Code)
	})
}

func TestBookService_UpdateAndDelete(t *testing.T) {
	created := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	t.Run("update takes id from path", func(t *testing.T) {
		router, mock := newBookRouter(t)
		mock.ExpectQuery("UPDATE books SET").WithArgs("B7", "go-book", "GO", "Pike", "CS", 4).
			WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/books/B7",
			bytes.NewBufferString(`{"name":"go-book","title":"GO","author":"Pike","category":"CS","copies":4}`)))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("delete unknown", func(t *testing.T) {
		router, mock := newBookRouter(t)
		mock.ExpectExec("DELETE FROM books").WithArgs("B9").WillReturnResult(sqlmock.NewResult(0, 0))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/books/B9", nil))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
