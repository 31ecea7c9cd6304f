package services

import (
	"log"
	"net/http"

	"github.com/campuslib/backend/internal/config"
	"github.com/campuslib/backend/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

type BookService struct {
	catalog   *PostgresCatalog
	paging    *config.CirculationConfig
	validator *ValidationHelper
}

// BookRequest is the create/update payload of a catalog entry
// @Description Catalog entry
type BookRequest struct {
	ID       string `json:"id" validate:"required" example:"B-0001"`
	Name     string `json:"name" validate:"required" example:"go-programming"`
	Title    string `json:"title" example:"The Go Programming Language"`
	Author   string `json:"author" example:"Donovan & Kernighan"`
	Category string `json:"category" example:"Computer Science"`
	Copies   *int   `json:"copies" validate:"required,gte=0" example:"3"`
}

// BookPage is one page of the catalog.
type BookPage struct {
	Books []models.Book `json:"books"`
	Total int           `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

func NewBookService(catalog *PostgresCatalog, paging *config.CirculationConfig) *BookService {
	return &BookService{
		catalog:   catalog,
		paging:    paging,
		validator: NewValidationHelper(),
	}
}

// ListBooks pages through the catalog
// @Summary List books
// @Tags books
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Param search query string false "Matches id, name, title or author"
// @Success 200 {object} BookPage
// @Router /books [get]
func (s *BookService) ListBooks(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r, s.paging)
	books, total, err := s.catalog.ListBooks(r.Context(), r.URL.Query().Get("search"), page, limit)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, BookPage{Books: books, Total: total, Page: page, Limit: limit})
}

// CreateBook adds a catalog entry
// @Summary Create book
// @Tags books
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body BookRequest true "Book"
// @Success 201 {object} models.Book
// @Failure 400 {object} ErrorResponse
// @Router /books [post]
func (s *BookService) CreateBook(w http.ResponseWriter, r *http.Request) {
	book, ok := s.decodeBook(w, r)
	if !ok {
		return
	}

	if err := s.catalog.CreateBook(r.Context(), book); err != nil {
		if errors.Is(err, ErrDuplicate) {
			SendErrorResponse(w, "Book ID already exists", http.StatusBadRequest, nil)
			return
		}
		WriteError(w, err)
		return
	}

	log.Printf("[BOOKS] Added %s with %d copies", book.ID, book.Copies)
	WriteJSON(w, http.StatusCreated, book)
}

// UpdateBook replaces a catalog entry
// @Summary Update book
// @Tags books
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Book ID"
// @Param request body BookRequest true "Book"
// @Success 200 {object} models.Book
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /books/{id} [put]
func (s *BookService) UpdateBook(w http.ResponseWriter, r *http.Request) {
	book, ok := s.decodeBook(w, r)
	if !ok {
		return
	}
	book.ID = chi.URLParam(r, "id")

	if err := s.catalog.UpdateBook(r.Context(), book); err != nil {
		if errors.Is(err, ErrNotFound) {
			SendErrorResponse(w, "Book not found", http.StatusNotFound, nil)
			return
		}
		WriteError(w, err)
		return
	}

	log.Printf("[BOOKS] Updated %s", book.ID)
	WriteJSON(w, http.StatusOK, book)
}

// DeleteBook removes a catalog entry
// @Summary Delete book
// @Tags books
// @Produce json
// @Security BearerAuth
// @Param id path string true "Book ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} ErrorResponse
// @Router /books/{id} [delete]
func (s *BookService) DeleteBook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.catalog.DeleteBook(r.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			SendErrorResponse(w, "Book not found", http.StatusNotFound, nil)
			return
		}
		WriteError(w, err)
		return
	}

	log.Printf("[BOOKS] Deleted %s", id)
	WriteJSON(w, http.StatusOK, map[string]string{"message": "Book deleted successfully"})
}

func (s *BookService) decodeBook(w http.ResponseWriter, r *http.Request) (*models.Book, bool) {
	var req BookRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		WriteError(w, err)
		return nil, false
	}
	if r.Method == http.MethodPut {
		req.ID = chi.URLParam(r, "id")
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		if FieldFailed(err, "Copies") {
			SendErrorResponse(w, "copies must be a non-negative number", http.StatusBadRequest, nil)
			return nil, false
		}
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return nil, false
	}

	return &models.Book{
		ID:       req.ID,
		Name:     req.Name,
		Title:    req.Title,
		Author:   req.Author,
		Category: req.Category,
		Copies:   *req.Copies,
	}, true
}
